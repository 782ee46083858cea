package store

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-bastion/internal/defs"
	"github.com/pixil98/go-bastion/internal/mapgen"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusSaved     Status = "saved"
)

// PlayerRecord is one roster entry. PlayerID is the stable identity
// used across reconnects; KeyHash is the bcrypt hash of the rejoin
// secret handed to the client at first join. The transient connection
// identity is never persisted.
type PlayerRecord struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Host        bool   `json:"host"`
	KeyHash     string `json:"keyHash"`
}

// StructureRecord is one placed structure as persisted. Cooldown
// bookkeeping lives only in the simulation engine.
type StructureRecord struct {
	ID    string             `json:"id"`
	Kind  defs.StructureKind `json:"kind"`
	GridX int                `json:"gridX"`
	GridY int                `json:"gridY"`
	Level int                `json:"level"`
}

// SessionDoc is the full persisted session document. Hostile units are
// deliberately absent: they are rebuilt from wave start on resume.
type SessionDoc struct {
	Code    string         `json:"code"`
	Status  Status         `json:"status"`
	Players []PlayerRecord `json:"players"`
	Map     *mapgen.Map    `json:"map"`

	Balance        int               `json:"balance"`
	Lives          int               `json:"lives"`
	Wave           int               `json:"wave"`
	WaveInProgress bool              `json:"waveInProgress"`
	Structures     []StructureRecord `json:"structures"`

	PausedBy    string     `json:"pausedBy,omitempty"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Version is the optimistic-concurrency marker, managed by the
	// store. Zero means "not yet inserted".
	Version int64 `json:"-"`
}

func (d *SessionDoc) Validate() error {
	el := errors.NewErrorList()

	if d.Code == "" {
		el.Add(fmt.Errorf("code must be set"))
	}
	if d.Status == "" {
		el.Add(fmt.Errorf("status must be set"))
	}
	if d.Balance < 0 {
		el.Add(fmt.Errorf("balance must not be negative"))
	}
	if d.Lives < 0 {
		el.Add(fmt.Errorf("lives must not be negative"))
	}
	if d.Map == nil {
		el.Add(fmt.Errorf("map must be set"))
	}

	return el.Err()
}

// Host returns the roster entry flagged as host, or nil.
func (d *SessionDoc) Host() *PlayerRecord {
	for i := range d.Players {
		if d.Players[i].Host {
			return &d.Players[i]
		}
	}
	return nil
}

// Player returns the roster entry for a stable player id, or nil.
func (d *SessionDoc) Player(playerID string) *PlayerRecord {
	for i := range d.Players {
		if d.Players[i].PlayerID == playerID {
			return &d.Players[i]
		}
	}
	return nil
}

// Clone deep-copies the document so snapshots handed to the persister
// can't race live mutation. The map is immutable per session and is
// shared, not copied.
func (d *SessionDoc) Clone() *SessionDoc {
	out := *d
	out.Players = append([]PlayerRecord(nil), d.Players...)
	out.Structures = append([]StructureRecord(nil), d.Structures...)
	if d.SuspendedAt != nil {
		t := *d.SuspendedAt
		out.SuspendedAt = &t
	}
	return &out
}
