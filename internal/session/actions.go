package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/pixil98/go-bastion/internal/defs"
	"github.com/pixil98/go-bastion/internal/mapgen"
	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/sim"
	"github.com/pixil98/go-bastion/internal/store"
)

const maxDisplayName = 24

// normalizeName canonicalizes a display name so visually identical
// names compare equal regardless of how the client composed them.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" || len([]rune(name)) > maxDisplayName {
		return "", ErrInvalidName
	}
	return name, nil
}

// CreateSession generates a map, mints the host identity, and registers
// a fresh lobby. The response carries the rejoin key; it is never
// recoverable afterwards.
func (c *Coordinator) CreateSession(ctx context.Context, connID string, req protocol.CreateSessionRequest) (*protocol.JoinResponse, error) {
	if c.isBound(connID) {
		return nil, ErrAlreadyInSession
	}

	name, err := normalizeName(req.DisplayName)
	if err != nil {
		return nil, err
	}

	class := c.cfg.SizeClass
	if req.SizeClass != "" {
		class = mapgen.SizeClass(req.SizeClass)
	}

	code, err := c.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	m, err := mapgen.Generate(class, nil)
	if err != nil {
		return nil, fmt.Errorf("generating map: %w", err)
	}

	rec, key, err := newPlayerRecord(name, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &store.SessionDoc{
		Code:      code,
		Status:    store.StatusLobby,
		Players:   []store.PlayerRecord{rec},
		Map:       m,
		Balance:   c.cfg.StartingBalance,
		Lives:     c.cfg.StartingLives,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s := newLiveSession(doc)
	s.conns[connID] = rec.PlayerID
	c.register(s)
	c.bindConn(connID, code)

	if err := c.persist(ctx, s); err != nil {
		c.unbindConn(connID)
		c.unregister(code)
		return nil, fmt.Errorf("persisting new session: %w", err)
	}

	resp := s.joinResponse(rec.PlayerID)
	resp.PlayerKey = key
	return resp, nil
}

// Join adds a new player to a lobby. Sessions past the lobby only admit
// rejoins.
func (c *Coordinator) Join(ctx context.Context, connID string, req protocol.JoinRequest) (*protocol.JoinResponse, error) {
	if c.isBound(connID) {
		return nil, ErrAlreadyInSession
	}

	name, err := normalizeName(req.DisplayName)
	if err != nil {
		return nil, err
	}

	s, err := c.resolve(ctx, strings.ToUpper(strings.TrimSpace(req.SessionCode)))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.doc.Status != store.StatusLobby {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if len(s.doc.Players) >= c.cfg.MaxPlayers {
		s.mu.Unlock()
		return nil, ErrSessionFull
	}
	for _, p := range s.doc.Players {
		if strings.EqualFold(p.DisplayName, name) {
			s.mu.Unlock()
			return nil, ErrDuplicateName
		}
	}

	rec, key, err := newPlayerRecord(name, false)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.doc.Players = append(s.doc.Players, rec)
	s.conns[connID] = rec.PlayerID
	resp := s.joinResponseLocked(rec.PlayerID)
	resp.PlayerKey = key
	s.mu.Unlock()

	c.bindConn(connID, s.code)
	c.broadcast(s, protocol.EvPlayerJoined, protocol.PlayerInfo{
		PlayerID:    rec.PlayerID,
		DisplayName: rec.DisplayName,
		Connected:   true,
	})
	c.persistAsync(s)

	return resp, nil
}

// Rejoin reattaches a returning player by their stable identity and
// rejoin key. If the session was suspended, this is the call that
// brings it back: the document is reloaded and a fresh engine is built
// from the persisted snapshot, paused, waiting on an explicit resume.
func (c *Coordinator) Rejoin(ctx context.Context, connID string, req protocol.JoinRequest) (*protocol.JoinResponse, error) {
	if c.isBound(connID) {
		return nil, ErrAlreadyInSession
	}

	s, err := c.resolve(ctx, strings.ToUpper(strings.TrimSpace(req.SessionCode)))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rec := s.doc.Player(req.PlayerID)
	if rec == nil || bcrypt.CompareHashAndPassword([]byte(rec.KeyHash), []byte(req.PlayerKey)) != nil {
		s.mu.Unlock()
		return nil, ErrRejoinDenied
	}
	if s.isConnected(rec.PlayerID) {
		s.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	s.conns[connID] = rec.PlayerID

	// A disconnect-triggered suspension may have landed between the
	// lookup and here. The returning player revives the room in place:
	// a fresh engine from the suspension snapshot, paused until resumed.
	if s.doc.Status == store.StatusSuspended {
		snap := snapshotFromDoc(s.doc)
		s.engine = c.buildEngine(s, &snap)
		s.doc.Status = store.StatusPaused
		s.doc.SuspendedAt = nil
	}

	// A backgrounded client rejoining a live game pauses it as part of
	// completing the rejoin, so nothing advances while they can't see.
	paused := false
	if req.Hidden && s.doc.Status == store.StatusPlaying && s.engine != nil {
		s.engine.Pause()
		s.doc.Status = store.StatusPaused
		s.doc.PausedBy = rec.DisplayName
		paused = true
	}

	resp := s.joinResponseLocked(rec.PlayerID)
	name := rec.DisplayName
	s.mu.Unlock()

	c.bindConn(connID, s.code)
	c.broadcast(s, protocol.EvPlayerJoined, protocol.PlayerInfo{
		PlayerID:    req.PlayerID,
		DisplayName: name,
		Connected:   true,
	})
	if paused {
		c.broadcast(s, protocol.EvGamePaused, protocol.PausedBroadcast{PausedBy: name})
	}
	c.persistAsync(s)

	return resp, nil
}

// resolve returns the live session for a code, reviving it from the
// durable store when the room has no in-memory presence.
func (c *Coordinator) resolve(ctx context.Context, code string) (*Session, error) {
	if s := c.lookup(code); s != nil {
		return s, nil
	}

	doc, err := c.store.Load(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading session %s: %w", code, err)
	}
	if doc.Status == store.StatusCompleted {
		return nil, ErrSessionEnded
	}

	s := newLiveSession(doc)
	if doc.Status != store.StatusLobby {
		// Anything past the lobby comes back paused with a rebuilt
		// engine; the players decide when to pick the game back up.
		snap := snapshotFromDoc(doc)
		s.engine = c.buildEngine(s, &snap)
		doc.Status = store.StatusPaused
		doc.SuspendedAt = nil
	}

	// Another connection may have revived the same session while we
	// were loading; the registry entry wins.
	c.mu.Lock()
	if existing, ok := c.sessions[code]; ok {
		c.mu.Unlock()
		if s.engine != nil {
			s.engine.Stop()
		}
		return existing, nil
	}
	c.sessions[code] = s
	c.mu.Unlock()
	return s, nil
}

// StartGame moves a lobby into play. Host only.
func (c *Coordinator) StartGame(ctx context.Context, connID string) error {
	s, rec, err := c.actor(connID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !rec.Host {
		s.mu.Unlock()
		return ErrNotHost
	}
	if s.doc.Status != store.StatusLobby {
		s.mu.Unlock()
		return ErrNotInLobby
	}
	s.doc.Status = store.StatusPlaying
	s.engine = c.buildEngine(s, nil)
	s.engine.Start()
	s.mu.Unlock()

	c.broadcast(s, protocol.EvGameStarted, nil)
	c.persistAsync(s)
	return nil
}

// Pause freezes a playing session. Any player may pause.
func (c *Coordinator) Pause(ctx context.Context, connID string) error {
	s, rec, err := c.actor(connID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.doc.Status != store.StatusPlaying || s.engine == nil {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	s.engine.Pause()
	s.doc.Status = store.StatusPaused
	s.doc.PausedBy = rec.DisplayName
	s.mu.Unlock()

	c.broadcast(s, protocol.EvGamePaused, protocol.PausedBroadcast{PausedBy: rec.DisplayName})
	c.persistAsync(s)
	return nil
}

// Resume unfreezes a paused session. A revived engine sits idle until
// its first start; a merely paused one resumes where it left off.
func (c *Coordinator) Resume(ctx context.Context, connID string) error {
	s, _, err := c.actor(connID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.doc.Status != store.StatusPaused || s.engine == nil {
		s.mu.Unlock()
		return ErrNotPaused
	}
	if s.engine.State() == sim.StateIdle {
		s.engine.Start()
	} else {
		s.engine.Resume()
	}
	s.doc.Status = store.StatusPlaying
	s.doc.PausedBy = ""
	s.mu.Unlock()

	c.broadcast(s, protocol.EvGameResumed, nil)
	c.persistAsync(s)
	return nil
}

// SaveSession stops the simulation and parks the session for a later
// revival. Host only.
func (c *Coordinator) SaveSession(ctx context.Context, connID string) error {
	s, rec, err := c.actor(connID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !rec.Host {
		s.mu.Unlock()
		return ErrNotHost
	}
	if s.doc.Status != store.StatusPlaying && s.doc.Status != store.StatusPaused {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	if s.engine != nil {
		s.engine.Stop()
		syncSnapshot(s.doc, s.engine.Snapshot())
		s.engine = nil
	}
	s.doc.Status = store.StatusSaved
	s.doc.PausedBy = ""
	s.mu.Unlock()

	if err := c.persist(ctx, s); err != nil {
		return fmt.Errorf("persisting saved session: %w", err)
	}
	c.broadcast(s, protocol.EvSessionSaved, nil)
	return nil
}

// PlaceStructure spends from the shared balance to place a structure.
func (c *Coordinator) PlaceStructure(ctx context.Context, connID string, req protocol.PlaceStructureRequest) error {
	s, engine, err := c.actingEngine(connID)
	if err != nil {
		return err
	}

	st, newBalance, err := engine.PlaceStructure(defs.StructureKind(req.Kind), req.GridX, req.GridY)
	if err != nil {
		return err
	}

	c.broadcast(s, protocol.EvStructurePlaced, protocol.PlaceStructureResponse{
		Structure: protocol.StructureInfo{
			ID:    st.ID,
			Kind:  string(st.Kind),
			GridX: st.GridX,
			GridY: st.GridY,
			Level: st.Level,
		},
		NewBalance: newBalance,
	})
	c.persistAsync(s)
	return nil
}

// UpgradeStructure raises a structure's level.
func (c *Coordinator) UpgradeStructure(ctx context.Context, connID string, req protocol.UpgradeStructureRequest) error {
	s, engine, err := c.actingEngine(connID)
	if err != nil {
		return err
	}

	newLevel, newBalance, err := engine.UpgradeStructure(req.StructureID)
	if err != nil {
		return err
	}

	c.broadcast(s, protocol.EvStructureUpgraded, protocol.UpgradeStructureResponse{
		StructureID: req.StructureID,
		NewLevel:    newLevel,
		NewBalance:  newBalance,
	})
	c.persistAsync(s)
	return nil
}

// SellStructure refunds half of everything paid for a structure.
func (c *Coordinator) SellStructure(ctx context.Context, connID string, req protocol.SellStructureRequest) error {
	s, engine, err := c.actingEngine(connID)
	if err != nil {
		return err
	}

	value, newBalance, err := engine.SellStructure(req.StructureID)
	if err != nil {
		return err
	}

	c.broadcast(s, protocol.EvStructureSold, protocol.SellStructureResponse{
		StructureID: req.StructureID,
		SellValue:   value,
		NewBalance:  newBalance,
	})
	c.persistAsync(s)
	return nil
}

// Chat relays a message to the whole room.
func (c *Coordinator) Chat(connID string, text string) error {
	s, rec, err := c.actor(connID)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.broadcast(s, protocol.EvChatMessage, protocol.ChatMessage{
		DisplayName: rec.DisplayName,
		Text:        text,
	})
	return nil
}

// ListLobbies sends the caller every live session still in its lobby.
func (c *Coordinator) ListLobbies(ctx context.Context, connID string) error {
	c.mu.Lock()
	live := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()

	var out protocol.LobbyList
	for _, s := range live {
		s.mu.Lock()
		if s.doc.Status == store.StatusLobby {
			summary := protocol.LobbySummary{
				SessionCode: s.code,
				PlayerCount: len(s.doc.Players),
				Status:      string(s.doc.Status),
			}
			if h := s.doc.Host(); h != nil {
				summary.HostName = h.DisplayName
			}
			out.Lobbies = append(out.Lobbies, summary)
		}
		s.mu.Unlock()
	}

	return c.pub.Send(connID, protocol.EvLobbyList, out)
}

// actor resolves a connection to its session and roster entry.
func (c *Coordinator) actor(connID string) (*Session, *store.PlayerRecord, error) {
	s := c.sessionFor(connID)
	if s == nil {
		return nil, nil, ErrNotInSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.playerIDFor(connID)
	if !ok {
		return nil, nil, ErrNotInSession
	}
	rec := s.doc.Player(pid)
	if rec == nil {
		return nil, nil, ErrNotInSession
	}
	return s, rec, nil
}

// actingEngine resolves a connection to a session whose simulation can
// accept economy actions. Placement and sale work while paused too.
func (c *Coordinator) actingEngine(connID string) (*Session, *sim.Engine, error) {
	s, _, err := c.actor(connID)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil || (s.doc.Status != store.StatusPlaying && s.doc.Status != store.StatusPaused) {
		return nil, nil, ErrNotPlaying
	}
	return s, s.engine, nil
}

// broadcast fans an event out to the room, logging delivery problems
// instead of failing the action that triggered them.
func (c *Coordinator) broadcast(s *Session, event string, payload any) {
	if err := c.pub.Broadcast(s.code, event, payload); err != nil {
		slog.Warn("room broadcast failed", "session", s.code, "event", event, "error", err)
	}
}

// newPlayerRecord mints a stable identity and a single-use-issuance
// rejoin key. Only the hash is retained.
func newPlayerRecord(name string, host bool) (store.PlayerRecord, string, error) {
	key := uuid.New().String()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return store.PlayerRecord{}, "", fmt.Errorf("hashing rejoin key: %w", err)
	}
	return store.PlayerRecord{
		PlayerID:    uuid.New().String(),
		DisplayName: name,
		Host:        host,
		KeyHash:     string(hash),
	}, key, nil
}

// joinResponse builds the full catch-up payload for one player.
func (s *Session) joinResponse(playerID string) *protocol.JoinResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinResponseLocked(playerID)
}

func (s *Session) joinResponseLocked(playerID string) *protocol.JoinResponse {
	if s.engine != nil {
		syncSnapshot(s.doc, s.engine.Snapshot())
	}

	mapJSON, _ := json.Marshal(s.doc.Map)

	resp := &protocol.JoinResponse{
		SessionCode: s.code,
		PlayerID:    playerID,
		Map:         mapJSON,
		Status:      string(s.doc.Status),
		Economy: protocol.EconomyState{
			Balance:        s.doc.Balance,
			Lives:          s.doc.Lives,
			Wave:           s.doc.Wave,
			WaveInProgress: s.doc.WaveInProgress,
		},
	}
	for _, p := range s.doc.Players {
		resp.Players = append(resp.Players, protocol.PlayerInfo{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Host:        p.Host,
			Connected:   s.isConnected(p.PlayerID),
		})
	}
	for _, st := range s.doc.Structures {
		resp.Structures = append(resp.Structures, protocol.StructureInfo{
			ID:    st.ID,
			Kind:  string(st.Kind),
			GridX: st.GridX,
			GridY: st.GridY,
			Level: st.Level,
		})
	}
	return resp
}
