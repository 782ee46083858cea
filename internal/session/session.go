// Package session owns the lifecycle of every game room: creation,
// join/rejoin, pause/resume, suspension when the room empties, expiry,
// and deletion. It mediates between the simulation engines, the
// persistence gateway, and the transport gateway, and it is the only
// component that moves a session between statuses.
package session

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/pixil98/go-bastion/internal/sim"
	"github.com/pixil98/go-bastion/internal/store"
)

// codeAlphabet omits easily-confused glyphs so codes survive being
// read over voice chat.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// Session is one live room: the working document, the simulation
// engine when one exists, and the connected roster. The in-memory
// connection map — not the durable document — is the source of truth
// for "is anyone here".
type Session struct {
	mu sync.Mutex

	code string
	doc  *store.SessionDoc
	// engine is nil while the session sits in the lobby and after a
	// suspension destroys the simulation.
	engine *sim.Engine

	// conns maps transient connection ids to stable player ids.
	conns map[string]string

	// persistMu serializes durable writes so no two saves for the
	// same session are ever in flight together.
	persistMu     sync.Mutex
	persistQueued atomic.Bool
}

func newLiveSession(doc *store.SessionDoc) *Session {
	return &Session{
		code:  doc.Code,
		doc:   doc,
		conns: map[string]string{},
	}
}

// connectedCount reports how many connections are in the room. Callers
// hold s.mu.
func (s *Session) connectedCount() int {
	return len(s.conns)
}

// playerIDFor resolves a connection to its stable player id. Callers
// hold s.mu.
func (s *Session) playerIDFor(connID string) (string, bool) {
	id, ok := s.conns[connID]
	return id, ok
}

// isConnected reports whether the stable player id has any live
// connection. Callers hold s.mu.
func (s *Session) isConnected(playerID string) bool {
	for _, pid := range s.conns {
		if pid == playerID {
			return true
		}
	}
	return false
}

func newSessionCode(rng *rand.Rand) string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rng.IntN(len(codeAlphabet))]
	}
	return string(b)
}
