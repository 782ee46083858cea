package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixil98/go-log"

	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/store"
)

// HandleDisconnect detaches a connection from its session and decides
// what the newly emptier room means for the session's lifecycle.
func (c *Coordinator) HandleDisconnect(connID string) {
	s := c.sessionFor(connID)
	c.unbindConn(connID)
	if s == nil {
		return
	}

	s.mu.Lock()
	pid, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)

	var name string
	if rec := s.doc.Player(pid); rec != nil {
		name = rec.DisplayName
	}
	empty := s.connectedCount() == 0
	status := s.doc.Status
	s.mu.Unlock()

	c.broadcast(s, protocol.EvPlayerLeft, protocol.PlayerInfo{
		PlayerID:    pid,
		DisplayName: name,
		Connected:   false,
	})

	if !empty {
		return
	}

	switch status {
	case store.StatusLobby, store.StatusCompleted:
		// Nothing worth keeping: an unstarted lobby or a finished game.
		c.unregister(s.code)
		if err := c.store.Delete(context.Background(), s.code); err != nil {
			slog.Warn("deleting empty session failed", "session", s.code, "error", err)
		}

	case store.StatusPlaying, store.StatusPaused:
		// Suspension runs off this goroutine so a rejoin racing the
		// disconnect can still win; suspend re-checks presence under
		// the session lock before committing anything.
		go c.suspend(s)

	case store.StatusSaved:
		// The document is the save; only the in-memory room goes away.
		c.unregister(s.code)
	}
}

// suspend parks an abandoned mid-game session: the simulation stops,
// the final snapshot is persisted with a suspension timestamp, and the
// in-memory room is released. If anyone rejoined since the last
// disconnect, the session stays live and nothing happens.
func (c *Coordinator) suspend(s *Session) {
	s.mu.Lock()
	if s.connectedCount() > 0 {
		s.mu.Unlock()
		return
	}
	if s.doc.Status != store.StatusPlaying && s.doc.Status != store.StatusPaused {
		s.mu.Unlock()
		return
	}

	if s.engine != nil {
		s.engine.Stop()
		syncSnapshot(s.doc, s.engine.Snapshot())
		s.engine = nil
	}
	s.doc.Status = store.StatusSuspended
	now := time.Now().UTC()
	s.doc.SuspendedAt = &now
	s.mu.Unlock()

	// Persist before dropping the registry entry: a rejoin after this
	// point revives from the store and must see the suspension. A rejoin
	// that lands while the snapshot is writing revives the room in
	// place, so the registry drop re-checks for that.
	if err := c.persist(context.Background(), s); err != nil {
		slog.Error("persisting suspended session failed", "session", s.code, "error", err)
	}
	c.unregisterIfAbandoned(s)
}

// Tick sweeps the durable store for suspended sessions whose retention
// window has lapsed and deletes them. It satisfies the driver's Manager
// interface and runs on the driver's cadence.
func (c *Coordinator) Tick(ctx context.Context) error {
	logger := log.GetLogger(ctx)

	docs, err := c.store.List(ctx, store.Filter{
		Statuses: []store.Status{store.StatusSuspended},
	})
	if err != nil {
		return fmt.Errorf("listing suspended sessions: %w", err)
	}

	cutoff := time.Now().Add(-c.cfg.RetentionWindow)
	removed := 0
	for _, doc := range docs {
		if doc.SuspendedAt == nil || doc.SuspendedAt.After(cutoff) {
			continue
		}
		if c.lookup(doc.Code) != nil {
			// Revived since the listing; leave it alone.
			continue
		}
		if err := c.store.Delete(ctx, doc.Code); err != nil {
			logger.Warnf("deleting expired session %s: %v", doc.Code, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Infof("reaped %d expired sessions", removed)
	}
	return nil
}
