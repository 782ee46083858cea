package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pixil98/go-bastion/internal/mapgen"
	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/sim"
	"github.com/pixil98/go-bastion/internal/store"
)

// Publisher is the broadcast side of the transport gateway.
type Publisher interface {
	Broadcast(code, event string, payload any) error
	Send(connID, event string, payload any) error
}

// Config carries the coordinator's tunables.
type Config struct {
	SizeClass       mapgen.SizeClass
	TickRate        int
	StartingBalance int
	StartingLives   int
	MaxPlayers      int
	// RetentionWindow is how long a suspended session survives
	// without a rejoin before the reaper deletes it.
	RetentionWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SizeClass:       mapgen.SizeMedium,
		TickRate:        sim.DefaultTickRate,
		StartingBalance: 250,
		StartingLives:   20,
		MaxPlayers:      4,
		RetentionWindow: 24 * time.Hour,
	}
}

// Coordinator is the session registry and lifecycle state machine. One
// exists per process, owned by the entry point and handed to the
// transport and reaper workers.
type Coordinator struct {
	mu sync.Mutex

	cfg      Config
	store    store.SessionStore
	pub      Publisher
	sessions map[string]*Session
	// byConn indexes which session each connection is in.
	byConn map[string]string

	rng *rand.Rand
	// newScheduler builds each engine's timer source; tests swap in
	// manual schedulers.
	newScheduler func() sim.Scheduler
}

type CoordinatorOpt func(*Coordinator)

// WithSchedulerFactory overrides how engine schedulers are built.
func WithSchedulerFactory(fn func() sim.Scheduler) CoordinatorOpt {
	return func(c *Coordinator) { c.newScheduler = fn }
}

// WithRand substitutes the code-generation randomness source.
func WithRand(r *rand.Rand) CoordinatorOpt {
	return func(c *Coordinator) { c.rng = r }
}

func NewCoordinator(cfg Config, st store.SessionStore, pub Publisher, opts ...CoordinatorOpt) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		store:        st,
		pub:          pub,
		sessions:     map[string]*Session{},
		byConn:       map[string]string{},
		newScheduler: sim.NewScheduler,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return c
}

// lookup returns the live session for a code.
func (c *Coordinator) lookup(code string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[code]
}

// isBound reports whether a connection is already attached to a
// session. One connection drives at most one room.
func (c *Coordinator) isBound(connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byConn[connID]
	return ok
}

// sessionFor resolves a connection to its live session.
func (c *Coordinator) sessionFor(connID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.byConn[connID]
	if !ok {
		return nil
	}
	return c.sessions[code]
}

func (c *Coordinator) register(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.code] = s
}

func (c *Coordinator) unregister(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, code)
}

// unregisterIfAbandoned drops the registry entry only if the session is
// still suspended with nobody attached. A rejoin that revived the room
// while its suspension snapshot was being written keeps it registered.
func (c *Coordinator) unregisterIfAbandoned(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectedCount() > 0 || s.doc.Status != store.StatusSuspended {
		return
	}
	delete(c.sessions, s.code)
}

func (c *Coordinator) bindConn(connID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byConn[connID] = code
}

func (c *Coordinator) unbindConn(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byConn, connID)
}

// uniqueCode draws codes until one is free in both the registry and
// the durable store.
func (c *Coordinator) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 32; attempt++ {
		c.mu.Lock()
		code := newSessionCode(c.rng)
		_, taken := c.sessions[code]
		c.mu.Unlock()
		if taken {
			continue
		}
		_, err := c.store.Load(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking code availability: %w", err)
		}
	}
	return "", fmt.Errorf("could not find a free session code")
}

// buildEngine wires a simulation engine for a live session. Callers
// hold s.mu.
func (c *Coordinator) buildEngine(s *Session, snap *sim.Snapshot) *sim.Engine {
	opts := []sim.EngineOpt{
		sim.WithScheduler(c.newScheduler()),
		sim.WithGameOverFunc(func(final sim.Snapshot, stats protocol.SessionStats) {
			c.handleGameOver(s, final)
		}),
		sim.WithDirtyFunc(func() {
			c.persistAsync(s)
		}),
	}
	if snap != nil {
		opts = append(opts, sim.WithSnapshot(*snap))
	}

	cfg := sim.Config{
		TickRate:        c.cfg.TickRate,
		StartingBalance: c.cfg.StartingBalance,
		StartingLives:   c.cfg.StartingLives,
	}
	return sim.NewEngine(cfg, s.doc.Map, &roomPublisher{pub: c.pub, code: s.code}, opts...)
}

// roomPublisher binds the transport gateway to one session's room for
// the engine's event stream.
type roomPublisher struct {
	pub  Publisher
	code string
}

func (p *roomPublisher) Publish(event string, payload any) {
	if err := p.pub.Broadcast(p.code, event, payload); err != nil {
		slog.Warn("room broadcast failed", "session", p.code, "event", event, "error", err)
	}
}

// handleGameOver runs after the engine has stopped itself on a loss.
func (c *Coordinator) handleGameOver(s *Session, final sim.Snapshot) {
	s.mu.Lock()
	s.doc.Status = store.StatusCompleted
	syncSnapshot(s.doc, final)
	s.engine = nil
	s.mu.Unlock()

	c.persistAsync(s)
}

// snapshotFromDoc rebuilds the restorable engine state out of a
// persisted document.
func snapshotFromDoc(doc *store.SessionDoc) sim.Snapshot {
	snap := sim.Snapshot{
		Balance:        doc.Balance,
		Lives:          doc.Lives,
		Wave:           doc.Wave,
		WaveInProgress: doc.WaveInProgress,
	}
	for _, sr := range doc.Structures {
		snap.Structures = append(snap.Structures, sim.StructureSnapshot{
			ID: sr.ID, Kind: sr.Kind, GridX: sr.GridX, GridY: sr.GridY, Level: sr.Level,
		})
	}
	return snap
}

// syncSnapshot copies the engine's persistable state into the working
// document. Callers hold s.mu.
func syncSnapshot(doc *store.SessionDoc, snap sim.Snapshot) {
	doc.Balance = snap.Balance
	doc.Lives = snap.Lives
	doc.Wave = snap.Wave
	doc.WaveInProgress = snap.WaveInProgress
	doc.Structures = doc.Structures[:0]
	for _, st := range snap.Structures {
		doc.Structures = append(doc.Structures, store.StructureRecord{
			ID:    st.ID,
			Kind:  st.Kind,
			GridX: st.GridX,
			GridY: st.GridY,
			Level: st.Level,
		})
	}
}

// docSnapshot builds the document to persist, folding in the live
// engine state when one exists.
func (s *Session) docSnapshot() *store.SessionDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		syncSnapshot(s.doc, s.engine.Snapshot())
	}
	return s.doc.Clone()
}

// persistAsync queues a durable write without blocking the caller.
// Writes coalesce: if one is already queued, the state it will
// snapshot includes this change too.
func (c *Coordinator) persistAsync(s *Session) {
	if !s.persistQueued.CompareAndSwap(false, true) {
		return
	}
	go func() {
		s.persistQueued.Store(false)
		if err := c.persist(context.Background(), s); err != nil {
			slog.Error("persisting session failed", "session", s.code, "error", err)
		}
	}()
}

// persist writes the session document with the retry-once conflict
// policy: on a version conflict, re-fetch the stored version marker,
// re-apply the same snapshot, and try again exactly once. A second
// conflict is surfaced to the caller.
func (c *Coordinator) persist(ctx context.Context, s *Session) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.docSnapshot()
	err := c.store.Save(ctx, snap)
	if errors.Is(err, store.ErrConflict) {
		fresh, loadErr := c.store.Load(ctx, s.code)
		if loadErr != nil {
			return fmt.Errorf("reloading after conflict: %w", loadErr)
		}
		snap.Version = fresh.Version
		err = c.store.Save(ctx, snap)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.doc.Version = snap.Version
	s.doc.UpdatedAt = snap.UpdatedAt
	s.mu.Unlock()
	return nil
}
