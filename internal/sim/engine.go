// Package sim is the authoritative per-session simulation: hostile
// units walking the map path, structures firing at them, the shared
// economy, and wave progression. One Engine exists per live session;
// all of its state is guarded by a single mutex so a tick and a
// concurrent client action can never interleave destructively.
package sim

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixil98/go-bastion/internal/defs"
	"github.com/pixil98/go-bastion/internal/mapgen"
	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/waves"
)

// State is the engine's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

// Fixed gameplay constants. Externally visible behavior; change with
// care.
const (
	DefaultTickRate   = 10
	firstWaveDelay    = 5 * time.Second
	interWaveDelay    = 10 * time.Second
	spawnStagger      = 600 * time.Millisecond
	arrivalTolerance  = 2.0
	slowFactor        = 0.5
	splashFraction    = 0.5
	chainFraction     = 0.7
	strongMultiplier  = 1.5
	weakMultiplier    = 0.5
	deathSpawnStagger = 150 * time.Millisecond
)

// Publisher receives the engine's ordered event stream for its session
// room. Broadcasts happen while the engine lock is held, so clients
// observe events in tick order.
type Publisher interface {
	Publish(event string, payload any)
}

// Config carries the tunables the coordinator reads from its config
// file.
type Config struct {
	TickRate        int
	StartingBalance int
	StartingLives   int
}

// Structure is a placed defensive unit plus its live cooldown
// bookkeeping. The cooldown never persists; a restored structure may
// fire immediately.
type Structure struct {
	ID    string
	Kind  defs.StructureKind
	Spec  *defs.StructureSpec
	GridX int
	GridY int
	Level int

	lastFired time.Time
}

// Unit is one live hostile. Units exist only in engine memory; they
// are rebuilt from wave start after a suspension.
type Unit struct {
	ID        string
	Kind      defs.HostileKind
	Spec      *defs.HostileSpec
	Health    float64
	MaxHealth float64
	Reward    int

	X, Y float64
	// next is the index of the waypoint the unit is walking toward;
	// reaching len(path) means the unit is out.
	next int

	slowedUntil time.Time
	spawnDelay  time.Duration
}

func (u *Unit) active() bool { return u.spawnDelay <= 0 }

// Snapshot is the persistable slice of engine state: economy and
// structures, never units or cooldowns.
type Snapshot struct {
	Balance        int
	Lives          int
	Wave           int
	WaveInProgress bool
	Structures     []StructureSnapshot
}

type StructureSnapshot struct {
	ID    string
	Kind  defs.StructureKind
	GridX int
	GridY int
	Level int
}

// Engine runs one session's simulation.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	m     *mapgen.Map
	pub   Publisher
	sched Scheduler
	rng   *rand.Rand

	// onGameOver is invoked (on its own goroutine) when lives hit
	// zero, after the engine has stopped itself.
	onGameOver func(Snapshot, protocol.SessionStats)
	// onDirty is invoked after any tick that changed the economy, so
	// the coordinator can persist asynchronously.
	onDirty func()

	state          State
	balance        int
	lives          int
	wave           int
	waveInProgress bool
	structures     []*Structure
	units          []*Unit

	cancelTick CancelFunc
	cancelWave CancelFunc
	// waveDue is when the armed wave timer fires; waveRemaining holds
	// the unserved part of that delay across a pause.
	waveDue       time.Time
	waveRemaining time.Duration
	lastTick      time.Time
	startedAt     time.Time
	kills         int
}

type EngineOpt func(*Engine)

// WithScheduler substitutes the wall-clock scheduler; tests pass a
// ManualScheduler.
func WithScheduler(s Scheduler) EngineOpt {
	return func(e *Engine) { e.sched = s }
}

// WithRand substitutes the randomness source for deterministic tests.
func WithRand(r *rand.Rand) EngineOpt {
	return func(e *Engine) { e.rng = r }
}

// WithGameOverFunc registers the loss callback.
func WithGameOverFunc(fn func(Snapshot, protocol.SessionStats)) EngineOpt {
	return func(e *Engine) { e.onGameOver = fn }
}

// WithDirtyFunc registers the persistence nudge callback.
func WithDirtyFunc(fn func()) EngineOpt {
	return func(e *Engine) { e.onDirty = fn }
}

// WithSnapshot restores economy and structures from a persisted
// document, used when a suspended session is reconstructed.
func WithSnapshot(s Snapshot) EngineOpt {
	return func(e *Engine) { e.restore(s) }
}

func NewEngine(cfg Config, m *mapgen.Map, pub Publisher, opts ...EngineOpt) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}

	e := &Engine{
		cfg:     cfg,
		m:       m,
		pub:     pub,
		sched:   NewScheduler(),
		state:   StateIdle,
		balance: cfg.StartingBalance,
		lives:   cfg.StartingLives,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return e
}

func (e *Engine) restore(s Snapshot) {
	e.balance = s.Balance
	e.lives = s.Lives
	e.wave = s.Wave
	// Units are never persisted, so an interrupted wave restarts from
	// its beginning on resume.
	e.waveInProgress = false
	e.structures = e.structures[:0]
	for _, sr := range s.Structures {
		spec, ok := defs.Structure(sr.Kind)
		if !ok {
			continue
		}
		e.structures = append(e.structures, &Structure{
			ID:    sr.ID,
			Kind:  sr.Kind,
			Spec:  spec,
			GridX: sr.GridX,
			GridY: sr.GridY,
			Level: sr.Level,
		})
	}
}

// State reports the engine's lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start moves idle → running and arms the first wave.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return
	}
	e.state = StateRunning
	e.startedAt = e.sched.Now()
	e.lastTick = e.sched.Now()
	e.cancelTick = e.sched.Every(e.tickInterval(), e.tick)

	delay := firstWaveDelay
	if e.wave > 0 {
		// Restored session: the next wave is a continuation, not an
		// opening grace period.
		delay = interWaveDelay
	}
	e.waveRemaining = 0
	e.armWave(delay)
}

// Pause freezes a running engine. Calling it on an already-paused
// engine is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}
	e.state = StatePaused
	if e.cancelWave != nil {
		// Save the unserved part of the wave delay so a resume doesn't
		// restart the countdown from scratch.
		e.waveRemaining = e.waveDue.Sub(e.sched.Now())
		if e.waveRemaining < 0 {
			e.waveRemaining = 0
		}
	}
	e.clearTimers()
}

// Resume unfreezes a paused engine and resets the delta-time clock so
// the first tick back doesn't apply a giant catch-up step.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return
	}
	e.state = StateRunning
	e.lastTick = e.sched.Now()
	e.cancelTick = e.sched.Every(e.tickInterval(), e.tick)
	if !e.waveInProgress {
		delay := e.waveRemaining
		if delay <= 0 {
			delay = interWaveDelay
			if e.wave == 0 {
				delay = firstWaveDelay
			}
		}
		e.waveRemaining = 0
		e.armWave(delay)
	}
}

// Stop is terminal: the tick interval and any pending wave timer are
// cleared and the engine never runs again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.state == StateStopped {
		return
	}
	e.state = StateStopped
	e.clearTimers()
}

// armWave schedules the next wave start, recording the due time so a
// pause can measure what is left. Callers hold e.mu.
func (e *Engine) armWave(d time.Duration) {
	e.waveDue = e.sched.Now().Add(d)
	e.cancelWave = e.sched.After(d, e.startWave)
}

func (e *Engine) clearTimers() {
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
	if e.cancelWave != nil {
		e.cancelWave()
		e.cancelWave = nil
	}
}

func (e *Engine) tickInterval() time.Duration {
	return time.Second / time.Duration(e.cfg.TickRate)
}

// Snapshot copies the persistable state out under the lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Balance:        e.balance,
		Lives:          e.lives,
		Wave:           e.wave,
		WaveInProgress: e.waveInProgress,
		Structures:     make([]StructureSnapshot, 0, len(e.structures)),
	}
	for _, st := range e.structures {
		s.Structures = append(s.Structures, StructureSnapshot{
			ID:    st.ID,
			Kind:  st.Kind,
			GridX: st.GridX,
			GridY: st.GridY,
			Level: st.Level,
		})
	}
	return s
}

// PlaceStructure validates and performs a placement. Any player may
// act on the shared economy.
func (e *Engine) PlaceStructure(kind defs.StructureKind, gx, gy int) (StructureSnapshot, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	spec, ok := defs.Structure(kind)
	if !ok {
		return StructureSnapshot{}, 0, ErrUnknownKind
	}
	if e.m.At(gx, gy) != mapgen.CellBuildable {
		return StructureSnapshot{}, 0, ErrNotBuildable
	}
	for _, st := range e.structures {
		if st.GridX == gx && st.GridY == gy {
			return StructureSnapshot{}, 0, ErrTileOccupied
		}
	}
	if e.balance < spec.Cost {
		return StructureSnapshot{}, 0, ErrInsufficientBalance
	}

	e.balance -= spec.Cost
	st := &Structure{
		ID:    uuid.New().String(),
		Kind:  kind,
		Spec:  spec,
		GridX: gx,
		GridY: gy,
		Level: 1,
	}
	e.structures = append(e.structures, st)

	return StructureSnapshot{
		ID: st.ID, Kind: st.Kind, GridX: st.GridX, GridY: st.GridY, Level: st.Level,
	}, e.balance, nil
}

// UpgradeStructure raises a structure's level if the balance allows.
func (e *Engine) UpgradeStructure(id string) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.findStructure(id)
	if st == nil {
		return 0, 0, ErrStructureNotFound
	}
	cost := waves.UpgradeCost(st.Spec, st.Level)
	if e.balance < cost {
		return 0, 0, ErrInsufficientBalance
	}

	e.balance -= cost
	st.Level++
	return st.Level, e.balance, nil
}

// SellStructure removes a structure and refunds half of everything
// paid for it.
func (e *Engine) SellStructure(id string) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.findStructure(id)
	if st == nil {
		return 0, 0, ErrStructureNotFound
	}

	value := waves.SellValue(st.Spec, st.Level)
	e.balance += value
	for i, s := range e.structures {
		if s == st {
			e.structures = append(e.structures[:i], e.structures[i+1:]...)
			break
		}
	}
	return value, e.balance, nil
}

func (e *Engine) findStructure(id string) *Structure {
	for _, st := range e.structures {
		if st.ID == id {
			return st
		}
	}
	return nil
}
