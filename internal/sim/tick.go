package sim

import (
	"log/slog"
	"math"
	"time"

	"github.com/pixil98/go-bastion/internal/protocol"
)

// tick advances the simulation by one wall-clock step. It runs
// synchronously against the in-memory state; nothing inside may block.
// A panicking tick is logged and skipped rather than killing the
// session's loop.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("simulation tick failed", "wave", e.wave, "panic", r)
		}
	}()

	if e.state != StateRunning {
		return
	}

	now := e.sched.Now()
	dt := now.Sub(e.lastTick).Seconds()
	e.lastTick = now
	if dt <= 0 {
		return
	}

	e.advanceUnits(dt, now)
	if e.state != StateRunning {
		return
	}

	e.fireStructures(now)
	if e.state != StateRunning {
		return
	}

	e.broadcastSnapshot()
}

// advanceUnits moves every spawned unit along the path and resolves
// exits.
func (e *Engine) advanceUnits(dt float64, now time.Time) {
	var escaped []*Unit

	for _, u := range e.units {
		if u.spawnDelay > 0 {
			u.spawnDelay -= time.Duration(dt * float64(time.Second))
			if u.spawnDelay > 0 {
				continue
			}
			u.spawnDelay = 0
		}

		if u.next >= len(e.m.Path) {
			escaped = append(escaped, u)
			continue
		}

		speed := u.Spec.Speed
		if now.Before(u.slowedUntil) {
			speed *= slowFactor
		}

		wx, wy := e.m.Waypoint(u.next)
		dx, dy := wx-u.X, wy-u.Y
		dist := math.Hypot(dx, dy)
		step := speed * dt
		if dist > 0 {
			if step > dist {
				step = dist
			}
			u.X += dx / dist * step
			u.Y += dy / dist * step
		}

		if math.Hypot(wx-u.X, wy-u.Y) <= arrivalTolerance {
			u.X, u.Y = wx, wy
			u.next++
			if u.next >= len(e.m.Path) {
				escaped = append(escaped, u)
			}
		}
	}

	for _, u := range escaped {
		e.unitEscaped(u)
		if e.state != StateRunning {
			return
		}
	}
}

// unitEscaped removes a unit that reached the exit and charges a life.
func (e *Engine) unitEscaped(u *Unit) {
	e.removeUnit(u)
	e.lives--
	if e.lives < 0 {
		e.lives = 0
	}
	e.pub.Publish(protocol.EvUnitEscaped, protocol.UnitEscaped{
		UnitID:         u.ID,
		X:              u.X,
		Y:              u.Y,
		LivesRemaining: e.lives,
	})
	e.notifyDirty()

	if e.lives == 0 {
		e.endAsLoss()
		return
	}
	if e.waveInProgress && len(e.units) == 0 {
		e.completeWave()
	}
}

// fireStructures lets every off-cooldown structure shoot the nearest
// spawned unit in range.
func (e *Engine) fireStructures(now time.Time) {
	for _, st := range e.structures {
		if now.Sub(st.lastFired) < st.Spec.FireRate {
			continue
		}
		sx, sy := e.structureCenter(st)
		target := e.nearestUnit(sx, sy, st.Spec.Range, nil)
		if target == nil {
			continue
		}
		st.lastFired = now
		e.resolveShot(st, target, now)
		if e.state != StateRunning {
			return
		}
	}
}

func (e *Engine) structureCenter(st *Structure) (float64, float64) {
	px := float64(e.m.CellPx)
	return (float64(st.GridX) + 0.5) * px, (float64(st.GridY) + 0.5) * px
}

// nearestUnit finds the closest spawned unit within radius of (x, y),
// skipping anything in exclude.
func (e *Engine) nearestUnit(x, y, radius float64, exclude map[*Unit]bool) *Unit {
	var closest *Unit
	minDist := radius
	for _, u := range e.units {
		if !u.active() || exclude[u] {
			continue
		}
		d := math.Hypot(u.X-x, u.Y-y)
		if d <= minDist {
			minDist = d
			closest = u
		}
	}
	return closest
}

func (e *Engine) removeUnit(u *Unit) {
	for i, other := range e.units {
		if other == u {
			e.units = append(e.units[:i], e.units[i+1:]...)
			return
		}
	}
}

// broadcastSnapshot publishes the periodic room state: every spawned
// unit plus the economy fields.
func (e *Engine) broadcastSnapshot() {
	snap := protocol.StateSnapshot{
		Units:   make([]protocol.UnitSnapshot, 0, len(e.units)),
		Balance: e.balance,
		Lives:   e.lives,
		Wave:    e.wave,
	}
	for _, u := range e.units {
		if !u.active() {
			continue
		}
		snap.Units = append(snap.Units, protocol.UnitSnapshot{
			ID:        u.ID,
			Kind:      string(u.Kind),
			X:         u.X,
			Y:         u.Y,
			Health:    u.Health,
			MaxHealth: u.MaxHealth,
		})
	}
	e.pub.Publish(protocol.EvStateSnapshot, snap)
}

// endAsLoss stops the engine and reports the terminal result. The
// game-over callback runs on its own goroutine because the coordinator
// will want to take its own locks.
func (e *Engine) endAsLoss() {
	finalWave := e.wave
	stats := protocol.SessionStats{
		WavesCompleted:  finalWave - 1,
		UnitsKilled:     e.kills,
		StructuresBuilt: len(e.structures),
		DurationSecs:    int(e.sched.Now().Sub(e.startedAt).Seconds()),
	}
	if stats.WavesCompleted < 0 {
		stats.WavesCompleted = 0
	}

	e.pub.Publish(protocol.EvSessionOver, protocol.SessionOver{
		Victory:   false,
		FinalWave: finalWave,
		Stats:     stats,
	})

	snap := e.snapshotLocked()
	e.stopLocked()

	if e.onGameOver != nil {
		go e.onGameOver(snap, stats)
	}
}

func (e *Engine) notifyDirty() {
	if e.onDirty != nil {
		go e.onDirty()
	}
}
