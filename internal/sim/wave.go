package sim

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixil98/go-bastion/internal/defs"
	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/waves"
)

// startWave spawns the next wave's composition at the entry with
// staggered spawn delays. Runs off the wave timer.
func (e *Engine) startWave() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}
	e.cancelWave = nil

	e.wave++
	e.waveInProgress = true
	comp := waves.For(e.wave)

	ex, ey := e.m.Waypoint(0)
	i := 0
	for _, g := range comp.Groups {
		spec, ok := e.hostileSpec(g.Kind)
		if !ok {
			continue
		}
		for c := 0; c < g.Count; c++ {
			u := e.newUnit(spec, ex+e.jitter(), ey+e.jitter(), time.Duration(i)*spawnStagger)
			e.units = append(e.units, u)
			i++
		}
	}

	e.pub.Publish(protocol.EvWaveStart, protocol.WaveStart{
		WaveNumber: e.wave,
		UnitCount:  i,
		Milestone:  comp.Milestone,
	})
	e.notifyDirty()
}

// completeWave fires whenever the live unit count hits zero during an
// in-progress wave, whether the last unit died or escaped. Waves
// continue indefinitely; there is no victory condition.
func (e *Engine) completeWave() {
	e.waveInProgress = false
	e.pub.Publish(protocol.EvWaveComplete, protocol.WaveComplete{WaveNumber: e.wave})
	e.notifyDirty()

	e.armWave(interWaveDelay)
}

func (e *Engine) newUnit(spec *defs.HostileSpec, x, y float64, delay time.Duration) *Unit {
	health := waves.HealthFor(spec, e.wave)
	return &Unit{
		ID:         uuid.New().String(),
		Kind:       spec.Kind,
		Spec:       spec,
		Health:     health,
		MaxHealth:  health,
		Reward:     waves.RewardFor(spec, e.wave),
		X:          x,
		Y:          y,
		next:       1,
		spawnDelay: delay,
	}
}

func (e *Engine) hostileSpec(k defs.HostileKind) (*defs.HostileSpec, bool) {
	return defs.Hostile(k)
}

// jitter spreads spawn positions a little so batches don't render as a
// single stacked dot.
func (e *Engine) jitter() float64 {
	spread := float64(e.m.CellPx) / 4
	return (e.rng.Float64() - 0.5) * spread
}
