package sim

import (
	"math"
	"time"

	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/waves"
)

// resolveShot handles one structure firing event: the primary hit,
// then the structure kind's secondary effect. The fired broadcast is
// visual only; there is no server-side projectile.
func (e *Engine) resolveShot(st *Structure, target *Unit, now time.Time) {
	sx, sy := e.structureCenter(st)
	tx, ty := target.X, target.Y

	dmg := waves.DamageAt(st.Spec, st.Level)
	hit := e.applyHit(st, target, dmg, now)

	e.pub.Publish(protocol.EvStructureFired, protocol.StructureFired{
		StructureKind: string(st.Kind),
		FromX:         sx,
		FromY:         sy,
		ToX:           tx,
		ToY:           ty,
		TargetUnitID:  target.ID,
		Hit:           hit,
	})

	// A dodged shot misses outright: no damage and no secondary
	// effect rides along.
	if !hit {
		return
	}

	switch {
	case st.Spec.Slow != nil:
		if target.Health > 0 {
			// Overwritten, never stacked.
			target.slowedUntil = now.Add(st.Spec.Slow.Duration)
		}

	case st.Spec.Splash != nil:
		e.applySplash(st, tx, ty, target, dmg, now)

	case st.Spec.Chain != nil:
		e.applyChain(st, target, dmg, now)
	}

	if e.waveInProgress && len(e.units) == 0 {
		e.completeWave()
	}
}

// applySplash re-resolves damage at half strength against every
// spawned unit inside the radius, excluding the primary target.
func (e *Engine) applySplash(st *Structure, cx, cy float64, primary *Unit, dmg float64, now time.Time) {
	// Snapshot first: kills mutate e.units while we walk it.
	var in []*Unit
	for _, u := range e.units {
		if u == primary || !u.active() {
			continue
		}
		if math.Hypot(u.X-cx, u.Y-cy) <= st.Spec.Splash.Radius {
			in = append(in, u)
		}
	}
	for _, u := range in {
		e.applyHit(st, u, dmg*splashFraction, now)
	}
}

// applyChain arcs to the nearest not-yet-hit unit within the secondary
// range, up to MaxTargets-1 extra hits at 0.7x damage, each hop
// continuing from the unit just struck.
func (e *Engine) applyChain(st *Structure, primary *Unit, dmg float64, now time.Time) {
	hitSet := map[*Unit]bool{primary: true}
	last := primary

	for hop := 0; hop < st.Spec.Chain.MaxTargets-1; hop++ {
		next := e.nearestUnit(last.X, last.Y, st.Spec.Chain.Range, hitSet)
		if next == nil {
			return
		}
		hitSet[next] = true
		e.applyHit(st, next, dmg*chainFraction, now)
		last = next
	}
}

// applyHit runs the full per-target resolution: matchup multiplier,
// dodge roll, armor reduction, then death handling. Returns false when
// the target dodged.
func (e *Engine) applyHit(st *Structure, u *Unit, dmg float64, now time.Time) bool {
	if st.Spec.StrongAgainst(u.Kind) {
		dmg *= strongMultiplier
	} else if st.Spec.WeakAgainst(u.Kind) {
		dmg *= weakMultiplier
	}

	if u.Spec.Dodge > 0 && e.rng.Float64() < u.Spec.Dodge {
		return false
	}

	if u.Spec.Armor > 0 {
		dmg *= 1 - u.Spec.Armor
	}

	u.Health -= dmg
	if u.Health <= 0 {
		e.killUnit(u, now)
	}
	return true
}

// killUnit credits the reward, releases any on-death spawns at the
// corpse position, and removes the unit.
func (e *Engine) killUnit(u *Unit, now time.Time) {
	e.removeUnit(u)
	e.balance += u.Reward
	e.kills++

	e.pub.Publish(protocol.EvUnitKilled, protocol.UnitKilled{
		UnitID:     u.ID,
		X:          u.X,
		Y:          u.Y,
		Reward:     u.Reward,
		NewBalance: e.balance,
	})
	e.notifyDirty()

	if u.Spec.DeathSpawn == nil {
		return
	}
	spawn := u.Spec.DeathSpawn
	spec, ok := e.hostileSpec(spawn.Kind)
	if !ok {
		return
	}
	for i := 0; i < spawn.Count; i++ {
		child := e.newUnit(spec, u.X+e.jitter(), u.Y+e.jitter(), time.Duration(i)*deathSpawnStagger)
		// Children pick up the walk where the parent fell.
		child.next = u.next
		e.units = append(e.units, child)
	}
}
