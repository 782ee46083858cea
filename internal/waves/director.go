// Package waves maps wave numbers to enemy composition and difficulty
// scaling. Everything here is pure; the simulation engine owns all
// mutable wave state.
package waves

import (
	"math"

	"github.com/pixil98/go-bastion/internal/defs"
)

const (
	// HealthScaling is the linear per-wave hostile health growth factor.
	HealthScaling = 0.20
	// RewardScaling is the linear per-wave kill reward growth factor.
	RewardScaling = 0.10
	// TablePeriod is the length of the composition table; wave numbers
	// beyond it cycle with this period.
	TablePeriod = 50
	// MilestoneEvery marks every Nth wave as a milestone (boss) wave.
	MilestoneEvery = 10
)

// Group is one homogeneous batch of hostiles within a wave.
type Group struct {
	Kind  defs.HostileKind `json:"kind"`
	Count int              `json:"count"`
}

// Composition describes everything spawned for one wave.
type Composition struct {
	Number    int     `json:"number"`
	Groups    []Group `json:"groups"`
	Milestone bool    `json:"milestone"`
}

// UnitCount returns the total number of hostiles in the composition.
func (c Composition) UnitCount() int {
	n := 0
	for _, g := range c.Groups {
		n += g.Count
	}
	return n
}

// For returns the composition for the given wave number (1-based).
// Numbers past the table length cycle with TablePeriod.
func For(wave int) Composition {
	if wave < 1 {
		wave = 1
	}
	idx := (wave - 1) % TablePeriod
	return Composition{
		Number:    wave,
		Groups:    table[idx],
		Milestone: wave%MilestoneEvery == 0,
	}
}

// HealthFor scales a hostile kind's base health for the given wave,
// floored to a whole number.
func HealthFor(spec *defs.HostileSpec, wave int) float64 {
	return math.Floor(spec.Health * (1 + HealthScaling*float64(wave-1)))
}

// RewardFor scales a hostile kind's base kill reward for the given
// wave, floored to a whole number.
func RewardFor(spec *defs.HostileSpec, wave int) int {
	return int(math.Floor(float64(spec.Reward) * (1 + RewardScaling*float64(wave-1))))
}

// DamageAt computes a structure's per-hit damage at the given level.
func DamageAt(spec *defs.StructureSpec, level int) float64 {
	return spec.Damage * math.Pow(spec.DamageMult, float64(level-1))
}

// LevelCost returns what was paid to reach the given level: the base
// cost for level 1, floor(base * mult^(level-1)) after that.
func LevelCost(spec *defs.StructureSpec, level int) int {
	if level <= 1 {
		return spec.Cost
	}
	return int(math.Floor(float64(spec.Cost) * math.Pow(spec.UpgradeMult, float64(level-1))))
}

// UpgradeCost returns the price of the upgrade from the given level to
// the next one.
func UpgradeCost(spec *defs.StructureSpec, level int) int {
	return LevelCost(spec, level+1)
}

// SellValue is half of everything historically paid for the structure,
// floored. Not half of the current level's cost alone.
func SellValue(spec *defs.StructureSpec, level int) int {
	total := 0
	for l := 1; l <= level; l++ {
		total += LevelCost(spec, l)
	}
	return int(math.Floor(0.5 * float64(total)))
}
