package defs

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

// StructureKind identifies a placeable defensive structure type.
type StructureKind string

const (
	StructureArrow  StructureKind = "arrow"
	StructureCannon StructureKind = "cannon"
	StructureFrost  StructureKind = "frost"
	StructureTesla  StructureKind = "tesla"
)

// HostileKind identifies a hostile unit type.
type HostileKind string

const (
	HostileGrunt     HostileKind = "grunt"
	HostileRunner    HostileKind = "runner"
	HostileBrute     HostileKind = "brute"
	HostileShade     HostileKind = "shade"
	HostileCarrier   HostileKind = "carrier"
	HostileSwarmling HostileKind = "swarmling"
	HostileColossus  HostileKind = "colossus"
)

// SlowSpec marks a structure whose hits slow the target. The movement
// penalty itself is a fixed engine constant; only the duration varies
// per structure kind.
type SlowSpec struct {
	Duration time.Duration `json:"duration"`
}

// SplashSpec marks a structure whose hits also damage units around the
// primary target at half damage.
type SplashSpec struct {
	Radius float64 `json:"radius"`
}

// ChainSpec marks a structure whose hits arc to additional nearby units
// at 0.7x damage per hop.
type ChainSpec struct {
	MaxTargets int     `json:"max_targets"`
	Range      float64 `json:"range"`
}

// SpawnSpec marks a hostile that releases replacements when it dies.
type SpawnSpec struct {
	Kind  HostileKind `json:"kind"`
	Count int         `json:"count"`
}

// StructureSpec is the static definition of one structure kind. At most
// one of Slow/Splash/Chain is set; a nil capability means the kind
// simply doesn't have it.
type StructureSpec struct {
	Kind        StructureKind `json:"kind"`
	Name        string        `json:"name"`
	Cost        int           `json:"cost"`
	Damage      float64       `json:"damage"`
	DamageMult  float64       `json:"damage_mult"`
	UpgradeMult float64       `json:"upgrade_mult"`
	Range       float64       `json:"range"`
	FireRate    time.Duration `json:"fire_rate"`

	Slow   *SlowSpec   `json:"slow,omitempty"`
	Splash *SplashSpec `json:"splash,omitempty"`
	Chain  *ChainSpec  `json:"chain,omitempty"`

	StrongVs []HostileKind `json:"strong_vs,omitempty"`
	WeakVs   []HostileKind `json:"weak_vs,omitempty"`
}

func (s *StructureSpec) Validate() error {
	el := errors.NewErrorList()

	if s.Kind == "" {
		el.Add(fmt.Errorf("kind must be set"))
	}
	if s.Cost <= 0 {
		el.Add(fmt.Errorf("cost must be positive"))
	}
	if s.Damage <= 0 {
		el.Add(fmt.Errorf("damage must be positive"))
	}
	if s.DamageMult < 1 {
		el.Add(fmt.Errorf("damage_mult must be at least 1"))
	}
	if s.UpgradeMult < 1 {
		el.Add(fmt.Errorf("upgrade_mult must be at least 1"))
	}
	if s.Range <= 0 {
		el.Add(fmt.Errorf("range must be positive"))
	}
	if s.FireRate <= 0 {
		el.Add(fmt.Errorf("fire_rate must be positive"))
	}
	if s.Chain != nil && s.Chain.MaxTargets < 2 {
		el.Add(fmt.Errorf("chain max_targets must be at least 2"))
	}

	return el.Err()
}

// StrongAgainst reports whether hits on the given hostile kind get the
// 1.5x matchup bonus.
func (s *StructureSpec) StrongAgainst(k HostileKind) bool {
	for _, v := range s.StrongVs {
		if v == k {
			return true
		}
	}
	return false
}

// WeakAgainst reports whether hits on the given hostile kind get the
// 0.5x matchup penalty.
func (s *StructureSpec) WeakAgainst(k HostileKind) bool {
	for _, v := range s.WeakVs {
		if v == k {
			return true
		}
	}
	return false
}

// HostileSpec is the static definition of one hostile unit kind. Health
// and reward here are wave-1 baselines; the wave director scales them.
type HostileSpec struct {
	Kind   HostileKind `json:"kind"`
	Name   string      `json:"name"`
	Health float64     `json:"health"`
	Speed  float64     `json:"speed"`
	Reward int         `json:"reward"`

	Dodge      float64    `json:"dodge,omitempty"`
	Armor      float64    `json:"armor,omitempty"`
	DeathSpawn *SpawnSpec `json:"death_spawn,omitempty"`
}

func (s *HostileSpec) Validate() error {
	el := errors.NewErrorList()

	if s.Kind == "" {
		el.Add(fmt.Errorf("kind must be set"))
	}
	if s.Health <= 0 {
		el.Add(fmt.Errorf("health must be positive"))
	}
	if s.Speed <= 0 {
		el.Add(fmt.Errorf("speed must be positive"))
	}
	if s.Reward < 0 {
		el.Add(fmt.Errorf("reward must not be negative"))
	}
	if s.Dodge < 0 || s.Dodge >= 1 {
		el.Add(fmt.Errorf("dodge must be in [0,1)"))
	}
	if s.Armor < 0 || s.Armor >= 1 {
		el.Add(fmt.Errorf("armor must be in [0,1)"))
	}
	if s.DeathSpawn != nil && s.DeathSpawn.Count <= 0 {
		el.Add(fmt.Errorf("death_spawn count must be positive"))
	}

	return el.Err()
}
