package defs

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

var structureCatalog = map[StructureKind]*StructureSpec{
	StructureArrow: {
		Kind:        StructureArrow,
		Name:        "Arrow Tower",
		Cost:        100,
		Damage:      8,
		DamageMult:  1.35,
		UpgradeMult: 1.5,
		Range:       120,
		FireRate:    500 * time.Millisecond,
		StrongVs:    []HostileKind{HostileRunner, HostileShade},
		WeakVs:      []HostileKind{HostileBrute, HostileColossus},
	},
	StructureCannon: {
		Kind:        StructureCannon,
		Name:        "Cannon",
		Cost:        175,
		Damage:      30,
		DamageMult:  1.4,
		UpgradeMult: 1.6,
		Range:       100,
		FireRate:    1600 * time.Millisecond,
		Splash:      &SplashSpec{Radius: 48},
		StrongVs:    []HostileKind{HostileSwarmling, HostileGrunt},
		WeakVs:      []HostileKind{HostileRunner},
	},
	StructureFrost: {
		Kind:        StructureFrost,
		Name:        "Frost Spire",
		Cost:        150,
		Damage:      5,
		DamageMult:  1.25,
		UpgradeMult: 1.5,
		Range:       110,
		FireRate:    800 * time.Millisecond,
		Slow:        &SlowSpec{Duration: 2 * time.Second},
		StrongVs:    []HostileKind{HostileRunner},
	},
	StructureTesla: {
		Kind:        StructureTesla,
		Name:        "Tesla Coil",
		Cost:        225,
		Damage:      12,
		DamageMult:  1.3,
		UpgradeMult: 1.55,
		Range:       105,
		FireRate:    900 * time.Millisecond,
		Chain:       &ChainSpec{MaxTargets: 4, Range: 64},
		StrongVs:    []HostileKind{HostileSwarmling},
		WeakVs:      []HostileKind{HostileBrute},
	},
}

var hostileCatalog = map[HostileKind]*HostileSpec{
	HostileGrunt: {
		Kind:   HostileGrunt,
		Name:   "Grunt",
		Health: 100,
		Speed:  55,
		Reward: 10,
	},
	HostileRunner: {
		Kind:   HostileRunner,
		Name:   "Runner",
		Health: 60,
		Speed:  95,
		Reward: 12,
		Dodge:  0.25,
	},
	HostileBrute: {
		Kind:   HostileBrute,
		Name:   "Brute",
		Health: 320,
		Speed:  35,
		Reward: 25,
		Armor:  0.35,
	},
	HostileShade: {
		Kind:   HostileShade,
		Name:   "Shade",
		Health: 85,
		Speed:  70,
		Reward: 15,
		Dodge:  0.4,
	},
	HostileCarrier: {
		Kind:       HostileCarrier,
		Name:       "Carrier",
		Health:     220,
		Speed:      40,
		Reward:     20,
		DeathSpawn: &SpawnSpec{Kind: HostileSwarmling, Count: 4},
	},
	HostileSwarmling: {
		Kind:   HostileSwarmling,
		Name:   "Swarmling",
		Health: 25,
		Speed:  80,
		Reward: 3,
	},
	HostileColossus: {
		Kind:       HostileColossus,
		Name:       "Colossus",
		Health:     1500,
		Speed:      25,
		Reward:     150,
		Armor:      0.25,
		DeathSpawn: &SpawnSpec{Kind: HostileBrute, Count: 2},
	},
}

// Structure looks up a structure kind's static definition.
func Structure(k StructureKind) (*StructureSpec, bool) {
	s, ok := structureCatalog[k]
	return s, ok
}

// Hostile looks up a hostile kind's static definition.
func Hostile(k HostileKind) (*HostileSpec, bool) {
	h, ok := hostileCatalog[k]
	return h, ok
}

// Structures returns the full structure catalog keyed by kind.
func Structures() map[StructureKind]*StructureSpec {
	out := make(map[StructureKind]*StructureSpec, len(structureCatalog))
	for k, v := range structureCatalog {
		out[k] = v
	}
	return out
}

// ValidateCatalogs checks every built-in definition, including that
// death-spawn references resolve. Run once at startup.
func ValidateCatalogs() error {
	el := errors.NewErrorList()

	for k, s := range structureCatalog {
		if err := s.Validate(); err != nil {
			el.Add(fmt.Errorf("structure %s: %w", k, err))
		}
	}
	for k, h := range hostileCatalog {
		if err := h.Validate(); err != nil {
			el.Add(fmt.Errorf("hostile %s: %w", k, err))
		}
		if h.DeathSpawn != nil {
			if _, ok := hostileCatalog[h.DeathSpawn.Kind]; !ok {
				el.Add(fmt.Errorf("hostile %s: death_spawn kind %q not in catalog", k, h.DeathSpawn.Kind))
			}
		}
	}

	return el.Err()
}
