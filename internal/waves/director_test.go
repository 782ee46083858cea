package waves

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-bastion/internal/defs"
)

func TestFor_Milestones(t *testing.T) {
	tests := map[string]struct {
		wave      int
		milestone bool
	}{
		"wave 1":   {1, false},
		"wave 9":   {9, false},
		"wave 10":  {10, true},
		"wave 20":  {20, true},
		"wave 50":  {50, true},
		"wave 55":  {55, false},
		"wave 60":  {60, true},
		"wave 100": {100, true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			comp := For(tt.wave)
			testutil.AssertEqual(t, "number", comp.Number, tt.wave)
			testutil.AssertEqual(t, "milestone", comp.Milestone, tt.milestone)
		})
	}
}

func TestFor_Cycling(t *testing.T) {
	// Wave 43 is the single-kind swarm wave; wave 93 cycles back onto
	// the same table row.
	comp43 := For(43)
	testutil.AssertEqual(t, "group count", len(comp43.Groups), 1)
	testutil.AssertEqual(t, "kind", comp43.Groups[0].Kind, defs.HostileSwarmling)
	testutil.AssertEqual(t, "count", comp43.Groups[0].Count, 60)

	comp93 := For(93)
	testutil.AssertEqual(t, "cycled group count", len(comp93.Groups), len(comp43.Groups))
	testutil.AssertEqual(t, "cycled kind", comp93.Groups[0].Kind, comp43.Groups[0].Kind)
	testutil.AssertEqual(t, "cycled count", comp93.Groups[0].Count, comp43.Groups[0].Count)
	testutil.AssertEqual(t, "cycled number", comp93.Number, 93)
}

func TestFor_TableComplete(t *testing.T) {
	// Every row must have at least one group, and every kind must
	// resolve in the catalog.
	for wave := 1; wave <= TablePeriod; wave++ {
		comp := For(wave)
		if len(comp.Groups) == 0 {
			t.Errorf("wave %d has no groups", wave)
		}
		for _, g := range comp.Groups {
			if _, ok := defs.Hostile(g.Kind); !ok {
				t.Errorf("wave %d references unknown kind %q", wave, g.Kind)
			}
			if g.Count < 1 {
				t.Errorf("wave %d has non-positive count for %q", wave, g.Kind)
			}
		}
	}
}

func TestHealthFor(t *testing.T) {
	spec := &defs.HostileSpec{Health: 100}

	tests := map[string]struct {
		wave int
		exp  float64
	}{
		"wave 1":  {1, 100},
		"wave 2":  {2, 120},
		"wave 5":  {5, 180},
		"wave 11": {11, 300},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "health", HealthFor(spec, tt.wave), tt.exp)
		})
	}
}

func TestRewardFor(t *testing.T) {
	spec := &defs.HostileSpec{Reward: 15}

	tests := map[string]struct {
		wave int
		exp  int
	}{
		"wave 1": {1, 15},
		"wave 2": {2, 16},
		"wave 3": {3, 18},
		"wave 7": {7, 24},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "reward", RewardFor(spec, tt.wave), tt.exp)
		})
	}
}

func TestDamageAt(t *testing.T) {
	spec := &defs.StructureSpec{Damage: 8, DamageMult: 1.35}

	testutil.AssertEqual(t, "level 1", DamageAt(spec, 1), 8.0)
	testutil.AssertEqual(t, "level 2", DamageAt(spec, 2), 8*1.35)

	// 8 * 1.35^2 = 14.58
	got := DamageAt(spec, 3)
	if got < 14.579 || got > 14.581 {
		t.Errorf("level 3 damage = %v, want 14.58", got)
	}
}

func TestUpgradeAndSell(t *testing.T) {
	spec := &defs.StructureSpec{
		Cost:        100,
		UpgradeMult: 1.5,
		FireRate:    time.Second,
	}

	testutil.AssertEqual(t, "level 1 cost", LevelCost(spec, 1), 100)
	testutil.AssertEqual(t, "level 2 cost", LevelCost(spec, 2), 150)
	testutil.AssertEqual(t, "level 3 cost", LevelCost(spec, 3), 225)
	testutil.AssertEqual(t, "upgrade from 1", UpgradeCost(spec, 1), 150)
	testutil.AssertEqual(t, "upgrade from 2", UpgradeCost(spec, 2), 225)

	// floor(0.5 * (100 + 150 + 225)) = 237
	testutil.AssertEqual(t, "sell at level 3", SellValue(spec, 3), 237)
	testutil.AssertEqual(t, "sell at level 1", SellValue(spec, 1), 50)
}
