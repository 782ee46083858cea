package defs

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestValidateCatalogs(t *testing.T) {
	if err := ValidateCatalogs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructureLookup(t *testing.T) {
	spec, ok := Structure(StructureArrow)
	if !ok {
		t.Fatal("expected arrow to be in the catalog")
	}
	testutil.AssertEqual(t, "kind", spec.Kind, StructureArrow)

	_, ok = Structure(StructureKind("ballista"))
	testutil.AssertEqual(t, "unknown kind", ok, false)
}

func TestHostileLookup(t *testing.T) {
	spec, ok := Hostile(HostileGrunt)
	if !ok {
		t.Fatal("expected grunt to be in the catalog")
	}
	testutil.AssertEqual(t, "kind", spec.Kind, HostileGrunt)

	_, ok = Hostile(HostileKind("dragon"))
	testutil.AssertEqual(t, "unknown kind", ok, false)
}

func TestMatchups(t *testing.T) {
	arrow, _ := Structure(StructureArrow)

	tests := map[string]struct {
		kind   HostileKind
		strong bool
		weak   bool
	}{
		"strong against runner": {HostileRunner, true, false},
		"weak against brute":    {HostileBrute, false, true},
		"neutral against grunt": {HostileGrunt, false, false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "strong", arrow.StrongAgainst(tt.kind), tt.strong)
			testutil.AssertEqual(t, "weak", arrow.WeakAgainst(tt.kind), tt.weak)
		})
	}
}

func TestStructureSpecValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*StructureSpec)
		expErr string
	}{
		"valid": {
			mutate: func(s *StructureSpec) {},
		},
		"zero cost": {
			mutate: func(s *StructureSpec) { s.Cost = 0 },
			expErr: "cost",
		},
		"zero range": {
			mutate: func(s *StructureSpec) { s.Range = 0 },
			expErr: "range",
		},
		"zero fire rate": {
			mutate: func(s *StructureSpec) { s.FireRate = 0 },
			expErr: "fire_rate",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			base, _ := Structure(StructureArrow)
			spec := *base
			tt.mutate(&spec)

			err := spec.Validate()
			if tt.expErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func TestStructuresIsACopy(t *testing.T) {
	all := Structures()
	testutil.AssertEqual(t, "catalog size", len(all), 4)

	delete(all, StructureArrow)
	if _, ok := Structure(StructureArrow); !ok {
		t.Fatal("mutating the returned map must not touch the catalog")
	}
}
