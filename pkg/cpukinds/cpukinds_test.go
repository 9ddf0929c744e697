package cpukinds

import (
	"testing"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
)

func TestRegisterRejectsEmptyCpuset(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(bitmap.New(), 1, nil, 0); err == nil {
		t.Fatalf("expected error registering an empty cpuset")
	}
}

func TestIncrementalRegistrationScenario(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(bitmap.FromSlice(0, 1, 2, 3), 1, nil, 0); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if err := r.Register(bitmap.FromSlice(2, 3, 4, 5), 2, nil, 0); err != nil {
		t.Fatalf("register B: %v", err)
	}

	if got := r.GetNr(); got != 3 {
		t.Fatalf("expected 3 kinds after split, got %d", got)
	}

	wantSets := []struct {
		members []int
		forced  int
	}{
		{[]int{0, 1}, 1},
		{[]int{2, 3}, 2},
		{[]int{4, 5}, 2},
	}
	for i, want := range wantSets {
		k, err := r.GetInfo(i)
		if err != nil {
			t.Fatalf("GetInfo(%d): %v", i, err)
		}
		if !bitmap.IsEqual(k.CPUSet, bitmap.FromSlice(want.members...)) {
			t.Errorf("kind %d cpuset = %v, want %v", i, k.CPUSet.Members(), want.members)
		}
		if k.ForcedEfficiency != want.forced {
			t.Errorf("kind %d forced efficiency = %d, want %d", i, k.ForcedEfficiency, want.forced)
		}
	}

	idx, err := r.GetByCpuset(bitmap.FromSlice(2, 3))
	if err != nil || idx != 1 {
		t.Errorf("GetByCpuset({2,3}) = %d, %v, want index 1", idx, err)
	}

	_, err = r.GetByCpuset(bitmap.FromSlice(1, 2))
	if !hwlocerr.Is(err, hwlocerr.KindEXDEV) {
		t.Errorf("GetByCpuset({1,2}) should be EXDEV, got %v", err)
	}
}

func TestRankAscendingByForcedEfficiency(t *testing.T) {
	r := NewRegistry()
	r.Register(bitmap.FromSlice(0, 1), 5, nil, 0)
	r.Register(bitmap.FromSlice(2, 3), 1, nil, 0)

	k0, _ := r.GetInfo(0)
	k1, _ := r.GetInfo(1)
	if k1.Efficiency >= k0.Efficiency {
		t.Errorf("kind with lower forced efficiency should resolve to a lower rank: k0=%d k1=%d", k0.Efficiency, k1.Efficiency)
	}
}

func TestRankUnknownWhenNotAllForced(t *testing.T) {
	r := NewRegistry()
	r.Register(bitmap.FromSlice(0, 1), EfficiencyUnknown, nil, 0)
	r.Register(bitmap.FromSlice(2, 3), 1, nil, 0)

	for i := 0; i < r.GetNr(); i++ {
		k, _ := r.GetInfo(i)
		if k.Efficiency != EfficiencyUnknown {
			t.Errorf("kind %d efficiency = %d, want unknown when not every kind has a forced efficiency", i, k.Efficiency)
		}
	}
}

func TestRegisterAbsentPUs(t *testing.T) {
	// A kind may be registered over PUs absent from any topology the
	// registry has seen; the registry carries them forward rather than
	// rejecting or silently dropping them (see DESIGN.md Open Question 1).
	r := NewRegistry()
	if err := r.Register(bitmap.FromSlice(100, 200), 1, nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k, err := r.GetInfo(0)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if !bitmap.IsEqual(k.CPUSet, bitmap.FromSlice(100, 200)) {
		t.Errorf("registry should carry forward the full cpuset, got %v", k.CPUSet.Members())
	}
}

func TestRestrictDropsEmptyKinds(t *testing.T) {
	r := NewRegistry()
	r.Register(bitmap.FromSlice(0, 1), 1, nil, 0)
	r.Register(bitmap.FromSlice(2, 3), 2, nil, 0)

	r.Restrict(bitmap.FromSlice(0, 1))
	if r.GetNr() != 1 {
		t.Fatalf("expected 1 surviving kind, got %d", r.GetNr())
	}
	k, _ := r.GetInfo(0)
	if !bitmap.IsEqual(k.CPUSet, bitmap.FromSlice(0, 1)) {
		t.Errorf("surviving kind cpuset = %v", k.CPUSet.Members())
	}
}

func TestAugmentContainingKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(bitmap.FromSlice(1, 2), 1, nil, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Registering a cpuset that contains (or equals) an existing kind
	// augments it in place instead of splitting.
	if err := r.Register(bitmap.FromSlice(0, 1, 2, 3), EfficiencyUnknown, nil, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.GetNr() != 2 {
		t.Fatalf("expected the existing kind augmented plus one new kind for the remainder, got %d kinds", r.GetNr())
	}
	k0, _ := r.GetInfo(0)
	if !bitmap.IsEqual(k0.CPUSet, bitmap.FromSlice(1, 2)) {
		t.Errorf("augmented kind cpuset should be unchanged, got %v", k0.CPUSet.Members())
	}
	if k0.ForcedEfficiency != 1 {
		t.Errorf("forced efficiency should stay 1 since OverwriteForcedEfficiency was not set and it was already known, got %d", k0.ForcedEfficiency)
	}
	k1, _ := r.GetInfo(1)
	if !bitmap.IsEqual(k1.CPUSet, bitmap.FromSlice(0, 3)) {
		t.Errorf("remainder kind cpuset = %v, want {0,3}", k1.CPUSet.Members())
	}
}
