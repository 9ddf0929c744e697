package memattrs

import (
	"testing"

	"github.com/go-hwloc/hwloc/pkg/object"
)

func TestBuiltinsRegistered(t *testing.T) {
	r := NewRegistry()
	for _, id := range []ID{Capacity, Locality, Bandwidth, Latency} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("builtin %d should be registered", id)
		}
	}
}

func TestSetGetValueNoInitiator(t *testing.T) {
	r := NewRegistry()
	if err := r.SetValue(Capacity, 10, nil, 1<<30); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, ok := r.GetValue(Capacity, 10, nil)
	if !ok || v != 1<<30 {
		t.Errorf("GetValue = %v, %v", v, ok)
	}
}

func TestSetValueRequiresInitiator(t *testing.T) {
	r := NewRegistry()
	if err := r.SetValue(Bandwidth, 1, nil, 100); err == nil {
		t.Errorf("expected error: Bandwidth requires an initiator")
	}
}

func TestGetBestTargetDirection(t *testing.T) {
	r := NewRegistry()
	init := &Initiator{Object: 0}
	r.SetValue(Bandwidth, 1, init, 100)
	r.SetValue(Bandwidth, 2, init, 200)
	r.SetValue(Latency, 1, init, 50)
	r.SetValue(Latency, 2, init, 10)

	bestBW, _, ok := r.GetBestTarget(Bandwidth, init)
	if !ok || bestBW != 2 {
		t.Errorf("GetBestTarget(Bandwidth) = %v, want target 2 (higher wins)", bestBW)
	}

	bestLat, _, ok := r.GetBestTarget(Latency, init)
	if !ok || bestLat != 2 {
		t.Errorf("GetBestTarget(Latency) = %v, want target 2 (lower wins)", bestLat)
	}
}

func TestGetTargetsFilteredByInitiator(t *testing.T) {
	r := NewRegistry()
	a := &Initiator{Object: 0}
	b := &Initiator{Object: 1}
	r.SetValue(Bandwidth, 10, a, 1)
	r.SetValue(Bandwidth, 11, b, 2)

	targets := r.GetTargets(Bandwidth, a)
	if len(targets) != 1 || targets[0] != 10 {
		t.Errorf("GetTargets(a) = %v", targets)
	}
}

func TestRestrictDropsValues(t *testing.T) {
	r := NewRegistry()
	r.SetValue(Capacity, 1, nil, 10)
	r.SetValue(Capacity, 2, nil, 20)
	r.Restrict(func(id object.ID) bool { return id == 1 })
	if _, ok := r.GetValue(Capacity, 2, nil); ok {
		t.Errorf("object 2's value should have been dropped")
	}
	if _, ok := r.GetValue(Capacity, 1, nil); !ok {
		t.Errorf("object 1's value should remain")
	}
}

func TestRegisterCustomRejectsBadFlags(t *testing.T) {
	r := NewRegistry()
	if _, err := r.RegisterCustom("both", HigherFirst|LowerFirst); err == nil {
		t.Errorf("expected error for both direction flags set")
	}
	if _, err := r.RegisterCustom("neither", NeedInitiator); err == nil {
		t.Errorf("expected error for no direction flag set")
	}
	id, err := r.RegisterCustom("ok", HigherFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get(id); !ok {
		t.Errorf("custom attribute should be retrievable")
	}
}
