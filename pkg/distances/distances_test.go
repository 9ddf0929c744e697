package distances

import (
	"testing"

	"github.com/go-hwloc/hwloc/pkg/object"
)

func ids(n int) []object.ID {
	out := make([]object.ID, n)
	for i := range out {
		out[i] = object.ID(i)
	}
	return out
}

func TestAddValidation(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("bad-kind", KindLatency|KindBandwidth|KindFromOS, ids(2), make([]uint64, 4), AddOpts{}); err == nil {
		t.Errorf("expected error for both Latency and Bandwidth set")
	}
	if _, err := r.Add("too-small", KindLatency|KindFromOS, ids(1), make([]uint64, 1), AddOpts{}); err == nil {
		t.Errorf("expected error for single-object table")
	}
	if _, err := r.Add("ok", KindLatency|KindFromOS, ids(2), make([]uint64, 4), AddOpts{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.Add("ok", KindLatency|KindFromOS, ids(2), make([]uint64, 4), AddOpts{}); err == nil {
		t.Errorf("expected error re-registering the same name")
	}
}

func TestGetByNameAndKind(t *testing.T) {
	r := NewRegistry()
	r.Add("numa", KindLatency|KindFromOS, ids(3), make([]uint64, 9), AddOpts{})
	r.Add("bw", KindBandwidth|KindFromUser, ids(2), make([]uint64, 4), AddOpts{})

	if _, ok := r.GetByName("numa"); !ok {
		t.Errorf("expected to find table numa")
	}
	if got := r.GetByKind(KindLatency); len(got) != 1 || got[0].Name != "numa" {
		t.Errorf("GetByKind(Latency) = %v", got)
	}
	if got := r.GetByKind(KindFromUser); len(got) != 1 || got[0].Name != "bw" {
		t.Errorf("GetByKind(FromUser) = %v", got)
	}
}

func TestRestrictDropsSmallTables(t *testing.T) {
	r := NewRegistry()
	r.Add("t", KindLatency|KindFromOS, ids(3), []uint64{
		0, 1, 2,
		1, 0, 3,
		2, 3, 0,
	}, AddOpts{})

	// Keep only object 0 and 1: table still has 2, should survive with
	// a 2x2 submatrix.
	r.Restrict(func(id object.ID) bool { return id == 0 || id == 1 })
	tab, ok := r.GetByName("t")
	if !ok {
		t.Fatalf("table should survive restriction to 2 objects")
	}
	if tab.N() != 2 || tab.Value(0, 1) != 1 {
		t.Errorf("unexpected restricted table: objs=%v values=%v", tab.Objs, tab.Values)
	}

	r2 := NewRegistry()
	r2.Add("u", KindLatency|KindFromOS, ids(3), make([]uint64, 9), AddOpts{})
	r2.Restrict(func(id object.ID) bool { return id == 0 })
	if _, ok := r2.GetByName("u"); ok {
		t.Errorf("table with <2 surviving objects should be dropped")
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Add("t", KindLatency|KindFromOS, ids(2), make([]uint64, 4), AddOpts{})
	if !r.Remove("t") {
		t.Errorf("Remove should report success")
	}
	if _, ok := r.GetByName("t"); ok {
		t.Errorf("table should be gone after Remove")
	}
}
