package binding

import (
	"testing"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/topology"
)

type fakeHooks struct {
	cpus       []int
	lastCPU    int
	nodes      []int
	policy     MemPolicy
	setErr     error
	reportCPUs []int // if set, GetCPUBind reports this instead of cpus
}

func (f *fakeHooks) SetCPUBind(pid int, thread bool, cpus []int, flags Flag) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.cpus = cpus
	return nil
}

func (f *fakeHooks) GetCPUBind(pid int, thread bool, flags Flag) ([]int, error) {
	if f.reportCPUs != nil {
		return f.reportCPUs, nil
	}
	return f.cpus, nil
}

func (f *fakeHooks) GetLastCPULocation(pid int, thread bool) (int, error) {
	return f.lastCPU, nil
}

func (f *fakeHooks) SetMemBind(nodes []int, policy MemPolicy, flags Flag) error {
	f.nodes = nodes
	f.policy = policy
	return nil
}

func (f *fakeHooks) GetMemBind(flags Flag) ([]int, MemPolicy, error) {
	return f.nodes, f.policy, nil
}

func newTestBinder() (*Binder, *fakeHooks) {
	topo := topology.New(bitmap.NewFull(), bitmap.NewFull())
	h := &fakeHooks{}
	Register(h)
	return New(topo), h
}

func TestSetCPUBindRejectsEmptySet(t *testing.T) {
	b, _ := newTestBinder()
	err := b.SetCPUBind(bitmap.New(), FlagStrict)
	if !hwlocerr.Is(err, hwlocerr.KindInvalidArgument) {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestSetCPUBindRoundTrip(t *testing.T) {
	b, h := newTestBinder()
	set := bitmap.FromSlice(0, 1, 2)
	if err := b.SetCPUBind(set, FlagStrict); err != nil {
		t.Fatalf("SetCPUBind: %v", err)
	}
	if len(h.cpus) != 3 {
		t.Fatalf("expected hooks to receive 3 cpus, got %v", h.cpus)
	}
	got, err := b.GetCPUBind(0)
	if err != nil {
		t.Fatalf("GetCPUBind: %v", err)
	}
	if !bitmap.IsEqual(got, set) {
		t.Errorf("GetCPUBind = %v, want %v", got, set)
	}
}

func TestSetCPUBindReportsPartialWithoutStrict(t *testing.T) {
	b, h := newTestBinder()
	h.reportCPUs = []int{0, 1}
	err := b.SetCPUBind(bitmap.FromSlice(0), 0)
	if !hwlocerr.Is(err, hwlocerr.KindPartial) {
		t.Fatalf("expected KindPartial, got %v", err)
	}
}

func TestSetCPUBindStrictIgnoresMismatch(t *testing.T) {
	b, h := newTestBinder()
	h.reportCPUs = []int{0, 1}
	if err := b.SetCPUBind(bitmap.FromSlice(0), FlagStrict); err != nil {
		t.Fatalf("strict bind should not verify via readback: %v", err)
	}
}

func TestSetCPUBindDeniedWrapsHookError(t *testing.T) {
	b, h := newTestBinder()
	h.setErr = errTest{"EPERM"}
	err := b.SetCPUBind(bitmap.FromSlice(0), FlagStrict)
	if !hwlocerr.Is(err, hwlocerr.KindDenied) {
		t.Fatalf("expected KindDenied, got %v", err)
	}
}

func TestNoBackendRegisteredIsUnsupported(t *testing.T) {
	topo := topology.New(bitmap.NewFull(), bitmap.NewFull())
	Register(nil)
	b := New(topo)
	err := b.SetCPUBind(bitmap.FromSlice(0), FlagStrict)
	if !hwlocerr.Is(err, hwlocerr.KindUnsupported) {
		t.Fatalf("expected KindUnsupported, got %v", err)
	}
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
