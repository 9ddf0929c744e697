// Package binding implements the façade of spec.md §4.8: validating a
// requested cpuset/nodeset against a Topology's allowed sets,
// translating it to an OS-native form, and dispatching to whatever
// platform backend has registered itself as this process's OSHooks.
//
// The core never talks to the kernel directly; a platform module
// (pkg/binding's own Linux build-tagged file, or a test double)
// registers the OSHooks implementation the way a discovery backend
// registers itself with a pkg/discovery.Pipeline.
package binding

import (
	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/log"
	"github.com/go-hwloc/hwloc/pkg/topology"
	"github.com/go-hwloc/hwloc/pkg/utils/cpuset"
)

var bindLog = log.Get("binding")

// Flag controls a binding request, mirroring spec.md §4.8.
type Flag uint32

const (
	// FlagStrict demands an exact match; absent, the OS is allowed to
	// land on a superset and the call reports KindPartial instead of
	// failing.
	FlagStrict Flag = 1 << iota
	// FlagMigrate asks the OS to migrate already-allocated memory
	// pages to match a new membind request.
	FlagMigrate
	// FlagByNodeSet means the caller's set is a NUMA node set, not a cpuset.
	FlagByNodeSet
	// FlagProcess targets every thread of the process (set_proc_cpubind).
	FlagProcess
	// FlagThread targets a single thread (set_thread_cpubind).
	FlagThread
)

// MemPolicy is the memory binding policy of spec.md §4.8.
type MemPolicy int

const (
	PolicyDefault MemPolicy = iota
	PolicyFirstTouch
	PolicyBind
	PolicyInterleave
	PolicyNextTouch
)

// OSHooks is the narrow seam a platform module implements and
// registers with Register. Every method operates on raw OS ids
// (cpu/node numbers, pid/tid); pid/tid of 0 means "the calling
// process/thread".
type OSHooks interface {
	SetCPUBind(pid int, thread bool, cpus []int, flags Flag) error
	GetCPUBind(pid int, thread bool, flags Flag) ([]int, error)
	GetLastCPULocation(pid int, thread bool) (int, error)
	SetMemBind(nodes []int, policy MemPolicy, flags Flag) error
	GetMemBind(flags Flag) ([]int, MemPolicy, error)
}

var hooks OSHooks

// Register installs the OSHooks implementation used by every Binder.
// Called once by a platform module's init, analogous to
// discovery.Backend registration.
func Register(h OSHooks) {
	hooks = h
}

// Binder dispatches validated binding requests for one Topology.
type Binder struct {
	topo *topology.Topology
}

// New returns a Binder bound to topo.
func New(topo *topology.Topology) *Binder {
	return &Binder{topo: topo}
}

// validateCPUSet checks set against the topology's allowed cpuset and
// returns it as an OS-native cpuset.CPUSet, the form every OSHooks
// call and the binding log below actually operate on.
func (b *Binder) validateCPUSet(set *bitmap.Bitmap) (cpuset.CPUSet, error) {
	if set == nil || set.IsEmpty() {
		return cpuset.New(), hwlocerr.New(hwlocerr.KindInvalidArgument, "binding: empty cpuset")
	}
	allowed := b.topo.AllowedCPUSet()
	if !bitmap.IsIncluded(set, allowed) {
		return cpuset.New(), hwlocerr.New(hwlocerr.KindInvalidArgument, "binding: cpuset is not a subset of the topology's allowed cpuset")
	}
	return cpuset.New(set.Members()...), nil
}

func (b *Binder) validateNodeSet(set *bitmap.Bitmap) (cpuset.CPUSet, error) {
	if set == nil || set.IsEmpty() {
		return cpuset.New(), hwlocerr.New(hwlocerr.KindInvalidArgument, "binding: empty nodeset")
	}
	allowed := b.topo.AllowedNodeSet()
	if !bitmap.IsIncluded(set, allowed) {
		return cpuset.New(), hwlocerr.New(hwlocerr.KindInvalidArgument, "binding: nodeset is not a subset of the topology's allowed nodeset")
	}
	return cpuset.New(set.Members()...), nil
}

// SetCPUBind binds the calling process to set.
func (b *Binder) SetCPUBind(set *bitmap.Bitmap, flags Flag) error {
	return b.setCPUBind(0, false, set, flags)
}

// GetCPUBind returns the calling process's current cpu binding.
func (b *Binder) GetCPUBind(flags Flag) (*bitmap.Bitmap, error) {
	return b.getCPUBind(0, false, flags)
}

// SetThreadCPUBind binds the thread identified by tid to set.
func (b *Binder) SetThreadCPUBind(tid int, set *bitmap.Bitmap, flags Flag) error {
	return b.setCPUBind(tid, true, set, flags|FlagThread)
}

// GetThreadCPUBind returns tid's current cpu binding.
func (b *Binder) GetThreadCPUBind(tid int, flags Flag) (*bitmap.Bitmap, error) {
	return b.getCPUBind(tid, true, flags|FlagThread)
}

// SetProcCPUBind binds every thread of the process identified by pid to set.
func (b *Binder) SetProcCPUBind(pid int, set *bitmap.Bitmap, flags Flag) error {
	return b.setCPUBind(pid, false, set, flags|FlagProcess)
}

// GetProcCPUBind returns pid's current cpu binding.
func (b *Binder) GetProcCPUBind(pid int, flags Flag) (*bitmap.Bitmap, error) {
	return b.getCPUBind(pid, false, flags|FlagProcess)
}

func (b *Binder) setCPUBind(pid int, thread bool, set *bitmap.Bitmap, flags Flag) error {
	if hooks == nil {
		return hwlocerr.New(hwlocerr.KindUnsupported, "binding: no OS backend registered")
	}
	cset, err := b.validateCPUSet(set)
	if err != nil {
		return err
	}
	if err := hooks.SetCPUBind(pid, thread, cset.ToSlice(), flags); err != nil {
		return hwlocerr.Wrap(hwlocerr.KindDenied, err, "binding: cpu bind request denied")
	}
	if flags&FlagStrict != 0 {
		return nil
	}
	got, err := hooks.GetCPUBind(pid, thread, flags)
	if err != nil {
		return nil
	}
	gotSet := cpuset.New(got...)
	if !gotSet.Equals(cset) {
		bindLog.Debug("cpu bind landed on %s instead of requested %s", cpuset.ShortCPUSet(gotSet), cpuset.ShortCPUSet(cset))
		return hwlocerr.New(hwlocerr.KindPartial, "binding: OS applied a different cpuset than requested")
	}
	return nil
}

func (b *Binder) getCPUBind(pid int, thread bool, flags Flag) (*bitmap.Bitmap, error) {
	if hooks == nil {
		return nil, hwlocerr.New(hwlocerr.KindUnsupported, "binding: no OS backend registered")
	}
	cpus, err := hooks.GetCPUBind(pid, thread, flags)
	if err != nil {
		return nil, hwlocerr.Wrap(hwlocerr.KindDenied, err, "binding: get_cpubind failed")
	}
	return bitmap.FromSlice(cpus...), nil
}

// GetLastCPULocation reports the cpu that pid last ran on. A pid of 0
// means the calling thread when thread is true, and the calling
// process otherwise.
func (b *Binder) GetLastCPULocation(pid int, thread bool) (*bitmap.Bitmap, error) {
	if hooks == nil {
		return nil, hwlocerr.New(hwlocerr.KindUnsupported, "binding: no OS backend registered")
	}
	cpu, err := hooks.GetLastCPULocation(pid, thread)
	if err != nil {
		return nil, hwlocerr.Wrap(hwlocerr.KindDenied, err, "binding: get_last_cpu_location failed")
	}
	return bitmap.FromSlice(cpu), nil
}

// SetMemBind sets the memory binding policy for set (a cpuset unless
// FlagByNodeSet is given, in which case it is a nodeset directly).
func (b *Binder) SetMemBind(set *bitmap.Bitmap, policy MemPolicy, flags Flag) error {
	if hooks == nil {
		return hwlocerr.New(hwlocerr.KindUnsupported, "binding: no OS backend registered")
	}
	nodeset, err := b.resolveNodes(set, flags)
	if err != nil {
		return err
	}
	if err := hooks.SetMemBind(nodeset.ToSlice(), policy, flags); err != nil {
		return hwlocerr.Wrap(hwlocerr.KindDenied, err, "binding: mem bind request denied")
	}
	if flags&FlagStrict != 0 {
		return nil
	}
	got, _, err := hooks.GetMemBind(flags)
	if err != nil {
		return nil
	}
	if !cpuset.New(got...).Equals(nodeset) {
		return hwlocerr.New(hwlocerr.KindPartial, "binding: OS applied a different nodeset than requested")
	}
	return nil
}

// GetMemBind returns the current nodeset and policy.
func (b *Binder) GetMemBind(flags Flag) (*bitmap.Bitmap, MemPolicy, error) {
	if hooks == nil {
		return nil, PolicyDefault, hwlocerr.New(hwlocerr.KindUnsupported, "binding: no OS backend registered")
	}
	nodes, policy, err := hooks.GetMemBind(flags)
	if err != nil {
		return nil, PolicyDefault, hwlocerr.Wrap(hwlocerr.KindDenied, err, "binding: get_membind failed")
	}
	return bitmap.FromSlice(nodes...), policy, nil
}

func (b *Binder) resolveNodes(set *bitmap.Bitmap, flags Flag) (cpuset.CPUSet, error) {
	if flags&FlagByNodeSet != 0 {
		return b.validateNodeSet(set)
	}
	cset, err := b.validateCPUSet(set)
	if err != nil {
		return cpuset.New(), err
	}
	nodeset := bitmap.New()
	for _, cpu := range cset.ToSlice() {
		obj := b.topo.GetObjCoveringCPUSet(bitmap.FromSlice(cpu))
		if o := b.topo.Object(obj); o != nil && o.NodeSet != nil {
			nodeset.Or(nodeset, o.NodeSet)
		}
	}
	return cpuset.New(nodeset.Members()...), nil
}
