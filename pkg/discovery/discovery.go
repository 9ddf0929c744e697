// Package discovery implements the backend-driven population of a
// pkg/topology.Topology: backends register themselves, declare which
// phases they provide, and are run in priority order within each
// phase, contributing objects and infos until the tree is complete.
//
// The shape is grounded directly on the teacher's own one-shot,
// cached discovery idiom in pkg/cpuallocator (build once, fan errors
// in, keep going): Pipeline.Load is the generalization of that same
// "gather everything available, log and skip what fails" loop to N
// named backends instead of one sysfs walk.
package discovery

import (
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/log"
	"github.com/go-hwloc/hwloc/pkg/object"
	"github.com/go-hwloc/hwloc/pkg/topology"
)

var discoveryLog = log.Get("discovery")

// Phase is a discovery phase bitmask; backends declare which phases
// they provide, and the pipeline runs every registered backend once
// per phase it claims, in the fixed phase order Phases lists.
type Phase uint32

const (
	PhaseGlobal Phase = 1 << iota
	PhaseCPU
	PhaseMemory
	PhasePCI
	PhaseIO
	PhaseAnnotate
	PhaseTweak
)

// Phases is the fixed execution order of spec.md §4.4 step 3.
var Phases = []Phase{PhaseGlobal, PhaseCPU, PhaseMemory, PhasePCI, PhaseIO, PhaseAnnotate, PhaseTweak}

func (p Phase) String() string {
	switch p {
	case PhaseGlobal:
		return "global"
	case PhaseCPU:
		return "cpu"
	case PhaseMemory:
		return "memory"
	case PhasePCI:
		return "pci"
	case PhaseIO:
		return "io"
	case PhaseAnnotate:
		return "annotate"
	case PhaseTweak:
		return "tweak"
	default:
		return "unknown"
	}
}

// ComponentType classifies a backend the way spec.md §4.4 does, for
// exclusion purposes.
type ComponentType int

const (
	ComponentCPU ComponentType = iota
	ComponentGlobal
	ComponentAdditional
)

// Result is what a single Discover call reports.
type Result int

const (
	Unchanged Result = iota
	Modified
)

// Backend contributes objects/infos to a Topology during one or more
// phases.
type Backend interface {
	// Name identifies the backend for logging and HWLOC_COMPONENTS filtering.
	Name() string
	// ComponentType reports this backend's component family, used for exclusion.
	ComponentType() ComponentType
	// Phases reports the bitmask of phases this backend provides.
	Phases() Phase
	// Excludes reports the bitmask of phases this backend, once active,
	// disables for lower-priority backends of ComponentGlobal type.
	Excludes() Phase
	// Priority orders backends within a phase; higher runs first.
	Priority() int
	// Discover performs this backend's contribution for one phase.
	Discover(topo *topology.Topology, phase Phase) (Result, error)
}

// CPUSetLookup is an optional Backend capability letting other
// backends (typically an IO-phase backend asking about a PCI
// device's locality) ask a CPU backend which cpuset covers a given OS
// object.
type CPUSetLookup interface {
	GetObjCPUSet(hint string) (*bitmap.Bitmap, bool)
}

// NewObjectObserver is an optional Backend capability notified every
// time any backend inserts an object, so an earlier-run backend can
// react to a later one's contribution.
type NewObjectObserver interface {
	NotifyNewObject(topo *topology.Topology, id object.ID)
}

// Pipeline holds the set of enabled backends for one Load.
type Pipeline struct {
	backends []Backend
}

// NewPipeline returns a Pipeline with the given backends enabled, in
// the order given; ordering within a phase is then resolved by
// Priority.
func NewPipeline(backends ...Backend) *Pipeline {
	return &Pipeline{backends: backends}
}

// exclusionSet is computed once before any Discover runs: an active
// non-global (ComponentCPU or ComponentAdditional) backend that
// declares Excludes wipes those phases from every lower-priority
// ComponentGlobal backend.
func (p *Pipeline) exclusionSet() map[string]Phase {
	sorted := append([]Backend(nil), p.backends...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() > sorted[j].Priority() })

	excluded := make(map[string]Phase, len(sorted))
	var wiped Phase
	for _, b := range sorted {
		if b.ComponentType() == ComponentGlobal {
			excluded[b.Name()] = wiped
		} else {
			wiped |= b.Excludes()
		}
	}
	return excluded
}

// Load runs every enabled backend across the fixed phase order,
// inserting objects into topo, and applies the nbprocs PU fallback if
// no backend populated the PU level by the end of the CPU phase.
//
// An individual backend's error is logged, wrapped as
// hwlocerr.KindBackendFailure and collected; the pipeline always
// continues to the next backend. The collected backend errors are
// returned as a multierror only when every backend active in some
// phase failed; a topology build failure is always returned.
func (p *Pipeline) Load(topo *topology.Topology, nbprocs int) error {
	start := time.Now()
	excluded := p.exclusionSet()
	var errs *multierror.Error
	phaseFailed := false

	providedCPU, providedMemory := false, false
	for _, b := range p.backends {
		if b.ComponentType() == ComponentGlobal && b.Phases()&(PhaseCPU|PhaseMemory) == (PhaseCPU|PhaseMemory) {
			providedCPU, providedMemory = true, true
		}
	}

	for _, phase := range Phases {
		if phase == PhaseCPU && providedCPU {
			continue
		}
		if phase == PhaseMemory && providedMemory {
			continue
		}

		active := make([]Backend, 0, len(p.backends))
		for _, b := range p.backends {
			if b.Phases()&phase == 0 {
				continue
			}
			if excluded[b.Name()]&phase != 0 {
				discoveryLog.Debug("backend %q excluded from phase %s", b.Name(), phase)
				continue
			}
			active = append(active, b)
		}
		sort.SliceStable(active, func(i, j int) bool { return active[i].Priority() > active[j].Priority() })

		failed := 0
		for _, b := range active {
			res, err := b.Discover(topo, phase)
			if err != nil {
				wrapped := hwlocerr.Wrap(hwlocerr.KindBackendFailure, err, "discovery: backend %q failed in phase %s", b.Name(), phase)
				discoveryLog.Warn("%v", wrapped)
				errs = multierror.Append(errs, wrapped)
				failed++
				continue
			}
			if res == Modified {
				discoveryLog.Debug("backend %q modified the topology in phase %s", b.Name(), phase)
			}
		}
		if len(active) > 0 && failed == len(active) {
			phaseFailed = true
		}
	}

	if err := topo.Build(); err != nil {
		return multierror.Append(errs, errors.Wrap(err, "discovery: topology build failed")).ErrorOrNil()
	}

	if topo.TypeDepth(object.TypePU) == topology.DepthUnknown {
		if nbprocs > 0 {
			insertFallbackPUs(topo, nbprocs)
			discoveryLog.Warn("no backend populated the PU level, inserted %d fallback PUs", nbprocs)
			if err := topo.Build(); err != nil {
				return multierror.Append(errs, errors.Wrap(err, "discovery: fallback topology build failed")).ErrorOrNil()
			}
		}
	}

	discoveryLog.Debug("discovery completed in %s", time.Since(start))
	if !phaseFailed {
		return nil
	}
	return errs.ErrorOrNil()
}

// insertFallbackPUs inserts nbprocs PU objects directly under the
// root with consecutive OS indices and singleton cpusets, per
// spec.md §4.4's fallback.
func insertFallbackPUs(topo *topology.Topology, nbprocs int) {
	for i := 0; i < nbprocs; i++ {
		pu := topo.AllocSetupObject(object.TypePU, int64(i))
		pu.CPUSet = bitmap.FromSlice(i)
		pu.NodeSet = bitmap.New()
		if _, err := topo.InsertByCPUSet(pu); err != nil {
			discoveryLog.Error("fallback PU insertion failed for OS index %d: %v", i, err)
		}
	}
}
