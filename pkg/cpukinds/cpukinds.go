// Package cpukinds implements the CPU-kind registry of spec.md §4.5:
// incremental registration of possibly-overlapping PU cpusets into a
// disjoint, ranked partition.
//
// The register/split/augment algorithm is a direct port of
// hwloc_internal_cpukinds_register in
// original_source/hwloc/cpukinds.c, kept semantically identical down
// to which operand's efficiency and infos win a split. The teacher's
// pkg/cpuallocator contributes the ranking idiom (sorting candidates
// by an efficiency-like score) adapted here into rank.
package cpukinds

import (
	"sort"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/object"
)

// EfficiencyUnknown marks a kind with no forced or resolved
// efficiency.
const EfficiencyUnknown = -1

// RegisterFlag controls Register's behavior on an augment match.
type RegisterFlag uint32

const (
	// OverwriteForcedEfficiency forces the new registration's
	// efficiency onto an existing kind even if that kind already had
	// one set.
	OverwriteForcedEfficiency RegisterFlag = 1 << iota
)

// Kind is one partition cell: a cpuset, a caller-forced efficiency
// (or EfficiencyUnknown), a resolved rank assigned by rank (or
// EfficiencyUnknown before the first rank), and accumulated infos.
type Kind struct {
	CPUSet           *bitmap.Bitmap
	ForcedEfficiency int
	Efficiency       int
	Info             []object.InfoPair
}

func (k *Kind) addInfos(infos []object.InfoPair) {
	k.Info = append(k.Info, infos...)
}

// Ranker computes the resolved Efficiency for each kind, given the
// current kinds in registration order. It returns a parallel slice of
// resolved efficiencies. Registry.rank consults it only when not every
// kind has a forced efficiency; kinds past the end of a short result
// get EfficiencyUnknown, and a nil result leaves every kind at
// EfficiencyUnknown.
type Ranker func(kinds []*Kind) []int

// Registry holds a topology's CPU kinds.
type Registry struct {
	kinds  []*Kind
	ranker Ranker
}

// NewRegistry returns an empty Registry with no custom Ranker, so only
// the forced-efficiency sort applies (see rank).
func NewRegistry() *Registry {
	return &Registry{}
}

// SetRanker installs a custom Ranker, consulted on the next
// Register/Restrict whenever not every kind has a forced efficiency.
// Passing nil removes it.
func (r *Registry) SetRanker(ranker Ranker) {
	r.ranker = ranker
}

// Register incorporates a new kind with the given cpuset, forced
// efficiency (EfficiencyUnknown if none), and infos into the
// partition, splitting and augmenting existing kinds as spec.md §4.5
// describes, then re-ranks.
func (r *Registry) Register(cpuset *bitmap.Bitmap, forcedEfficiency int, infos []object.InfoPair, flags RegisterFlag) error {
	if cpuset.IsEmpty() {
		return hwlocerr.New(hwlocerr.KindInvalidArgument, "cpukinds: cannot register an empty cpuset")
	}

	remaining := cpuset.Clone()
	var newKinds []*Kind

	for _, k := range r.kinds {
		if remaining.IsEmpty() {
			break
		}
		res := bitmap.CompareInclusion(remaining, k.CPUSet)
		switch res {
		case bitmap.SetsIntersect, bitmap.BStrictlyContainsA:
			// remaining intersects k.CPUSet, or is strictly included in it:
			// split off the overlap into a new kind.
			overlap := bitmap.New().And(remaining, k.CPUSet)
			split := &Kind{
				CPUSet:           overlap,
				ForcedEfficiency: forcedEfficiency,
				Efficiency:       EfficiencyUnknown,
			}
			split.addInfos(k.Info)
			split.addInfos(infos)
			k.CPUSet = bitmap.New().AndNot(k.CPUSet, overlap)
			remaining.AndNot(remaining, overlap)
			newKinds = append(newKinds, split)

		case bitmap.AStrictlyContainsB, bitmap.Equal:
			// k.CPUSet is contained in (or equal to) remaining: augment k.
			k.addInfos(infos)
			if flags&OverwriteForcedEfficiency != 0 || k.ForcedEfficiency == EfficiencyUnknown {
				k.ForcedEfficiency = forcedEfficiency
			}
			remaining.AndNot(remaining, k.CPUSet)

		case bitmap.Disjoint:
			// nothing to do
		}
	}

	r.kinds = append(r.kinds, newKinds...)

	if !remaining.IsEmpty() {
		r.kinds = append(r.kinds, &Kind{
			CPUSet:           remaining,
			ForcedEfficiency: forcedEfficiency,
			Efficiency:       EfficiencyUnknown,
			Info:             append([]object.InfoPair(nil), infos...),
		})
	}

	r.rank()
	return nil
}

// rank resolves each kind's Efficiency per spec.md §4.5 step 4: if
// every kind has a forced efficiency, sort by it ascending (lowest
// first, 0-based resolved rank); else defer to a custom Ranker if one
// is installed; else every kind's Efficiency stays EfficiencyUnknown.
func (r *Registry) rank() {
	if len(r.kinds) == 0 {
		return
	}

	allForced := true
	for _, k := range r.kinds {
		if k.ForcedEfficiency == EfficiencyUnknown {
			allForced = false
			break
		}
	}

	if r.ranker != nil && !allForced {
		resolved := r.ranker(r.kinds)
		if resolved != nil {
			for i, k := range r.kinds {
				k.Efficiency = EfficiencyUnknown
				if i < len(resolved) {
					k.Efficiency = resolved[i]
				}
			}
			return
		}
	}

	if !allForced {
		for _, k := range r.kinds {
			k.Efficiency = EfficiencyUnknown
		}
		return
	}

	order := make([]int, len(r.kinds))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.kinds[order[a]].ForcedEfficiency < r.kinds[order[b]].ForcedEfficiency
	})
	rank := make([]int, len(r.kinds))
	for pos, idx := range order {
		rank[idx] = pos
	}
	for i, k := range r.kinds {
		k.Efficiency = rank[i]
	}
}

// GetNr returns the number of registered kinds.
func (r *Registry) GetNr() int {
	return len(r.kinds)
}

// GetInfo returns the kind at index id.
func (r *Registry) GetInfo(id int) (*Kind, error) {
	if id < 0 || id >= len(r.kinds) {
		return nil, hwlocerr.New(hwlocerr.KindNotFound, "cpukinds: no kind at index %d", id)
	}
	return r.kinds[id], nil
}

// GetByCpuset returns the index of the unique kind whose cpuset
// equals or contains cpuset, hwlocerr.KindEXDEV if cpuset straddles
// more than one kind, or hwlocerr.KindNotFound if it matches none.
func (r *Registry) GetByCpuset(cpuset *bitmap.Bitmap) (int, error) {
	if cpuset == nil || cpuset.IsEmpty() {
		return -1, hwlocerr.New(hwlocerr.KindInvalidArgument, "cpukinds: empty cpuset")
	}
	for id, k := range r.kinds {
		res := bitmap.CompareInclusion(cpuset, k.CPUSet)
		switch res {
		case bitmap.Equal, bitmap.BStrictlyContainsA:
			// cpuset equals, or is strictly included in, k's cpuset.
			return id, nil
		case bitmap.SetsIntersect, bitmap.AStrictlyContainsB:
			return -1, hwlocerr.New(hwlocerr.KindEXDEV, "cpukinds: cpuset %v straddles kind %d", cpuset, id)
		}
	}
	return -1, hwlocerr.New(hwlocerr.KindNotFound, "cpukinds: no kind matches cpuset %v", cpuset)
}

// Restrict intersects every kind's cpuset with topologyCpuset, drops
// kinds left empty, and re-ranks.
func (r *Registry) Restrict(topologyCpuset *bitmap.Bitmap) {
	var kept []*Kind
	for _, k := range r.kinds {
		k.CPUSet = bitmap.New().And(k.CPUSet, topologyCpuset)
		if !k.CPUSet.IsEmpty() {
			kept = append(kept, k)
		}
	}
	r.kinds = kept
	r.rank()
}

// All returns every registered kind, in registration order (not rank
// order).
func (r *Registry) All() []*Kind {
	return append([]*Kind(nil), r.kinds...)
}
