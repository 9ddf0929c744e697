// Package distrib implements the locality-aware PU enumerators of
// spec.md §4.9: round-robin, scatter, and the general tleaf iterator
// both specialize.
//
// The coordinate-tuple algorithm is ported from
// original_source/hwloc/distrib.c's hwloc_distrib_root_levels /
// hwloc_distrib_iterator_next, generalized the way the teacher's
// pkg/cpuallocator generalizes a single scoring pass into a
// filter-then-sort pipeline: per-level arities are computed once up
// front, an index permutation (identity, reversed, or Fisher-Yates
// shuffle) is precomputed per level, and Next walks an explicit
// odometer instead of the original's self-recursing retry loop.
package distrib

import (
	"math/rand"
	"sort"

	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/object"
	"github.com/go-hwloc/hwloc/pkg/topology"
)

// Flag selects a per-level index permutation.
type Flag int

const (
	// FlagReverse walks each level's children back to front.
	FlagReverse Flag = 1 << iota
	// FlagShuffle walks each level's children in a Fisher-Yates
	// permutation seeded from the caller-supplied rand.Source.
	FlagShuffle
)

type level struct {
	typ   object.Type
	depth int
	arity int
	coord int
	order []int
}

type rootState struct {
	root   object.ID
	levels []*level // in caller order; last level increments fastest
}

// Iterator walks a coordinate-tuple distribution over one or more
// rooted subtrees, per spec.md §4.9.
type Iterator struct {
	topo      *topology.Topology
	roots     []*rootState
	rootCoord int
}

// TLeaf builds an Iterator over the ordered list of levels, rooted at
// each of roots in turn. levels need not be contiguous in the tree and
// are counted in depth order, whatever order the caller gives them in:
// a level's arity is the count of its objects found under any single
// object of the next shallower listed level (under the root for the
// shallowest). The odometer still advances the caller's last level
// fastest. Every parent at a
// given level is required to have the same arity for the next level —
// an asymmetric subtree is reported as hwlocerr.KindUnsupported rather
// than silently under-counting.
func TLeaf(topo *topology.Topology, roots []object.ID, levels []object.Type, flags Flag, src rand.Source) (*Iterator, error) {
	if len(roots) == 0 {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: no roots given")
	}
	if len(levels) == 0 {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: no levels given")
	}
	var rnd *rand.Rand
	if flags&FlagShuffle != 0 {
		if src == nil {
			return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: FlagShuffle requires a rand.Source")
		}
		rnd = rand.New(src)
	}

	it := &Iterator{topo: topo}
	for _, r := range roots {
		ls, err := buildRootLevels(topo, r, levels, flags, rnd)
		if err != nil {
			return nil, err
		}
		it.roots = append(it.roots, &rootState{root: r, levels: ls})
	}
	return it, nil
}

// RoundRobin visits objects of type typ among root's descendants in
// logical-index order, wrapping on exhaustion.
func RoundRobin(topo *topology.Topology, root object.ID, typ object.Type, flags Flag, src rand.Source) (*Iterator, error) {
	return TLeaf(topo, []object.ID{root}, []object.Type{typ}, flags, src)
}

// Scatter visits objects of type typ so that adjacent outputs are
// maximally distant in the topology: at each level from the root down
// to typ, the quota is distributed round-robin among children before
// descending further. Implemented as a tleaf over the root-to-typ
// ancestor chain with the level order reversed, which is the only
// difference between scatter and plain top-down round-robin over
// nested levels (spec.md §4.9).
func Scatter(topo *topology.Topology, root object.ID, typ object.Type, flags Flag, src rand.Source) (*Iterator, error) {
	chain, err := ancestorChain(topo, root, typ)
	if err != nil {
		return nil, err
	}
	reversed := make([]object.Type, len(chain))
	for i, t := range chain {
		reversed[len(chain)-1-i] = t
	}
	return TLeaf(topo, []object.ID{root}, reversed, flags, src)
}

// ancestorChain walks root's leftmost normal-child spine, collecting
// the type of every object with a valid (non-nil, non-empty) cpuset
// and a well-defined depth, stopping once typ itself is reached.
func ancestorChain(topo *topology.Topology, root object.ID, typ object.Type) ([]object.Type, error) {
	var chain []object.Type
	id := root
	for id != object.NoID {
		obj := topo.Object(id)
		if obj == nil {
			break
		}
		if obj.CPUSet != nil && !obj.CPUSet.IsEmpty() && topo.TypeDepth(obj.Type) != topology.DepthUnknown {
			chain = append(chain, obj.Type)
		}
		if obj.Type == typ {
			return chain, nil
		}
		if len(obj.NormalChildren) == 0 {
			break
		}
		id = obj.NormalChildren[0]
	}
	return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: type %s not found along root's leftmost spine", typ)
}

func buildRootLevels(topo *topology.Topology, root object.ID, types []object.Type, flags Flag, rnd *rand.Rand) ([]*level, error) {
	rootObj := topo.Object(root)
	if rootObj == nil {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: unknown root object")
	}

	levels := make([]*level, len(types))
	for i, t := range types {
		d := topo.TypeDepth(t)
		if d == topology.DepthUnknown {
			return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: type %s has no single depth in this topology", t)
		}
		levels[i] = &level{typ: t, depth: d}
	}

	byDepth := append([]*level(nil), levels...)
	sort.SliceStable(byDepth, func(i, j int) bool { return byDepth[i].depth < byDepth[j].depth })

	parents := []object.ID{root}
	for _, lvl := range byDepth {
		arity := -1
		var next []object.ID
		for _, p := range parents {
			children := descendantsAtDepth(topo, topo.Object(p), lvl.depth)
			if arity == -1 {
				arity = len(children)
			} else if len(children) != arity {
				return nil, hwlocerr.New(hwlocerr.KindUnsupported,
					"distrib: asymmetric subtree, %s arity varies under root %s", lvl.typ, rootObj)
			}
			next = append(next, children...)
		}
		if arity <= 0 {
			return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distrib: no %s found under root %s", lvl.typ, rootObj)
		}
		lvl.arity = arity
		lvl.order = buildOrder(arity, flags, rnd)
		parents = next
	}
	return levels, nil
}

// descendantsAtDepth returns obj's normal descendants at the given
// absolute depth, in logical-index (left-to-right) order.
func descendantsAtDepth(topo *topology.Topology, obj *object.Object, depth int) []object.ID {
	if obj == nil || obj.Depth > depth {
		return nil
	}
	if obj.Depth == depth {
		return []object.ID{obj.ID}
	}
	var result []object.ID
	for _, c := range obj.NormalChildren {
		result = append(result, descendantsAtDepth(topo, topo.Object(c), depth)...)
	}
	return result
}

func buildOrder(n int, flags Flag, rnd *rand.Rand) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	switch {
	case flags&FlagShuffle != 0:
		rnd.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	case flags&FlagReverse != 0:
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	return order
}

// Next returns the next object in iteration order. continues is false
// exactly when this call completed a full cycle over every root's
// coordinate space; the iterator wraps and keeps yielding regardless.
func (it *Iterator) Next() (object.ID, bool) {
	rs := it.roots[it.rootCoord]
	id := descend(it.topo, rs)
	more := it.increment()
	return id, more
}

func descend(topo *topology.Topology, rs *rootState) object.ID {
	byDepth := append([]*level(nil), rs.levels...)
	sort.SliceStable(byDepth, func(i, j int) bool { return byDepth[i].depth < byDepth[j].depth })

	id := rs.root
	for _, lvl := range byDepth {
		children := descendantsAtDepth(topo, topo.Object(id), lvl.depth)
		pos := lvl.order[lvl.coord]
		if pos >= len(children) {
			// Precomputed arities guarantee this cannot happen for a
			// symmetric subtree; fall back to the root rather than
			// panic if it ever does.
			return rs.root
		}
		id = children[pos]
	}
	return id
}

// increment advances the odometer (last level fastest) and reports
// whether the overall iteration has more to go before the next full
// wrap across every root.
func (it *Iterator) increment() bool {
	rs := it.roots[it.rootCoord]
	for i := len(rs.levels) - 1; i >= 0; i-- {
		rs.levels[i].coord++
		if rs.levels[i].coord < rs.levels[i].arity {
			return true
		}
		rs.levels[i].coord = 0
	}
	it.rootCoord++
	if it.rootCoord >= len(it.roots) {
		it.rootCoord = 0
		return false
	}
	return true
}

// Reset rewinds every level's coordinate to zero without discarding
// the precomputed arities and permutations.
func (it *Iterator) Reset() {
	it.rootCoord = 0
	for _, rs := range it.roots {
		for _, lvl := range rs.levels {
			lvl.coord = 0
		}
	}
}
