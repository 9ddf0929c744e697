// Package distances implements the named-matrix distance registry of
// spec.md §4.6: a set of {name, kind flags, objects, n×n values}
// tables attached to a topology, each describing how far a set of
// objects are from one another by one metric (latency, bandwidth, …).
//
// There is no teacher analogue for this registry — the closest thing
// in the example pack, the teacher's NUMA distance handling inside the
// deleted pkg/sysfs, read distances straight out of sysfs into a
// one-shot matrix and never kept a named, restrictable registry of
// them. This package is grounded directly on spec.md §4.6 instead.
package distances

import (
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/object"
)

// KindFlag classifies a distance table the way spec.md §4.6 requires:
// exactly one of Latency/Bandwidth, exactly one of FromOS/FromUser,
// and optionally Heterogeneous.
type KindFlag uint32

const (
	KindLatency KindFlag = 1 << iota
	KindBandwidth
	KindFromOS
	KindFromUser
	KindHeterogeneousTypes
)

func (k KindFlag) valid() bool {
	oneMetric := (k&KindLatency != 0) != (k&KindBandwidth != 0)
	oneSource := (k&KindFromOS != 0) != (k&KindFromUser != 0)
	return oneMetric && oneSource
}

// Table is one named distance matrix.
type Table struct {
	Name   string
	Kind   KindFlag
	Objs   []object.ID
	Values []uint64 // row-major n*n, n == len(Objs)
}

// N returns the table's dimension.
func (t *Table) N() int { return len(t.Objs) }

// Value returns the distance from Objs[i] to Objs[j].
func (t *Table) Value(i, j int) uint64 {
	return t.Values[i*len(t.Objs)+j]
}

func (t *Table) setValue(i, j int, v uint64) {
	t.Values[i*len(t.Objs)+j] = v
}

// indexOf returns the position of id within t.Objs, or -1.
func (t *Table) indexOf(id object.ID) int {
	for i, o := range t.Objs {
		if o == id {
			return i
		}
	}
	return -1
}

// Registry is the set of distance tables attached to one topology.
type Registry struct {
	tables []*Table
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddOpts controls Add's optional Group-object synthesis.
type AddOpts struct {
	// Group, when true, asks the caller's topology to synthesize a
	// Group-type object covering each set of mutually close objects
	// found in the table (distance strictly below the table's median
	// counts as "close"). Table.Add itself does not have a topology to
	// insert into; GroupCandidates reports what the caller should
	// insert, leaving the actual mutation to the topology package.
	Group bool
}

// Add registers a new named table. name must be unique; objs must have
// at least two entries; len(values) must equal len(objs)^2.
func (r *Registry) Add(name string, kind KindFlag, objs []object.ID, values []uint64, opts AddOpts) (*Table, error) {
	if !kind.valid() {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distances: kind flags %v must set exactly one metric and one source", kind)
	}
	if len(objs) < 2 {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distances: table %q needs at least 2 objects, got %d", name, len(objs))
	}
	if len(values) != len(objs)*len(objs) {
		return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distances: table %q needs %d values, got %d", name, len(objs)*len(objs), len(values))
	}
	for _, existing := range r.tables {
		if existing.Name == name {
			return nil, hwlocerr.New(hwlocerr.KindInvalidArgument, "distances: table %q already registered", name)
		}
	}

	t := &Table{Name: name, Kind: kind, Objs: append([]object.ID(nil), objs...), Values: append([]uint64(nil), values...)}
	r.tables = append(r.tables, t)
	return t, nil
}

// GroupCandidates partitions t's objects into "close" clusters using a
// strictly-below-median threshold on t's values, for a caller that
// passed AddOpts{Group: true} and now wants to synthesize Group
// objects. Singleton clusters (an object close to nothing else) are
// omitted.
func (t *Table) GroupCandidates() [][]object.ID {
	n := t.N()
	if n == 0 {
		return nil
	}
	var sorted []uint64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				sorted = append(sorted, t.Value(i, j))
			}
		}
	}
	median := medianOf(sorted)

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if t.Value(i, j) < median {
				union(i, j)
			}
		}
	}

	groups := map[int][]object.ID{}
	for i := 0; i < n; i++ {
		r := find(i)
		groups[r] = append(groups[r], t.Objs[i])
	}

	var out [][]object.ID
	for _, g := range groups {
		if len(g) > 1 {
			out = append(out, g)
		}
	}
	return out
}

func medianOf(vs []uint64) uint64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), vs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

// GetByName returns the table registered under name.
func (r *Registry) GetByName(name string) (*Table, bool) {
	for _, t := range r.tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// GetByKind returns every table whose Kind includes every bit of kind.
func (r *Registry) GetByKind(kind KindFlag) []*Table {
	var out []*Table
	for _, t := range r.tables {
		if t.Kind&kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Remove deletes the table registered under name.
func (r *Registry) Remove(name string) bool {
	for i, t := range r.tables {
		if t.Name == name {
			r.tables = append(r.tables[:i], r.tables[i+1:]...)
			return true
		}
	}
	return false
}

// All returns every registered table, in registration order.
func (r *Registry) All() []*Table {
	return append([]*Table(nil), r.tables...)
}

// Restrict drops objects missing from kept from every table, and drops
// any table left with fewer than two objects, per spec.md §4.6.
func (r *Registry) Restrict(kept func(object.ID) bool) {
	var survivors []*Table
	for _, t := range r.tables {
		newObjs := make([]object.ID, 0, len(t.Objs))
		keepIdx := make([]int, 0, len(t.Objs))
		for i, o := range t.Objs {
			if kept(o) {
				newObjs = append(newObjs, o)
				keepIdx = append(keepIdx, i)
			}
		}
		if len(newObjs) < 2 {
			continue
		}
		newValues := make([]uint64, len(newObjs)*len(newObjs))
		for i, oi := range keepIdx {
			for j, oj := range keepIdx {
				newValues[i*len(newObjs)+j] = t.Values[oi*len(t.Objs)+oj]
			}
		}
		t.Objs = newObjs
		t.Values = newValues
		survivors = append(survivors, t)
	}
	r.tables = survivors
}
