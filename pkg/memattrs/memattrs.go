// Package memattrs implements the memory-attribute registry of
// spec.md §4.7: named, directional (higher-or-lower-is-better) values
// attached to objects, optionally keyed also by an initiator, covering
// the built-in Capacity/Locality/Bandwidth/Latency attributes plus any
// a caller registers.
//
// As with pkg/distances, nothing in the teacher or the rest of the
// example pack keeps a registry shaped like this; it is grounded
// directly on spec.md §4.7.
package memattrs

import (
	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/object"
)

// ID identifies a memory attribute, built-in or caller-registered.
type ID int

const (
	Capacity ID = iota
	Locality
	Bandwidth
	Latency

	firstCustomID
)

// Flag controls how an attribute's values are interpreted and keyed.
type Flag uint32

const (
	// HigherFirst means a larger value is better (e.g. Bandwidth).
	HigherFirst Flag = 1 << iota
	// LowerFirst means a smaller value is better (e.g. Latency).
	LowerFirst
	// NeedInitiator means values are also keyed by an Initiator.
	NeedInitiator
)

// Initiator identifies who is asking, for attributes with
// NeedInitiator: either a specific object (a CPU core asking about its
// NUMA node's bandwidth) or a raw cpuset (a process bound to more than
// one core).
type Initiator struct {
	Object object.ID    // valid when CPUSet == nil
	CPUSet *bitmap.Bitmap
}

func (i Initiator) key() interface{} {
	if i.CPUSet != nil {
		return "cpuset:" + i.CPUSet.ListString()
	}
	return i.Object
}

type valueKey struct {
	target    object.ID
	initiator interface{} // nil when the attribute has no NeedInitiator
}

// Attribute is one registered memory attribute's metadata.
type Attribute struct {
	ID    ID
	Name  string
	Flags Flag
}

func (a *Attribute) better(x, y uint64) bool {
	if a.Flags&LowerFirst != 0 {
		return x < y
	}
	return x > y
}

// Registry is the set of memory attributes attached to one topology.
type Registry struct {
	attrs  map[ID]*Attribute
	values map[ID]map[valueKey]uint64
	nextID ID
}

// NewRegistry returns a Registry with the four built-in attributes
// pre-registered: Capacity (HigherFirst), Locality (HigherFirst,
// NeedInitiator), Bandwidth (HigherFirst, NeedInitiator), Latency
// (LowerFirst, NeedInitiator).
func NewRegistry() *Registry {
	r := &Registry{
		attrs:  map[ID]*Attribute{},
		values: map[ID]map[valueKey]uint64{},
		nextID: firstCustomID,
	}
	r.register(Capacity, "Capacity", HigherFirst)
	r.register(Locality, "Locality", HigherFirst|NeedInitiator)
	r.register(Bandwidth, "Bandwidth", HigherFirst|NeedInitiator)
	r.register(Latency, "Latency", LowerFirst|NeedInitiator)
	return r
}

func (r *Registry) register(id ID, name string, flags Flag) {
	r.attrs[id] = &Attribute{ID: id, Name: name, Flags: flags}
	r.values[id] = map[valueKey]uint64{}
}

// RegisterCustom registers a caller-defined attribute and returns its
// assigned ID.
func (r *Registry) RegisterCustom(name string, flags Flag) (ID, error) {
	if flags&(HigherFirst|LowerFirst) == 0 || flags&(HigherFirst|LowerFirst) == HigherFirst|LowerFirst {
		return 0, hwlocerr.New(hwlocerr.KindInvalidArgument, "memattrs: attribute %q must set exactly one of HigherFirst/LowerFirst", name)
	}
	id := r.nextID
	r.nextID++
	r.register(id, name, flags)
	return id, nil
}

// Get returns the attribute metadata for id.
func (r *Registry) Get(id ID) (*Attribute, bool) {
	a, ok := r.attrs[id]
	return a, ok
}

// SetValue records a value for target (and, when the attribute needs
// one, an initiator).
func (r *Registry) SetValue(id ID, target object.ID, initiator *Initiator, value uint64) error {
	a, ok := r.attrs[id]
	if !ok {
		return hwlocerr.New(hwlocerr.KindNotFound, "memattrs: no attribute with id %d", id)
	}
	if a.Flags&NeedInitiator != 0 && initiator == nil {
		return hwlocerr.New(hwlocerr.KindInvalidArgument, "memattrs: attribute %q requires an initiator", a.Name)
	}
	var key valueKey
	if initiator != nil {
		key = valueKey{target: target, initiator: initiator.key()}
	} else {
		key = valueKey{target: target}
	}
	r.values[id][key] = value
	return nil
}

// GetValue returns the recorded value for target (and initiator, if
// required).
func (r *Registry) GetValue(id ID, target object.ID, initiator *Initiator) (uint64, bool) {
	var key valueKey
	if initiator != nil {
		key = valueKey{target: target, initiator: initiator.key()}
	} else {
		key = valueKey{target: target}
	}
	v, ok := r.values[id][key]
	return v, ok
}

// GetTargets returns every target object with a recorded value for
// id, optionally filtered to those recorded against the given
// initiator.
func (r *Registry) GetTargets(id ID, initiator *Initiator) []object.ID {
	var want interface{}
	if initiator != nil {
		want = initiator.key()
	}
	var out []object.ID
	for k := range r.values[id] {
		if initiator != nil && k.initiator != want {
			continue
		}
		out = append(out, k.target)
	}
	return out
}

// GetInitiators returns every distinct initiator key recorded for
// target under attribute id, as the Initiator values supplied to
// SetValue (object-form only; cpuset-form initiators cannot be
// recovered as a *bitmap.Bitmap from the internal key and are omitted
// here — callers needing the original cpuset must track it
// themselves).
func (r *Registry) GetInitiators(id ID, target object.ID) []object.ID {
	var out []object.ID
	for k := range r.values[id] {
		if k.target != target {
			continue
		}
		if obj, ok := k.initiator.(object.ID); ok {
			out = append(out, obj)
		}
	}
	return out
}

// GetBestTarget returns the target with the best value for id
// (argmax/argmin per the attribute's direction flag), optionally
// restricted to the given initiator. Ties are broken by the lowest
// object.ID, which is deterministic for a given topology.
func (r *Registry) GetBestTarget(id ID, initiator *Initiator) (object.ID, uint64, bool) {
	a, ok := r.attrs[id]
	if !ok {
		return 0, 0, false
	}
	var want interface{}
	if initiator != nil {
		want = initiator.key()
	}
	best := object.ID(0)
	bestVal := uint64(0)
	found := false
	for k, v := range r.values[id] {
		if initiator != nil && k.initiator != want {
			continue
		}
		if !found || a.better(v, bestVal) || (v == bestVal && k.target < best) {
			best, bestVal, found = k.target, v, true
		}
	}
	return best, bestVal, found
}

// GetBestInitiator returns the object-form initiator with the best
// value recorded for target under id. cpuset-form initiators are not
// considered (see GetInitiators).
func (r *Registry) GetBestInitiator(id ID, target object.ID) (object.ID, uint64, bool) {
	a, ok := r.attrs[id]
	if !ok {
		return 0, 0, false
	}
	best := object.ID(0)
	bestVal := uint64(0)
	found := false
	for k, v := range r.values[id] {
		if k.target != target {
			continue
		}
		obj, ok := k.initiator.(object.ID)
		if !ok {
			continue
		}
		if !found || a.better(v, bestVal) || (v == bestVal && obj < best) {
			best, bestVal, found = obj, v, true
		}
	}
	return best, bestVal, found
}

// Restrict drops every value whose target is not kept.
func (r *Registry) Restrict(kept func(object.ID) bool) {
	for id, vals := range r.values {
		for k := range vals {
			if !kept(k.target) {
				delete(vals, k)
			}
		}
		r.values[id] = vals
	}
}
