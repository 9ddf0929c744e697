// Package tma implements the typed memory allocator hook spec.md §3.3
// uses during topology duplication. An Allocator only reports whether
// it is ready and whether piecewise frees are forbidden; it has no
// allocation methods, so a cloned topology's objects are ordinary Go
// heap allocations whichever Allocator is passed.
//
// The default allocator is the Go heap via make/new and has no
// observable behavior beyond that; it exists so Duplicate always has
// an Allocator to call, never a nil check.
package tma

// Allocator is the seam topology.Duplicate consults when building the
// target topology: Duplicate refuses an Allocator that is not Ready
// and records the Allocator as the copy's TMA. The interface has no
// Alloc/Calloc-style methods; the copy's arena is allocated on the Go
// heap.
type Allocator interface {
	// Ready returns true if this allocator is ready to serve
	// allocations; a non-nil Allocator is always ready for the default
	// heap implementation, but a shmem-backed one may report false
	// before its segment is mapped.
	Ready() bool

	// DontFreePiecewise reports whether individual frees are forbidden;
	// when true, only whole-arena release (dropping every reference to
	// the topology) is valid, matching the shmem-export constraint of
	// spec.md §5.
	DontFreePiecewise() bool
}

// Heap is the default Allocator: every allocation is an ordinary Go
// heap allocation, collected normally. Duplicate uses it when the
// caller supplies no Allocator.
type Heap struct{}

// Ready always returns true for the heap allocator.
func (Heap) Ready() bool { return true }

// DontFreePiecewise always returns false for the heap allocator: the
// garbage collector frees objects individually as usual.
func (Heap) DontFreePiecewise() bool { return false }

// Default is the shared Heap allocator instance.
var Default Allocator = Heap{}
