// Package topology implements the tree model of spec.md §3.3/§4.3: a
// topology owns an arena of object.Object values, a root Machine
// object, per-depth level arrays, and the build/restrict/duplicate
// operations that keep the five invariants of spec.md §8 holding.
//
// Objects never point at each other directly (see pkg/object's doc
// comment); a Topology is the only thing that dereferences an
// object.ID into an *object.Object, the way the teacher's
// pkg/sysfs.System owned every cpu/node/cache struct it produced
// during discoverCPUs/discoverNodes instead of handing out pointers
// callers could outlive the scan.
package topology

import (
	"sort"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/cpukinds"
	"github.com/go-hwloc/hwloc/pkg/distances"
	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
	"github.com/go-hwloc/hwloc/pkg/log"
	"github.com/go-hwloc/hwloc/pkg/memattrs"
	"github.com/go-hwloc/hwloc/pkg/object"
	"github.com/go-hwloc/hwloc/pkg/tma"
)

// Special depth constants for the type-to-depth index, mirroring
// hwloc's HWLOC_TYPE_DEPTH_* family (original_source/include/hwloc.h
// defines Unknown/Multiple; the per-kind memory/IO/Misc constants
// below are this module's own numbering, since they are not part of
// the normal counted depth axis).
const (
	DepthUnknown   = -1
	DepthMultiple  = -2
	DepthNUMANode  = -3
	DepthMemCache  = -4
	DepthBridge    = -5
	DepthPCIDevice = -6
	DepthOSDevice  = -7
	DepthMisc      = -8
)

func specialDepthFor(t object.Type) (int, bool) {
	switch t {
	case object.TypeNUMANode:
		return DepthNUMANode, true
	case object.TypeMemCache:
		return DepthMemCache, true
	case object.TypeBridge:
		return DepthBridge, true
	case object.TypePCIDevice:
		return DepthPCIDevice, true
	case object.TypeOSDevice:
		return DepthOSDevice, true
	case object.TypeMisc:
		return DepthMisc, true
	}
	return 0, false
}

// Flags control topology-wide discovery and binding behavior.
type Flags uint32

const (
	FlagIncludeDisallowed Flags = 1 << iota
	FlagIsThisSystem
	FlagThisSystemAllowedResources
	FlagImportSupport
)

// Filter selects how aggressively a type is pruned during build.
type Filter int

const (
	FilterKeepAll Filter = iota
	FilterKeepNone
	FilterKeepStructure
	FilterKeepImportant
)

// RestrictFlags control Restrict's handling of objects emptied by the
// operation.
type RestrictFlags uint32

const (
	// RestrictRemoveCPULess removes an object whose cpuset becomes
	// empty; without it, the object is retained with an empty cpuset.
	RestrictRemoveCPULess RestrictFlags = 1 << iota
	RestrictByNodeSet
)

// importantOSDeviceClasses is the curated list spec.md §4.3's
// KeepImportant filter keeps regardless of other children/subtype.
var importantOSDeviceClasses = map[string]bool{
	"Storage": true,
	"Network": true,
	"GPU":     true,
	"CoProc":  true,
	"DMA":     true,
}

// Support enumerates which binding operations this topology's
// backends have implemented, per spec.md §3.3.
type Support struct {
	CPUBind    bool
	ThreadBind bool
	ProcBind   bool
	MemBind    bool
	LastCPULocation bool
}

// Topology owns the object arena and everything spec.md §3.3 lists.
type Topology struct {
	arena []*object.Object
	root  object.ID

	levels    map[int][]object.ID
	typeDepth map[object.Type]int

	filters map[object.Type]Filter
	Flags   Flags

	completeCPUSet  *bitmap.Bitmap
	completeNodeSet *bitmap.Bitmap
	topologyCPUSet  *bitmap.Bitmap
	topologyNodeSet *bitmap.Bitmap
	allowedCPUSet   *bitmap.Bitmap
	allowedNodeSet  *bitmap.Bitmap

	Support *Support
	TMA     tma.Allocator

	CPUKinds  *cpukinds.Registry
	Distances *distances.Registry
	MemAttrs  *memattrs.Registry

	logger log.Logger
}

// New returns a Topology with a freshly allocated root Machine object
// and default registries/filters. cpuset is the machine's complete
// cpuset, nodeset its complete node set (pass a clone; New keeps it).
func New(cpuset, nodeset *bitmap.Bitmap) *Topology {
	t := &Topology{
		levels:    map[int][]object.ID{},
		typeDepth: map[object.Type]int{},
		filters:   defaultFilters(),
		completeCPUSet:  cpuset.Clone(),
		completeNodeSet: nodeset.Clone(),
		topologyCPUSet:  cpuset.Clone(),
		topologyNodeSet: nodeset.Clone(),
		allowedCPUSet:   cpuset.Clone(),
		allowedNodeSet:  nodeset.Clone(),
		Support:   &Support{},
		TMA:       tma.Default,
		CPUKinds:  cpukinds.NewRegistry(),
		Distances: distances.NewRegistry(),
		MemAttrs:  memattrs.NewRegistry(),
		logger:    log.Get("topology"),
	}

	root := object.AllocSetupObject(object.TypeMachine, -1)
	root.CPUSet = cpuset.Clone()
	root.NodeSet = nodeset.Clone()
	t.root = t.adopt(root)
	return t
}

func defaultFilters() map[object.Type]Filter {
	return map[object.Type]Filter{
		object.TypeBridge:    FilterKeepImportant,
		object.TypePCIDevice: FilterKeepImportant,
		object.TypeOSDevice:  FilterKeepImportant,
		object.TypeMisc:      FilterKeepAll,
	}
}

// adopt assigns the next arena ID to obj and stores it.
func (t *Topology) adopt(obj *object.Object) object.ID {
	id := object.ID(len(t.arena))
	obj.ID = id
	t.arena = append(t.arena, obj)
	return id
}

// Object returns the object with the given ID.
func (t *Topology) Object(id object.ID) *object.Object {
	if id == object.NoID || int(id) >= len(t.arena) {
		return nil
	}
	return t.arena[id]
}

// Root returns the root Machine object's ID.
func (t *Topology) Root() object.ID { return t.root }

// SetFilter sets the KeepAll/KeepNone/KeepStructure/KeepImportant
// filter for a type.
func (t *Topology) SetFilter(typ object.Type, f Filter) {
	t.filters[typ] = f
}

func (t *Topology) filterFor(typ object.Type) Filter {
	if f, ok := t.filters[typ]; ok {
		return f
	}
	return FilterKeepAll
}

// AllocSetupObject is a convenience wrapper over
// object.AllocSetupObject for discovery backends.
func (t *Topology) AllocSetupObject(typ object.Type, osIndex int64) *object.Object {
	return object.AllocSetupObject(typ, osIndex)
}

// InsertByCPUSet inserts obj (which must have a non-empty CPUSet) at
// the least ancestor whose cpuset strictly contains obj's, per
// spec.md §3.2's object-lifecycle contract. The search starts at
// root.
func (t *Topology) InsertByCPUSet(obj *object.Object) (object.ID, error) {
	if obj.CPUSet == nil || obj.CPUSet.IsEmpty() {
		return object.NoID, hwlocerr.New(hwlocerr.KindInvalidArgument, "topology: InsertByCPUSet requires a non-empty cpuset")
	}

	parent := t.root
	for {
		best := object.NoID
		children := t.childList(parent, obj.Type.Kind())
		for _, cid := range children {
			c := t.Object(cid)
			if c.CPUSet == nil {
				continue
			}
			if bitmap.IsIncluded(obj.CPUSet, c.CPUSet) && !bitmap.IsEqual(obj.CPUSet, c.CPUSet) {
				best = cid
				break
			}
		}
		if best == object.NoID {
			break
		}
		parent = best
	}

	return t.insertUnderParent(parent, obj), nil
}

// InsertByParent inserts obj as a child of parent directly (used for
// cpuset-less objects such as most I/O devices).
func (t *Topology) InsertByParent(parent object.ID, obj *object.Object) object.ID {
	return t.insertUnderParent(parent, obj)
}

func (t *Topology) insertUnderParent(parent object.ID, obj *object.Object) object.ID {
	id := t.adopt(obj)
	obj.Parent = parent
	p := t.Object(parent)
	switch obj.Type.Kind() {
	case object.KindNormal:
		p.NormalChildren = append(p.NormalChildren, id)
		sortChildrenByCPUSet(t, p.NormalChildren)
	case object.KindMemory:
		p.MemoryChildren = append(p.MemoryChildren, id)
	case object.KindIO:
		p.IOChildren = append(p.IOChildren, id)
	case object.KindMisc:
		p.MiscChildren = append(p.MiscChildren, id)
	}
	return id
}

func sortChildrenByCPUSet(t *Topology, ids []object.ID) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := t.Object(ids[i]), t.Object(ids[j])
		if a.CPUSet == nil || b.CPUSet == nil {
			return false
		}
		return a.CPUSet.First() < b.CPUSet.First()
	})
}

func (t *Topology) childList(id object.ID, kind object.Kind) []object.ID {
	o := t.Object(id)
	switch kind {
	case object.KindMemory:
		return o.MemoryChildren
	case object.KindIO:
		return o.IOChildren
	case object.KindMisc:
		return o.MiscChildren
	default:
		return o.NormalChildren
	}
}

// GetObjCoveringCPUSet returns the smallest object whose cpuset
// includes every bit of set, starting the search from root.
func (t *Topology) GetObjCoveringCPUSet(set *bitmap.Bitmap) object.ID {
	cur := t.root
	for {
		next := object.NoID
		for _, cid := range t.Object(cur).NormalChildren {
			c := t.Object(cid)
			if c.CPUSet != nil && bitmap.IsIncluded(set, c.CPUSet) {
				next = cid
				break
			}
		}
		if next == object.NoID {
			return cur
		}
		cur = next
	}
}

// Build runs the finalization steps of spec.md §4.3 (steps 3-8): the
// discovery pipeline itself (step 2) runs externally via
// pkg/discovery before Build is called.
func (t *Topology) Build() error {
	t.propagateSets(t.root)
	t.applyFilters(t.root)
	t.mergeStructuralDuplicates(t.root)
	t.assignLevels()
	t.computeAllowedSets()
	t.CPUKinds.Restrict(t.topologyCPUSet)
	return nil
}

// propagateSets recomputes cpuset/nodeset bottom-up for every normal
// object with normal children (invariants 1-2 of spec.md §3.3).
func (t *Topology) propagateSets(id object.ID) {
	o := t.Object(id)
	for _, cid := range o.NormalChildren {
		t.propagateSets(cid)
	}
	if len(o.NormalChildren) > 0 {
		union := bitmap.New()
		nodeUnion := bitmap.New()
		for _, cid := range o.NormalChildren {
			c := t.Object(cid)
			if c.CPUSet != nil {
				union.Or(union, c.CPUSet)
			}
			if c.NodeSet != nil {
				nodeUnion.Or(nodeUnion, c.NodeSet)
			}
		}
		o.CPUSet = union
		o.NodeSet = nodeUnion
	}
	// Memory children share the owning object's cpuset and contribute
	// their nodeset to it.
	for _, cid := range o.MemoryChildren {
		c := t.Object(cid)
		if o.CPUSet != nil {
			c.CPUSet = o.CPUSet.Clone()
		}
		if c.NodeSet != nil {
			if o.NodeSet == nil {
				o.NodeSet = bitmap.New()
			}
			o.NodeSet.Or(o.NodeSet, c.NodeSet)
		}
	}
}

// applyFilters implements spec.md §4.3 step 4 (KeepNone/KeepStructure
// for normal objects, KeepImportant for I/O) via a post-order walk so
// a child's removal is decided before its parent's.
func (t *Topology) applyFilters(id object.ID) {
	o := t.Object(id)
	for _, cid := range append([]object.ID(nil), o.NormalChildren...) {
		t.applyFilters(cid)
	}
	for _, cid := range append([]object.ID(nil), o.IOChildren...) {
		t.applyFilters(cid)
	}

	normal, io := o.NormalChildren, o.IOChildren
	o.NormalChildren, o.IOChildren = nil, nil
	normal = t.filterChildren(normal, object.KindNormal)
	io = t.filterChildren(io, object.KindIO)
	// reparentChildren put the children of removed objects into o's
	// emptied lists; keep them next to the surviving children.
	promoted := o.NormalChildren
	o.NormalChildren = append(normal, promoted...)
	if len(promoted) > 0 {
		sortChildrenByCPUSet(t, o.NormalChildren)
	}
	o.IOChildren = append(io, o.IOChildren...)
}

func (t *Topology) filterChildren(children []object.ID, kind object.Kind) []object.ID {
	var kept []object.ID
	for _, cid := range children {
		c := t.Object(cid)
		f := t.filterFor(c.Type)

		switch f {
		case FilterKeepNone:
			t.reparentChildren(cid, c.Parent, kind)
			continue
		case FilterKeepStructure:
			if kind == object.KindNormal && len(c.NormalChildren) == 1 {
				only := t.Object(c.NormalChildren[0])
				if c.CPUSet != nil && only.CPUSet != nil && bitmap.IsEqual(c.CPUSet, only.CPUSet) {
					t.reparentChildren(cid, c.Parent, kind)
					continue
				}
			}
		case FilterKeepImportant:
			if kind == object.KindIO && c.Type == object.TypePCIDevice {
				class := ""
				if c.Attrs.OSDevice != nil {
					class = c.Attrs.OSDevice.Class
				}
				hasInterestingChild := len(c.IOChildren) > 0 || len(c.MiscChildren) > 0
				if !importantOSDeviceClasses[class] && c.Subtype == "" && !hasInterestingChild {
					t.reparentChildren(cid, c.Parent, kind)
					continue
				}
			}
		}
		kept = append(kept, cid)
	}
	return kept
}

// reparentChildren moves removed's children up to newParent in
// removed's place and fixes each child's Parent field.
func (t *Topology) reparentChildren(removed, newParent object.ID, kind object.Kind) {
	r := t.Object(removed)
	np := t.Object(newParent)
	var list *[]object.ID
	switch kind {
	case object.KindNormal:
		list = &r.NormalChildren
	case object.KindIO:
		list = &r.IOChildren
	}
	for _, cid := range *list {
		t.Object(cid).Parent = newParent
	}
	switch kind {
	case object.KindNormal:
		np.NormalChildren = append(np.NormalChildren, r.NormalChildren...)
		sortChildrenByCPUSet(t, np.NormalChildren)
	case object.KindIO:
		np.IOChildren = append(np.IOChildren, r.IOChildren...)
	}
}

// mergeStructuralDuplicates implements spec.md §4.3 step 5: a parent
// with exactly one normal child sharing its cpuset and nodeset
// collapses into whichever of the two types spec.md's tie-break order
// (PU > Core > Die > Package > Group > Machine) prefers, provided
// neither side carries a Name (named objects are never merged away).
// The root Machine is never merged with its child.
func (t *Topology) mergeStructuralDuplicates(id object.ID) {
	o := t.Object(id)
	for _, cid := range append([]object.ID(nil), o.NormalChildren...) {
		t.mergeStructuralDuplicates(cid)
	}

	for len(o.NormalChildren) == 1 {
		if o.ID == t.root {
			break
		}
		only := t.Object(o.NormalChildren[0])
		if o.Name != "" || only.Name != "" {
			break
		}
		if o.CPUSet == nil || only.CPUSet == nil || !bitmap.IsEqual(o.CPUSet, only.CPUSet) {
			break
		}
		if o.NodeSet != nil && only.NodeSet != nil && !bitmap.IsEqual(o.NodeSet, only.NodeSet) {
			break
		}
		if object.MergeTiebreak(only.Type) >= object.MergeTiebreak(o.Type) {
			// only survives with o's identity position: splice o out,
			// keeping only's subtree in its place.
			only.Parent = o.Parent
			t.replaceChild(o.Parent, o.ID, only.ID)
			o = only
		} else {
			// o survives; absorb only's children and drop only.
			o.NormalChildren = only.NormalChildren
			for _, gcid := range o.NormalChildren {
				t.Object(gcid).Parent = o.ID
			}
		}
	}
}

func (t *Topology) replaceChild(parent, oldID, newID object.ID) {
	if parent == object.NoID {
		t.root = newID
		return
	}
	p := t.Object(parent)
	for i, cid := range p.NormalChildren {
		if cid == oldID {
			p.NormalChildren[i] = newID
			return
		}
	}
}

// assignLevels implements spec.md §4.3 step 6: assign logical indices
// and build the per-depth level arrays, including the fixed negative
// depths for memory/IO/Misc kinds.
func (t *Topology) assignLevels() {
	t.levels = map[int][]object.ID{}
	t.typeDepth = map[object.Type]int{}

	var walk func(id object.ID, depth int)
	walk = func(id object.ID, depth int) {
		o := t.Object(id)
		o.Depth = depth
		t.levels[depth] = append(t.levels[depth], id)
		t.noteTypeDepth(o.Type, depth)

		for _, cid := range o.NormalChildren {
			walk(cid, depth+1)
		}
		for _, cid := range o.MemoryChildren {
			t.assignSpecialDepth(cid)
		}
		for _, cid := range o.IOChildren {
			t.assignSpecialDepth(cid)
		}
		for _, cid := range o.MiscChildren {
			t.assignSpecialDepth(cid)
		}
	}
	walk(t.root, 0)

	for depth, ids := range t.levels {
		for i, id := range ids {
			t.Object(id).LogicalIndex = i
		}
		_ = depth
	}
}

func (t *Topology) assignSpecialDepth(id object.ID) {
	o := t.Object(id)
	d, ok := specialDepthFor(o.Type)
	if !ok {
		d = DepthMisc
	}
	o.Depth = d
	o.LogicalIndex = len(t.levels[d])
	t.levels[d] = append(t.levels[d], id)
	t.noteTypeDepth(o.Type, d)

	for _, cid := range o.IOChildren {
		t.assignSpecialDepth(cid)
	}
	for _, cid := range o.MiscChildren {
		t.assignSpecialDepth(cid)
	}
}

func (t *Topology) noteTypeDepth(typ object.Type, depth int) {
	existing, ok := t.typeDepth[typ]
	if !ok {
		t.typeDepth[typ] = depth
		return
	}
	if existing != depth {
		t.typeDepth[typ] = DepthMultiple
	}
}

// TypeDepth returns the depth of typ: a non-negative depth or a
// special memory/IO/Misc constant if typ has exactly one, DepthMultiple
// if typ appears at more than one depth, or DepthUnknown if topology
// has no object of that type.
func (t *Topology) TypeDepth(typ object.Type) int {
	if d, ok := t.typeDepth[typ]; ok {
		return d
	}
	return DepthUnknown
}

// ObjectsAtDepth returns the objects at depth d, in logical-index
// order.
func (t *Topology) ObjectsAtDepth(d int) []object.ID {
	return append([]object.ID(nil), t.levels[d]...)
}

// computeAllowedSets implements spec.md §4.3 step 7.
func (t *Topology) computeAllowedSets() {
	root := t.Object(t.root)
	t.topologyCPUSet = root.CPUSet.Clone()
	t.topologyNodeSet = root.NodeSet.Clone()

	if t.Flags&FlagIncludeDisallowed == 0 {
		t.allowedCPUSet = t.topologyCPUSet.Clone()
		t.allowedNodeSet = t.topologyNodeSet.Clone()
	}
	// ThisSystemAllowedResources intersection with the process's own
	// cgroup/cpuset is applied by the OS-facing discovery backend
	// (which alone knows how to read it); Build only preserves whatever
	// allowed set a backend already narrowed via SetAllowedCPUSet.
}

// SetAllowedCPUSet narrows the allowed cpuset/nodeset, used by a
// backend implementing ThisSystemAllowedResources.
func (t *Topology) SetAllowedCPUSet(cpuset, nodeset *bitmap.Bitmap) {
	t.allowedCPUSet = cpuset.Clone()
	t.allowedNodeSet = nodeset.Clone()
}

// TopologyCPUSet returns the topology's overall cpuset (the root
// object's cpuset after Build).
func (t *Topology) TopologyCPUSet() *bitmap.Bitmap { return t.topologyCPUSet.Clone() }

// TopologyNodeSet returns the topology's overall node set.
func (t *Topology) TopologyNodeSet() *bitmap.Bitmap { return t.topologyNodeSet.Clone() }

// AllowedCPUSet returns the subset of TopologyCPUSet the caller is
// permitted to use.
func (t *Topology) AllowedCPUSet() *bitmap.Bitmap { return t.allowedCPUSet.Clone() }

// AllowedNodeSet returns the subset of TopologyNodeSet the caller is
// permitted to use.
func (t *Topology) AllowedNodeSet() *bitmap.Bitmap { return t.allowedNodeSet.Clone() }

// CompleteCPUSet returns every PU the backends discovered, including
// ones excluded from TopologyCPUSet by restriction.
func (t *Topology) CompleteCPUSet() *bitmap.Bitmap { return t.completeCPUSet.Clone() }

// Restrict narrows the topology to cpuset, per spec.md §4.3's Restrict
// operation: every object's cpuset is intersected with S, emptied
// objects are dropped (RestrictRemoveCPULess) or kept cpuset-less,
// sets are re-propagated, levels rebuilt, and the side registries
// restricted.
func (t *Topology) Restrict(s *bitmap.Bitmap, flags RestrictFlags) error {
	if s.IsEmpty() && flags&RestrictRemoveCPULess != 0 {
		return hwlocerr.New(hwlocerr.KindInvalidArgument, "topology: restrict to the empty set with RemoveCpuLess would remove everything")
	}

	t.restrictObject(t.root, s, flags)
	t.propagateSets(t.root)
	t.assignLevels()
	t.computeAllowedSets()

	alive := make(map[object.ID]bool)
	t.markReachable(t.root, alive)
	kept := func(id object.ID) bool {
		return alive[id]
	}
	t.Distances.Restrict(kept)
	t.MemAttrs.Restrict(kept)
	t.CPUKinds.Restrict(t.topologyCPUSet)
	return nil
}

// markReachable walks the tree actually left standing after
// restrictObject pruned NormalChildren, recording every surviving ID
// in alive. IOChildren and MiscChildren are never pruned by restrict,
// so they stay reachable through whatever Normal ancestor kept them.
func (t *Topology) markReachable(id object.ID, alive map[object.ID]bool) {
	alive[id] = true
	o := t.Object(id)
	for _, cid := range o.NormalChildren {
		t.markReachable(cid, alive)
	}
	for _, cid := range o.IOChildren {
		t.markReachable(cid, alive)
	}
	for _, cid := range o.MiscChildren {
		t.markReachable(cid, alive)
	}
}

func (t *Topology) restrictObject(id object.ID, s *bitmap.Bitmap, flags RestrictFlags) {
	o := t.Object(id)
	if o.CPUSet != nil {
		o.CPUSet = bitmap.New().And(o.CPUSet, s)
	}

	var survivors []object.ID
	for _, cid := range o.NormalChildren {
		t.restrictObject(cid, s, flags)
		c := t.Object(cid)
		if c.CPUSet != nil && c.CPUSet.IsEmpty() && flags&RestrictRemoveCPULess != 0 {
			continue
		}
		survivors = append(survivors, cid)
	}
	o.NormalChildren = survivors
}

// Duplicate copies src's object tree (cpusets, nodesets, infos),
// global sets, support flags and filters into a new Topology whose TMA
// is alloc (tma.Default when nil). The objects are ordinary Go heap
// allocations: alloc is only asked whether it is Ready, and when it is
// not, Duplicate returns nil and a KindNoMem error. The copy starts
// with new, empty CPUKinds, Distances and MemAttrs registries; src's
// entries in them are not copied. Each object's Attrs payloads are
// shared with src, not copied.
func Duplicate(src *Topology, alloc tma.Allocator) (*Topology, error) {
	if alloc == nil {
		alloc = tma.Default
	}
	if !alloc.Ready() {
		return nil, hwlocerr.New(hwlocerr.KindNoMem, "topology: allocator not ready")
	}

	dst := &Topology{
		levels:    map[int][]object.ID{},
		typeDepth: map[object.Type]int{},
		filters:   map[object.Type]Filter{},
		Flags:     src.Flags,
		completeCPUSet:  src.completeCPUSet.Clone(),
		completeNodeSet: src.completeNodeSet.Clone(),
		topologyCPUSet:  src.topologyCPUSet.Clone(),
		topologyNodeSet: src.topologyNodeSet.Clone(),
		allowedCPUSet:   src.allowedCPUSet.Clone(),
		allowedNodeSet:  src.allowedNodeSet.Clone(),
		TMA:       alloc,
		CPUKinds:  cpukinds.NewRegistry(),
		Distances: distances.NewRegistry(),
		MemAttrs:  memattrs.NewRegistry(),
		logger:    src.logger,
	}
	supportCopy := *src.Support
	dst.Support = &supportCopy
	for typ, f := range src.filters {
		dst.filters[typ] = f
	}

	idMap := map[object.ID]object.ID{}
	var copyObj func(srcID object.ID, parent object.ID) object.ID
	copyObj = func(srcID object.ID, parent object.ID) object.ID {
		o := src.Object(srcID)
		clone := *o
		clone.ID = object.NoID
		clone.Parent = parent
		if o.CPUSet != nil {
			clone.CPUSet = o.CPUSet.Clone()
		}
		if o.NodeSet != nil {
			clone.NodeSet = o.NodeSet.Clone()
		}
		clone.Info = append([]object.InfoPair(nil), o.Info...)
		clone.NormalChildren = nil
		clone.MemoryChildren = nil
		clone.IOChildren = nil
		clone.MiscChildren = nil
		newID := dst.adopt(&clone)
		idMap[srcID] = newID

		for _, cid := range o.NormalChildren {
			clone.NormalChildren = append(clone.NormalChildren, copyObj(cid, newID))
		}
		for _, cid := range o.MemoryChildren {
			clone.MemoryChildren = append(clone.MemoryChildren, copyObj(cid, newID))
		}
		for _, cid := range o.IOChildren {
			clone.IOChildren = append(clone.IOChildren, copyObj(cid, newID))
		}
		for _, cid := range o.MiscChildren {
			clone.MiscChildren = append(clone.MiscChildren, copyObj(cid, newID))
		}
		dst.arena[newID] = &clone
		return newID
	}
	dst.root = copyObj(src.root, object.NoID)

	dst.assignLevels()
	return dst, nil
}
