// Package object implements the topology tree's node type: the
// closed set of object types, their attribute payloads, and the
// arena-held parent/child/sibling relations between them.
//
// Objects are never linked by pointer. Per spec.md §9's note on
// re-architecting hwloc's cyclic pointer graph (parent, child-list
// heads, siblings, cousins, and a back-reference to the owning
// topology) for a systems language with a garbage collector but no
// destructors, every relation is expressed as an ID into the arena the
// owning *topology.Topology holds; an Object itself never points at
// another Object directly.
package object

import (
	"fmt"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
)

// ID identifies an Object within its owning topology's arena. NoID
// (-1) means "no object"; the zero value is a valid arena index.
type ID int32

// NoID is the ID used for absent references (no parent, no sibling, …).
const NoID ID = -1

// Type is the closed set of object types spec.md §3.2 enumerates.
type Type int

const (
	TypeMachine Type = iota
	TypePackage
	TypeDie
	TypeGroup
	TypeCore
	TypePU
	TypeNUMANode
	TypeMemCache
	TypeL1Cache
	TypeL2Cache
	TypeL3Cache
	TypeL4Cache
	TypeL5Cache
	TypeL1iCache
	TypeL2iCache
	TypeL3iCache
	TypeBridge
	TypePCIDevice
	TypeOSDevice
	TypeMisc
)

var typeNames = map[Type]string{
	TypeMachine:  "Machine",
	TypePackage:  "Package",
	TypeDie:      "Die",
	TypeGroup:    "Group",
	TypeCore:     "Core",
	TypePU:       "PU",
	TypeNUMANode: "NUMANode",
	TypeMemCache: "MemCache",
	TypeL1Cache:  "L1Cache",
	TypeL2Cache:  "L2Cache",
	TypeL3Cache:  "L3Cache",
	TypeL4Cache:  "L4Cache",
	TypeL5Cache:  "L5Cache",
	TypeL1iCache: "L1iCache",
	TypeL2iCache: "L2iCache",
	TypeL3iCache: "L3iCache",
	TypeBridge:   "Bridge",
	TypePCIDevice: "PCIDevice",
	TypeOSDevice: "OSDevice",
	TypeMisc:     "Misc",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Kind partitions Type into the four families spec.md §3.2 describes:
// normal (CPU-containing), memory, I/O, and Misc. Each family gets its
// own child list and its own depth namespace.
type Kind int

const (
	KindNormal Kind = iota
	KindMemory
	KindIO
	KindMisc
)

// Kind reports which of the four families t belongs to.
func (t Type) Kind() Kind {
	switch t {
	case TypeNUMANode, TypeMemCache:
		return KindMemory
	case TypeBridge, TypePCIDevice, TypeOSDevice:
		return KindIO
	case TypeMisc:
		return KindMisc
	default:
		return KindNormal
	}
}

// IsCache reports whether t is one of the data or instruction cache
// levels.
func (t Type) IsCache() bool {
	switch t {
	case TypeL1Cache, TypeL2Cache, TypeL3Cache, TypeL4Cache, TypeL5Cache,
		TypeL1iCache, TypeL2iCache, TypeL3iCache, TypeMemCache:
		return true
	default:
		return false
	}
}

// CacheDataType distinguishes a cache's content, mirroring hwloc's
// hwloc_obj_cache_type_e.
type CacheDataType int

const (
	CacheUnified CacheDataType = iota
	CacheData
	CacheInstruction
)

// GroupAttr holds attributes specific to TypeGroup.
type GroupAttr struct {
	Depth    int
	Kind     int
	DontMerge bool
}

// CacheAttr holds attributes specific to a cache-typed object.
type CacheAttr struct {
	Size          uint64 // bytes
	Depth         int
	LineSize      uint32 // bytes
	Associativity int    // -1 = fully associative, 0 = unknown
	DataType      CacheDataType
}

// NUMANodeAttr holds attributes specific to TypeNUMANode.
type NUMANodeAttr struct {
	LocalMemory uint64 // bytes
	// PageTypes maps a page size in bytes to the count of pages of that size.
	PageTypes map[uint64]uint64
}

// PCIDeviceAttr holds attributes specific to TypePCIDevice.
type PCIDeviceAttr struct {
	Domain       uint32
	Bus          uint8
	Dev          uint8
	Func         uint8
	VendorID     uint16
	DeviceID     uint16
	ClassID      uint16
	LinkSpeedGBs float32
}

// BridgeAttr holds attributes specific to TypeBridge.
type BridgeAttr struct {
	UpstreamType     Type
	DownstreamType   Type
	SecondaryBus     uint8
	SubordinateBus   uint8
	UpstreamPCI      *PCIDeviceAttr // set when UpstreamType == TypePCIDevice
}

// OSDeviceAttr holds attributes specific to TypeOSDevice.
type OSDeviceAttr struct {
	Class string // e.g. "Storage", "Network", "GPU", "DMA", "CoProc"
}

// Attrs is the tagged union of per-type attribute payloads. At most
// one field is non-nil/non-zero-value for a given Type; callers switch
// on Object.Type to know which to read.
type Attrs struct {
	Group    *GroupAttr
	Cache    *CacheAttr
	NUMANode *NUMANodeAttr
	PCI      *PCIDeviceAttr
	Bridge   *BridgeAttr
	OSDevice *OSDeviceAttr
}

// InfoPair is one (name, value) entry of an object's Info list.
// Multiple entries with the same name are permitted, never
// deduplicated by add_info itself.
type InfoPair struct {
	Name  string
	Value string
}

// Object is one node of the topology tree.
type Object struct {
	ID   ID
	Type Type

	OSIndex     int64 // -1 if unknown
	LogicalIndex int
	Depth        int

	Attrs Attrs

	// CPUSet and NodeSet may be nil for objects with no CPU/memory
	// footprint (some top-level NUMA roots, most OS devices).
	CPUSet  *bitmap.Bitmap
	NodeSet *bitmap.Bitmap

	Info []InfoPair

	Subtype string
	Name    string

	UserData interface{}

	Parent ID // NoID for the root

	// Four independently-ordered child lists, exclusively owned.
	NormalChildren []ID
	MemoryChildren []ID
	IOChildren     []ID
	MiscChildren   []ID
}

// AllocSetupObject returns a zero-initialized object of the given type
// and OS index, with a default (empty, non-nil) attribute payload
// appropriate to that type. The returned object has ID NoID and
// Parent NoID; the caller (usually a discovery backend, via
// *topology.Topology) is responsible for assigning an ID and inserting
// it.
func AllocSetupObject(t Type, osIndex int64) *Object {
	o := &Object{
		ID:           NoID,
		Type:         t,
		OSIndex:      osIndex,
		LogicalIndex: -1,
		Depth:        0,
		Parent:       NoID,
	}
	switch t {
	case TypeGroup:
		o.Attrs.Group = &GroupAttr{}
	case TypeNUMANode:
		o.Attrs.NUMANode = &NUMANodeAttr{PageTypes: map[uint64]uint64{}}
	case TypePCIDevice:
		o.Attrs.PCI = &PCIDeviceAttr{}
	case TypeBridge:
		o.Attrs.Bridge = &BridgeAttr{}
	case TypeOSDevice:
		o.Attrs.OSDevice = &OSDeviceAttr{}
	default:
		if t.IsCache() {
			o.Attrs.Cache = &CacheAttr{}
		}
	}
	return o
}

// AddInfo appends a (name, value) pair. It never deduplicates; callers
// wanting replace-or-append or add-if-absent semantics build those on
// top (see ReplaceInfo/AddUniqueInfo).
func (o *Object) AddInfo(name, value string) {
	o.Info = append(o.Info, InfoPair{Name: name, Value: value})
}

// ReplaceInfo removes every existing entry named name and appends a
// single new one.
func (o *Object) ReplaceInfo(name, value string) {
	kept := o.Info[:0]
	for _, p := range o.Info {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	o.Info = append(kept, InfoPair{Name: name, Value: value})
}

// AddUniqueInfo appends (name, value) only if no entry already has
// that exact name and value.
func (o *Object) AddUniqueInfo(name, value string) {
	for _, p := range o.Info {
		if p.Name == name && p.Value == value {
			return
		}
	}
	o.AddInfo(name, value)
}

// GetInfo returns the value of the first entry named name, and
// whether one was found.
func (o *Object) GetInfo(name string) (string, bool) {
	for _, p := range o.Info {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// AttrString renders the object's attribute payload as the
// human-readable line whose tokens are part of the external contract
// (spec.md §6): cache objects render as "Cache L<depth> (<size>KB
// linesize <line> ways <ways>)", NUMA nodes as "NUMANode (<size>KB)",
// PCI devices as "PCIDevice <domain:bus:dev.func>" plus
// "busid=..., id=<vendor>:<device>". sep separates multiple fields
// when an object has more than one (currently unused, reserved for
// multi-field attribute types).
func (o *Object) AttrString(sep string) string {
	switch {
	case o.Type.IsCache() && o.Attrs.Cache != nil:
		c := o.Attrs.Cache
		ways := "unknown"
		if c.Associativity > 0 {
			ways = fmt.Sprintf("%d", c.Associativity)
		} else if c.Associativity < 0 {
			ways = "full"
		}
		return fmt.Sprintf("Cache L%d (%dKB linesize %d ways %s)", c.Depth, c.Size/1024, c.LineSize, ways)
	case o.Type == TypeNUMANode && o.Attrs.NUMANode != nil:
		return fmt.Sprintf("NUMANode (%dKB)", o.Attrs.NUMANode.LocalMemory/1024)
	case o.Type == TypePCIDevice && o.Attrs.PCI != nil:
		p := o.Attrs.PCI
		return fmt.Sprintf("PCIDevice %04x:%02x:%02x.%x busid=%04x:%02x:%02x.%x, id=%04x:%04x",
			p.Domain, p.Bus, p.Dev, p.Func, p.Domain, p.Bus, p.Dev, p.Func, p.VendorID, p.DeviceID)
	case o.Type == TypeGroup && o.Attrs.Group != nil:
		return fmt.Sprintf("Group%d", o.Attrs.Group.Depth)
	default:
		return o.Type.String()
	}
}

// String implements fmt.Stringer with a short debugging form; it is
// not part of the attribute-string external contract (use AttrString
// for that).
func (o *Object) String() string {
	if o.Name != "" {
		return fmt.Sprintf("%s#%d(%s)", o.Type, o.LogicalIndex, o.Name)
	}
	return fmt.Sprintf("%s#%d", o.Type, o.LogicalIndex)
}

// MergeTiebreak orders types for the "which survives a structural
// merge" tie-break of spec.md §4.3 step 5: PU > Core > Die > Package >
// Group > Machine, i.e. the more specific (deeper, more informative)
// type is preferred. Higher return value wins.
func MergeTiebreak(t Type) int {
	switch t {
	case TypePU:
		return 6
	case TypeCore:
		return 5
	case TypeDie:
		return 4
	case TypePackage:
		return 3
	case TypeGroup:
		return 2
	case TypeMachine:
		return 1
	default:
		return 0
	}
}
