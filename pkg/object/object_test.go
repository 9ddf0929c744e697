package object

import "testing"

func TestAllocSetupObjectDefaults(t *testing.T) {
	o := AllocSetupObject(TypePU, 4)
	if o.Type != TypePU || o.OSIndex != 4 {
		t.Fatalf("unexpected object %+v", o)
	}
	if o.ID != NoID || o.Parent != NoID {
		t.Errorf("new object should have no id/parent yet")
	}

	n := AllocSetupObject(TypeNUMANode, 0)
	if n.Attrs.NUMANode == nil {
		t.Errorf("NUMANode object should get a default NUMANodeAttr")
	}

	c := AllocSetupObject(TypeL2Cache, -1)
	if c.Attrs.Cache == nil {
		t.Errorf("cache-typed object should get a default CacheAttr")
	}
}

func TestKindPartition(t *testing.T) {
	cases := map[Type]Kind{
		TypeMachine:  KindNormal,
		TypePackage:  KindNormal,
		TypeCore:     KindNormal,
		TypePU:       KindNormal,
		TypeNUMANode: KindMemory,
		TypeMemCache: KindMemory,
		TypeBridge:   KindIO,
		TypePCIDevice: KindIO,
		TypeOSDevice: KindIO,
		TypeMisc:     KindMisc,
	}
	for typ, want := range cases {
		if got := typ.Kind(); got != want {
			t.Errorf("%v.Kind() = %v, want %v", typ, got, want)
		}
	}
}

func TestInfoHelpers(t *testing.T) {
	o := AllocSetupObject(TypePackage, 0)
	o.AddInfo("CPUModel", "Foo")
	o.AddInfo("CPUModel", "Bar")
	if len(o.Info) != 2 {
		t.Fatalf("AddInfo should never dedupe, got %v", o.Info)
	}

	o.ReplaceInfo("CPUModel", "Baz")
	if len(o.Info) != 1 || o.Info[0].Value != "Baz" {
		t.Errorf("ReplaceInfo should leave exactly one entry, got %v", o.Info)
	}

	o.AddUniqueInfo("CPUModel", "Baz")
	if len(o.Info) != 1 {
		t.Errorf("AddUniqueInfo should not duplicate an identical entry, got %v", o.Info)
	}
	o.AddUniqueInfo("CPUModel", "Qux")
	if len(o.Info) != 2 {
		t.Errorf("AddUniqueInfo should append a differing value, got %v", o.Info)
	}

	if v, ok := o.GetInfo("CPUModel"); !ok || v != "Baz" {
		t.Errorf("GetInfo should return the first matching entry, got %q, %v", v, ok)
	}
}

func TestAttrStringCache(t *testing.T) {
	o := AllocSetupObject(TypeL2Cache, -1)
	o.Attrs.Cache = &CacheAttr{Size: 256 * 1024, Depth: 2, LineSize: 64, Associativity: 8}
	want := "Cache L2 (256KB linesize 64 ways 8)"
	if got := o.AttrString(""); got != want {
		t.Errorf("AttrString = %q, want %q", got, want)
	}
}

func TestAttrStringNUMANode(t *testing.T) {
	o := AllocSetupObject(TypeNUMANode, 0)
	o.Attrs.NUMANode.LocalMemory = 16 * 1024 * 1024
	want := "NUMANode (16384KB)"
	if got := o.AttrString(""); got != want {
		t.Errorf("AttrString = %q, want %q", got, want)
	}
}

func TestMergeTiebreakOrdering(t *testing.T) {
	order := []Type{TypeMachine, TypeGroup, TypePackage, TypeDie, TypeCore, TypePU}
	for i := 1; i < len(order); i++ {
		if MergeTiebreak(order[i]) <= MergeTiebreak(order[i-1]) {
			t.Errorf("%v should rank below %v", order[i-1], order[i])
		}
	}
}
