package bitmap

import "testing"

func TestSetClrIsSet(t *testing.T) {
	b := New()
	if !b.IsEmpty() {
		t.Fatalf("new bitmap should be empty")
	}
	b.Set(0)
	b.Set(3)
	b.Set(65)
	for _, i := range []int{0, 3, 65} {
		if !b.IsSet(i) {
			t.Errorf("expected %d set", i)
		}
	}
	if b.IsSet(1) || b.IsSet(64) {
		t.Errorf("unexpected bit set")
	}
	b.Clr(3)
	if b.IsSet(3) {
		t.Errorf("3 should be cleared")
	}
}

func TestSetRangeFinite(t *testing.T) {
	b := New()
	b.SetRange(2, 5)
	for i := 0; i < 8; i++ {
		want := i >= 2 && i <= 5
		if got := b.IsSet(i); got != want {
			t.Errorf("bit %d: got %v want %v", i, got, want)
		}
	}
	if b.Weight() != 4 {
		t.Errorf("weight = %d, want 4", b.Weight())
	}
}

func TestSetRangeInfinite(t *testing.T) {
	b := New()
	b.SetRange(4, Infinite)
	if !b.IsSet(4) || !b.IsSet(1000) {
		t.Errorf("expected 4 and 1000 set in infinite suffix")
	}
	if b.IsSet(3) {
		t.Errorf("3 should not be set")
	}
	if w := b.Weight(); w != -1 {
		t.Errorf("weight of infinite bitmap = %d, want -1", w)
	}
	if b.Last() != -1 {
		t.Errorf("Last() of infinite bitmap should be -1")
	}
}

func TestSinglify(t *testing.T) {
	b := FromSlice(5, 6, 9)
	b.Singlify()
	if b.Weight() != 1 || !b.IsSet(5) {
		t.Errorf("singlify should keep only the lowest bit, got %v", b.Members())
	}

	empty := New()
	empty.Singlify()
	if !empty.IsEmpty() {
		t.Errorf("singlify of empty bitmap should stay empty")
	}
}

func TestOrAndAndNotXorNot(t *testing.T) {
	a := FromSlice(0, 1, 2, 3)
	c := FromSlice(2, 3, 4, 5)

	or := New().Or(a, c)
	if !IsEqual(or, FromSlice(0, 1, 2, 3, 4, 5)) {
		t.Errorf("Or = %v", or.Members())
	}

	and := New().And(a, c)
	if !IsEqual(and, FromSlice(2, 3)) {
		t.Errorf("And = %v", and.Members())
	}

	andNot := New().AndNot(a, c)
	if !IsEqual(andNot, FromSlice(0, 1)) {
		t.Errorf("AndNot = %v", andNot.Members())
	}

	xor := New().Xor(a, c)
	if !IsEqual(xor, FromSlice(0, 1, 4, 5)) {
		t.Errorf("Xor = %v", xor.Members())
	}
}

func TestOrAliasingSelf(t *testing.T) {
	a := FromSlice(0, 2, 4)
	a.Or(a, FromSlice(1, 3))
	if !IsEqual(a, FromSlice(0, 1, 2, 3, 4)) {
		t.Errorf("self-aliased Or = %v", a.Members())
	}
}

func TestNot(t *testing.T) {
	a := FromSlice(0, 2)
	n := New().Not(a)
	if n.IsSet(0) || n.IsSet(2) {
		t.Errorf("complement should not contain a's members")
	}
	if !n.IsSet(1) || !n.IsSet(3) {
		t.Errorf("complement should contain non-members of a")
	}
	if !n.full {
		t.Errorf("complement of a finite bitmap should have an infinite suffix")
	}

	full := NewFull()
	n2 := New().Not(full)
	if !n2.IsEmpty() {
		t.Errorf("complement of full bitmap should be empty, got %v", n2.Members())
	}
}

func TestCompareInclusion(t *testing.T) {
	cases := []struct {
		name     string
		a, b     *Bitmap
		expected Inclusion
	}{
		{"equal", FromSlice(0, 1), FromSlice(0, 1), Equal},
		{"both empty", New(), New(), Equal},
		{"a contains b", FromSlice(0, 1, 2), FromSlice(1), AStrictlyContainsB},
		{"b contains a", FromSlice(1), FromSlice(0, 1, 2), BStrictlyContainsA},
		{"intersect", FromSlice(0, 1), FromSlice(1, 2), SetsIntersect},
		{"disjoint", FromSlice(0), FromSlice(5), Disjoint},
		{"a empty", New(), FromSlice(1), Disjoint},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompareInclusion(tc.a, tc.b); got != tc.expected {
				t.Errorf("CompareInclusion(%v,%v) = %v, want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestIsIncludedAndIntersects(t *testing.T) {
	a := FromSlice(1, 2)
	b := FromSlice(0, 1, 2, 3)
	if !IsIncluded(a, b) {
		t.Errorf("a should be included in b")
	}
	if IsIncluded(b, a) {
		t.Errorf("b should not be included in a")
	}
	if !Intersects(a, b) {
		t.Errorf("a and b should intersect")
	}
	if Intersects(FromSlice(1), FromSlice(2)) {
		t.Errorf("disjoint sets should not intersect")
	}
}

func TestListStringRoundTrip(t *testing.T) {
	cases := []*Bitmap{
		New(),
		NewFull(),
		FromSlice(0, 1, 2, 3, 7, 8, 9),
		FromRange(4, Infinite),
		FromSlice(64, 65, 200),
	}
	for _, b := range cases {
		s := b.ListString()
		parsed, err := ParseList(s)
		if err != nil {
			t.Fatalf("ParseList(%q) failed: %v", s, err)
		}
		if !IsEqual(b, parsed) {
			t.Errorf("round trip mismatch: %v -> %q -> %v", b.Members(), s, parsed.Members())
		}
	}
}

func TestListStringLiterals(t *testing.T) {
	if s := New().ListString(); s != "0x0" {
		t.Errorf("empty bitmap = %q, want 0x0", s)
	}
	if s := NewFull().ListString(); s != "0xf...f" {
		t.Errorf("full bitmap = %q, want 0xf...f", s)
	}
}

func TestTasksetRoundTrip(t *testing.T) {
	cases := []*Bitmap{
		New(),
		FromSlice(0, 1, 3),
		FromSlice(64, 65, 200),
	}
	for _, b := range cases {
		s, err := b.Taskset()
		if err != nil {
			t.Fatalf("Taskset failed: %v", err)
		}
		parsed, err := ParseTaskset(s)
		if err != nil {
			t.Fatalf("ParseTaskset(%q) failed: %v", s, err)
		}
		if !IsEqual(b, parsed) {
			t.Errorf("taskset round trip mismatch: %v -> %q -> %v", b.Members(), s, parsed.Members())
		}
	}
}

func TestTasksetRejectsInfinite(t *testing.T) {
	if _, err := NewFull().Taskset(); err == nil {
		t.Errorf("expected an error converting an infinite bitmap to taskset form")
	}
}

func TestHashStableAcrossCapacity(t *testing.T) {
	a := FromSlice(1, 2)
	b := New()
	b.SetRange(0, 100)
	b.AndNot(b, FromSlice(0))
	for i := 3; i <= 100; i++ {
		b.Clr(i)
	}
	if !IsEqual(a, b) {
		t.Fatalf("test setup invariant broken: %v != %v", a.Members(), b.Members())
	}
	if a.Hash() != b.Hash() {
		t.Errorf("hash should not depend on internal capacity")
	}
}

func TestNextAndFirstLast(t *testing.T) {
	b := FromSlice(2, 5, 9)
	if b.First() != 2 {
		t.Errorf("First() = %d, want 2", b.First())
	}
	if b.Last() != 9 {
		t.Errorf("Last() = %d, want 9", b.Last())
	}
	seen := []int{}
	for i := b.First(); i != -1; i = b.Next(i) {
		seen = append(seen, i)
	}
	if len(seen) != 3 || seen[0] != 2 || seen[1] != 5 || seen[2] != 9 {
		t.Errorf("iteration via Next = %v", seen)
	}
}
