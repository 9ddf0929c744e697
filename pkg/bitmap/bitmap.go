// Package bitmap implements the set-of-non-negative-integers type
// that every other package in this module builds on: CPU sets, NUMA
// node sets, and the containment checks, restrictions, and binding
// calls derived from them.
//
// A Bitmap represents a potentially infinite set as a finite prefix of
// explicit 32-bit words plus a single flag meaning "every index at or
// above the explicit prefix is also a member" (the infinite suffix).
// This has no direct analogue in the teacher repository or the rest of
// the example pack — every bounded-cpuset library available there
// (k8s.io/utils/cpuset included) represents a strictly finite set and
// cannot express "all PUs from here on", which the discovery pipeline
// needs for e.g. "every PU the kernel might still hot-add". The
// algebra and serialization contracts below are taken directly from
// spec.md §3.1/§4.1 and from the original hwloc bitmap header
// (original_source/include/hwloc.h).
package bitmap

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"

	"github.com/go-hwloc/hwloc/pkg/hwlocerr"
)

const wordBits = 32

// Bitmap is a mutable set of non-negative integers with a stable
// identity: Set/Clr/And/Or/... mutate the receiver in place, the way
// hwloc_bitmap_t does, rather than returning a new value every time.
// The zero value is a valid empty Bitmap.
type Bitmap struct {
	words []uint32 // word i holds bits [32*i, 32*i+31]; trim drops trailing words equal to the suffix fill
	full  bool     // infinite suffix: every bit at or above len(words)*32 is set
}

// New returns a new empty Bitmap.
func New() *Bitmap {
	return &Bitmap{}
}

// NewFull returns a new Bitmap with every non-negative integer set.
func NewFull() *Bitmap {
	return &Bitmap{full: true}
}

// FromSlice returns a new Bitmap with exactly the given indices set.
func FromSlice(indices ...int) *Bitmap {
	b := New()
	for _, i := range indices {
		b.Set(i)
	}
	return b
}

// FromRange returns a new Bitmap with [lo,hi] set. hi == Infinite
// means "lo and everything above it".
func FromRange(lo, hi int) *Bitmap {
	b := New()
	b.SetRange(lo, hi)
	return b
}

// Infinite, passed as the hi argument of SetRange, means "to infinity".
const Infinite = -1

func (b *Bitmap) wordIndex(i int) int { return i / wordBits }

// ensureWords grows b.words to at least n entries. When the suffix is
// already infinite, the newly materialized words must start all-set:
// they used to be covered by the implicit infinite suffix, and growing
// the explicit prefix must not silently clear them.
func (b *Bitmap) ensureWords(n int) {
	fill := uint32(0)
	if b.full {
		fill = ^uint32(0)
	}
	for len(b.words) < n {
		b.words = append(b.words, fill)
	}
}

// trim drops trailing (most significant) words that repeat the suffix
// (all-zero words when the suffix is empty, all-one words when it is
// infinite) so that two bitmaps with the same members compare/hash
// equal regardless of how much capacity they were built with.
func (b *Bitmap) trim() {
	pad := uint32(0)
	if b.full {
		pad = ^uint32(0)
	}
	n := len(b.words)
	for n > 0 && b.words[n-1] == pad {
		n--
	}
	b.words = b.words[:n]
}

// Clone returns an independent copy of b.
func (b *Bitmap) Clone() *Bitmap {
	c := &Bitmap{full: b.full}
	if len(b.words) > 0 {
		c.words = append([]uint32(nil), b.words...)
	}
	return c
}

// Set adds i to the set.
func (b *Bitmap) Set(i int) {
	if i < 0 {
		return
	}
	if b.full && b.wordIndex(i) >= len(b.words) {
		return
	}
	w := b.wordIndex(i)
	b.ensureWords(w + 1)
	b.words[w] |= 1 << uint(i%wordBits)
}

// Clr removes i from the set.
func (b *Bitmap) Clr(i int) {
	if i < 0 {
		return
	}
	w := b.wordIndex(i)
	if w >= len(b.words) {
		if b.full {
			// Materialize every implicit word up through w as fully set,
			// then clear the bit, so the infinite suffix now starts past w.
			old := len(b.words)
			b.ensureWords(w + 1)
			for j := old; j < w; j++ {
				b.words[j] = ^uint32(0)
			}
			b.words[w] = ^uint32(0)
		} else {
			return
		}
	}
	b.words[w] &^= 1 << uint(i%wordBits)
	b.trim()
}

// IsSet reports whether i is a member of the set.
func (b *Bitmap) IsSet(i int) bool {
	if i < 0 {
		return false
	}
	w := b.wordIndex(i)
	if w >= len(b.words) {
		return b.full
	}
	return b.words[w]&(1<<uint(i%wordBits)) != 0
}

// SetRange sets every index in [lo,hi]. hi == Infinite sets lo and
// every index above it, and marks the bitmap's suffix infinite.
func (b *Bitmap) SetRange(lo, hi int) {
	if lo < 0 {
		lo = 0
	}
	if hi == Infinite {
		w := b.wordIndex(lo)
		b.ensureWords(w + 1)
		b.words[w] |= ^uint32(0) << uint(lo%wordBits)
		for j := w + 1; j < len(b.words); j++ {
			b.words[j] = ^uint32(0)
		}
		b.full = true
		return
	}
	if hi < lo {
		return
	}
	wl, wh := b.wordIndex(lo), b.wordIndex(hi)
	b.ensureWords(wh + 1)
	for w := wl; w <= wh; w++ {
		mask := ^uint32(0)
		if w == wl {
			mask &= ^uint32(0) << uint(lo%wordBits)
		}
		if w == wh && hi%wordBits != wordBits-1 {
			mask &= (uint32(1) << uint(hi%wordBits+1)) - 1
		}
		b.words[w] |= mask
	}
}

// Singlify keeps only the lowest set bit (or leaves an empty bitmap
// empty), the way binding a thread to a single PU requires.
func (b *Bitmap) Singlify() {
	first := b.First()
	b.words = nil
	b.full = false
	if first >= 0 {
		b.Set(first)
	}
}

// IsEmpty reports whether the set has no members at all.
func (b *Bitmap) IsEmpty() bool {
	if b.full {
		return false
	}
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// IsFull reports whether every non-negative integer is a member.
func (b *Bitmap) IsFull() bool {
	if !b.full {
		return false
	}
	for _, w := range b.words {
		if w != ^uint32(0) {
			return false
		}
	}
	return true
}

// First returns the lowest set bit, or -1 if empty.
func (b *Bitmap) First() int {
	for idx, w := range b.words {
		if w != 0 {
			return idx*wordBits + bits.TrailingZeros32(w)
		}
	}
	if b.full {
		return len(b.words) * wordBits
	}
	return -1
}

// Last returns the highest set bit, or -1 if the suffix is infinite
// (there is no highest member).
func (b *Bitmap) Last() int {
	if b.full {
		return -1
	}
	for idx := len(b.words) - 1; idx >= 0; idx-- {
		if b.words[idx] != 0 {
			return idx*wordBits + (wordBits - 1 - bits.LeadingZeros32(b.words[idx]))
		}
	}
	return -1
}

// Next returns the lowest set bit strictly greater than i, or -1 if
// none exists.
func (b *Bitmap) Next(i int) int {
	i++
	if i < 0 {
		i = 0
	}
	w := b.wordIndex(i)
	if w < len(b.words) {
		mask := ^uint32(0) << uint(i%wordBits)
		if v := b.words[w] & mask; v != 0 {
			return w*wordBits + bits.TrailingZeros32(v)
		}
		for w++; w < len(b.words); w++ {
			if b.words[w] != 0 {
				return w*wordBits + bits.TrailingZeros32(b.words[w])
			}
		}
	}
	if b.full {
		if i > len(b.words)*wordBits {
			return i
		}
		return len(b.words) * wordBits
	}
	return -1
}

// Weight returns the cardinality of the set, or -1 if it is infinite.
func (b *Bitmap) Weight() int {
	if b.full {
		return -1
	}
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// Members returns the explicit (finite-prefix) set bits in ascending
// order. It never includes the infinite suffix: a caller holding a
// Bitmap with an infinite suffix must Restrict it to a bounded
// universe (And it with a finite bitmap) before enumerating it.
func (b *Bitmap) Members() []int {
	var out []int
	for idx, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros32(w)
			out = append(out, idx*wordBits+bit)
			w &^= 1 << uint(bit)
		}
	}
	return out
}

func maxLen(a, c []uint32) int {
	if len(a) > len(c) {
		return len(a)
	}
	return len(c)
}

func wordAt(words []uint32, i int) uint32 {
	if i < len(words) {
		return words[i]
	}
	return 0
}

// Or sets b to the union of a and c. a and c may alias b or each
// other.
func (b *Bitmap) Or(a, c *Bitmap) *Bitmap {
	n := maxLen(a.words, c.words)
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		out[i] = av | cv
	}
	b.words = out
	b.full = a.full || c.full
	b.trim()
	return b
}

// And sets b to the intersection of a and c.
func (b *Bitmap) And(a, c *Bitmap) *Bitmap {
	n := maxLen(a.words, c.words)
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		out[i] = av & cv
	}
	b.words = out
	b.full = a.full && c.full
	b.trim()
	return b
}

// AndNot sets b to a with every member of c removed (a &^ c).
func (b *Bitmap) AndNot(a, c *Bitmap) *Bitmap {
	n := maxLen(a.words, c.words)
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		out[i] = av &^ cv
	}
	b.words = out
	b.full = a.full && !c.full
	b.trim()
	return b
}

// Xor sets b to the symmetric difference of a and c.
func (b *Bitmap) Xor(a, c *Bitmap) *Bitmap {
	n := maxLen(a.words, c.words)
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		out[i] = av ^ cv
	}
	b.words = out
	b.full = a.full != c.full
	b.trim()
	return b
}

// Not sets b to the complement of a. The infinite-suffix bit is
// flipped: a finite bitmap's complement has an infinite suffix, and
// vice versa.
func (b *Bitmap) Not(a *Bitmap) *Bitmap {
	out := make([]uint32, len(a.words))
	for i, w := range a.words {
		out[i] = ^w
	}
	b.words = out
	b.full = !a.full
	b.trim()
	return b
}

// IsEqual reports whether a and c have exactly the same members,
// regardless of internal capacity.
func IsEqual(a, c *Bitmap) bool {
	if a.full != c.full {
		return false
	}
	n := maxLen(a.words, c.words)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if a.full && i >= len(a.words) {
			av = ^uint32(0)
		}
		if c.full && i >= len(c.words) {
			cv = ^uint32(0)
		}
		if av != cv {
			return false
		}
	}
	return true
}

// IsIncluded reports whether every member of a is also a member of c.
func IsIncluded(a, c *Bitmap) bool {
	if a.full && !c.full {
		return false
	}
	n := maxLen(a.words, c.words)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		if av&^cv != 0 {
			return false
		}
	}
	return true
}

// Intersects reports whether a and c share at least one member.
func Intersects(a, c *Bitmap) bool {
	n := maxLen(a.words, c.words)
	for i := 0; i < n; i++ {
		av, cv := wordAt(a.words, i), wordAt(c.words, i)
		if i >= len(a.words) && a.full {
			av = ^uint32(0)
		}
		if i >= len(c.words) && c.full {
			cv = ^uint32(0)
		}
		if av&cv != 0 {
			return true
		}
	}
	if a.full && c.full {
		return true
	}
	return false
}

// Inclusion is the five-valued outcome of CompareInclusion.
type Inclusion int

const (
	// Equal means a and b have the same members.
	Equal Inclusion = iota
	// AStrictlyContainsB means b is a strict, non-empty subset of a.
	AStrictlyContainsB
	// BStrictlyContainsA means a is a strict, non-empty subset of b.
	BStrictlyContainsA
	// SetsIntersect means a and b overlap but neither contains the other.
	SetsIntersect
	// Disjoint means a and b share no members.
	Disjoint
)

// CompareInclusion classifies the relationship between a and b. It is
// a direct port of hwloc_bitmap_compare_inclusion
// (original_source/hwloc/cpukinds.c's caller is the canonical
// consumer) and is the contract the CPU-kinds registration algorithm
// depends on being exact. By convention, compare_inclusion(empty,
// empty) is Equal and compare_inclusion(empty, anything-else) is
// Disjoint.
func CompareInclusion(a, b *Bitmap) Inclusion {
	aEmpty, bEmpty := a.IsEmpty(), b.IsEmpty()
	switch {
	case aEmpty && bEmpty:
		return Equal
	case aEmpty || bEmpty:
		return Disjoint
	}
	if IsEqual(a, b) {
		return Equal
	}
	aInB := IsIncluded(a, b)
	bInA := IsIncluded(b, a)
	switch {
	case aInB:
		return BStrictlyContainsA
	case bInA:
		return AStrictlyContainsB
	case Intersects(a, b):
		return SetsIntersect
	default:
		return Disjoint
	}
}

// Hash returns a hash of b's members that is stable across bitmaps of
// differing internal capacity holding the same members.
func (b *Bitmap) Hash() uint64 {
	h := fnv.New64a()
	trimmed := b.Clone()
	trimmed.trim()
	if trimmed.full {
		_, _ = h.Write([]byte{1})
	}
	for _, w := range trimmed.words {
		_, _ = h.Write([]byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)})
	}
	return h.Sum64()
}

// String renders b in list form (see ListString).
func (b *Bitmap) String() string {
	return b.ListString()
}

// ListString renders b as comma-separated 32-bit hex groups,
// most-significant group first, with a literal "0xf...f," prefix when
// the suffix is infinite. An empty bitmap prints as "0x0"; the full
// infinite bitmap prints as "0xf...f".
func (b *Bitmap) ListString() string {
	trimmed := b.Clone()
	trimmed.trim()

	if trimmed.IsEmpty() {
		return "0x0"
	}

	var parts []string
	if trimmed.full {
		parts = append(parts, "0xf...f")
	}
	for i := len(trimmed.words) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%08x", trimmed.words[i]))
	}
	return strings.Join(parts, ",")
}

// ParseList parses the list form produced by ListString.
func ParseList(s string) (*Bitmap, error) {
	s = strings.TrimSpace(s)
	if s == "0x0" {
		return New(), nil
	}
	if s == "0xf...f" {
		return NewFull(), nil
	}

	tokens := strings.Split(s, ",")
	b := New()
	start := 0
	if tokens[0] == "0xf...f" {
		b.full = true
		start = 1
	}

	n := len(tokens) - start
	b.words = make([]uint32, n)
	for i, tok := range tokens[start:] {
		tok = strings.TrimPrefix(tok, "0x")
		v, err := strconv.ParseUint(tok, 16, 32)
		if err != nil {
			return nil, hwlocerr.Wrap(hwlocerr.KindInvalidArgument, err, "bitmap: invalid list group %q in %q", tok, s)
		}
		// tokens[start:] runs most-significant first; word n-1-i.
		b.words[n-1-i] = uint32(v)
	}
	b.trim()
	return b, nil
}

// MarshalText implements encoding.TextMarshaler using the list form,
// so a Bitmap composes directly into JSON/text-based encodings.
func (b *Bitmap) MarshalText() ([]byte, error) {
	return []byte(b.ListString()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseList.
func (b *Bitmap) UnmarshalText(text []byte) error {
	parsed, err := ParseList(string(text))
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}

// Taskset renders b as a single unbounded hex integer, least
// significant word last. Taskset form has no way to spell an infinite
// suffix; calling it on a bitmap with one set returns an error.
func (b *Bitmap) Taskset() (string, error) {
	trimmed := b.Clone()
	trimmed.trim()
	if trimmed.full {
		return "", hwlocerr.New(hwlocerr.KindInvalidArgument, "bitmap: taskset form cannot represent an infinite suffix")
	}
	if len(trimmed.words) == 0 {
		return "0x0", nil
	}
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(trimmed.words) - 1; i >= 0; i-- {
		if i == len(trimmed.words)-1 {
			fmt.Fprintf(&sb, "%x", trimmed.words[i])
		} else {
			fmt.Fprintf(&sb, "%08x", trimmed.words[i])
		}
	}
	return sb.String(), nil
}

// ParseTaskset parses the taskset form produced by Taskset.
func ParseTaskset(s string) (*Bitmap, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	if s == "" || s == "0" {
		return New(), nil
	}
	// Consume 8 hex digits at a time from the least-significant end.
	b := New()
	nibbles := len(s)
	groups := (nibbles + 7) / 8
	b.words = make([]uint32, groups)
	for g := 0; g < groups; g++ {
		end := nibbles - g*8
		begin := end - 8
		if begin < 0 {
			begin = 0
		}
		v, err := strconv.ParseUint(s[begin:end], 16, 32)
		if err != nil {
			return nil, hwlocerr.Wrap(hwlocerr.KindInvalidArgument, err, "bitmap: invalid taskset value %q", s)
		}
		b.words[g] = uint32(v)
	}
	b.trim()
	return b, nil
}
