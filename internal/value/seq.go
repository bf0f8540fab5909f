package value

import (
	"strings"
)

// Seq is a materialized sequence. It is restartable and random access.
type Seq interface {
	// Len returns the number of items.
	Len() int64

	// At returns the item at zero-based index i.
	At(i int64) Item
}

// Items is a sequence backed by a slice.
type Items []Item

func (s Items) Len() int64 { return int64(len(s)) }
func (s Items) At(i int64) Item { return s[i] }

// Empty is the empty sequence.
var Empty = Items(nil)

// IntRange is the integer sequence Start, Start+1, ..., Start+N-1.
type IntRange struct {
	Start int64
	N     int64
}

func (r IntRange) Len() int64 { return r.N }
func (r IntRange) At(i int64) Item { return Int(r.Start + i) }

// Repeat is one item repeated N times.
type Repeat struct {
	Item Item
	N    int64
}

func (r Repeat) Len() int64 { return r.N }
func (r Repeat) At(int64) Item { return r.Item }

// window is a view on part of another sequence.
type window struct {
	s   Seq
	off int64
	n   int64
}

func (w window) Len() int64 { return w.n }
func (w window) At(i int64) Item { return w.s.At(w.off + i) }

// Sub returns the n items of s starting at zero-based offset off, clamped
// to the bounds of s. It does not copy.
func Sub(s Seq, off, n int64) Seq {
	size := s.Len()
	if off < 0 {
		n += off
		off = 0
	}
	if off >= size || n <= 0 {
		return Empty
	}
	if n > size-off {
		n = size - off
	}
	switch v := s.(type) {
	case Items:
		return v[off : off+n]
	case IntRange:
		return IntRange{v.Start + off, n}
	case Repeat:
		return Repeat{v.Item, n}
	case window:
		return window{v.s, v.off + off, n}
	}
	if off == 0 && n == size {
		return s
	}
	return window{s, off, n}
}

// Single returns a sequence of one item, or the empty sequence if it is nil.
func Single(it Item) Seq {
	if it == nil {
		return Empty
	}
	return Items{it}
}

// First returns the first item of s, or nil if s is empty.
func First(s Seq) Item {
	if s.Len() == 0 {
		return nil
	}
	return s.At(0)
}

// Slice copies the items of s into a slice.
func Slice(s Seq) []Item {
	if items, ok := s.(Items); ok {
		return items
	}
	out := make([]Item, s.Len())
	for i := range out {
		out[i] = s.At(int64(i))
	}
	return out
}

// Concat returns the concatenation of the sequences.
func Concat(seqs ...Seq) Seq {
	var out Items
	for _, s := range seqs {
		out = append(out, Slice(s)...)
	}
	return out
}

// SameSeq reports whether a and b hold identical items in the same order.
func SameSeq(a, b Seq) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Len() {
		if !Identical(a.At(i), b.At(i)) {
			return false
		}
	}
	return true
}

// SeqString renders s as a query literal: the single item, "()" or a
// parenthesized list.
func SeqString(s Seq) string {
	switch n := s.Len(); {
	case n == 0:
		return "()"
	case n == 1:
		return Literal(s.At(0))
	}
	if r, ok := s.(IntRange); ok {
		return "(" + Literal(Int(r.Start)) + " to " + Literal(Int(r.Start+r.N-1)) + ")"
	}
	parts := make([]string, 0, s.Len())
	for i := range s.Len() {
		parts = append(parts, Literal(s.At(i)))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
