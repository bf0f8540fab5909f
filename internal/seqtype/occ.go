package seqtype

import (
	"fmt"
	"math"
)

// Unbounded is the upper bound of an occurrence range without a limit.
const Unbounded = math.MaxInt64

// Occ is an occurrence range [Min, Max]. The invalid range
// [Unbounded, 0] denotes "never returns" and is the bottom element.
type Occ struct {
	Min int64
	Max int64
}

var (
	Zero       = Occ{0, 0}
	ZeroOrOne  = Occ{0, 1}
	ExactlyOne = Occ{1, 1}
	OneOrMore  = Occ{1, Unbounded}
	ZeroOrMore = Occ{0, Unbounded}

	occNone = Occ{Unbounded, 0}
)

// Exactly returns the occurrence range of exactly n items.
func Exactly(n int64) Occ {
	return Occ{n, n}
}

// IsNone reports whether o is the bottom range.
func (o Occ) IsNone() bool {
	return o.Min > o.Max
}

// Zero reports whether o admits only the empty sequence.
func (o Occ) Zero() bool {
	return o.Max == 0 && o.Min == 0
}

// One reports whether o is exactly one item.
func (o Occ) One() bool {
	return o.Min == 1 && o.Max == 1
}

// ZeroOrOne reports whether o admits at most one item.
func (o Occ) ZeroOrOne() bool {
	return !o.IsNone() && o.Max <= 1
}

// Many reports whether o admits more than one item.
func (o Occ) Many() bool {
	return !o.IsNone() && o.Max > 1
}

// Exact returns the exact cardinality of o, if known.
func (o Occ) Exact() (int64, bool) {
	return o.Min, o.Min == o.Max
}

// Union returns the smallest range covering o and p.
func (o Occ) Union(p Occ) Occ {
	return Occ{min(o.Min, p.Min), max(o.Max, p.Max)}
}

// Intersect returns the range admitted by both o and p.
func (o Occ) Intersect(p Occ) (Occ, bool) {
	if o.IsNone() || p.IsNone() {
		return occNone, false
	}
	r := Occ{max(o.Min, p.Min), min(o.Max, p.Max)}
	if r.Min > r.Max {
		return occNone, false
	}
	return r, true
}

// Add returns the range of the concatenation of two sequences.
func (o Occ) Add(p Occ) Occ {
	if o.IsNone() || p.IsNone() {
		return occNone
	}
	return Occ{satAdd(o.Min, p.Min), satAdd(o.Max, p.Max)}
}

// Mul returns the range of a sequence whose every item of o produces p.
func (o Occ) Mul(p Occ) Occ {
	if o.IsNone() || p.IsNone() {
		return occNone
	}
	return Occ{satMul(o.Min, p.Min), satMul(o.Max, p.Max)}
}

// InstanceOf reports whether o is contained in p.
func (o Occ) InstanceOf(p Occ) bool {
	if o.IsNone() {
		return true
	}
	return o.Min >= p.Min && o.Max <= p.Max
}

func (o Occ) String() string {
	switch o {
	case ExactlyOne:
		return ""
	case ZeroOrOne:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	}
	if o.IsNone() {
		return "!"
	}
	if o.Max == Unbounded {
		return fmt.Sprintf("{%d,}", o.Min)
	}
	return fmt.Sprintf("{%d,%d}", o.Min, o.Max)
}

func satAdd(a, b int64) int64 {
	if a > Unbounded-b {
		return Unbounded
	}
	return a + b
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > Unbounded/b {
		return Unbounded
	}
	return a * b
}
