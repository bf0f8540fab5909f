package index

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Descriptor is a proposed index access.
//
// This is a sealed interface: only TokenMatch, NumericRange and StringRange
// implement it.
type Descriptor interface {
	descriptor() // Sealed

	// Target returns the collection and the path of the indexed value.
	Target() (collection string, path []string)

	String() string
}

// TokenMatch selects records whose value at Path equals Value.
type TokenMatch struct {
	Collection string
	Path       []string
	Value      string
}

func (TokenMatch) descriptor() {}

func (d TokenMatch) Target() (string, []string) { return d.Collection, d.Path }

func (d TokenMatch) String() string {
	return fmt.Sprintf("%s[%s = %q]", d.Collection, PathString(d.Path), d.Value)
}

// NumericRange selects records whose value at Path, read as a double, lies
// within [Min, Max]. Infinite bounds are unbounded.
type NumericRange struct {
	Collection string
	Path       []string
	Min, Max   float64
	MinIncl    bool
	MaxIncl    bool
}

func (NumericRange) descriptor() {}

func (d NumericRange) Target() (string, []string) { return d.Collection, d.Path }

// Empty reports whether no value can satisfy the range.
func (d NumericRange) Empty() bool {
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) {
		return true
	}
	if d.Min == d.Max {
		return !d.MinIncl || !d.MaxIncl
	}
	return d.Min > d.Max
}

func (d NumericRange) String() string {
	return fmt.Sprintf("%s[%s in %s]", d.Collection, PathString(d.Path),
		interval(fmtNum(d.Min), fmtNum(d.Max), d.MinIncl, d.MaxIncl))
}

// StringRange selects records whose value at Path lies within [Min, Max] in
// codepoint order. HasMin and HasMax mark which bounds exist.
type StringRange struct {
	Collection     string
	Path           []string
	Min, Max       string
	HasMin, HasMax bool
	MinIncl        bool
	MaxIncl        bool
}

func (StringRange) descriptor() {}

func (d StringRange) Target() (string, []string) { return d.Collection, d.Path }

// Empty reports whether no value can satisfy the range.
func (d StringRange) Empty() bool {
	if !d.HasMin || !d.HasMax {
		return false
	}
	if d.Min == d.Max {
		return !d.MinIncl || !d.MaxIncl
	}
	return d.Min > d.Max
}

func (d StringRange) String() string {
	lo, hi := "-∞", "∞"
	if d.HasMin {
		lo = strconv.Quote(d.Min)
	}
	if d.HasMax {
		hi = strconv.Quote(d.Max)
	}
	return fmt.Sprintf("%s[%s in %s]", d.Collection, PathString(d.Path),
		interval(lo, hi, d.MinIncl && d.HasMin, d.MaxIncl && d.HasMax))
}

// Cost is a storage answer to an estimate request.
type Cost struct {
	// Applicable is false if storage cannot serve the descriptor.
	Applicable bool

	// Results is the estimated number of matching records.
	Results int64
}

// NotApplicable is the cost of a descriptor storage cannot serve.
var NotApplicable = Cost{}

// PathString renders a path as child steps ("author/name", "@id").
func PathString(path []string) string {
	return strings.Join(path, "/")
}

func interval(lo, hi string, loIncl, hiIncl bool) string {
	l, r := "(", ")"
	if loIncl {
		l = "["
	}
	if hiIncl {
		r = "]"
	}
	return l + lo + ", " + hi + r
}

func fmtNum(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "∞"
	case math.IsInf(f, -1):
		return "-∞"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
