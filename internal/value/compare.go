package value

import (
	"math"
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
)

// CmpOp is a comparison operator.
type CmpOp uint8

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var (
	generalNames = [...]string{"=", "!=", "<", "<=", ">", ">="}
	valueNames   = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}
)

// String returns the general comparison spelling.
func (o CmpOp) String() string { return generalNames[o] }

// ValueName returns the value comparison spelling.
func (o CmpOp) ValueName() string { return valueNames[o] }

// ParseCmpOp parses either spelling.
func ParseCmpOp(s string) (CmpOp, bool) {
	for i := range generalNames {
		if generalNames[i] == s || valueNames[i] == s {
			return CmpOp(i), true
		}
	}
	return 0, false
}

// Swap returns the operator that holds for (b, a) whenever o holds for (a, b).
func (o CmpOp) Swap() CmpOp {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}

// Invert returns the negated operator. The negation is exact only for
// single, ordered (non-NaN) operands.
func (o CmpOp) Invert() CmpOp {
	switch o {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	}
	return OpLt
}

// Unordered is returned by Compare when one operand is NaN.
const Unordered = 2

// Holds reports whether o accepts the comparison result c.
func (o CmpOp) Holds(c int) bool {
	if c == Unordered {
		return o == OpNe
	}
	switch o {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	}
	return c >= 0
}

// Atomize returns the typed value of it. Nodes atomize to untyped atomics;
// function items cannot be atomized.
func Atomize(it Item) (Item, error) {
	switch v := it.(type) {
	case *Node:
		return Untyped(v.StringValue()), nil
	case *Func:
		return nil, qerr.WithValue(qerr.CodeFuncAtomize, qerr.Info{}, v.Name, "function items cannot be atomized")
	}
	return it, nil
}

// CompareValue compares two atomized items as a value comparison does:
// untyped operands are treated as strings.
func CompareValue(a, b Item) (int, error) {
	if _, ok := a.(Untyped); ok {
		a = Str(a.(Untyped))
	}
	if _, ok := b.(Untyped); ok {
		b = Str(b.(Untyped))
	}
	return compareAtomic(a, b)
}

// CompareGeneral compares two atomized items as a general comparison does:
// an untyped operand is cast to the type of the other operand (double for
// numerics, string for strings and untyped).
func CompareGeneral(a, b Item) (int, error) {
	ua, aUntyped := a.(Untyped)
	ub, bUntyped := b.(Untyped)
	switch {
	case aUntyped && bUntyped:
		return strings.Compare(string(ua), string(ub)), nil
	case aUntyped:
		ca, err := castUntypedFor(ua, b)
		if err != nil {
			return 0, err
		}
		a = ca
	case bUntyped:
		cb, err := castUntypedFor(ub, a)
		if err != nil {
			return 0, err
		}
		b = cb
	}
	return compareAtomic(a, b)
}

func castUntypedFor(u Untyped, other Item) (Item, error) {
	switch other.Kind() {
	case seqtype.Integer, seqtype.Decimal, seqtype.Double:
		return Cast(u, seqtype.Double)
	case seqtype.Boolean:
		return Cast(u, seqtype.Boolean)
	}
	return Str(u), nil
}

func compareAtomic(a, b Item) (int, error) {
	if a.Kind().IsNumeric() && b.Kind().IsNumeric() {
		return compareNumeric(a, b), nil
	}
	switch x := a.(type) {
	case Str:
		if y, ok := b.(Str); ok {
			return strings.Compare(string(x), string(y)), nil
		}
	case Bln:
		if y, ok := b.(Bln); ok {
			return boolCmp(bool(x), bool(y)), nil
		}
	}
	return 0, qerr.WithValue(qerr.CodeType, qerr.Info{}, Literal(b),
		"cannot compare %s with %s", a.Kind(), b.Kind())
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// compareNumeric compares with promotion integer → decimal → double.
func compareNumeric(a, b Item) int {
	if x, ok := a.(Int); ok {
		if y, ok := b.(Int); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	_, aDbl := a.(Dbl)
	_, bDbl := b.(Dbl)
	if !aDbl && !bDbl {
		return toDec(a).Decimal().Cmp(toDec(b).Decimal())
	}
	x, y := ToDouble(a), ToDouble(b)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return Unordered
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toDec(it Item) Dec {
	switch v := it.(type) {
	case Int:
		return decFromInt(v)
	case Dec:
		return v
	}
	return Dec{}
}

// ToDouble converts a numeric item to float64. Non-numeric items yield NaN.
func ToDouble(it Item) float64 {
	switch v := it.(type) {
	case Int:
		return float64(v)
	case Dbl:
		return float64(v)
	case Dec:
		return v.Float()
	}
	return math.NaN()
}

// GeneralCompare evaluates the existential general comparison a op b over
// two atomized sequences.
func GeneralCompare(op CmpOp, a, b Seq) (bool, error) {
	for i := range a.Len() {
		for j := range b.Len() {
			c, err := CompareGeneral(a.At(i), b.At(j))
			if err != nil {
				return false, err
			}
			if op.Holds(c) {
				return true, nil
			}
		}
	}
	return false, nil
}

// EBV computes the effective boolean value of a sequence given its first
// item (nil if empty) and whether a second item exists.
func EBV(first Item, more bool) (bool, error) {
	if first == nil {
		return false, nil
	}
	if _, ok := first.(*Node); ok {
		return true, nil
	}
	if more {
		return false, qerr.New(qerr.CodeEBV, qerr.Info{},
			"effective boolean value not defined for a sequence of two or more atomic items")
	}
	switch v := first.(type) {
	case Bln:
		return bool(v), nil
	case Str:
		return v != "", nil
	case Untyped:
		return v != "", nil
	case Int:
		return v != 0, nil
	case Dbl:
		f := float64(v)
		return f != 0 && !math.IsNaN(f), nil
	case Dec:
		return !v.Decimal().IsZero(), nil
	}
	return false, qerr.WithValue(qerr.CodeEBV, qerr.Info{}, first.Kind(),
		"effective boolean value not defined for %s", first.Kind())
}

// SeqEBV is EBV over a materialized sequence.
func SeqEBV(s Seq) (bool, error) {
	if s.Len() == 0 {
		return false, nil
	}
	return EBV(s.At(0), s.Len() > 1)
}
