package value

import (
	"math"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
)

// ArithOp is an arithmetic operator.
type ArithOp uint8

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
)

var arithNames = [...]string{"+", "-", "*", "div", "idiv", "mod"}

func (o ArithOp) String() string { return arithNames[o] }

// ParseArithOp parses an operator spelling.
func ParseArithOp(s string) (ArithOp, bool) {
	for i, n := range arithNames {
		if n == s {
			return ArithOp(i), true
		}
	}
	return 0, false
}

// ResultKind returns the static result kind of a op b for numeric kinds.
func (o ArithOp) ResultKind(a, b seqtype.Kind) seqtype.Kind {
	if o == OpIDiv {
		return seqtype.Integer
	}
	if a == seqtype.Untyped {
		a = seqtype.Double
	}
	if b == seqtype.Untyped {
		b = seqtype.Double
	}
	k := a.Union(b)
	if !k.IsNumeric() {
		return seqtype.Numeric
	}
	if o == OpDiv && k == seqtype.Integer {
		return seqtype.Decimal
	}
	return k
}

// Arith applies o to two atomized items. Untyped operands are cast to
// xs:double.
func Arith(o ArithOp, a, b Item) (Item, error) {
	var err error
	if a, err = numericOperand(a); err != nil {
		return nil, err
	}
	if b, err = numericOperand(b); err != nil {
		return nil, err
	}
	x, xInt := a.(Int)
	y, yInt := b.(Int)
	if xInt && yInt && o != OpDiv {
		return intArith(o, x, y)
	}
	_, aDbl := a.(Dbl)
	_, bDbl := b.(Dbl)
	if aDbl || bDbl {
		return dblArith(o, ToDouble(a), ToDouble(b))
	}
	return decArith(o, toDec(a), toDec(b))
}

func numericOperand(it Item) (Item, error) {
	switch it.(type) {
	case Int, Dbl, Dec:
		return it, nil
	case Untyped:
		return Cast(it, seqtype.Double)
	}
	return nil, qerr.WithValue(qerr.CodeType, qerr.Info{}, Literal(it),
		"arithmetic operand must be numeric, got %s", it.Kind())
}

func intArith(o ArithOp, x, y Int) (Item, error) {
	switch o {
	case OpAdd:
		r := x + y
		if (r > x) != (y > 0) {
			return nil, overflow()
		}
		return r, nil
	case OpSub:
		r := x - y
		if (r < x) != (y > 0) {
			return nil, overflow()
		}
		return r, nil
	case OpMul:
		if x == 0 || y == 0 {
			return Int(0), nil
		}
		r := x * y
		if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return nil, overflow()
		}
		return r, nil
	case OpIDiv:
		if y == 0 {
			return nil, divByZero()
		}
		if x == math.MinInt64 && y == -1 {
			return nil, overflow()
		}
		return x / y, nil
	case OpMod:
		if y == 0 {
			return nil, divByZero()
		}
		if y == -1 {
			return Int(0), nil
		}
		return x % y, nil
	}
	return decArith(o, decFromInt(x), decFromInt(y))
}

func dblArith(o ArithOp, x, y float64) (Item, error) {
	switch o {
	case OpAdd:
		return Dbl(x + y), nil
	case OpSub:
		return Dbl(x - y), nil
	case OpMul:
		return Dbl(x * y), nil
	case OpDiv:
		return Dbl(x / y), nil
	case OpMod:
		return Dbl(math.Mod(x, y)), nil
	}
	// idiv
	if y == 0 {
		return nil, divByZero()
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) {
		return nil, qerr.New(qerr.CodeOverflow, qerr.Info{}, "integer division of %s by %s",
			FormatDouble(x), FormatDouble(y))
	}
	q := math.Trunc(x / y)
	if q >= math.MaxInt64 || q < math.MinInt64 {
		return nil, overflow()
	}
	return Int(int64(q)), nil
}

func decArith(o ArithOp, x, y Dec) (Item, error) {
	a, b := x.Decimal(), y.Decimal()
	if (o == OpDiv || o == OpIDiv || o == OpMod) && b.IsZero() {
		return nil, divByZero()
	}
	r := new(apd.Decimal)
	var err error
	switch o {
	case OpAdd:
		_, err = decCtx.Add(r, a, b)
	case OpSub:
		_, err = decCtx.Sub(r, a, b)
	case OpMul:
		_, err = decCtx.Mul(r, a, b)
	case OpDiv:
		_, err = decCtx.Quo(r, a, b)
	case OpIDiv:
		_, err = decCtx.QuoInteger(r, a, b)
		if err == nil {
			n, ierr := r.Int64()
			if ierr != nil {
				return nil, overflow()
			}
			return Int(n), nil
		}
	case OpMod:
		_, err = decCtx.Rem(r, a, b)
	}
	if err != nil {
		return nil, qerr.New(qerr.CodeDecOverflow, qerr.Info{}, "decimal %s: %v", o, err)
	}
	return Dec{r}, nil
}

// Negate returns -it for a numeric item.
func Negate(it Item) (Item, error) {
	it, err := numericOperand(it)
	if err != nil {
		return nil, err
	}
	switch v := it.(type) {
	case Int:
		if v == math.MinInt64 {
			return nil, overflow()
		}
		return -v, nil
	case Dbl:
		return -v, nil
	}
	r := new(apd.Decimal)
	r.Neg(it.(Dec).Decimal())
	return Dec{r}, nil
}

func overflow() error {
	return qerr.New(qerr.CodeOverflow, qerr.Info{}, "integer overflow")
}

func divByZero() error {
	return qerr.New(qerr.CodeDivByZero, qerr.Info{}, "division by zero")
}
