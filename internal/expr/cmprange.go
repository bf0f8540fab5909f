package expr

import (
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Bounds is an interval of atomic values. A nil bound is unbounded.
type Bounds struct {
	Min, Max         value.Item
	MinIncl, MaxIncl bool
}

// boundCmp orders two bound values; ok is false for incomparable values.
func boundCmp(a, b value.Item) (int, bool) {
	c, err := value.CompareGeneral(a, b)
	if err != nil || c == value.Unordered {
		return 0, false
	}
	return c, true
}

// contains reports whether it lies in b. Untyped values are compared the
// way a general comparison does.
func (b Bounds) contains(it value.Item) (bool, error) {
	if b.unbounded() {
		// NaN lies in no range.
		c, err := value.CompareGeneral(it, it)
		return err == nil && c != value.Unordered, err
	}
	if b.Min != nil {
		c, err := value.CompareGeneral(it, b.Min)
		if err != nil || c == value.Unordered || c < 0 || (c == 0 && !b.MinIncl) {
			return false, err
		}
	}
	if b.Max != nil {
		c, err := value.CompareGeneral(it, b.Max)
		if err != nil || c == value.Unordered || c > 0 || (c == 0 && !b.MaxIncl) {
			return false, err
		}
	}
	return true, nil
}

// unbounded reports whether b has neither end.
func (b Bounds) unbounded() bool { return b.Min == nil && b.Max == nil }

// empty reports whether no value lies in b.
func (b Bounds) empty() bool {
	if b.Min == nil || b.Max == nil {
		return false
	}
	c, ok := boundCmp(b.Min, b.Max)
	return ok && (c > 0 || (c == 0 && !(b.MinIncl && b.MaxIncl)))
}

// point returns the single value of a closed, degenerate interval.
func (b Bounds) point() (value.Item, bool) {
	if b.Min == nil || b.Max == nil || !b.MinIncl || !b.MaxIncl {
		return nil, false
	}
	c, ok := boundCmp(b.Min, b.Max)
	return b.Min, ok && c == 0
}

// intersect returns the values in both b and o.
func (b Bounds) intersect(o Bounds) (Bounds, bool) {
	r := b
	switch {
	case o.Min == nil:
	case b.Min == nil:
		r.Min, r.MinIncl = o.Min, o.MinIncl
	default:
		c, ok := boundCmp(b.Min, o.Min)
		if !ok {
			return Bounds{}, false
		}
		if c < 0 || (c == 0 && !o.MinIncl) {
			r.Min, r.MinIncl = o.Min, o.MinIncl
		}
	}
	switch {
	case o.Max == nil:
	case b.Max == nil:
		r.Max, r.MaxIncl = o.Max, o.MaxIncl
	default:
		c, ok := boundCmp(b.Max, o.Max)
		if !ok {
			return Bounds{}, false
		}
		if c > 0 || (c == 0 && !o.MaxIncl) {
			r.Max, r.MaxIncl = o.Max, o.MaxIncl
		}
	}
	return r, true
}

// union returns the values in b or o if the intervals overlap or touch.
func (b Bounds) union(o Bounds) (Bounds, bool) {
	if !b.reaches(o) || !o.reaches(b) {
		return Bounds{}, false
	}
	r := b
	if b.Min != nil {
		if o.Min == nil {
			r.Min = nil
		} else if c, _ := boundCmp(b.Min, o.Min); c > 0 || (c == 0 && o.MinIncl) {
			r.Min, r.MinIncl = o.Min, o.MinIncl
		}
	}
	if b.Max != nil {
		if o.Max == nil {
			r.Max = nil
		} else if c, _ := boundCmp(b.Max, o.Max); c < 0 || (c == 0 && o.MaxIncl) {
			r.Max, r.MaxIncl = o.Max, o.MaxIncl
		}
	}
	return r, true
}

// reaches reports whether the upper end of b is not below the lower end of
// o, leaving no gap between them.
func (b Bounds) reaches(o Bounds) bool {
	if b.Max == nil || o.Min == nil {
		return true
	}
	c, ok := boundCmp(b.Max, o.Min)
	return ok && (c > 0 || (c == 0 && (b.MaxIncl || o.MinIncl)))
}

func (b Bounds) equal(o Bounds) bool {
	same := func(x, y value.Item) bool {
		return (x == nil && y == nil) || (x != nil && y != nil && value.Identical(x, y))
	}
	return same(b.Min, o.Min) && same(b.Max, o.Max) && b.MinIncl == o.MinIncl && b.MaxIncl == o.MaxIncl
}

func (b Bounds) String() string {
	lo, hi, l, r := "-inf", "inf", "(", ")"
	if b.Min != nil {
		lo = value.Literal(b.Min)
		if b.MinIncl {
			l = "["
		}
	}
	if b.Max != nil {
		hi = value.Literal(b.Max)
		if b.MaxIncl {
			r = "]"
		}
	}
	return l + lo + ", " + hi + r
}

// rangeCmp tests whether some atomized item of X lies in Bounds.
type rangeCmp struct {
	base
	X      Expr
	Bounds Bounds
}

func (c *rangeCmp) slots(fn slotFunc) bool { return fn(&c.X, slotPlain) }

func (c *rangeCmp) optimize(cc *CompileContext, e Expr) (Expr, error) {
	c.st = seqtype.BooleanOne
	if c.Bounds.empty() || (c.X.SeqType().Zero() && pure(c.X)) {
		return cc.Replace(e, cc.Bool(false, c.info), "empty range"), nil
	}
	if p, ok := c.Bounds.point(); ok {
		r, err := NewCmpG(c.info, value.OpEq, c.X, NewConst(c.info, p)).Optimize(cc)
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "point range"), nil
	}
	if allConst(e) {
		return cc.PreEval(e)
	}
	return e, nil
}

func (c *rangeCmp) Item(qc *QueryContext) (value.Item, error) {
	it, err := c.X.Iter(qc)
	if err != nil {
		return nil, err
	}
	for {
		v, err := it.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return value.Bln(false), nil
		}
		a, err := value.Atomize(v)
		if err != nil {
			return nil, qerr.Locate(err, c.X.Info())
		}
		ok, err := c.Bounds.contains(a)
		if err != nil {
			return nil, qerr.Locate(err, c.info)
		}
		if ok {
			return value.Bln(true), nil
		}
	}
}

func (c *rangeCmp) String() string {
	return fmt.Sprintf("(%s in %s)", c.X, c.Bounds)
}

// CmpR tests a numeric range, as in "X >= 2".
type CmpR struct {
	rangeCmp
}

// NewCmpR returns a numeric range test.
func NewCmpR(info qerr.Info, x Expr, b Bounds) *CmpR {
	return &CmpR{rangeCmp{base: base{info: info, st: seqtype.BooleanOne}, X: x, Bounds: b}}
}

func (c *CmpR) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, c) }
func (c *CmpR) Optimize(cc *CompileContext) (Expr, error) { return c.optimize(cc, c) }
func (c *CmpR) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *CmpR) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }

func (c *CmpR) Copy(cc *CompileContext, vm VarMap) Expr {
	return NewCmpR(c.info, c.X.Copy(cc, vm), c.Bounds)
}

func (c *CmpR) Equal(o Expr) bool {
	oc, ok := o.(*CmpR)
	return ok && c.X.Equal(oc.X) && c.Bounds.equal(oc.Bounds)
}

// CmpSR tests a lexicographic string range, as in "X < 'm'".
type CmpSR struct {
	rangeCmp
}

// NewCmpSR returns a string range test.
func NewCmpSR(info qerr.Info, x Expr, b Bounds) *CmpSR {
	return &CmpSR{rangeCmp{base: base{info: info, st: seqtype.BooleanOne}, X: x, Bounds: b}}
}

func (c *CmpSR) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, c) }
func (c *CmpSR) Optimize(cc *CompileContext) (Expr, error) { return c.optimize(cc, c) }
func (c *CmpSR) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *CmpSR) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }

func (c *CmpSR) Copy(cc *CompileContext, vm VarMap) Expr {
	return NewCmpSR(c.info, c.X.Copy(cc, vm), c.Bounds)
}

func (c *CmpSR) Equal(o Expr) bool {
	oc, ok := o.(*CmpSR)
	return ok && c.X.Equal(oc.X) && c.Bounds.equal(oc.Bounds)
}
