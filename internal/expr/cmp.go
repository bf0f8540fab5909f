package expr

import (
	"fmt"
	"math"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// cmp holds the operands shared by general and value comparisons.
type cmp struct {
	base
	Op   value.CmpOp
	L, R Expr
}

func (c *cmp) slots(fn slotFunc) bool {
	return fn(&c.L, slotPlain) && fn(&c.R, slotPlain)
}

func (c *cmp) equal(o *cmp) bool {
	return c.Op == o.Op && c.L.Equal(o.L) && c.R.Equal(o.R)
}

// CmpG is a general (existential) comparison such as "a = b".
type CmpG struct {
	cmp
}

// NewCmpG returns l op r.
func NewCmpG(info qerr.Info, op value.CmpOp, l, r Expr) *CmpG {
	return &CmpG{cmp{base: base{info: info, st: seqtype.BooleanOne}, Op: op, L: l, R: r}}
}

// CmpV is a value comparison such as "a eq b".
type CmpV struct {
	cmp
}

// NewCmpV returns l op r.
func NewCmpV(info qerr.Info, op value.CmpOp, l, r Expr) *CmpV {
	return &CmpV{cmp{base: base{info: info, st: seqtype.BooleanOne}, Op: op, L: l, R: r}}
}

func (c *CmpG) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, c) }
func (c *CmpV) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, c) }

func (c *CmpG) Optimize(cc *CompileContext) (Expr, error) {
	c.st = seqtype.BooleanOne
	return optimizeCmp(cc, c, &c.cmp, true)
}

func (c *CmpV) Optimize(cc *CompileContext) (Expr, error) {
	c.st = seqtype.Opt(seqtype.Boolean)
	if c.L.SeqType().Occ.Min > 0 && c.R.SeqType().Occ.Min > 0 {
		c.st = seqtype.BooleanOne
	}
	return optimizeCmp(cc, c, &c.cmp, false)
}

// optimizeCmp applies the rewrites shared by both comparison kinds.
func optimizeCmp(cc *CompileContext, e Expr, c *cmp, general bool) (Expr, error) {
	lt, rt := c.L.SeqType(), c.R.SeqType()
	if (lt.Zero() && pure(c.R)) || (rt.Zero() && pure(c.L)) {
		if general {
			return cc.Replace(e, cc.Bool(false, c.info), "empty operand"), nil
		}
		return cc.Replace(e, cc.Empty(c.info), "empty operand"), nil
	}
	if allConst(e) {
		return cc.PreEval(e)
	}
	if _, ok := c.L.(*Const); ok {
		var swapped Expr
		if general {
			swapped = NewCmpG(c.info, c.Op.Swap(), c.R, c.L)
		} else {
			swapped = NewCmpV(c.info, c.Op.Swap(), c.R, c.L)
		}
		r, err := swapped.Optimize(cc)
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "swap operands"), nil
	}
	if c.L.Equal(c.R) && reflexiveOperand(cc, c.L) {
		switch c.Op {
		case value.OpEq, value.OpLe, value.OpGe:
			return cc.Replace(e, cc.Bool(true, c.info), "identical operands"), nil
		default:
			return cc.Replace(e, cc.Bool(false, c.info), "identical operands"), nil
		}
	}
	if r, ok, err := cmpPosition(cc, c); ok || err != nil {
		return replaceCmp(cc, e, r, err, "positional comparison")
	}
	if r, ok, err := cmpCount(cc, c); ok || err != nil {
		return replaceCmp(cc, e, r, err, "count comparison")
	}
	if r, ok, err := cmpStringLength(cc, c); ok || err != nil {
		return replaceCmp(cc, e, r, err, "string-length comparison")
	}
	if general || (lt.One() && lt.Kind.Atomic() && lt.Kind != seqtype.Untyped) {
		if r, ok := cmpRange(c); ok {
			r, err := r.Optimize(cc)
			return replaceCmp(cc, e, r, err, "range comparison")
		}
	}
	return e, nil
}

func replaceCmp(cc *CompileContext, e, r Expr, err error, rule string) (Expr, error) {
	if err != nil {
		return nil, err
	}
	return cc.Replace(e, r, rule), nil
}

// reflexiveOperand reports whether e is a single, deterministic value that
// equals itself.
func reflexiveOperand(cc *CompileContext, e Expr) bool {
	t := e.SeqType()
	if !t.One() || !t.Kind.Reflexive() || !pure(e) {
		return false
	}
	if Has(e, focusFlags) {
		_, ok := cc.FocusType()
		return ok
	}
	return true
}

// constItem returns the single item of a constant.
func constItem(e Expr) (value.Item, bool) {
	c, ok := e.(*Const)
	if !ok || c.Val.Len() != 1 {
		return nil, false
	}
	return c.Val.At(0), true
}

func cmpPosition(cc *CompileContext, c *cmp) (Expr, bool, error) {
	if _, ok := isFn(c.L, "position"); !ok {
		return nil, false, nil
	}
	it, ok := constItem(c.R)
	if !ok || !it.Kind().IsNumeric() {
		return nil, false, nil
	}
	p, res := posCompare(c.Op, value.ToDouble(it))
	switch res {
	case posTrue:
		return cc.Bool(true, c.info), true, nil
	case posFalse:
		return cc.Bool(false, c.info), true, nil
	case posRange:
		return NewCmpPos(c.info, p), true, nil
	}
	return nil, false, nil
}

func cmpCount(cc *CompileContext, c *cmp) (Expr, bool, error) {
	f, ok := isFn(c.L, "count")
	if !ok {
		return nil, false, nil
	}
	it, ok := constItem(c.R)
	if !ok {
		return nil, false, nil
	}
	n, ok := it.(value.Int)
	if !ok {
		return nil, false, nil
	}
	name := ""
	switch {
	case n == 0 && (c.Op == value.OpGt || c.Op == value.OpNe),
		n == 1 && c.Op == value.OpGe:
		name = "exists"
	case n == 0 && (c.Op == value.OpEq || c.Op == value.OpLe),
		n == 1 && c.Op == value.OpLt:
		name = "empty"
	default:
		return nil, false, nil
	}
	r, err := cc.Function(name, c.info, f.Args[0])
	return r, true, err
}

func cmpStringLength(cc *CompileContext, c *cmp) (Expr, bool, error) {
	f, ok := isFn(c.L, "string-length")
	if !ok {
		return nil, false, nil
	}
	it, ok := constItem(c.R)
	if n, isInt := it.(value.Int); !ok || !isInt || n != 0 {
		return nil, false, nil
	}
	outer := ""
	switch c.Op {
	case value.OpGt, value.OpNe:
		outer = "boolean"
	case value.OpEq:
		outer = "not"
	default:
		return nil, false, nil
	}
	s, err := cc.Function("string", c.info, f.Args[0])
	if err != nil {
		return nil, true, err
	}
	r, err := cc.Function(outer, c.info, s)
	return r, true, err
}

// cmpRange turns "X op literal" with an ordering operator into a range
// test.
func cmpRange(c *cmp) (Expr, bool) {
	it, ok := constItem(c.R)
	if !ok {
		return nil, false
	}
	var b Bounds
	switch c.Op {
	case value.OpLt:
		b = Bounds{Max: it}
	case value.OpLe:
		b = Bounds{Max: it, MaxIncl: true}
	case value.OpGt:
		b = Bounds{Min: it}
	case value.OpGe:
		b = Bounds{Min: it, MinIncl: true}
	default:
		return nil, false
	}
	k := c.L.SeqType().Kind
	switch {
	case it.Kind().IsNumeric():
		if math.IsNaN(value.ToDouble(it)) {
			return nil, false
		}
		return NewCmpR(c.info, c.L, b), true
	case it.Kind() == seqtype.String && (k == seqtype.String || k == seqtype.Untyped || k.IsNode()):
		return NewCmpSR(c.info, c.L, b), true
	}
	return nil, false
}

func (c *CmpG) Item(qc *QueryContext) (value.Item, error) {
	r, err := atomizedSeq(c.R, qc)
	if err != nil {
		return nil, err
	}
	if r.Len() == 0 {
		return value.Bln(false), nil
	}
	it, err := c.L.Iter(qc)
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
			return nil, qerr.Locate(err, c.L.Info())
		}
		ok, err := value.GeneralCompare(c.Op, value.Items{a}, r)
		if err != nil {
			return nil, qerr.Locate(err, c.info)
		}
		if ok {
			return value.Bln(true), nil
		}
	}
}

func (c *CmpV) Item(qc *QueryContext) (value.Item, error) {
	a, err := atomized(c.L, qc)
	if err != nil || a == nil {
		return nil, err
	}
	b, err := atomized(c.R, qc)
	if err != nil || b == nil {
		return nil, err
	}
	r, err := value.CompareValue(a, b)
	if err != nil {
		return nil, qerr.Locate(err, c.info)
	}
	return value.Bln(c.Op.Holds(r)), nil
}

func (c *CmpG) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *CmpG) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }
func (c *CmpV) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *CmpV) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }

func (c *CmpG) Copy(cc *CompileContext, vm VarMap) Expr {
	n := NewCmpG(c.info, c.Op, c.L.Copy(cc, vm), c.R.Copy(cc, vm))
	n.st = c.st
	return n
}

func (c *CmpV) Copy(cc *CompileContext, vm VarMap) Expr {
	n := NewCmpV(c.info, c.Op, c.L.Copy(cc, vm), c.R.Copy(cc, vm))
	n.st = c.st
	return n
}

func (c *CmpG) Equal(o Expr) bool {
	oc, ok := o.(*CmpG)
	return ok && c.equal(&oc.cmp)
}

func (c *CmpV) Equal(o Expr) bool {
	oc, ok := o.(*CmpV)
	return ok && c.equal(&oc.cmp)
}

func (c *CmpG) String() string { return fmt.Sprintf("(%s %s %s)", c.L, c.Op, c.R) }
func (c *CmpV) String() string { return fmt.Sprintf("(%s %s %s)", c.L, c.Op.ValueName(), c.R) }

// asCmp returns the shared fields of a comparison and whether it is a
// general one.
func asCmp(e Expr) (c *cmp, general, ok bool) {
	switch x := e.(type) {
	case *CmpG:
		return &x.cmp, true, true
	case *CmpV:
		return &x.cmp, false, true
	}
	return nil, false, false
}
