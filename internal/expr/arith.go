package expr

import (
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Arith is a binary arithmetic expression.
type Arith struct {
	base
	Op   value.ArithOp
	L, R Expr
}

// NewArith returns l op r.
func NewArith(info qerr.Info, op value.ArithOp, l, r Expr) *Arith {
	return &Arith{base: base{info: info}, Op: op, L: l, R: r}
}

func (a *Arith) slots(fn slotFunc) bool {
	return fn(&a.L, slotPlain) && fn(&a.R, slotPlain)
}

func (a *Arith) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, a) }

func (a *Arith) Optimize(cc *CompileContext) (Expr, error) {
	lt, rt := a.L.SeqType(), a.R.SeqType()
	if (lt.Zero() && pure(a.R)) || (rt.Zero() && pure(a.L)) {
		return cc.Replace(a, cc.Empty(a.info), "empty operand"), nil
	}
	occ := seqtype.ZeroOrOne
	if lt.One() && rt.One() {
		occ = seqtype.ExactlyOne
	}
	k := seqtype.AnyAtomic
	if atomicKind(lt.Kind) && atomicKind(rt.Kind) {
		k = a.Op.ResultKind(lt.Kind, rt.Kind)
	}
	a.st = seqtype.New(k, occ)
	if allConst(a) {
		return cc.PreEval(a)
	}
	return a, nil
}

// atomicKind reports whether items of kind k atomize to themselves or to
// untyped values.
func atomicKind(k seqtype.Kind) bool {
	return k.Atomic() || k.IsNode()
}

func (a *Arith) Item(qc *QueryContext) (value.Item, error) {
	x, err := atomized(a.L, qc)
	if err != nil || x == nil {
		return nil, err
	}
	y, err := atomized(a.R, qc)
	if err != nil || y == nil {
		return nil, err
	}
	r, err := value.Arith(a.Op, x, y)
	return r, qerr.Locate(err, a.info)
}

func (a *Arith) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(a, qc) }
func (a *Arith) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(a, qc) }

func (a *Arith) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewArith(a.info, a.Op, a.L.Copy(cc, vm), a.R.Copy(cc, vm))
	c.st = a.st
	return c
}

func (a *Arith) Equal(o Expr) bool {
	oa, ok := o.(*Arith)
	return ok && a.Op == oa.Op && a.L.Equal(oa.L) && a.R.Equal(oa.R)
}

func (a *Arith) String() string {
	return fmt.Sprintf("(%s %s %s)", a.L, a.Op, a.R)
}

// Unary is arithmetic negation "-E".
type Unary struct {
	base
	E Expr
}

// NewUnary returns -e.
func NewUnary(info qerr.Info, e Expr) *Unary {
	return &Unary{base: base{info: info}, E: e}
}

func (u *Unary) slots(fn slotFunc) bool { return fn(&u.E, slotPlain) }

func (u *Unary) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, u) }

func (u *Unary) Optimize(cc *CompileContext) (Expr, error) {
	t := u.E.SeqType()
	if t.Zero() {
		return cc.Replace(u, cc.Empty(u.info), "empty operand"), nil
	}
	k := seqtype.Numeric
	if t.Kind.IsNumeric() {
		k = t.Kind
	}
	u.st = seqtype.New(k, seqtype.Occ{Min: min(t.Occ.Min, 1), Max: 1})
	if inner, ok := u.E.(*Unary); ok && t.Kind.IsNumeric() {
		return cc.Replace(u, inner.E, "double negation"), nil
	}
	if allConst(u) {
		return cc.PreEval(u)
	}
	return u, nil
}

func (u *Unary) Item(qc *QueryContext) (value.Item, error) {
	x, err := atomized(u.E, qc)
	if err != nil || x == nil {
		return nil, err
	}
	r, err := value.Negate(x)
	return r, qerr.Locate(err, u.info)
}

func (u *Unary) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(u, qc) }
func (u *Unary) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(u, qc) }

func (u *Unary) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewUnary(u.info, u.E.Copy(cc, vm))
	c.st = u.st
	return c
}

func (u *Unary) Equal(o Expr) bool {
	ou, ok := o.(*Unary)
	return ok && u.E.Equal(ou.E)
}

func (u *Unary) String() string { return "-" + u.E.String() }
