package expr

import (
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Const is a materialized value.
type Const struct {
	base
	Val value.Seq
}

// NewConst returns a constant holding items.
func NewConst(info qerr.Info, items ...value.Item) *Const {
	return ConstOf(info, value.Items(items))
}

// ConstOf returns a constant holding v.
func ConstOf(info qerr.Info, v value.Seq) *Const {
	c := &Const{base: base{info: info}, Val: v}
	c.st = typeOfSeq(v)
	return c
}

// typeOfSeq returns the exact static type of a materialized value.
func typeOfSeq(v value.Seq) seqtype.SeqType {
	n := v.Len()
	if n == 0 {
		return seqtype.Empty
	}
	k := seqtype.None
	switch r := v.(type) {
	case value.IntRange:
		k = seqtype.Integer
	case value.Repeat:
		k = r.Item.Kind()
	default:
		for i := range n {
			k = k.Union(v.At(i).Kind())
		}
	}
	return seqtype.New(k, seqtype.Exactly(n))
}

func (c *Const) Compile(*CompileContext) (Expr, error) { return c, nil }
func (c *Const) Optimize(*CompileContext) (Expr, error) { return c, nil }
func (c *Const) Iter(*QueryContext) (Iter, error) { return IterSeq(c.Val), nil }
func (c *Const) Value(*QueryContext) (value.Seq, error) { return c.Val, nil }

func (c *Const) Item(*QueryContext) (value.Item, error) {
	switch c.Val.Len() {
	case 0:
		return nil, nil
	case 1:
		return c.Val.At(0), nil
	}
	return nil, tooMany(c)
}

func (c *Const) Copy(*CompileContext, VarMap) Expr {
	return ConstOf(c.info, c.Val)
}

func (c *Const) Equal(o Expr) bool {
	oc, ok := o.(*Const)
	return ok && value.SameSeq(c.Val, oc.Val)
}

func (c *Const) String() string {
	if r, ok := c.Val.(value.IntRange); ok && r.N > 1 {
		return value.Literal(value.Int(r.Start)) + " to " + value.Literal(value.Int(r.Start+r.N-1))
	}
	return value.SeqString(c.Val)
}

// constBool returns the value of a constant boolean.
func constBool(e Expr) (b, ok bool) {
	c, isConst := e.(*Const)
	if !isConst || c.Val.Len() != 1 {
		return false, false
	}
	v, isBool := c.Val.At(0).(value.Bln)
	return bool(v), isBool
}

// isEmpty reports whether e is the empty constant.
func isEmpty(e Expr) bool {
	c, ok := e.(*Const)
	return ok && c.Val.Len() == 0
}

// ContextValue is the context item, written ".".
type ContextValue struct {
	base
}

// NewContextValue returns a context item reference.
func NewContextValue(info qerr.Info) *ContextValue {
	return &ContextValue{base: base{info: info, st: seqtype.ItemOne}}
}

func (c *ContextValue) Compile(cc *CompileContext) (Expr, error) {
	t, ok := cc.FocusType()
	if !ok {
		return nil, qerr.New(qerr.CodeNoContext, c.info, "no context item for .")
	}
	c.st = t.ItemType()
	return c.Optimize(cc)
}

func (c *ContextValue) Optimize(*CompileContext) (Expr, error) { return c, nil }

func (c *ContextValue) Item(qc *QueryContext) (value.Item, error) {
	f := qc.Focus()
	if !f.Defined() {
		return nil, qerr.New(qerr.CodeNoContext, c.info, "context item is absent")
	}
	return f.Value, nil
}

func (c *ContextValue) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *ContextValue) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }
func (*ContextValue) flags() Flag { return FlagCtx }

func (c *ContextValue) count(v *Var) VarUsage {
	if v == nil {
		return VarOnce
	}
	return VarNever
}

func (c *ContextValue) inline(ic *InlineContext) (Expr, error) {
	if ic.Var != nil {
		return nil, nil
	}
	return ic.copyExpr(), nil
}

func (c *ContextValue) Copy(*CompileContext, VarMap) Expr {
	return &ContextValue{base: c.base}
}

func (c *ContextValue) Equal(o Expr) bool {
	_, ok := o.(*ContextValue)
	return ok
}

func (*ContextValue) String() string { return "." }

// List is a sequence constructor "(a, b, ...)".
type List struct {
	base
	Exprs []Expr
}

// NewList returns a sequence constructor.
func NewList(info qerr.Info, exprs ...Expr) *List {
	return &List{base: base{info: info}, Exprs: exprs}
}

func (l *List) slots(fn slotFunc) bool { return eachExpr(fn, slotUpd, l.Exprs) }

func (l *List) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, l) }

func (l *List) Optimize(cc *CompileContext) (Expr, error) {
	var flat []Expr
	changed := false
	for _, e := range l.Exprs {
		switch x := e.(type) {
		case *List:
			flat = append(flat, x.Exprs...)
			changed = true
			continue
		case *Const:
			if x.Val.Len() == 0 {
				changed = true
				continue
			}
			if n := len(flat); n > 0 {
				if prev, ok := flat[n-1].(*Const); ok {
					flat[n-1] = ConstOf(prev.info, value.Concat(prev.Val, x.Val))
					changed = true
					continue
				}
			}
		}
		flat = append(flat, e)
	}
	switch len(flat) {
	case 0:
		return cc.Replace(l, cc.Empty(l.info), "empty list"), nil
	case 1:
		return cc.Replace(l, flat[0], "singleton list"), nil
	}
	if changed {
		return cc.Replace(l, NewList(l.info, flat...).typed(), "flatten list"), nil
	}
	l.typed()
	return l, nil
}

func (l *List) typed() *List {
	st := l.Exprs[0].SeqType()
	for _, e := range l.Exprs[1:] {
		t := e.SeqType()
		st = seqtype.New(st.Kind.Union(t.Kind), st.Occ.Add(t.Occ))
	}
	l.st = st
	return l
}

func (l *List) Iter(qc *QueryContext) (Iter, error) {
	i := 0
	var cur Iter
	return IterFunc(func() (value.Item, error) {
		for i < len(l.Exprs) {
			if cur == nil {
				it, err := l.Exprs[i].Iter(qc)
				if err != nil {
					return nil, err
				}
				cur = it
			}
			v, err := cur.Next()
			if err != nil || v != nil {
				return v, err
			}
			cur = nil
			i++
		}
		return nil, nil
	}), nil
}

func (l *List) Value(qc *QueryContext) (value.Seq, error) {
	parts := make([]value.Seq, len(l.Exprs))
	for i, e := range l.Exprs {
		v, err := e.Value(qc)
		if err != nil {
			return nil, err
		}
		parts[i] = v
	}
	return value.Concat(parts...), nil
}

func (l *List) Item(qc *QueryContext) (value.Item, error) { return itemOf(l, qc) }

func (l *List) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewList(l.info, copyAll(cc, vm, l.Exprs)...)
	c.st = l.st
	return c
}

func (l *List) Equal(o Expr) bool {
	ol, ok := o.(*List)
	return ok && equalAll(l.Exprs, ol.Exprs)
}

func (l *List) String() string {
	parts := make([]string, len(l.Exprs))
	for i, e := range l.Exprs {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Range is the integer range "a to b".
type Range struct {
	base
	Min, Max Expr
}

// NewRange returns a range expression.
func NewRange(info qerr.Info, lo, hi Expr) *Range {
	return &Range{base: base{info: info}, Min: lo, Max: hi}
}

func (r *Range) slots(fn slotFunc) bool {
	return fn(&r.Min, slotPlain) && fn(&r.Max, slotPlain)
}

func (r *Range) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, r) }

func (r *Range) Optimize(cc *CompileContext) (Expr, error) {
	r.st = seqtype.IntStar
	if r.Min.SeqType().Zero() || r.Max.SeqType().Zero() {
		return cc.Replace(r, cc.Empty(r.info), "empty range"), nil
	}
	if allConst(r) {
		return cc.PreEval(r)
	}
	return r, nil
}

func (r *Range) Value(qc *QueryContext) (value.Seq, error) {
	lo, err := integerOperand(r.Min, qc)
	if err != nil || lo == nil {
		return value.Empty, err
	}
	hi, err := integerOperand(r.Max, qc)
	if err != nil || hi == nil {
		return value.Empty, err
	}
	a, b := int64(*lo), int64(*hi)
	if a > b {
		return value.Empty, nil
	}
	return value.IntRange{Start: a, N: b - a + 1}, nil
}

func (r *Range) Iter(qc *QueryContext) (Iter, error) {
	v, err := r.Value(qc)
	if err != nil {
		return nil, err
	}
	return checkedIter{qc: qc, it: IterSeq(v)}, nil
}
func (r *Range) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(r, qc) }

func (r *Range) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewRange(r.info, r.Min.Copy(cc, vm), r.Max.Copy(cc, vm))
	c.st = r.st
	return c
}

func (r *Range) Equal(o Expr) bool {
	or, ok := o.(*Range)
	return ok && r.Min.Equal(or.Min) && r.Max.Equal(or.Max)
}

func (r *Range) String() string {
	return "(" + r.Min.String() + " to " + r.Max.String() + ")"
}

// integerOperand evaluates e as an optional xs:integer.
func integerOperand(e Expr, qc *QueryContext) (*value.Int, error) {
	v, err := atomized(e, qc)
	if err != nil || v == nil {
		return nil, err
	}
	switch x := v.(type) {
	case value.Int:
		return &x, nil
	case value.Untyped:
		c, err := value.Cast(x, seqtype.Integer)
		if err != nil {
			return nil, qerr.Locate(err, e.Info())
		}
		n := c.(value.Int)
		return &n, nil
	}
	return nil, qerr.WithValue(qerr.CodeType, e.Info(), v, "xs:integer expected, %s found", v.Kind())
}
