package expr

import (
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// logic holds the operands of And and Or.
type logic struct {
	base
	Exprs []Expr
}

func (l *logic) slots(fn slotFunc) bool { return eachExpr(fn, slotPlain, l.Exprs) }

// And is a conjunction of effective boolean values.
type And struct {
	logic
}

// NewAnd returns a conjunction.
func NewAnd(info qerr.Info, exprs ...Expr) *And {
	return &And{logic{base: base{info: info, st: seqtype.BooleanOne}, Exprs: exprs}}
}

// Or is a disjunction of effective boolean values.
type Or struct {
	logic
}

// NewOr returns a disjunction.
func NewOr(info qerr.Info, exprs ...Expr) *Or {
	return &Or{logic{base: base{info: info, st: seqtype.BooleanOne}, Exprs: exprs}}
}

func (a *And) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, a) }
func (o *Or) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, o) }
func (a *And) Optimize(cc *CompileContext) (Expr, error) { return optimizeLogic(cc, a, &a.logic, true) }
func (o *Or) Optimize(cc *CompileContext) (Expr, error) { return optimizeLogic(cc, o, &o.logic, false) }

// newLogic builds an And (and == true) or an Or.
func newLogic(and bool, info qerr.Info, exprs []Expr) Expr {
	if and {
		return NewAnd(info, exprs...)
	}
	return NewOr(info, exprs...)
}

// operands returns the operands of e if it is the given kind of junction.
func operands(e Expr, and bool) ([]Expr, bool) {
	switch x := e.(type) {
	case *And:
		return x.Exprs, and
	case *Or:
		return x.Exprs, !and
	}
	return nil, false
}

func optimizeLogic(cc *CompileContext, e Expr, l *logic, and bool) (Expr, error) {
	l.st = seqtype.BooleanOne
	name := "or"
	if and {
		name = "and"
	}
	ops, changed := flattenLogic(l.Exprs, and)
	for i, op := range ops {
		r, err := simplifyEBV(cc, op)
		if err != nil {
			return nil, err
		}
		ops[i] = r
	}
	// and: true operands vanish and a false one decides; or: the dual.
	kept := ops[:0:0]
	for _, op := range ops {
		if b, ok := constBool(op); ok {
			if b != and {
				return cc.Replace(e, cc.Bool(!and, l.info), "constant "+name+" operand"), nil
			}
			changed = true
			continue
		}
		kept = append(kept, op)
	}
	ops = kept
	ops, dup := dedupe(ops)
	changed = changed || dup
	if contradicts(ops, and) {
		return cc.Replace(e, cc.Bool(!and, l.info), "complementary "+name+" operands"), nil
	}
	ops, fused, err := fuseRanges(cc, ops, and)
	if err != nil {
		return nil, err
	}
	changed = changed || fused
	if r, ok, err := distribute(cc, ops, and, l.info); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "distribute "+name), nil
	}
	switch len(ops) {
	case 0:
		return cc.Replace(e, cc.Bool(and, l.info), "empty "+name), nil
	case 1:
		r, err := asBoolean(cc, ops[0])
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "single "+name+" operand"), nil
	}
	if !changed {
		l.Exprs = ops
		return e, nil
	}
	r, err := newLogic(and, l.info, ops).Optimize(cc)
	if err != nil {
		return nil, err
	}
	return cc.Replace(e, r, "simplify "+name), nil
}

func flattenLogic(ops []Expr, and bool) ([]Expr, bool) {
	out := make([]Expr, 0, len(ops))
	changed := false
	for _, op := range ops {
		if inner, ok := operands(op, and); ok {
			out = append(out, inner...)
			changed = true
			continue
		}
		out = append(out, op)
	}
	return out, changed
}

// dedupe removes repeated deterministic operands.
func dedupe(ops []Expr) ([]Expr, bool) {
	out := ops[:0:0]
	removed := false
outer:
	for _, op := range ops {
		if pure(op) {
			for _, prev := range out {
				if prev.Equal(op) {
					removed = true
					continue outer
				}
			}
		}
		out = append(out, op)
	}
	return out, removed
}

// asBoolean returns e as a boolean-typed expression.
func asBoolean(cc *CompileContext, e Expr) (Expr, error) {
	if t := e.SeqType(); t.One() && t.Kind == seqtype.Boolean {
		return e, nil
	}
	return cc.Function("boolean", e.Info(), e)
}

// simplifyEBV rewrites e for use as an effective boolean value.
func simplifyEBV(cc *CompileContext, e Expr) (Expr, error) {
	if f, ok := isFn(e, "boolean"); ok {
		return cc.Replace(e, f.Args[0], "effective boolean value"), nil
	}
	t := e.SeqType()
	if t.One() && t.Kind == seqtype.Boolean {
		return e, nil
	}
	if c, ok := e.(*Const); ok {
		b, err := value.SeqEBV(c.Val)
		if err != nil {
			return e, nil
		}
		return cc.Replace(e, cc.Bool(b, c.info), "effective boolean value"), nil
	}
	if t.Kind.IsNode() && !t.IsNever() {
		r, err := cc.Function("exists", e.Info(), e)
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "effective boolean value"), nil
	}
	return e, nil
}

// contradicts reports whether two operands are complements: for and they
// cannot both hold, for or one of them always holds.
func contradicts(ops []Expr, and bool) bool {
	for i, a := range ops {
		for _, b := range ops[i+1:] {
			if complementary(a, b, and) || complementary(b, a, and) {
				return true
			}
		}
	}
	return false
}

func complementary(a, b Expr, and bool) bool {
	if !pure(a) || !pure(b) {
		return false
	}
	if n, ok := isFn(b, "not"); ok && n.Args[0].Equal(a) {
		return true
	}
	if e, ok := isFn(a, "empty"); ok {
		if x, ok := isFn(b, "exists"); ok && x.Args[0].Equal(e.Args[0]) {
			return true
		}
	}
	ca, ga, ok := asCmp(a)
	cb, gb, ok2 := asCmp(b)
	if !ok || !ok2 || ga != gb || cb.Op != ca.Op.Invert() || !ca.L.Equal(cb.L) || !ca.R.Equal(cb.R) {
		return false
	}
	for _, x := range []Expr{ca.L, ca.R} {
		t := x.SeqType()
		if !t.Kind.Reflexive() || !t.ZeroOrOne() || (!and && !t.One()) {
			return false
		}
	}
	return true
}

// fuseRanges merges range tests on the same operand: intersection for
// and, union for or.
func fuseRanges(cc *CompileContext, ops []Expr, and bool) ([]Expr, bool, error) {
	fused := false
	for i := 0; i < len(ops); i++ {
		for j := i + 1; j < len(ops); j++ {
			r, ok := fuse(ops[i], ops[j], and)
			if !ok {
				continue
			}
			r, err := r.Optimize(cc)
			if err != nil {
				return nil, false, err
			}
			ops[i] = r
			ops = append(ops[:j:j], ops[j+1:]...)
			fused = true
			j = i
		}
	}
	return ops, fused, nil
}

func fuse(a, b Expr, and bool) (Expr, bool) {
	switch x := a.(type) {
	case *CmpPos:
		y, ok := b.(*CmpPos)
		if !ok {
			return nil, false
		}
		if and {
			return NewCmpPos(x.info, x.Pos.Intersect(y.Pos)), true
		}
		p, ok := x.Pos.Union(y.Pos)
		return NewCmpPos(x.info, p), ok
	case *CmpR:
		y, ok := b.(*CmpR)
		if !ok || !fusable(x.X, y.X) {
			return nil, false
		}
		bs, ok := combine(x.Bounds, y.Bounds, and)
		if ok && bs.unbounded() && !x.X.SeqType().Numeric() {
			// An untyped operand would be cast, and may fail, against
			// the bounds that were dropped.
			return nil, false
		}
		return NewCmpR(x.info, x.X, bs), ok
	case *CmpSR:
		y, ok := b.(*CmpSR)
		if !ok || !fusable(x.X, y.X) {
			return nil, false
		}
		bs, ok := combine(x.Bounds, y.Bounds, and)
		return NewCmpSR(x.info, x.X, bs), ok
	}
	return nil, false
}

func fusable(x, y Expr) bool {
	return x.SeqType().ZeroOrOne() && pure(x) && x.Equal(y)
}

func combine(a, b Bounds, and bool) (Bounds, bool) {
	if and {
		return a.intersect(b)
	}
	return a.union(b)
}

// distribute factors operands shared by every branch of a junction:
// (A and B) or (A and C) becomes A and (B or C), and absorbs
// (A and B) or A into A. The dual applies to and over or.
func distribute(cc *CompileContext, ops []Expr, and bool, info qerr.Info) (Expr, bool, error) {
	if len(ops) < 2 {
		return nil, false, nil
	}
	branches := make([][]Expr, len(ops))
	for i, op := range ops {
		if !pure(op) || Has(op, FlagUpd) {
			return nil, false, nil
		}
		if inner, ok := operands(op, !and); ok {
			branches[i] = inner
		} else {
			branches[i] = []Expr{op}
		}
	}
	var common []Expr
	for _, cand := range branches[0] {
		if everyContains(branches[1:], cand) {
			common = append(common, cand)
		}
	}
	if len(common) == 0 {
		return nil, false, nil
	}
	rests := make([]Expr, 0, len(branches))
	for _, br := range branches {
		var rest []Expr
		for _, x := range br {
			if !containsExpr(common, x) {
				rest = append(rest, x)
			}
		}
		if len(rest) == 0 {
			// one branch is exactly the common part, which absorbs the rest
			r, err := newLogic(!and, info, common).Optimize(cc)
			return r, err == nil, err
		}
		if len(rest) == 1 {
			rests = append(rests, rest[0])
		} else {
			rests = append(rests, newLogic(!and, info, rest))
		}
	}
	inner := newLogic(and, info, rests)
	r, err := newLogic(!and, info, append(common, inner)).Optimize(cc)
	return r, err == nil, err
}

func everyContains(branches [][]Expr, e Expr) bool {
	for _, br := range branches {
		if !containsExpr(br, e) {
			return false
		}
	}
	return true
}

func containsExpr(es []Expr, e Expr) bool {
	for _, x := range es {
		if x.Equal(e) {
			return true
		}
	}
	return false
}

func (l *logic) eval(qc *QueryContext, and bool) (value.Item, error) {
	for _, e := range l.Exprs {
		b, err := ebv(e, qc)
		if err != nil {
			return nil, err
		}
		if b != and {
			return value.Bln(!and), nil
		}
	}
	return value.Bln(and), nil
}

func (a *And) Item(qc *QueryContext) (value.Item, error) { return a.eval(qc, true) }
func (o *Or) Item(qc *QueryContext) (value.Item, error) { return o.eval(qc, false) }
func (a *And) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(a, qc) }
func (o *Or) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(o, qc) }
func (a *And) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(a, qc) }
func (o *Or) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(o, qc) }

func (a *And) Copy(cc *CompileContext, vm VarMap) Expr {
	return NewAnd(a.info, copyAll(cc, vm, a.Exprs)...)
}

func (o *Or) Copy(cc *CompileContext, vm VarMap) Expr {
	return NewOr(o.info, copyAll(cc, vm, o.Exprs)...)
}

func (a *And) Equal(o Expr) bool {
	oa, ok := o.(*And)
	return ok && equalAll(a.Exprs, oa.Exprs)
}

func (o *Or) Equal(e Expr) bool {
	oo, ok := e.(*Or)
	return ok && equalAll(o.Exprs, oo.Exprs)
}

func (a *And) String() string { return a.join(" and ") }
func (o *Or) String() string { return o.join(" or ") }

func (l *logic) join(sep string) string {
	parts := make([]string, len(l.Exprs))
	for i, e := range l.Exprs {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
