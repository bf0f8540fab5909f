package expr

import (
	"math"
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// filterCore is shared by the filter variants: Root filtered by each
// predicate in turn.
type filterCore struct {
	base
	Root  Expr
	Preds []Expr
}

func (f *filterCore) slots(fn slotFunc) bool {
	return fn(&f.Root, slotPlain) && eachExpr(fn, slotBind|slotLoop, f.Preds)
}

func (f *filterCore) bindFocus(*Expr) seqtype.SeqType {
	return f.Root.SeqType().ItemType()
}

func (f *filterCore) equal(o *filterCore) bool {
	return f.Root.Equal(o.Root) && equalAll(f.Preds, o.Preds)
}

func (f *filterCore) String() string {
	var b strings.Builder
	root := f.Root.String()
	switch f.Root.(type) {
	case *Map, *ItemMap, *DualMap, *IterMap, *List, *Range, *Arith:
		root = "(" + root + ")"
	}
	b.WriteString(root)
	for _, p := range f.Preds {
		b.WriteString("[" + p.String() + "]")
	}
	return b.String()
}

// Filter is "Root[P1][P2]..." before a variant has been selected.
type Filter struct {
	filterCore
}

// NewFilter returns a filter expression.
func NewFilter(info qerr.Info, root Expr, preds ...Expr) *Filter {
	return &Filter{filterCore{base: base{info: info}, Root: root, Preds: preds}}
}

// SimpleFilter applies one deterministic, non-positional predicate in a
// single pass.
type SimpleFilter struct {
	filterCore
}

// IterFilter streams the root and tracks the position of each item at
// every predicate stage.
type IterFilter struct {
	filterCore
}

// CachedFilter materializes the root so that last() is known.
type CachedFilter struct {
	filterCore
}

type filterKind uint8

const (
	kindFilter filterKind = iota
	kindSimple
	kindIter
	kindCached
	kindSubseq
	kindFoot
)

func newFilterOf(k filterKind, info qerr.Info, root Expr, preds []Expr) Expr {
	core := filterCore{base: base{info: info}, Root: root, Preds: preds}
	core.st = filterType(root, preds)
	switch k {
	case kindSimple:
		return &SimpleFilter{core}
	case kindIter:
		return &IterFilter{core}
	case kindCached:
		return &CachedFilter{core}
	}
	return &Filter{core}
}

func kindOf(e Expr) filterKind {
	switch e.(type) {
	case *SimpleFilter:
		return kindSimple
	case *IterFilter:
		return kindIter
	case *CachedFilter:
		return kindCached
	}
	return kindFilter
}

func filterType(root Expr, preds []Expr) seqtype.SeqType {
	t := root.SeqType()
	occ := seqtype.Occ{Max: t.Occ.Max}
	if n := len(preds); n > 0 {
		if p, ok := preds[n-1].(*CmpPos); ok {
			occ.Max = min(occ.Max, p.Pos.Len())
		}
	}
	return t.WithOcc(occ)
}

func (f *Filter) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, f) }
func (f *SimpleFilter) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, f) }
func (f *IterFilter) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, f) }
func (f *CachedFilter) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, f) }

func (f *Filter) Optimize(cc *CompileContext) (Expr, error) { return optimizeFilter(cc, f, &f.filterCore) }
func (f *SimpleFilter) Optimize(cc *CompileContext) (Expr, error) {
	return optimizeFilter(cc, f, &f.filterCore)
}
func (f *IterFilter) Optimize(cc *CompileContext) (Expr, error) { return optimizeFilter(cc, f, &f.filterCore) }
func (f *CachedFilter) Optimize(cc *CompileContext) (Expr, error) {
	return optimizeFilter(cc, f, &f.filterCore)
}

func optimizeFilter(cc *CompileContext, e Expr, f *filterCore) (Expr, error) {
	if len(f.Preds) == 0 {
		return cc.Replace(e, f.Root, "no predicates"), nil
	}
	if f.Root.SeqType().Zero() {
		return cc.Replace(e, f.Root, "empty filter input"), nil
	}
	preds, empty, changed, err := simplifyPreds(cc, f.Preds)
	if err != nil {
		return nil, err
	}
	if empty {
		return cc.Replace(e, cc.Empty(f.info), "false predicate"), nil
	}
	root := f.Root
	if r, rest, ok, err := negotiateIndex(cc, root, preds, f.info); err != nil {
		return nil, err
	} else if ok {
		root, preds, changed = r, rest, true
	}
	if len(preds) == 0 {
		return cc.Replace(e, root, "predicates resolved"), nil
	}
	k := chooseFilter(root, preds)
	switch k {
	case kindSubseq:
		p := preds[0].(*CmpPos).Pos
		r, err := NewSubseq(f.info, root, p.Min, p.Len()).Optimize(cc)
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "positional access"), nil
	case kindFoot:
		r, err := cc.Function("foot", f.info, root)
		if err != nil {
			return nil, err
		}
		return cc.Replace(e, r, "last item"), nil
	}
	if !changed && kindOf(e) == k {
		f.Preds = preds
		f.st = filterType(root, preds)
		return e, nil
	}
	rule := "select filter variant"
	if changed {
		rule = "simplify predicates"
	}
	return cc.Replace(e, newFilterOf(k, f.info, root, preds), rule), nil
}

// mayBeNumeric reports whether a value of type t may be numeric, which
// makes it a positional predicate.
func mayBeNumeric(t seqtype.SeqType) bool {
	return t.Kind.IsNumeric() || seqtype.Numeric.InstanceOf(t.Kind)
}

func chooseFilter(root Expr, preds []Expr) filterKind {
	det := !Has(root, FlagNdt)
	if len(preds) == 1 && det {
		if _, ok := preds[0].(*CmpPos); ok {
			return kindSubseq
		}
		if _, ok := isFn(preds[0], "last"); ok {
			return kindFoot
		}
	}
	for _, p := range preds {
		if Has(p, FlagLast) {
			return kindCached
		}
	}
	if p := preds[0]; len(preds) == 1 && !Has(p, FlagPos) && !mayBeNumeric(p.SeqType()) && pure(p) {
		return kindSimple
	}
	return kindIter
}

type predResult uint8

const (
	predKeep predResult = iota
	predDrop
	predEmpty
)

// simplifyPreds rewrites each predicate, splits conjunctions and composes
// adjacent positional ranges. empty reports a predicate that never holds.
func simplifyPreds(cc *CompileContext, preds []Expr) (out []Expr, empty, changed bool, err error) {
	for _, p := range preds {
		parts := []Expr{p}
		if a, ok := p.(*And); ok && !Has(a, FlagPos|FlagLast) && !anyNumeric(a.Exprs) {
			parts = a.Exprs
			changed = true
		}
		for _, q := range parts {
			r, res, err := simplifyPred(cc, q)
			if err != nil {
				return nil, false, false, err
			}
			switch res {
			case predDrop:
				changed = true
				continue
			case predEmpty:
				return nil, true, true, nil
			}
			if r != q {
				changed = true
			}
			if cp, ok := r.(*CmpPos); ok && len(out) > 0 {
				if prev, ok := out[len(out)-1].(*CmpPos); ok {
					np := prev.Pos.Then(cp.Pos)
					if np.Empty() {
						return nil, true, true, nil
					}
					out[len(out)-1] = cc.Replace(prev, NewCmpPos(prev.info, np), "compose positions")
					changed = true
					continue
				}
			}
			out = append(out, r)
		}
	}
	return out, false, changed, nil
}

func anyNumeric(es []Expr) bool {
	for _, e := range es {
		if mayBeNumeric(e.SeqType()) {
			return true
		}
	}
	return false
}

func simplifyPred(cc *CompileContext, p Expr) (Expr, predResult, error) {
	if c, ok := p.(*Const); ok {
		return constPred(cc, c)
	}
	if c, _, ok := asCmp(p); ok && c.Op == value.OpEq {
		_, lp := isFn(c.L, "position")
		_, rl := isFn(c.R, "last")
		if lp && rl {
			r, err := cc.Function("last", c.info)
			if err != nil {
				return nil, predKeep, err
			}
			return cc.Replace(p, r, "position is last"), predKeep, nil
		}
	}
	if f, ok := isFn(p, "boolean"); ok && mayBeNumeric(f.Args[0].SeqType()) {
		return p, predKeep, nil
	}
	if mayBeNumeric(p.SeqType()) {
		return p, predKeep, nil
	}
	r, err := simplifyEBV(cc, p)
	if err != nil {
		return nil, predKeep, err
	}
	if b, ok := constBool(r); ok {
		if b {
			return r, predDrop, nil
		}
		return r, predEmpty, nil
	}
	return r, predKeep, nil
}

// constPred classifies a constant predicate: numbers select a position,
// other values act through their effective boolean value.
func constPred(cc *CompileContext, c *Const) (Expr, predResult, error) {
	switch c.Val.Len() {
	case 0:
		return c, predEmpty, nil
	case 1:
		it := c.Val.At(0)
		if it.Kind().IsNumeric() {
			n := value.ToDouble(it)
			if n < 1 || n != math.Trunc(n) || n >= float64(seqtype.Unbounded) {
				return c, predEmpty, nil
			}
			return cc.Replace(c, NewCmpPos(c.info, Pos{int64(n), int64(n)}), "numeric predicate"), predKeep, nil
		}
	}
	b, err := value.SeqEBV(c.Val)
	switch {
	case err != nil:
		return c, predKeep, nil
	case b:
		return c, predDrop, nil
	}
	return c, predEmpty, nil
}

// predTest evaluates predicate p for the item and position in f.
func predTest(qc *QueryContext, p Expr, f Focus) (bool, error) {
	defer qc.enter(f)()
	if cp, ok := p.(*CmpPos); ok {
		return cp.Pos.Contains(f.Pos), nil
	}
	if !mayBeNumeric(p.SeqType()) {
		return ebv(p, qc)
	}
	v, err := p.Value(qc)
	if err != nil {
		return false, err
	}
	if v.Len() == 1 && v.At(0).Kind().IsNumeric() {
		return value.ToDouble(v.At(0)) == float64(f.Pos), nil
	}
	b, err := value.SeqEBV(v)
	return b, qerr.Locate(err, p.Info())
}

func (f *SimpleFilter) Iter(qc *QueryContext) (Iter, error) {
	root, err := f.Root.Iter(qc)
	if err != nil {
		return nil, err
	}
	p := f.Preds[0]
	var pos int64
	return focusIter(qc, qc.Focus(), IterFunc(func() (value.Item, error) {
		for {
			it, err := root.Next()
			if err != nil || it == nil {
				return nil, err
			}
			if err := qc.Check(); err != nil {
				return nil, err
			}
			pos++
			ok, err := predTest(qc, p, Focus{Value: it, Pos: pos, Size: SizeUnknown})
			if err != nil {
				return nil, err
			}
			if ok {
				return it, nil
			}
		}
	})), nil
}

func (f *IterFilter) Iter(qc *QueryContext) (Iter, error) {
	root, err := f.Root.Iter(qc)
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(f.Preds))
	done := false
	return focusIter(qc, qc.Focus(), IterFunc(func() (value.Item, error) {
		for !done {
			it, err := root.Next()
			if err != nil || it == nil {
				return nil, err
			}
			if err := qc.Check(); err != nil {
				return nil, err
			}
			pass := true
			for i, p := range f.Preds {
				counts[i]++
				ok, err := predTest(qc, p, Focus{Value: it, Pos: counts[i], Size: SizeUnknown})
				if err != nil {
					return nil, err
				}
				// later items cannot reach a position inside the range
				if cp, isPos := p.(*CmpPos); isPos && counts[i] >= cp.Pos.Max {
					done = true
				}
				if !ok {
					pass = false
					break
				}
			}
			if pass {
				return it, nil
			}
		}
		return nil, nil
	})), nil
}

// cachedValue filters a materialized root, predicate by predicate, with
// the context size known.
func cachedValue(qc *QueryContext, f *filterCore) (value.Seq, error) {
	v, err := f.Root.Value(qc)
	if err != nil {
		return nil, err
	}
	for _, p := range f.Preds {
		n := v.Len()
		var out value.Items
		for i := range n {
			if err := qc.Check(); err != nil {
				return nil, err
			}
			ok, err := predTest(qc, p, Focus{Value: v.At(i), Pos: i + 1, Size: n})
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, v.At(i))
			}
		}
		v = out
	}
	return v, nil
}

func (f *CachedFilter) Value(qc *QueryContext) (value.Seq, error) { return cachedValue(qc, &f.filterCore) }
func (f *CachedFilter) Iter(qc *QueryContext) (Iter, error) { return iterOf(f, qc) }
func (f *CachedFilter) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(f, qc) }

func (f *Filter) Value(qc *QueryContext) (value.Seq, error) { return cachedValue(qc, &f.filterCore) }
func (f *Filter) Iter(qc *QueryContext) (Iter, error) { return iterOf(f, qc) }
func (f *Filter) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(f, qc) }

func (f *SimpleFilter) Item(qc *QueryContext) (value.Item, error) { return itemOf(f, qc) }
func (f *SimpleFilter) Value(qc *QueryContext) (value.Seq, error) { return valueOf(f, qc) }
func (f *IterFilter) Item(qc *QueryContext) (value.Item, error) { return itemOf(f, qc) }
func (f *IterFilter) Value(qc *QueryContext) (value.Seq, error) { return valueOf(f, qc) }

func (f *filterCore) copyCore(cc *CompileContext, vm VarMap) filterCore {
	return filterCore{base: f.base, Root: f.Root.Copy(cc, vm), Preds: copyAll(cc, vm, f.Preds)}
}

func (f *Filter) Copy(cc *CompileContext, vm VarMap) Expr { return &Filter{f.copyCore(cc, vm)} }
func (f *SimpleFilter) Copy(cc *CompileContext, vm VarMap) Expr {
	return &SimpleFilter{f.copyCore(cc, vm)}
}
func (f *IterFilter) Copy(cc *CompileContext, vm VarMap) Expr { return &IterFilter{f.copyCore(cc, vm)} }
func (f *CachedFilter) Copy(cc *CompileContext, vm VarMap) Expr {
	return &CachedFilter{f.copyCore(cc, vm)}
}

func (f *Filter) Equal(o Expr) bool {
	x, ok := o.(*Filter)
	return ok && f.equal(&x.filterCore)
}

func (f *SimpleFilter) Equal(o Expr) bool {
	x, ok := o.(*SimpleFilter)
	return ok && f.equal(&x.filterCore)
}

func (f *IterFilter) Equal(o Expr) bool {
	x, ok := o.(*IterFilter)
	return ok && f.equal(&x.filterCore)
}

func (f *CachedFilter) Equal(o Expr) bool {
	x, ok := o.(*CachedFilter)
	return ok && f.equal(&x.filterCore)
}
