package expr

import (
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// mapCore is shared by the simple map variants "Ops[0] ! Ops[1] ! ...".
// Every operand after the first runs once per item of its predecessor,
// with that item as the focus.
type mapCore struct {
	base
	Ops []Expr
}

func (m *mapCore) slots(fn slotFunc) bool {
	return fn(&m.Ops[0], slotPlain) && eachExpr(fn, slotBind|slotLoop, m.Ops[1:])
}

func (m *mapCore) bindFocus(c *Expr) seqtype.SeqType {
	for i := 1; i < len(m.Ops); i++ {
		if &m.Ops[i] == c {
			return m.Ops[i-1].SeqType().ItemType()
		}
	}
	return seqtype.ItemOne
}

func (m *mapCore) equal(o *mapCore) bool { return equalAll(m.Ops, o.Ops) }

func (m *mapCore) String() string {
	parts := make([]string, len(m.Ops))
	for i, op := range m.Ops {
		parts[i] = op.String()
		switch op.(type) {
		case *Const, *ContextValue, *VarRef, *Step, *Path, *Fn, *Collection, *IndexAccess,
			*Subseq, *Replicate, *Filter, *SimpleFilter, *IterFilter, *CachedFilter:
		default:
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, " ! ")
}

// Map is a simple map before a variant has been selected.
type Map struct {
	mapCore
}

// NewMap returns "ops[0] ! ops[1] ! ...".
func NewMap(info qerr.Info, ops ...Expr) *Map {
	return &Map{mapCore{base: base{info: info}, Ops: ops}}
}

// ItemMap is a map whose every operand but the last yields exactly one
// item: a pipeline of single values.
type ItemMap struct {
	mapCore
}

// DualMap has two operands, the second yielding at most one item per
// input. The first operand is materialized.
type DualMap struct {
	mapCore
}

// IterMap is the general nested iteration.
type IterMap struct {
	mapCore
}

type mapKind uint8

const (
	kindMap mapKind = iota
	kindItemMap
	kindDualMap
	kindIterMap
)

func newMapOf(k mapKind, info qerr.Info, ops []Expr) Expr {
	core := mapCore{base: base{info: info, st: mapType(ops)}, Ops: ops}
	switch k {
	case kindItemMap:
		return &ItemMap{core}
	case kindDualMap:
		return &DualMap{core}
	case kindIterMap:
		return &IterMap{core}
	}
	return &Map{core}
}

func mapKindOf(e Expr) mapKind {
	switch e.(type) {
	case *ItemMap:
		return kindItemMap
	case *DualMap:
		return kindDualMap
	case *IterMap:
		return kindIterMap
	}
	return kindMap
}

func mapType(ops []Expr) seqtype.SeqType {
	occ := seqtype.ExactlyOne
	for _, op := range ops {
		occ = occ.Mul(op.SeqType().Occ)
	}
	return ops[len(ops)-1].SeqType().WithOcc(occ)
}

func chooseMap(ops []Expr) mapKind {
	one := true
	for _, op := range ops[:len(ops)-1] {
		if !op.SeqType().One() {
			one = false
		}
	}
	switch {
	case one:
		return kindItemMap
	case len(ops) == 2 && ops[1].SeqType().ZeroOrOne():
		return kindDualMap
	}
	return kindIterMap
}

func (m *Map) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, m) }
func (m *ItemMap) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, m) }
func (m *DualMap) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, m) }
func (m *IterMap) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, m) }

func (m *Map) Optimize(cc *CompileContext) (Expr, error) { return optimizeMap(cc, m, &m.mapCore) }
func (m *ItemMap) Optimize(cc *CompileContext) (Expr, error) { return optimizeMap(cc, m, &m.mapCore) }
func (m *DualMap) Optimize(cc *CompileContext) (Expr, error) { return optimizeMap(cc, m, &m.mapCore) }
func (m *IterMap) Optimize(cc *CompileContext) (Expr, error) { return optimizeMap(cc, m, &m.mapCore) }

func asMap(e Expr) (*mapCore, bool) {
	switch m := e.(type) {
	case *Map:
		return &m.mapCore, true
	case *ItemMap:
		return &m.mapCore, true
	case *DualMap:
		return &m.mapCore, true
	case *IterMap:
		return &m.mapCore, true
	}
	return nil, false
}

func optimizeMap(cc *CompileContext, e Expr, m *mapCore) (Expr, error) {
	ops, changed := flattenMap(m.Ops)
	if ops[0].SeqType().Zero() {
		return cc.Replace(e, ops[0], "empty map input"), nil
	}
	empty, safe := false, true
	for _, op := range ops {
		empty = empty || op.SeqType().Zero()
		safe = safe && !Has(op, FlagUpd|FlagHOF|FlagNdt)
	}
	if empty && safe {
		return cc.Replace(e, cc.Empty(m.info), "empty map operand"), nil
	}
	for i := 0; i+1 < len(ops); {
		var (
			r    Expr
			rule string
		)
		err := mapFocus(cc, ops, i, func() (err error) {
			r, rule, err = mergeOps(cc, ops[i], ops[i+1])
			return err
		})
		if err != nil {
			return nil, err
		}
		if r == nil {
			i++
			continue
		}
		cc.Replace(NewMap(m.info, ops[i], ops[i+1]), r, rule)
		ops = append(ops[:i:i], append([]Expr{r}, ops[i+2:]...)...)
		changed = true
		i = max(i-1, 0)
	}
	if len(ops) == 1 {
		return cc.Replace(e, ops[0], "single map operand"), nil
	}
	k := chooseMap(ops)
	if !changed && mapKindOf(e) == k {
		m.st = mapType(ops)
		return e, nil
	}
	rule := "select map variant"
	if changed {
		rule = "merge map operands"
	}
	return cc.Replace(e, newMapOf(k, m.info, ops), rule), nil
}

func flattenMap(ops []Expr) ([]Expr, bool) {
	changed := false
	out := make([]Expr, 0, len(ops))
	for _, op := range ops {
		if inner, ok := asMap(op); ok {
			out = append(out, inner.Ops...)
			changed = true
			continue
		}
		out = append(out, op)
	}
	return out, changed
}

// mapFocus runs fn under the static focus of operand i.
func mapFocus(cc *CompileContext, ops []Expr, i int, fn func() error) error {
	if i == 0 {
		return fn()
	}
	return cc.WithFocus(ops[i-1].SeqType().ItemType(), fn)
}

// mergeOps fuses two adjacent operands into one expression evaluated
// under the focus of l. It returns nil if no rule applies.
func mergeOps(cc *CompileContext, l, r Expr) (Expr, string, error) {
	if _, ok := r.(*ContextValue); ok {
		return l, "map to context", nil
	}
	positional := Has(r, FlagPos|FlagLast)
	if _, ok := l.(*ContextValue); ok && !positional {
		return r, "map from context", nil
	}
	lt := l.SeqType()
	if lt.One() && pure(l) && !positional {
		if Count(r, nil) <= VarOnce || cheap(l) {
			res, err := Inline(r, NewInlineContext(cc, nil, l))
			if err != nil {
				return nil, "", err
			}
			if res != nil {
				return res, "inline context", nil
			}
		}
		if !Has(r, focusFlags) {
			return r, "context-independent operand", nil
		}
	}
	if rep, ok := l.(*Replicate); ok && !rep.Multiple && rep.Input.SeqType().One() && pure(r) && !positional {
		inner, err := NewMap(rep.info, rep.Input, r).Optimize(cc)
		if err != nil {
			return nil, "", err
		}
		res, err := NewReplicate(rep.info, inner, rep.Count, false).Optimize(cc)
		if err != nil {
			return nil, "", err
		}
		return res, "replicate map", nil
	}
	if rs, ok := r.(*Step); ok && fusableRight(rs) {
		switch x := l.(type) {
		case *Step:
			if x.simple() {
				t, _ := cc.FocusType()
				root := &ContextValue{base: base{info: x.info, st: t.ItemType()}}
				res, err := NewPath(x.info, root, x, rs).Optimize(cc)
				return res, "merge steps", err
			}
		case *Path:
			if x.Root.SeqType().ZeroOrOne() && allSimple(x.Steps) {
				steps := append(append([]*Step(nil), x.Steps...), rs)
				res, err := NewPath(x.info, x.Root, steps...).Optimize(cc)
				return res, "merge steps", err
			}
		}
	}
	return nil, "", nil
}

func fusableRight(s *Step) bool {
	return s.simple() || s.Axis == AxisDescendant || s.Axis == AxisDescendantOrSelf
}

func allSimple(steps []*Step) bool {
	for _, s := range steps {
		if !s.simple() {
			return false
		}
	}
	return true
}

// cheap reports whether e may be duplicated freely.
func cheap(e Expr) bool {
	switch e.(type) {
	case *Const, *VarRef, *ContextValue:
		return true
	}
	return false
}

// stage returns an iterator over operand k evaluated under f. The items
// are materialized when the next operand needs the context size.
func (m *mapCore) stage(qc *QueryContext, k int, f Focus) (Iter, int64, error) {
	defer qc.enter(f)()
	op := m.Ops[k]
	if k+1 < len(m.Ops) && Has(m.Ops[k+1], FlagLast) {
		v, err := op.Value(qc)
		if err != nil {
			return nil, 0, err
		}
		return IterSeq(v), v.Len(), nil
	}
	it, err := op.Iter(qc)
	if err != nil {
		return nil, 0, err
	}
	return focusIter(qc, f, it), SizeUnknown, nil
}

// iter iterates nested operands depth first, tracking the position of
// each item within its operand.
func (m *mapCore) iter(qc *QueryContext) (Iter, error) {
	n := len(m.Ops)
	iters := make([]Iter, n)
	pos := make([]int64, n)
	sizes := make([]int64, n)
	var err error
	if iters[0], sizes[0], err = m.stage(qc, 0, qc.Focus()); err != nil {
		return nil, err
	}
	level := 0
	return IterFunc(func() (value.Item, error) {
		for level >= 0 {
			it, err := iters[level].Next()
			if err != nil {
				return nil, err
			}
			if it == nil {
				level--
				continue
			}
			pos[level]++
			if level == n-1 {
				return it, nil
			}
			if err := qc.Check(); err != nil {
				return nil, err
			}
			f := Focus{Value: it, Pos: pos[level], Size: sizes[level]}
			level++
			if iters[level], sizes[level], err = m.stage(qc, level, f); err != nil {
				return nil, err
			}
			pos[level] = 0
		}
		return nil, nil
	}), nil
}

func (m *Map) Iter(qc *QueryContext) (Iter, error) { return m.iter(qc) }
func (m *Map) Item(qc *QueryContext) (value.Item, error) { return itemOf(m, qc) }
func (m *Map) Value(qc *QueryContext) (value.Seq, error) { return valueOf(m, qc) }

func (m *IterMap) Iter(qc *QueryContext) (Iter, error) { return m.iter(qc) }
func (m *IterMap) Item(qc *QueryContext) (value.Item, error) { return itemOf(m, qc) }
func (m *IterMap) Value(qc *QueryContext) (value.Seq, error) { return valueOf(m, qc) }

// last evaluates every operand but the last as a single item and returns
// the focus for the final operand. ok is false if a stage was empty.
func (m *ItemMap) last(qc *QueryContext) (f Focus, ok bool, err error) {
	defer qc.enter(qc.Focus())()
	for _, op := range m.Ops[:len(m.Ops)-1] {
		it, err := op.Item(qc)
		if err != nil || it == nil {
			return Focus{}, false, err
		}
		if err := qc.Check(); err != nil {
			return Focus{}, false, err
		}
		qc.focus = ItemFocus(it)
	}
	return qc.focus, true, nil
}

func (m *ItemMap) Iter(qc *QueryContext) (Iter, error) {
	f, ok, err := m.last(qc)
	if err != nil || !ok {
		return IterSeq(value.Empty), err
	}
	defer qc.enter(f)()
	it, err := m.Ops[len(m.Ops)-1].Iter(qc)
	if err != nil {
		return nil, err
	}
	return focusIter(qc, f, it), nil
}

func (m *ItemMap) Item(qc *QueryContext) (value.Item, error) {
	f, ok, err := m.last(qc)
	if err != nil || !ok {
		return nil, err
	}
	defer qc.enter(f)()
	return m.Ops[len(m.Ops)-1].Item(qc)
}

func (m *ItemMap) Value(qc *QueryContext) (value.Seq, error) {
	f, ok, err := m.last(qc)
	if err != nil || !ok {
		return value.Empty, err
	}
	defer qc.enter(f)()
	return m.Ops[len(m.Ops)-1].Value(qc)
}

func (m *DualMap) Iter(qc *QueryContext) (Iter, error) {
	v, err := m.Ops[0].Value(qc)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	var i int64
	return IterFunc(func() (value.Item, error) {
		for i < n {
			if err := qc.Check(); err != nil {
				return nil, err
			}
			f := Focus{Value: v.At(i), Pos: i + 1, Size: n}
			i++
			it, err := func() (value.Item, error) {
				defer qc.enter(f)()
				return m.Ops[1].Item(qc)
			}()
			if err != nil || it != nil {
				return it, err
			}
		}
		return nil, nil
	}), nil
}

func (m *DualMap) Item(qc *QueryContext) (value.Item, error) { return itemOf(m, qc) }
func (m *DualMap) Value(qc *QueryContext) (value.Seq, error) { return valueOf(m, qc) }

func (m *mapCore) copyCore(cc *CompileContext, vm VarMap) mapCore {
	return mapCore{base: m.base, Ops: copyAll(cc, vm, m.Ops)}
}

func (m *Map) Copy(cc *CompileContext, vm VarMap) Expr     { return &Map{m.copyCore(cc, vm)} }
func (m *ItemMap) Copy(cc *CompileContext, vm VarMap) Expr { return &ItemMap{m.copyCore(cc, vm)} }
func (m *DualMap) Copy(cc *CompileContext, vm VarMap) Expr { return &DualMap{m.copyCore(cc, vm)} }
func (m *IterMap) Copy(cc *CompileContext, vm VarMap) Expr { return &IterMap{m.copyCore(cc, vm)} }

func (m *Map) Equal(o Expr) bool {
	x, ok := o.(*Map)
	return ok && m.equal(&x.mapCore)
}

func (m *ItemMap) Equal(o Expr) bool {
	x, ok := o.(*ItemMap)
	return ok && m.equal(&x.mapCore)
}

func (m *DualMap) Equal(o Expr) bool {
	x, ok := o.(*DualMap)
	return ok && m.equal(&x.mapCore)
}

func (m *IterMap) Equal(o Expr) bool {
	x, ok := o.(*IterMap)
	return ok && m.equal(&x.mapCore)
}
