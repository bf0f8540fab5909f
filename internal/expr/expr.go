package expr

import (
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Expr is a query expression node.
//
// This is a sealed interface: every implementation embeds base and lives in
// this package. Storage collaborators contribute leaves through
// NewIndexAccess.
type Expr interface {
	// Compile compiles the children, checks legality and optimizes.
	Compile(cc *CompileContext) (Expr, error)

	// Optimize rewrites the node assuming compiled children. It returns the
	// node itself or a replacement and is idempotent.
	Optimize(cc *CompileContext) (Expr, error)

	// Iter returns a lazy iterator over the result.
	Iter(qc *QueryContext) (Iter, error)

	// Item returns the single result item, or nil for the empty sequence.
	// More than one item is a type error.
	Item(qc *QueryContext) (value.Item, error)

	// Value returns the materialized result.
	Value(qc *QueryContext) (value.Seq, error)

	SeqType() seqtype.SeqType
	Info() qerr.Info

	// Copy returns a deep copy. Variables bound inside the copy are
	// re-created and recorded in vm.
	Copy(cc *CompileContext, vm VarMap) Expr

	// Equal reports structural equality.
	Equal(o Expr) bool

	// String renders the expression as query text.
	String() string

	node() *base
	flags() Flag
	slots(fn slotFunc) bool
}

// Flag is a compile-time property of an expression.
type Flag uint8

const (
	// FlagCtx marks dependence on the context item.
	FlagCtx Flag = 1 << iota
	// FlagPos marks dependence on the context position.
	FlagPos
	// FlagLast marks dependence on the context size. It implies FlagPos.
	FlagLast
	// FlagNdt marks non-deterministic results.
	FlagNdt
	// FlagUpd marks updating expressions.
	FlagUpd
	// FlagHOF marks calls to user-supplied function items.
	FlagHOF
)

const focusFlags = FlagCtx | FlagPos | FlagLast

// VarUsage counts references to a variable.
type VarUsage uint8

const (
	VarNever VarUsage = iota
	VarOnce
	VarMany
)

func (u VarUsage) plus(o VarUsage) VarUsage {
	if u+o > VarMany {
		return VarMany
	}
	return u + o
}

// slotKind describes how a node evaluates a child slot.
type slotKind uint8

const (
	slotPlain slotKind = 0
	// slotBind: evaluated under a focus the node establishes.
	slotBind slotKind = 1 << (iota - 1)
	// slotLoop: evaluated repeatedly.
	slotLoop
	// slotUpd: updating expressions are allowed.
	slotUpd
	// slotBody: a function body, evaluated only when the function is called.
	slotBody
)

type slotFunc func(c *Expr, k slotKind) bool

// base carries the attributes shared by every node.
type base struct {
	info qerr.Info
	st   seqtype.SeqType
}

func (b *base) node() *base { return b }
func (b *base) Info() qerr.Info { return b.info }
func (b *base) SeqType() seqtype.SeqType { return b.st }
func (*base) flags() Flag { return 0 }
func (*base) slots(slotFunc) bool { return true }

// binder is implemented by nodes with slotBind children.
type binder interface {
	// bindFocus returns the static type of the context item for slot c.
	bindFocus(c *Expr) seqtype.SeqType
}

// Has reports whether e or a descendant exhibits one of the flags in f.
// Slots evaluated under a focus established by their parent do not
// contribute focus flags, and function bodies contribute nothing.
func Has(e Expr, f Flag) bool {
	if e.flags()&f != 0 {
		return true
	}
	found := false
	e.slots(func(c *Expr, k slotKind) bool {
		g := f
		if k&slotBind != 0 {
			g &^= focusFlags
		}
		if k&slotBody != 0 {
			g = 0
		}
		if g != 0 && Has(*c, g) {
			found = true
			return false
		}
		return true
	})
	return found
}

// counter is implemented by leaves that reference variables or the context.
type counter interface {
	count(v *Var) VarUsage
}

// Count reports how often e references v. A nil v counts references to the
// context item at e's focus level. Uses under a different focus count as
// many.
func Count(e Expr, v *Var) VarUsage {
	if c, ok := e.(counter); ok {
		return c.count(v)
	}
	u := VarNever
	e.slots(func(c *Expr, k slotKind) bool {
		if v == nil && k&(slotBind|slotBody) != 0 {
			return true
		}
		cu := Count(*c, v)
		if cu != VarNever && k&(slotLoop|slotBody|slotBind) != 0 {
			cu = VarMany
		}
		u = u.plus(cu)
		return u != VarMany
	})
	return u
}

// InlineContext describes a substitution: references to Var (or, if Var is
// nil, to the context item) are replaced by copies of Expr.
type InlineContext struct {
	Var  *Var
	Expr Expr
	cc   *CompileContext
}

// NewInlineContext returns an inline context for substituting e for v.
func NewInlineContext(cc *CompileContext, v *Var, e Expr) *InlineContext {
	return &InlineContext{Var: v, Expr: e, cc: cc}
}

func (ic *InlineContext) copyExpr() Expr {
	return ic.Expr.Copy(ic.cc, VarMap{})
}

// inliner is implemented by leaves that can be substituted.
type inliner interface {
	inline(ic *InlineContext) (Expr, error)
}

// Inline substitutes ic.Expr into e. It returns nil if nothing changed;
// changed nodes are re-optimized.
func Inline(e Expr, ic *InlineContext) (Expr, error) {
	if in, ok := e.(inliner); ok {
		return in.inline(ic)
	}
	return inlineSlots(e, ic)
}

func inlineSlots(e Expr, ic *InlineContext) (Expr, error) {
	changed := false
	var err error
	e.slots(func(c *Expr, k slotKind) bool {
		if ic.Var == nil && k&(slotBind|slotBody) != 0 {
			return true
		}
		var r Expr
		if r, err = Inline(*c, ic); err != nil {
			return false
		}
		if r != nil {
			*c = r
			changed = true
		}
		return true
	})
	if err != nil || !changed {
		return nil, err
	}
	return e.Optimize(ic.cc)
}

// compileSlots compiles every child slot of e in order. Slots that bind a
// focus are compiled under it; updating children are rejected outside
// updating slots.
func compileSlots(cc *CompileContext, e Expr) error {
	return walkSlots(cc, e, func(c *Expr) error {
		r, err := (*c).Compile(cc)
		if err != nil {
			return err
		}
		*c = r
		return nil
	})
}

// walkSlots calls fn for every child slot with the static focus the child
// runs under. After fn, updating children are rejected outside updating
// slots.
func walkSlots(cc *CompileContext, e Expr, fn func(c *Expr) error) error {
	var err error
	e.slots(func(c *Expr, k slotKind) bool {
		switch {
		case k&slotBody != 0:
			err = cc.withoutFocus(func() error { return fn(c) })
		case k&slotBind != 0:
			err = cc.WithFocus(e.(binder).bindFocus(c), func() error { return fn(c) })
		default:
			err = fn(c)
		}
		if err == nil && k&slotUpd == 0 && k&slotBody == 0 && Has(*c, FlagUpd) {
			err = qerr.New(qerr.CodeUpdatingSlot, (*c).Info(),
				"updating expression not allowed here: %s", *c)
		}
		return err == nil
	})
	return err
}

// compileNode is the default Compile: children, then Optimize.
func compileNode(cc *CompileContext, e Expr) (Expr, error) {
	if err := compileSlots(cc, e); err != nil {
		return nil, err
	}
	return e.Optimize(cc)
}

// OptimizeTree runs one bottom-up optimization pass over e.
func OptimizeTree(cc *CompileContext, e Expr) (Expr, error) {
	err := walkSlots(cc, e, func(c *Expr) error {
		r, err := OptimizeTree(cc, *c)
		if err != nil {
			return err
		}
		*c = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.Optimize(cc)
}

// Walk calls fn for e and every descendant, parents first.
func Walk(e Expr, fn func(Expr)) {
	fn(e)
	e.slots(func(c *Expr, _ slotKind) bool {
		Walk(*c, fn)
		return true
	})
}

// Size returns the number of nodes in e.
func Size(e Expr) int {
	n := 0
	Walk(e, func(Expr) { n++ })
	return n
}

// allConst reports whether every child of e is a constant.
func allConst(e Expr) bool {
	ok := true
	e.slots(func(c *Expr, _ slotKind) bool {
		_, ok = (*c).(*Const)
		return ok
	})
	return ok
}

// pure reports whether e may be pre-evaluated or removed freely.
func pure(e Expr) bool {
	return !Has(e, FlagNdt|FlagUpd|FlagHOF)
}

func equalAll(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func copyAll(cc *CompileContext, vm VarMap, es []Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = e.Copy(cc, vm)
	}
	return out
}

func eachExpr(fn slotFunc, k slotKind, es []Expr) bool {
	for i := range es {
		if !fn(&es[i], k) {
			return false
		}
	}
	return true
}
