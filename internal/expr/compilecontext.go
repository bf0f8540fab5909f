package expr

import (
	"context"
	"log/slog"

	"github.com/roach88/xqcore/internal/index"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// RewriteEvent records one fired optimization rule.
type RewriteEvent struct {
	Seq    int       `json:"seq"`
	Rule   string    `json:"rule"`
	Before string    `json:"before"`
	After  string    `json:"after"`
	Info   qerr.Info `json:"-"`
}

// Tracer receives rewrite events. Tracing is observational only.
type Tracer interface {
	Rewrite(ev RewriteEvent)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(RewriteEvent)

func (f TracerFunc) Rewrite(ev RewriteEvent) { f(ev) }

// IndexProvider answers cost queries for index descriptors and builds the
// leaves that access them. The core never scans an index itself.
type IndexProvider interface {
	// Estimate returns the cost of answering d from an index.
	Estimate(ctx context.Context, d index.Descriptor) (index.Cost, error)

	// Access returns a leaf producing the records matched by d, in
	// document order.
	Access(ctx context.Context, d index.Descriptor, info qerr.Info) (Expr, error)

	// Size returns the number of records in a collection.
	Size(ctx context.Context, collection string) (int64, error)
}

type focusFrame struct {
	typ seqtype.SeqType
	ok  bool
}

// CompileContext holds the state of one compilation. It is not safe for
// concurrent use.
type CompileContext struct {
	ctx     context.Context
	focus   []focusFrame
	scope   []*Var
	nextVar int
	tracer  Tracer
	seq     int
	indexes IndexProvider
	logger  *slog.Logger
}

// CompileOption configures a CompileContext.
type CompileOption func(*CompileContext)

// WithTracer sets the rewrite trace sink.
func WithTracer(t Tracer) CompileOption {
	return func(cc *CompileContext) { cc.tracer = t }
}

// WithIndexProvider enables index negotiation.
func WithIndexProvider(p IndexProvider) CompileOption {
	return func(cc *CompileContext) { cc.indexes = p }
}

// WithLogger sets the logger used for rewrite events.
func WithLogger(l *slog.Logger) CompileOption {
	return func(cc *CompileContext) { cc.logger = l }
}

// WithContextType declares a static context item of type t.
func WithContextType(t seqtype.SeqType) CompileOption {
	return func(cc *CompileContext) { cc.focus[0] = focusFrame{typ: t, ok: true} }
}

// WithExternals declares external variables visible to the whole query.
func WithExternals(vars ...*Var) CompileOption {
	return func(cc *CompileContext) {
		for _, v := range vars {
			cc.Declare(v)
		}
	}
}

// NewCompileContext creates the context for one compilation.
func NewCompileContext(ctx context.Context, opts ...CompileOption) *CompileContext {
	cc := &CompileContext{
		ctx:    ctx,
		focus:  []focusFrame{{}},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Context returns the Go context of the compilation.
func (cc *CompileContext) Context() context.Context {
	return cc.ctx
}

// Indexes returns the index provider, or nil.
func (cc *CompileContext) Indexes() IndexProvider {
	return cc.indexes
}

// Rewrites returns the number of rewrites fired so far.
func (cc *CompileContext) Rewrites() int {
	return cc.seq
}

// PushFocus enters a static focus of type t.
func (cc *CompileContext) PushFocus(t seqtype.SeqType) {
	cc.focus = append(cc.focus, focusFrame{typ: t, ok: true})
}

// PopFocus leaves the innermost static focus.
func (cc *CompileContext) PopFocus() {
	cc.focus = cc.focus[:len(cc.focus)-1]
}

// WithFocus runs fn under a static focus of type t.
func (cc *CompileContext) WithFocus(t seqtype.SeqType, fn func() error) error {
	cc.PushFocus(t)
	defer cc.PopFocus()
	return fn()
}

// withoutFocus runs fn where no context item exists, as in function bodies.
func (cc *CompileContext) withoutFocus(fn func() error) error {
	cc.focus = append(cc.focus, focusFrame{})
	defer cc.PopFocus()
	return fn()
}

// FocusType returns the static type of the context item, and whether one
// exists.
func (cc *CompileContext) FocusType() (seqtype.SeqType, bool) {
	f := cc.focus[len(cc.focus)-1]
	return f.typ, f.ok
}

// Nested reports whether compilation is inside a focus established by an
// enclosing expression.
func (cc *CompileContext) Nested() bool {
	return len(cc.focus) > 1
}

// Declare makes v visible for the rest of the compilation.
func (cc *CompileContext) Declare(v *Var) {
	if v.id == 0 {
		cc.nextVar++
		v.id = cc.nextVar
	}
	cc.scope = append(cc.scope, v)
}

func (cc *CompileContext) newVar(name string, t seqtype.SeqType) *Var {
	cc.nextVar++
	return &Var{Name: name, Type: t, id: cc.nextVar}
}

func (cc *CompileContext) pushVar(v *Var) {
	cc.scope = append(cc.scope, v)
}

func (cc *CompileContext) popVar() {
	cc.scope = cc.scope[:len(cc.scope)-1]
}

// lookup resolves a variable name, innermost binding first.
func (cc *CompileContext) lookup(name string) *Var {
	for i := len(cc.scope) - 1; i >= 0; i-- {
		if cc.scope[i].Name == name {
			return cc.scope[i]
		}
	}
	return nil
}

// Replace records that rule rewrote before into after and returns after.
// The replacement inherits the input position of before if it has none.
func (cc *CompileContext) Replace(before, after Expr, rule string) Expr {
	if before == after {
		return after
	}
	if b := after.node(); b.info.IsZero() {
		b.info = before.Info()
	}
	cc.seq++
	ev := RewriteEvent{
		Seq:    cc.seq,
		Rule:   rule,
		Before: before.String(),
		After:  after.String(),
		Info:   before.Info(),
	}
	cc.logger.Debug("rewrite",
		"seq", ev.Seq,
		"rule", ev.Rule,
		"before", ev.Before,
		"after", ev.After)
	if cc.tracer != nil {
		cc.tracer.Rewrite(ev)
	}
	return after
}

// Bool returns the constant b.
func (cc *CompileContext) Bool(b bool, info qerr.Info) Expr {
	return NewConst(info, value.Bln(b))
}

// Empty returns the empty sequence.
func (cc *CompileContext) Empty(info qerr.Info) Expr {
	return NewConst(info)
}

// Function builds and optimizes a call to a catalog function over compiled
// arguments.
func (cc *CompileContext) Function(name string, info qerr.Info, args ...Expr) (Expr, error) {
	f, err := newFn(name, info, args)
	if err != nil {
		return nil, err
	}
	return f.Optimize(cc)
}

// PreEval evaluates e, whose children are constants, and replaces it by
// its value. Dynamic errors become a Raise node that fails only when
// reached.
func (cc *CompileContext) PreEval(e Expr) (Expr, error) {
	qc := NewQueryContext(cc.ctx, WithQueryLogger(cc.logger))
	v, err := e.Value(qc)
	if err != nil {
		qe, ok := qerr.As(err)
		if !ok || qe.Static() || !qe.Code.Catchable() {
			return nil, err
		}
		return cc.Replace(e, NewRaise(e.Info(), qe), "pre-evaluate error"), nil
	}
	return cc.Replace(e, ConstOf(e.Info(), v), "pre-evaluate"), nil
}
