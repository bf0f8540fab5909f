package expr

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

// checkInterval is the number of steps between cancellation checks.
const checkInterval = 64

// Quota limits the number of evaluation steps.
// Implemented by engine.QuotaEnforcer.
type Quota interface {
	// Check records one step and fails once the limit is exceeded.
	Check() error
}

// Collections resolves collection names to their records.
type Collections interface {
	Collection(ctx context.Context, name string) (value.Seq, error)
}

// Update is a pending update produced by an updating expression.
type Update struct {
	Kind   string
	Target *value.Node
}

// QueryContext is the dynamic state of one evaluation. It is not safe for
// concurrent use; each evaluation owns its own.
type QueryContext struct {
	ctx         context.Context
	focus       Focus
	vars        map[*Var]value.Seq
	collections Collections
	quota       Quota
	steps       int
	updates     []Update
	rand        *rand.Rand
	logger      *slog.Logger
}

// QueryOption configures a QueryContext.
type QueryOption func(*QueryContext)

// WithCollections sets the collection resolver.
func WithCollections(c Collections) QueryOption {
	return func(qc *QueryContext) { qc.collections = c }
}

// WithQuota sets the step quota.
func WithQuota(q Quota) QueryOption {
	return func(qc *QueryContext) { qc.quota = q }
}

// WithContextItem sets the initial focus to a single item.
func WithContextItem(it value.Item) QueryOption {
	return func(qc *QueryContext) {
		if it != nil {
			qc.focus = ItemFocus(it)
		}
	}
}

// WithSeed seeds random().
func WithSeed(seed uint64) QueryOption {
	return func(qc *QueryContext) { qc.rand = rand.New(rand.NewPCG(seed, seed)) }
}

// WithQueryLogger sets the logger.
func WithQueryLogger(l *slog.Logger) QueryOption {
	return func(qc *QueryContext) { qc.logger = l }
}

// NewQueryContext creates the context for one evaluation.
func NewQueryContext(ctx context.Context, opts ...QueryOption) *QueryContext {
	qc := &QueryContext{
		ctx:    ctx,
		vars:   make(map[*Var]value.Seq),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(qc)
	}
	if qc.rand == nil {
		qc.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return qc
}

// Context returns the Go context of the evaluation.
func (qc *QueryContext) Context() context.Context {
	return qc.ctx
}

// Focus returns the active focus.
func (qc *QueryContext) Focus() Focus {
	return qc.focus
}

// WithFocus runs fn under focus f and restores the enclosing focus on
// every path out of fn, including errors and panics.
func (qc *QueryContext) WithFocus(f Focus, fn func() error) error {
	defer qc.enter(f)()
	return fn()
}

// enter installs f and returns the function that restores the previous
// focus. Lazy iterators use it around each step.
func (qc *QueryContext) enter(f Focus) (restore func()) {
	saved := qc.focus
	qc.focus = f
	return func() { qc.focus = saved }
}

// Bind sets the value of v.
func (qc *QueryContext) Bind(v *Var, s value.Seq) {
	qc.vars[v] = s
}

// bindScoped sets v and returns the function restoring its previous state.
func (qc *QueryContext) bindScoped(v *Var, s value.Seq) (restore func()) {
	old, had := qc.vars[v]
	qc.vars[v] = s
	return func() {
		if had {
			qc.vars[v] = old
		} else {
			delete(qc.vars, v)
		}
	}
}

// Lookup returns the value of v.
func (qc *QueryContext) Lookup(v *Var) (value.Seq, bool) {
	s, ok := qc.vars[v]
	return s, ok
}

// Check records one evaluation step. It fails with XQIN0002 once the quota
// is exhausted and, every few steps, with XQIN0001 if the Go context is
// done.
func (qc *QueryContext) Check() error {
	qc.steps++
	if qc.quota != nil {
		if err := qc.quota.Check(); err != nil {
			return err
		}
	}
	if qc.steps%checkInterval == 0 {
		if err := qc.ctx.Err(); err != nil {
			return qerr.New(qerr.CodeInterrupted, qerr.Info{}, "evaluation interrupted: %v", err)
		}
	}
	return nil
}

// Steps returns the number of steps taken.
func (qc *QueryContext) Steps() int {
	return qc.steps
}

// AddUpdate records a pending update.
func (qc *QueryContext) AddUpdate(u Update) {
	qc.updates = append(qc.updates, u)
}

// Updates returns the pending update list.
func (qc *QueryContext) Updates() []Update {
	return qc.updates
}

// collection resolves a collection by name.
func (qc *QueryContext) collection(name string, info qerr.Info) (value.Seq, error) {
	if qc.collections == nil {
		return nil, qerr.WithValue(qerr.CodeNoCollection, info, name, "no collections available")
	}
	s, err := qc.collections.Collection(qc.ctx, name)
	if err != nil {
		return nil, qerr.Locate(err, info)
	}
	return s, nil
}
