package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/telemetry"
	"github.com/roach88/xqcore/internal/value"
)

const (
	// DefaultMaxPasses bounds the optimization passes per compilation.
	DefaultMaxPasses = 16

	// DefaultMaxSteps is the default maximum number of iterator steps per
	// evaluation. This prevents runaway queries from consuming unbounded
	// resources.
	DefaultMaxSteps = 1_000_000

	// DefaultCacheSize is the default number of compiled queries kept.
	DefaultCacheSize = 128
)

// Engine compiles plans into optimized queries and evaluates them.
//
// Thread-safety model:
//   - Compile(): safe from any goroutine; the plan cache is locked
//   - Evaluate(), Stream(): safe from any goroutine; each call owns its
//     query context and quota
//
// A compiled Query is never mutated, so concurrent evaluations of one query
// share nothing but the tree.
type Engine struct {
	indexes     expr.IndexProvider
	collections expr.Collections
	logger      *slog.Logger
	ids         IDGenerator
	seq         atomic.Int64
	tracer      expr.Tracer
	maxPasses   int
	maxSteps    int
	timeout     time.Duration
	cache       *planCache
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxPasses sets the optimization pass limit.
//
// Default: 16 passes (DefaultMaxPasses)
func WithMaxPasses(n int) EngineOption {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithMaxSteps sets the maximum steps quota per evaluation.
//
// Default: 1,000,000 steps (DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithTimeout bounds the wall-clock time of each evaluation. Zero means no
// limit beyond the caller's context.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithIndexes enables index negotiation during optimization.
func WithIndexes(p expr.IndexProvider) EngineOption {
	return func(e *Engine) {
		e.indexes = p
	}
}

// WithCollections sets the resolver for collection() during evaluation.
func WithCollections(c expr.Collections) EngineOption {
	return func(e *Engine) {
		e.collections = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the query id generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithTracer receives every rewrite of every compilation, in addition to
// the per-query trace.
func WithTracer(t expr.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithCacheSize sets the number of compiled queries kept. Zero disables
// the cache.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.cache = newPlanCache(n)
	}
}

// New creates an Engine. With no options it has no indexes and no
// collections, logs nowhere and uses UUIDv7 query ids.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:       UUIDv7Generator{},
		maxPasses: DefaultMaxPasses,
		maxSteps:  DefaultMaxSteps,
		cache:     newPlanCache(DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stamp returns the next logical clock value. Compilations and
// evaluations share one strictly increasing sequence.
func (e *Engine) stamp() int64 { return e.seq.Add(1) }

// Compile type-checks and optimizes a plan to a fixpoint.
//
// The plan's tree is consumed: it is rewritten in place and must not be
// compiled again. Plans with the same fingerprint are served from the cache.
func (e *Engine) Compile(ctx context.Context, p *compiler.Plan) (q *Query, err error) {
	fp := Fingerprint(p)
	if cached, ok := e.cache.get(fp); ok {
		telemetry.RecordPlanCache(ctx, true)
		e.logger.Debug("plan cache hit", "plan", p.Name, "query_id", cached.ID)
		return cached, nil
	}
	telemetry.RecordPlanCache(ctx, false)

	ctx, span := telemetry.StartCompileSpan(ctx, p.Name, fp)
	defer func() { telemetry.EndSpan(span, err) }()

	q = &Query{
		ID:          e.ids.Generate(),
		Seq:         e.stamp(),
		Name:        p.Name,
		Fingerprint: fp,
		externals:   p.Externals,
		context:     p.Context,
	}
	logger := e.logger.With("query_id", q.ID, "plan", p.Name)

	cc := expr.NewCompileContext(ctx, e.compileOptions(q, logger, expr.TracerFunc(func(ev expr.RewriteEvent) {
		q.Trace = append(q.Trace, ev)
		telemetry.RecordRewrite(ctx, ev.Rule)
		if e.tracer != nil {
			e.tracer.Rewrite(ev)
		}
	}))...)

	root, passes, err := fixpoint(cc, p.Query, e.maxPasses, logger)
	if err != nil {
		logger.Info("compile failed", "error", err)
		return nil, fmt.Errorf("compile %s: %w", p.Name, err)
	}
	q.Root, q.Passes = root, passes
	telemetry.RecordCompile(ctx, passes, len(q.Trace))

	logger.Info("compiled",
		"passes", passes,
		"rewrites", len(q.Trace),
		"type", q.SeqType().String())

	e.cache.put(fp, q)
	return q, nil
}

// compileOptions returns the compile context settings for q.
func (e *Engine) compileOptions(q *Query, logger *slog.Logger, tracer expr.Tracer) []expr.CompileOption {
	vars := make([]*expr.Var, len(q.externals))
	for i, ext := range q.externals {
		vars[i] = ext.Var
	}
	opts := []expr.CompileOption{
		expr.WithLogger(logger),
		expr.WithExternals(vars...),
		expr.WithTracer(tracer),
	}
	if e.indexes != nil {
		opts = append(opts, expr.WithIndexProvider(e.indexes))
	}
	if q.context != nil {
		opts = append(opts, expr.WithContextType(seqtype.One(q.context.Kind())))
	}
	return opts
}

// Recheck runs one more optimization pass over a copy of q's tree and
// returns the rewrites it fired. A query that reached its fixpoint fires
// none. q itself is not modified.
func (e *Engine) Recheck(ctx context.Context, q *Query) ([]expr.RewriteEvent, error) {
	var fired []expr.RewriteEvent
	cc := expr.NewCompileContext(ctx, e.compileOptions(q, e.logger, expr.TracerFunc(func(ev expr.RewriteEvent) {
		fired = append(fired, ev)
	}))...)
	root := q.Root.Copy(cc, expr.VarMap{})
	if _, err := expr.OptimizeTree(cc, root); err != nil {
		return nil, fmt.Errorf("recheck %s: %w", q.Name, err)
	}
	return fired, nil
}

// Result is the outcome of one evaluation.
type Result struct {
	Value value.Seq

	// Updates is the pending update list of an updating query.
	Updates []expr.Update

	// Steps is the number of iterator steps taken.
	Steps int
}

// Evaluate runs q with the given external variable bindings and
// materializes the result.
func (e *Engine) Evaluate(ctx context.Context, q *Query, bindings map[string]value.Seq) (*Result, error) {
	var res *Result
	err := e.run(ctx, q, bindings, func(qc *expr.QueryContext) error {
		v, err := q.Root.Value(qc)
		if err != nil {
			return err
		}
		res = &Result{Value: v, Updates: qc.Updates(), Steps: qc.Steps()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Stream runs q and calls fn for each result item in order. Evaluation
// stops at the first error, including one returned by fn. Returns the
// number of steps taken.
func (e *Engine) Stream(ctx context.Context, q *Query, bindings map[string]value.Seq, fn func(value.Item) error) (int, error) {
	var steps int
	err := e.run(ctx, q, bindings, func(qc *expr.QueryContext) error {
		defer func() { steps = qc.Steps() }()
		it, err := q.Root.Iter(qc)
		if err != nil {
			return err
		}
		for {
			item, err := it.Next()
			if err != nil {
				return err
			}
			if item == nil {
				return nil
			}
			if err := fn(item); err != nil {
				return err
			}
		}
	})
	return steps, err
}

// run prepares a query context for q and calls eval with it.
func (e *Engine) run(ctx context.Context, q *Query, bindings map[string]value.Seq, eval func(*expr.QueryContext) error) (err error) {
	evalSeq := e.stamp()
	ctx, span := telemetry.StartEvaluateSpan(ctx, q.ID, q.Name)
	defer func() { telemetry.EndSpan(span, err) }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := e.logger.With("query_id", q.ID, "eval_seq", evalSeq)
	quota := NewQuotaEnforcer(e.maxSteps)
	opts := []expr.QueryOption{
		expr.WithQuota(quota),
		expr.WithSeed(uint64(evalSeq)),
		expr.WithQueryLogger(logger),
		expr.WithContextItem(q.context),
	}
	if e.collections != nil {
		opts = append(opts, expr.WithCollections(e.collections))
	}
	qc := expr.NewQueryContext(ctx, opts...)

	if err := e.bind(qc, q, bindings); err != nil {
		return err
	}

	start := time.Now()
	err = eval(qc)
	telemetry.RecordEvaluation(ctx, Outcome(err), qc.Steps(), time.Since(start))
	if err != nil {
		logger.Info("evaluation failed", "steps", qc.Steps(), "error", err)
		return fmt.Errorf("evaluate %s: %w", q.Name, err)
	}
	logger.Debug("evaluated", "steps", qc.Steps(), "updates", len(qc.Updates()))
	return nil
}

// bind assigns every external variable from bindings or its default.
// A binding must match the declared type of its variable.
func (e *Engine) bind(qc *expr.QueryContext, q *Query, bindings map[string]value.Seq) error {
	declared := make(map[string]bool, len(q.externals))
	for _, ext := range q.externals {
		declared[ext.Var.Name] = true
	}
	for name := range bindings {
		if !declared[name] {
			return NewUnknownExternalError(q.Name, name)
		}
	}

	for _, ext := range q.externals {
		v, ok := bindings[ext.Var.Name]
		if !ok {
			if ext.Default == nil {
				return NewMissingExternalError(q.Name, ext.Var.Name)
			}
			v = ext.Default
		}
		if v == nil {
			v = value.Items{}
		}
		if st := expr.ConstOf(qerr.Info{}, v).SeqType(); !st.InstanceOf(ext.Var.Type) {
			return qerr.New(qerr.CodeType, qerr.Info{},
				"external variable $%s: %s is not an instance of %s", ext.Var.Name, st, ext.Var.Type)
		}
		qc.Bind(ext.Var, v)
	}
	return nil
}
