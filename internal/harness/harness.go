package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/store"
	"github.com/roach88/xqcore/internal/testutil"
	"github.com/roach88/xqcore/internal/value"
)

// Harness is the state of one scenario run.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine

	// scans evaluates without index negotiation; nil unless the scenario
	// has records and indexes are enabled.
	scans *engine.Engine

	plans   map[string]cue.Value
	queries map[string]*engine.Query
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used by the engine and the harness.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation, with a
// fixed query id for reproducible traces.
//
// Execution flow:
// 1. Load plan files
// 2. Seed the record store
// 3. Compile and evaluate each case, checking expectations and properties
// 4. Evaluate assertions against the rewrite trace
//
// Returns an error only if the scenario cannot be set up; failed
// expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	plans, err := loadPlanFiles(scenario.Plans)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, scenario.Records); err != nil {
		return nil, err
	}

	engineOpts := []engine.EngineOption{
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.Name)),
		engine.WithLogger(o.logger),
		engine.WithCollections(st),
	}
	if scenario.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(scenario.MaxSteps))
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		plans:    plans,
		queries:  make(map[string]*engine.Query),
		logger:   o.logger.With("scenario", scenario.Name),
	}
	if scenario.NoIndexes {
		h.engine = engine.New(engineOpts...)
	} else {
		h.engine = engine.New(append(engineOpts, engine.WithIndexes(st))...)
		if len(scenario.Records) > 0 {
			h.scans = engine.New(engineOpts...)
		}
	}

	result := NewResult(scenario.Name)
	for _, c := range scenario.Cases {
		result.Cases = append(result.Cases, h.runCase(ctx, c, result))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished", "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

// RunAll runs scenarios concurrently, at most limit at a time (no limit if
// limit <= 0). Results are in scenario order. Returns the first setup error.
func RunAll(ctx context.Context, scenarios []*Scenario, limit int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range scenarios {
		g.Go(func() error {
			r, err := Run(ctx, s, opts...)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runCase compiles and evaluates one case and checks its expectations.
func (h *Harness) runCase(ctx context.Context, c Case, result *Result) CaseResult {
	cr := CaseResult{Name: c.label(), Plan: c.Plan, Items: []string{}}
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("%s: ", cr.Name) + fmt.Sprintf(format, args...))
	}

	q, err := h.compile(ctx, h.engine, c.Plan, result)
	if err != nil {
		cr.Error = ErrorCode(err)
		h.checkError(c, cr, fail)
		return cr
	}
	cr.Type = q.SeqType().String()
	cr.Final = q.Root.String()

	bindings, err := toBindings(c.Bindings)
	if err != nil {
		fail("bindings: %v", err)
		return cr
	}

	res, err := h.engine.Evaluate(ctx, q, bindings)
	if err != nil {
		cr.Error = ErrorCode(err)
	} else {
		cr.Items = testutil.Strings(res.Value)
		cr.Steps = res.Steps
	}

	h.checkError(c, cr, fail)
	if err == nil {
		h.checkItems(c, cr, fail)
	}
	if c.Expect.Type != "" && c.Expect.Type != cr.Type {
		fail("static type: expected %s, got %s", c.Expect.Type, cr.Type)
	}

	for _, msg := range h.checkProperties(ctx, c, q, bindings, cr) {
		fail("%s", msg)
	}
	return cr
}

// compile compiles a plan with eng. The first compilation of each plan on
// the main engine adds its rewrites to the result trace.
func (h *Harness) compile(ctx context.Context, eng *engine.Engine, name string, result *Result) (*engine.Query, error) {
	v, ok := h.plans[name]
	if !ok {
		return nil, fmt.Errorf("no plan named %q", name)
	}
	p, err := compiler.LoadPlan(v)
	if err != nil {
		return nil, err
	}
	q, err := eng.Compile(ctx, p)
	if err != nil {
		return nil, err
	}
	if eng == h.engine {
		if _, seen := h.queries[name]; !seen {
			h.queries[name] = q
			result.streamable[name] = q.Streamable()
			for _, ev := range q.Trace {
				result.Trace = append(result.Trace, TraceEvent{
					Plan:   name,
					Seq:    ev.Seq,
					Rule:   ev.Rule,
					Before: ev.Before,
					After:  ev.After,
				})
			}
		}
	}
	return q, nil
}

func (h *Harness) checkError(c Case, cr CaseResult, fail func(string, ...any)) {
	switch {
	case c.Expect.Error == "" && cr.Error != "":
		fail("unexpected error %s", cr.Error)
	case c.Expect.Error != "" && cr.Error == "":
		fail("expected error %s, got %d items", c.Expect.Error, len(cr.Items))
	case c.Expect.Error != cr.Error:
		fail("expected error %s, got %s", c.Expect.Error, cr.Error)
	}
}

func (h *Harness) checkItems(c Case, cr CaseResult, fail func(string, ...any)) {
	e := c.Expect
	if e.Items != nil && !equalStrings(e.Items, cr.Items) {
		fail("items: expected %q, got %q", e.Items, cr.Items)
	}
	if e.Empty && len(cr.Items) > 0 {
		fail("expected empty sequence, got %q", cr.Items)
	}
	if e.Count != nil && *e.Count != len(cr.Items) {
		fail("count: expected %d, got %d", *e.Count, len(cr.Items))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ErrorCode reduces an error to the code a scenario can expect: the query
// error code, the plan validation code, the engine error code, or the
// message of any other error.
func ErrorCode(err error) string {
	if qe, ok := qerr.As(err); ok {
		return string(qe.Code)
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return err.Error()
}

// loadPlanFiles compiles each CUE file and collects its plans by name.
func loadPlanFiles(paths []string) (map[string]cue.Value, error) {
	cctx := cuecontext.New()
	plans := make(map[string]cue.Value)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read plan file: %w", err)
		}
		v := cctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("plan file %s: %w", path, err)
		}
		pv := v.LookupPath(cue.ParsePath("plan"))
		if !pv.Exists() {
			return nil, fmt.Errorf("plan file %s: no plan struct", path)
		}
		iter, err := pv.Fields()
		if err != nil {
			return nil, fmt.Errorf("plan file %s: no plan struct: %w", path, err)
		}
		for iter.Next() {
			name := iter.Label()
			if _, dup := plans[name]; dup {
				return nil, fmt.Errorf("plan file %s: duplicate plan %q", path, name)
			}
			plans[name] = iter.Value()
		}
	}
	return plans, nil
}

// seed inserts records collection by collection, in name order.
func seed(ctx context.Context, st *store.Store, records map[string][]string) error {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for i, doc := range records[name] {
			if _, err := st.Insert(ctx, name, doc); err != nil {
				return fmt.Errorf("records %s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

// toBindings converts YAML binding values to sequences.
func toBindings(in map[string]any) (map[string]value.Seq, error) {
	out := make(map[string]value.Seq, len(in))
	for name, v := range in {
		items, err := toItems(v)
		if err != nil {
			return nil, fmt.Errorf("$%s: %w", name, err)
		}
		out[name] = value.Items(items)
	}
	return out, nil
}

func toItems(v any) ([]value.Item, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []value.Item{value.Str(x)}, nil
	case int:
		return []value.Item{value.Int(x)}, nil
	case int64:
		return []value.Item{value.Int(x)}, nil
	case float64:
		return []value.Item{value.Dbl(x)}, nil
	case bool:
		return []value.Item{value.Bln(x)}, nil
	case []any:
		var out []value.Item
		for i, elem := range x {
			items, err := toItems(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, items...)
		}
		return out, nil
	case map[string]any:
		src, ok := x["xml"].(string)
		if !ok || len(x) != 1 {
			return nil, fmt.Errorf("object binding must be {xml: string}")
		}
		doc, err := value.ParseXMLString(src)
		if err != nil {
			return nil, err
		}
		return []value.Item{doc}, nil
	}
	return nil, fmt.Errorf("unsupported binding type %T", v)
}
