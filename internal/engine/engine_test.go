package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/store"
	"github.com/roach88/xqcore/internal/value"
)

const doubledPlan = `
plan: doubled: {
	externals: n: {type: "xs:integer"}
	query: for: {
		var: "x"
		in: range: [{const: 1}, {var: "n"}]
		body: arith: {op: "*", left: {var: "x"}, right: {const: 2}}
	}
}
`

func TestCompileFoldsConstants(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, `plan: p: query: arith: {op: "+", left: const: 1, right: const: 2}`, "p"))
	require.NoError(t, err)

	assert.Equal(t, "q-1", q.ID)
	assert.Equal(t, int64(1), q.Seq)
	assert.Equal(t, "p", q.Name)
	c, ok := q.Root.(*expr.Const)
	require.True(t, ok, "root is %T", q.Root)
	assert.Equal(t, []int64{3}, ints(t, c.Val))
	require.NotEmpty(t, q.Trace)
	assert.Equal(t, "pre-evaluate", q.Trace[0].Rule)
	assert.Equal(t, 1, q.Trace[0].Seq)
	assert.GreaterOrEqual(t, q.Passes, 1)
}

func TestCompileReachesFixpoint(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, `
plan: p: query: filter: {
	root: seq: [{const: 10}, {const: 20}, {const: 30}, {const: 40}]
	preds: [{cmp: {op: "=", left: call: {name: "position"}, right: const: 2}}]
}`, "p"))
	require.NoError(t, err)

	text := q.Root.String()
	fired, err := e.Recheck(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, fired, "a finished tree fires no rule")
	assert.Equal(t, text, q.Root.String(), "recheck leaves the query alone")

	res, err := e.Evaluate(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, ints(t, res.Value))
}

func TestRecheckAfterFixpoint(t *testing.T) {
	e := newTestEngine()
	for _, src := range []string{
		doubledPlan,
		`plan: doubled: query: call: {name: "not", args: [{call: {name: "not", args: [{call: {name: "true"}}]}}]}`,
		`plan: doubled: {context: xml: "<a><b/></a>", query: path: steps: ["a", "b"]}`,
	} {
		q, err := e.Compile(context.Background(), loadPlan(t, src, "doubled"))
		require.NoError(t, err)
		fired, err := e.Recheck(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, fired, "%s", q.Root)
	}
}

func TestCompileStaticError(t *testing.T) {
	e := newTestEngine()
	_, err := e.Compile(context.Background(), loadPlan(t, `plan: p: query: var: "nope"`, "p"))
	require.Error(t, err)
	assert.True(t, qerr.IsStatic(err))
	assert.True(t, qerr.Is(err, qerr.CodeUndefinedVar))
	assert.Contains(t, err.Error(), "compile p")
}

func TestCompileUsesCache(t *testing.T) {
	src := `plan: p: query: arith: {op: "*", left: const: 6, right: const: 7}`
	e := New(WithIDGenerator(NewFixedGenerator("only")))

	q1, err := e.Compile(context.Background(), loadPlan(t, src, "p"))
	require.NoError(t, err)
	q2, err := e.Compile(context.Background(), loadPlan(t, src, "p"))
	require.NoError(t, err)
	assert.Same(t, q1, q2)
	assert.Equal(t, 1, e.cache.len())
}

func TestCompileWithoutCache(t *testing.T) {
	src := `plan: p: query: const: 1`
	e := newTestEngine(WithCacheSize(0))

	q1, err := e.Compile(context.Background(), loadPlan(t, src, "p"))
	require.NoError(t, err)
	q2, err := e.Compile(context.Background(), loadPlan(t, src, "p"))
	require.NoError(t, err)
	assert.NotSame(t, q1, q2)
	assert.Equal(t, "q-2", q2.ID)
	assert.Equal(t, q1.Fingerprint, q2.Fingerprint)
}

func TestCompileForwardsRewritesToTracer(t *testing.T) {
	var events []expr.RewriteEvent
	e := newTestEngine(WithTracer(expr.TracerFunc(func(ev expr.RewriteEvent) {
		events = append(events, ev)
	})))
	q, err := e.Compile(context.Background(), loadPlan(t, `plan: p: query: call: {name: "not", args: [{call: {name: "not", args: [{call: {name: "true"}}]}}]}`, "p"))
	require.NoError(t, err)
	assert.Equal(t, q.Trace, events)
}

func TestCompilePassLimit(t *testing.T) {
	logger, buf := bufferLogger()
	e := newTestEngine(WithMaxPasses(1), WithLogger(logger))
	q, err := e.Compile(context.Background(), loadPlan(t, `plan: p: query: arith: {op: "+", left: const: 1, right: const: 2}`, "p"))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Passes)
	assert.Contains(t, buf.String(), "optimization stopped at pass limit")
}

func TestCompileLogsLifecycle(t *testing.T) {
	logger, buf := bufferLogger()
	e := newTestEngine(WithLogger(logger))
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), q, map[string]value.Seq{"n": value.Items{value.Int(3)}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"compiled"`)
	assert.Contains(t, out, `"query_id":"q-1"`)
	assert.Contains(t, out, `"msg":"evaluated"`)
}

func TestEvaluateBindsExternals(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, q.Externals())

	res, err := e.Evaluate(context.Background(), q, map[string]value.Seq{"n": value.Items{value.Int(4)}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6, 8}, ints(t, res.Value))
	assert.Positive(t, res.Steps)
	assert.Empty(t, res.Updates)
}

func TestEvaluateExternalDefault(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, `
plan: p: {
	externals: m: {type: "xs:integer", value: 10}
	query: arith: {op: "+", left: var: "m", right: const: 1}
}`, "p"))
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, ints(t, res.Value))

	res, err = e.Evaluate(context.Background(), q, map[string]value.Seq{"m": value.Items{value.Int(1)}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ints(t, res.Value))
}

func TestEvaluateBindingErrors(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		bindings map[string]value.Seq
		check    func(t *testing.T, err error)
	}{
		{"missing", nil, func(t *testing.T, err error) {
			var ee *EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, ErrCodeMissingExternal, ee.Code)
			assert.Equal(t, "n", ee.Details["variable"])
		}},
		{"unknown", map[string]value.Seq{"n": value.Items{value.Int(1)}, "k": value.Items{}}, func(t *testing.T, err error) {
			var ee *EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, ErrCodeUnknownExternal, ee.Code)
			assert.Contains(t, err.Error(), "plan=doubled")
		}},
		{"wrong type", map[string]value.Seq{"n": value.Items{value.Str("three")}}, func(t *testing.T, err error) {
			assert.True(t, qerr.Is(err, qerr.CodeType), "%v", err)
		}},
		{"too many", map[string]value.Seq{"n": value.Items{value.Int(1), value.Int(2)}}, func(t *testing.T, err error) {
			assert.True(t, qerr.Is(err, qerr.CodeType), "%v", err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(context.Background(), q, tt.bindings)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEvaluateStepQuota(t *testing.T) {
	e := newTestEngine(WithMaxSteps(50))
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), q, map[string]value.Seq{"n": value.Items{value.Int(1000)}})
	require.Error(t, err)
	assert.True(t, IsQuotaError(err), "%v", err)
	assert.Equal(t, "XQIN0002", Outcome(err))

	res, err := e.Evaluate(context.Background(), q, map[string]value.Seq{"n": value.Items{value.Int(3)}})
	require.NoError(t, err, "each evaluation has its own quota")
	assert.Equal(t, []int64{2, 4, 6}, ints(t, res.Value))
}

func TestEvaluateInterrupted(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, q, map[string]value.Seq{"n": value.Items{value.Int(1000)}})
	require.Error(t, err)
	assert.True(t, IsInterrupted(err), "%v", err)
	assert.False(t, IsQuotaError(err))
}

func TestEvaluateContextItem(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, `
plan: p: {
	context: xml: "<shelf><book>a</book><book>b</book><book>c</book></shelf>"
	query: call: {name: "count", args: [{path: {steps: ["shelf", "book"]}}]}
}`, "p"))
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ints(t, res.Value))
}

func TestStream(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)
	bindings := map[string]value.Seq{"n": value.Items{value.Int(5)}}

	var got []value.Item
	steps, err := e.Stream(context.Background(), q, bindings, func(it value.Item) error {
		got = append(got, it)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, ints(t, value.Items(got)))
	assert.Positive(t, steps)

	errStop := errors.New("stop")
	got = nil
	_, err = e.Stream(context.Background(), q, bindings, func(it value.Item) error {
		got = append(got, it)
		if len(got) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	assert.Len(t, got, 2)
}

func TestStreamable(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"many items", doubledPlan, true},
		{"single item", `plan: doubled: {externals: n: {type: "xs:integer"}, query: call: {name: "count", args: [{var: "n"}]}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := e.Compile(context.Background(), loadPlan(t, tt.src, "doubled"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Streamable(), "%s: %s", q.SeqType(), q.Root)
		})
	}
}

func TestEvaluateConcurrently(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, doubledPlan, "doubled"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	sums := make([]int, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Evaluate(context.Background(), q, map[string]value.Seq{"n": value.Items{value.Int(int64(i + 1))}})
			if err != nil {
				errs[i] = err
				return
			}
			sums[i] = int(res.Value.Len())
		}()
	}
	wg.Wait()
	for i := range 20 {
		require.NoError(t, errs[i])
		assert.Equal(t, i+1, sums[i])
	}
}

func TestExplain(t *testing.T) {
	e := newTestEngine()
	q, err := e.Compile(context.Background(), loadPlan(t, `plan: p: query: arith: {op: "+", left: const: 1, right: const: 2}`, "p"))
	require.NoError(t, err)

	x := q.Explain()
	assert.Equal(t, "p", x.Name)
	assert.Equal(t, q.Fingerprint, x.Fingerprint)
	assert.Equal(t, "xs:integer", x.Type)
	assert.False(t, x.Streamable)
	assert.Equal(t, 1, x.Nodes)
	assert.Equal(t, "3", x.Plan)

	text := x.String()
	assert.True(t, strings.HasPrefix(text, "query p\n"), text)
	assert.Contains(t, text, "pre-evaluate")
	assert.Contains(t, text, "=> 3")
	assert.True(t, strings.HasSuffix(text, "plan:\n  3\n"), text)
}

func TestEvaluateUsesIndexes(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, b := range []string{
		`<book><title>A</title><price>5</price></book>`,
		`<book><title>B</title><price>12</price></book>`,
		`<book><title>C</title><price>30</price></book>`,
		`<book><title>D</title><price>8</price></book>`,
	} {
		_, err := s.Insert(context.Background(), "books", b)
		require.NoError(t, err)
	}

	e := newTestEngine(WithIndexes(s), WithCollections(s))
	q, err := e.Compile(context.Background(), loadPlan(t, `
plan: p: query: filter: {
	root: collection: "books"
	preds: [{cmp: {op: ">=", left: step: "price", right: const: 10}}]
}`, "p"))
	require.NoError(t, err)

	var rules []string
	for _, ev := range q.Trace {
		rules = append(rules, ev.Rule)
	}
	assert.Contains(t, rules, "index access")

	res, err := e.Evaluate(context.Background(), q, nil)
	require.NoError(t, err)
	var titles []string
	for _, it := range value.Slice(res.Value) {
		n, ok := it.(*value.Node)
		require.True(t, ok, "%T", it)
		titles = append(titles, n.Children[0].StringValue())
	}
	assert.Equal(t, []string{"B", "C"}, titles)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "FOAR0001", Outcome(qerr.New(qerr.CodeDivByZero, qerr.Info{}, "div")))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestStampsAreUniqueUnderConcurrency(t *testing.T) {
	e := newTestEngine()
	const workers, calls = 50, 200

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, workers*calls)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				n := e.stamp()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls+1), e.stamp())
}
