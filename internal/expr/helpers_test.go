package expr

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

var at = qerr.Info{File: "test", Line: 1, Column: 1}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ints(ns ...int64) *Const {
	items := make([]value.Item, len(ns))
	for i, n := range ns {
		items[i] = value.Int(n)
	}
	return NewConst(at, items...)
}

func strs(ss ...string) *Const {
	items := make([]value.Item, len(ss))
	for i, s := range ss {
		items[i] = value.Str(s)
	}
	return NewConst(at, items...)
}

func call(t *testing.T, name string, args ...Expr) Expr {
	t.Helper()
	f, err := NewFn(at, name, args...)
	require.NoError(t, err)
	return f
}

func external(name string, typ seqtype.SeqType) *Var {
	v := NewVar(name)
	v.Type = typ
	return v
}

func ref(v *Var) *VarRef { return NewVarRef(at, v.Name) }

func child(name string) *Step { return NewStep(at, AxisChild, ParseTest(AxisChild, name)) }

// compileExpr compiles e and returns the result with its rewrite trace.
func compileExpr(t *testing.T, e Expr, opts ...CompileOption) (Expr, []RewriteEvent) {
	t.Helper()
	var events []RewriteEvent
	base := []CompileOption{
		WithLogger(quiet()),
		WithTracer(TracerFunc(func(ev RewriteEvent) { events = append(events, ev) })),
	}
	cc := NewCompileContext(context.Background(), append(base, opts...)...)
	r, err := e.Compile(cc)
	require.NoError(t, err)
	return r, events
}

func compileErr(t *testing.T, e Expr, opts ...CompileOption) error {
	t.Helper()
	cc := NewCompileContext(context.Background(), append([]CompileOption{WithLogger(quiet())}, opts...)...)
	_, err := e.Compile(cc)
	require.Error(t, err)
	return err
}

type binding struct {
	v   *Var
	val value.Seq
}

func newQC(binds []binding, opts ...QueryOption) *QueryContext {
	qc := NewQueryContext(context.Background(), append([]QueryOption{WithQueryLogger(quiet())}, opts...)...)
	for _, b := range binds {
		qc.Bind(b.v, b.val)
	}
	return qc
}

func evalExpr(t *testing.T, e Expr, binds []binding, opts ...QueryOption) value.Seq {
	t.Helper()
	v, err := e.Value(newQC(binds, opts...))
	require.NoError(t, err)
	return v
}

func intsOf(t *testing.T, s value.Seq) []int64 {
	t.Helper()
	out := make([]int64, 0, s.Len())
	for i := range s.Len() {
		n, ok := s.At(i).(value.Int)
		require.True(t, ok, "item %d is %T", i, s.At(i))
		out = append(out, int64(n))
	}
	return out
}

func single(t *testing.T, s value.Seq) value.Item {
	t.Helper()
	require.EqualValues(t, 1, s.Len())
	return s.At(0)
}

func stringsOf(s value.Seq) []string {
	out := make([]string, 0, s.Len())
	for i := range s.Len() {
		out = append(out, value.StringOf(s.At(i)))
	}
	return out
}

func rules(events []RewriteEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Rule
	}
	return out
}

// assertStable re-optimizes a compiled tree and requires that nothing
// changes.
func assertStable(t *testing.T, e Expr, opts ...CompileOption) {
	t.Helper()
	var events []RewriteEvent
	base := []CompileOption{
		WithLogger(quiet()),
		WithTracer(TracerFunc(func(ev RewriteEvent) { events = append(events, ev) })),
	}
	cc := NewCompileContext(context.Background(), append(base, opts...)...)
	before := e.String()
	r, err := OptimizeTree(cc, e)
	require.NoError(t, err)
	require.Empty(t, rules(events), "second pass rewrote %s", before)
	require.Same(t, e, r)
	require.Equal(t, before, r.String())
}
