package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/value"
)

func TestFixedIDGenerator(t *testing.T) {
	var g engine.IDGenerator = NewFixedIDGenerator("q")
	assert.Equal(t, "q", g.Generate())
	assert.Equal(t, "q", g.Generate())
	assert.Equal(t, "test-query", NewFixedIDGenerator("").Generate())
}

func TestCountdownContext(t *testing.T) {
	ctx := NewCountdownContext(2)
	assert.NoError(t, ctx.Err())
	select {
	case <-ctx.Done():
		t.Fatal("done too early")
	default:
	}
	assert.NoError(t, ctx.Err())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 0, ctx.Remaining())
	<-ctx.Done()
}

func TestCountdownContextAlreadySpent(t *testing.T) {
	ctx := NewCountdownContext(0)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	<-ctx.Done()
}

func TestCountdownInterruptsEvaluation(t *testing.T) {
	e := engine.New(engine.WithIDGenerator(NewFixedIDGenerator("")))
	q, err := e.Compile(context.Background(), LoadPlan(t, `
plan: count: {
	externals: n: {type: "xs:integer"}
	query: for: {var: "x", in: {range: [{const: 1}, {var: "n"}]}, body: arith: {op: "*", left: {var: "x"}, right: {const: 2}}}
}`, "count"))
	require.NoError(t, err)

	_, err = e.Evaluate(NewCountdownContext(1), q, map[string]value.Seq{"n": Ints(10_000)})
	require.Error(t, err)
	assert.True(t, engine.IsInterrupted(err), "%v", err)
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, value.Items{value.Int(1), value.Int(2)}, Ints(1, 2))
	assert.Equal(t, value.Items{value.Str("a")}, Strs("a"))
	assert.Equal(t, []string{"1", "a"}, Strings(value.Items{value.Int(1), value.Str("a")}))

	doc := Doc(t, "<a><b>x</b></a>")
	assert.Equal(t, "x", doc.StringValue())
}
