package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFixpointWithoutRewrites(t *testing.T) {
	cc := expr.NewCompileContext(context.Background(), expr.WithLogger(quiet))
	root, passes, err := fixpoint(cc, expr.NewConst(qerr.Info{}, value.Int(1)), DefaultMaxPasses, quiet)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.Zero(t, cc.Rewrites())
	assert.Equal(t, "1", root.String())
}

func TestFixpointStopsWhenQuiet(t *testing.T) {
	p := loadPlan(t, `
plan: p: query: call: {name: "not", args: [{call: {name: "not", args: [
	{cmp: {op: "=", left: const: 1, right: const: 1}},
]}}]}`, "p")
	cc := expr.NewCompileContext(context.Background(), expr.WithLogger(quiet))
	root, passes, err := fixpoint(cc, p.Query, DefaultMaxPasses, quiet)
	require.NoError(t, err)
	assert.Less(t, passes, DefaultMaxPasses)
	assert.Equal(t, "true()", root.String())
}
