package store

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/index"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

var at = qerr.Info{File: "store_test", Line: 1, Column: 1}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEstimate(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		d    index.Descriptor
		want int64
	}{
		{"token", index.TokenMatch{Collection: "books", Path: []string{"author"}, Value: "Ann"}, 2},
		{"nested token", index.TokenMatch{Collection: "books", Path: []string{"author", "name"}, Value: "Cid"}, 1},
		{"attribute", index.TokenMatch{Collection: "books", Path: []string{"@id"}, Value: "b2"}, 1},
		{"numeric any value", index.NumericRange{Collection: "books", Path: []string{"price"}, Min: 10, Max: math.Inf(1), MinIncl: true}, 2},
		{"numeric point", index.NumericRange{Collection: "books", Path: []string{"price"}, Min: 4, Max: 4, MinIncl: true, MaxIncl: true}, 1},
		{"numeric unbounded", index.NumericRange{Collection: "books", Path: []string{"price"}, Min: math.Inf(-1), Max: math.Inf(1)}, 4},
		{"string range", index.StringRange{Collection: "books", Path: []string{"title"}, Min: "B", Max: "C", HasMin: true, HasMax: true, MinIncl: true, MaxIncl: true}, 2},
		{"other collection", index.TokenMatch{Collection: "films", Path: []string{"author"}, Value: "Ann"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, err := s.Estimate(ctx, tt.d)
			require.NoError(t, err)
			assert.True(t, cost.Applicable)
			assert.Equal(t, tt.want, cost.Results)
		})
	}
}

func TestEstimate_Ineligible(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)

	cost, err := s.Estimate(context.Background(), index.TokenMatch{Collection: "books", Value: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, index.NotApplicable, cost)
}

func TestEstimate_CacheDroppedOnInsert(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)
	ctx := context.Background()
	d := index.TokenMatch{Collection: "books", Path: []string{"author"}, Value: "Ann"}

	cost, err := s.Estimate(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cost.Results)

	_, err = s.Insert(ctx, "books", `<book><title>E</title><author>Ann</author></book>`)
	require.NoError(t, err)

	cost, err = s.Estimate(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cost.Results)
}

func TestAccess(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)
	ctx := context.Background()

	e, err := s.Access(ctx, index.NumericRange{
		Collection: "books", Path: []string{"price"},
		Min: 10, Max: math.Inf(1), MinIncl: true,
	}, at)
	require.NoError(t, err)

	acc, ok := e.(*expr.IndexAccess)
	require.True(t, ok, "got %T", e)
	coll, path := acc.Desc.Target()
	assert.Equal(t, "books", coll)
	assert.Equal(t, []string{"price"}, path)

	recs, err := e.Value(expr.NewQueryContext(ctx, expr.WithQueryLogger(quiet())))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, titlesOf(t, recs))
}

func TestAccess_RejectsIneligible(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Access(context.Background(), index.StringRange{Collection: "books", Path: []string{"title"}, Min: "Z", Max: "A"}, at)
	assert.Error(t, err)
}

func priceFilter(coll string, op value.CmpOp, n int64) expr.Expr {
	price := expr.NewStep(at, expr.AxisChild, expr.ParseTest(expr.AxisChild, "price"))
	return expr.NewFilter(at, expr.NewCollection(at, coll),
		expr.NewCmpG(at, op, price, expr.NewConst(at, value.Int(n))))
}

func compileWith(t *testing.T, e expr.Expr, opts ...expr.CompileOption) expr.Expr {
	t.Helper()
	cc := expr.NewCompileContext(context.Background(), append([]expr.CompileOption{expr.WithLogger(quiet())}, opts...)...)
	r, err := e.Compile(cc)
	require.NoError(t, err)
	return r
}

func TestStoreServesFilter(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)
	qc := expr.NewQueryContext(context.Background(), expr.WithCollections(s), expr.WithQueryLogger(quiet()))

	indexed := compileWith(t, priceFilter("books", value.OpGe, 10), expr.WithIndexProvider(s))
	_, ok := indexed.(*expr.IndexAccess)
	require.True(t, ok, "got %T %s", indexed, indexed)

	scanned := compileWith(t, priceFilter("books", value.OpGe, 10))
	_, ok = scanned.(*expr.IndexAccess)
	require.False(t, ok)

	viaIndex, err := indexed.Value(qc)
	require.NoError(t, err)
	viaScan, err := scanned.Value(qc)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, titlesOf(t, viaIndex))
	assert.Equal(t, titlesOf(t, viaScan), titlesOf(t, viaIndex))
}

func TestStoreKeepsScanWhenIndexIsNotCheaper(t *testing.T) {
	s := createTestStore(t)
	for _, doc := range []string{`<n><price>1</price></n>`, `<n><price>2</price></n>`} {
		_, err := s.Insert(context.Background(), "nums", doc)
		require.NoError(t, err)
	}

	// Every record matches, so the index cannot beat a scan.
	r := compileWith(t, priceFilter("nums", value.OpLt, 100), expr.WithIndexProvider(s))
	_, ok := r.(*expr.IndexAccess)
	assert.False(t, ok, "got %s", r)
}
