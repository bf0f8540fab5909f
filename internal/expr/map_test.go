package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

const library = `<r><a><b>1</b><b>2</b></a><a><b>3</b></a></r>`

// TestMapMergesSteps verifies that a ! b becomes one path.
func TestMapMergesSteps(t *testing.T) {
	doc, err := value.ParseXMLString(library)
	require.NoError(t, err)
	ctxType := WithContextType(seqtype.One(seqtype.Element))

	r, events := compileExpr(t, NewMap(at, child("a"), child("b")), ctxType)

	p, ok := r.(*Path)
	require.True(t, ok, "got %T %s", r, r)
	assert.Equal(t, "./a/b", p.String())
	assert.Contains(t, rules(events), "merge steps")
	assertStable(t, r, ctxType)

	out := evalExpr(t, r, nil, WithContextItem(doc.Children[0]))
	assert.Equal(t, []string{"1", "2", "3"}, stringsOf(out))
}

func TestMapKeepsInputOrder(t *testing.T) {
	doc, err := value.ParseXMLString(`<r><a><a><b>1</b></a><b>2</b></a></r>`)
	require.NoError(t, err)
	ctxType := WithContextType(seqtype.One(seqtype.Element))
	desc := NewStep(at, AxisDescendant, ParseTest(AxisDescendant, "a"))

	r, _ := compileExpr(t, NewMap(at, desc, child("b")), ctxType)

	// a descendant step on the left is not fused
	_, isPath := r.(*Path)
	assert.False(t, isPath, "got %s", r)
	out := evalExpr(t, r, nil, WithContextItem(doc.Children[0]))
	assert.Equal(t, []string{"2", "1"}, stringsOf(out))
}

func TestMapReplicate(t *testing.T) {
	v := external("v", seqtype.IntegerOne)
	e := NewMap(at,
		call(t, "replicate", ref(v), ints(2)),
		NewArith(at, value.OpAdd, NewContextValue(at), ints(1)))

	r, events := compileExpr(t, e, WithExternals(v))

	assert.Equal(t, "replicate(($v + 1), 2)", r.String())
	assert.Contains(t, rules(events), "replicate map")
	assertStable(t, r, WithExternals(v))
	assert.Equal(t, []int64{6, 6}, intsOf(t, evalExpr(t, r, []binding{{v, ints(5).Val}})))
}

func TestMapInlinesContext(t *testing.T) {
	v := external("v", seqtype.IntegerOne)

	r, events := compileExpr(t, NewMap(at, ref(v), NewArith(at, value.OpMul, NewContextValue(at), ints(2))), WithExternals(v))

	_, ok := r.(*Arith)
	require.True(t, ok, "got %T %s", r, r)
	assert.Equal(t, "($v * 2)", r.String())
	assert.Contains(t, rules(events), "inline context")
	assert.Equal(t, []int64{14}, intsOf(t, evalExpr(t, r, []binding{{v, ints(7).Val}})))
}

func TestMapTrivialOperands(t *testing.T) {
	s := external("s", seqtype.IntStar)
	vars := WithExternals(s)

	r, events := compileExpr(t, NewMap(at, ref(s), NewContextValue(at)), vars)
	assert.Equal(t, "$s", r.String())
	assert.Contains(t, rules(events), "map to context")

	r, _ = compileExpr(t, NewMap(at, NewConst(at), ref(s)), vars)
	c, ok := r.(*Const)
	require.True(t, ok, "got %T %s", r, r)
	assert.Zero(t, c.Val.Len())

	r, events = compileExpr(t, NewMap(at, ref(s), ints(1)), vars)
	assert.Equal(t, "$s ! 1", r.String())
	assert.Contains(t, rules(events), "select map variant")
}

func TestMapDual(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		want []int64
	}{
		{"position", "position", []int64{1, 2, 3}},
		{"last", "last", []int64{3, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := compileExpr(t, NewMap(at, strs("a", "b", "c"), call(t, tt.fn)))

			_, ok := r.(*DualMap)
			require.True(t, ok, "got %T %s", r, r)
			assertStable(t, r)
			assert.Equal(t, tt.want, intsOf(t, evalExpr(t, r, nil)))
		})
	}
}

func TestMapIter(t *testing.T) {
	pair := func() Expr { return NewList(at, NewContextValue(at), ints(10)) }
	tests := []struct {
		name string
		fn   string
		want []int64
	}{
		{"position", "position", []int64{1, 2, 1, 2}},
		{"last", "last", []int64{2, 2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := compileExpr(t, NewMap(at, ints(1, 2), pair(), call(t, tt.fn)))

			_, ok := r.(*IterMap)
			require.True(t, ok, "got %T %s", r, r)
			assertStable(t, r)
			assert.Equal(t, tt.want, intsOf(t, evalExpr(t, r, nil)))
		})
	}
}

func TestMapItemPipeline(t *testing.T) {
	v := external("v", seqtype.IntegerOne)
	s := external("s", seqtype.IntStar)
	e := NewMap(at,
		ref(v),
		call(t, "random"),
		NewList(at, ref(s), NewContextValue(at)))

	r, _ := compileExpr(t, e, WithExternals(v, s))

	_, ok := r.(*ItemMap)
	require.True(t, ok, "got %T %s", r, r)
	out := evalExpr(t, r, []binding{{v, ints(1).Val}, {s, ints(4, 5).Val}}, WithSeed(1))
	require.EqualValues(t, 3, out.Len())
	assert.Equal(t, value.Int(4), out.At(0))
	assert.Equal(t, value.Int(5), out.At(1))
	assert.IsType(t, value.Dbl(0), out.At(2))
}

func TestMapFlattens(t *testing.T) {
	e := NewMap(at, NewMap(at, ints(1, 2), NewList(at, NewContextValue(at), ints(0))), call(t, "position"))

	r, events := compileExpr(t, e)

	m, ok := asMap(r)
	require.True(t, ok, "got %T %s", r, r)
	assert.Len(t, m.Ops, 3)
	assert.Contains(t, rules(events), "merge map operands")
}
