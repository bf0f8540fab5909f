package expr

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

func TestAndNotIsFalse(t *testing.T) {
	i := external("i", seqtype.IntegerOne)
	eq := func() Expr { return NewCmpG(at, value.OpEq, ref(i), ints(1)) }

	r, events := compileExpr(t, NewAnd(at, eq(), call(t, "not", eq())), WithExternals(i))

	b, ok := constBool(r)
	require.True(t, ok, "got %s", r)
	assert.False(t, b)
	assert.Contains(t, rules(events), "complementary and operands")
}

func TestOrNotIsTrue(t *testing.T) {
	a := external("a", seqtype.BooleanOne)

	r, _ := compileExpr(t, NewOr(at, ref(a), call(t, "not", ref(a))), WithExternals(a))

	b, ok := constBool(r)
	require.True(t, ok, "got %s", r)
	assert.True(t, b)
}

func TestEmptyOrExistsIsTrue(t *testing.T) {
	s := external("s", seqtype.IntStar)

	r, _ := compileExpr(t, NewOr(at, call(t, "empty", ref(s)), call(t, "exists", ref(s))), WithExternals(s))
	b, ok := constBool(r)
	require.True(t, ok, "got %s", r)
	assert.True(t, b)

	r, _ = compileExpr(t, NewAnd(at, call(t, "empty", ref(s)), call(t, "exists", ref(s))), WithExternals(s))
	b, ok = constBool(r)
	require.True(t, ok, "got %s", r)
	assert.False(t, b)
}

func TestComplementKeptForNonDeterministicOperands(t *testing.T) {
	gt := func() Expr { return NewCmpG(at, value.OpGt, call(t, "random"), NewConst(at, value.Dbl(0.5))) }

	r, _ := compileExpr(t, NewAnd(at, gt(), call(t, "not", gt())))

	_, ok := constBool(r)
	assert.False(t, ok, "non-deterministic operands must stay: %s", r)
}

func TestInverseComparisonNeedsReflexiveOperands(t *testing.T) {
	i := external("i", seqtype.IntegerOne)
	j := external("j", seqtype.IntegerOne)
	d := external("d", seqtype.DoubleOne)
	vars := WithExternals(i, j, d)

	r, _ := compileExpr(t, NewAnd(at,
		NewCmpV(at, value.OpEq, ref(i), ref(j)),
		NewCmpV(at, value.OpNe, ref(i), ref(j))), vars)
	b, ok := constBool(r)
	require.True(t, ok, "got %s", r)
	assert.False(t, b)

	// NaN makes both tests false, so doubles cannot be folded.
	r, _ = compileExpr(t, NewAnd(at,
		NewCmpV(at, value.OpEq, ref(i), ref(d)),
		NewCmpV(at, value.OpNe, ref(i), ref(d))), vars)
	_, ok = constBool(r)
	assert.False(t, ok, "double operands are not reflexive: %s", r)
}

func TestRangeFusion(t *testing.T) {
	i := external("i", seqtype.IntegerOne)
	cmp := func(op value.CmpOp, n int64) Expr { return NewCmpG(at, op, ref(i), ints(n)) }

	t.Run("point", func(t *testing.T) {
		r, _ := compileExpr(t, NewAnd(at, cmp(value.OpGe, 2), cmp(value.OpLe, 2)), WithExternals(i))
		assert.Equal(t, "($i = 2)", r.String())
		_, ok := r.(*CmpG)
		assert.True(t, ok)
	})

	t.Run("disjoint", func(t *testing.T) {
		r, _ := compileExpr(t, NewAnd(at, cmp(value.OpGe, 5), cmp(value.OpLe, 1)), WithExternals(i))
		b, ok := constBool(r)
		require.True(t, ok, "got %s", r)
		assert.False(t, b)
	})

	t.Run("interval", func(t *testing.T) {
		r, _ := compileExpr(t, NewAnd(at, cmp(value.OpGt, 1), cmp(value.OpLt, 4)), WithExternals(i))
		cr, ok := r.(*CmpR)
		require.True(t, ok, "got %T %s", r, r)
		assert.Equal(t, "($i in (1, 4))", cr.String())
		for n, want := range map[int64]bool{1: false, 2: true, 3: true, 4: false} {
			out := evalExpr(t, r, []binding{{i, ints(n).Val}})
			assert.Equal(t, value.Bln(want), single(t, out), "$i = %d", n)
		}
		assertStable(t, r, WithExternals(i))
	})

	t.Run("union", func(t *testing.T) {
		r, _ := compileExpr(t, NewOr(at, cmp(value.OpLt, 3), cmp(value.OpGe, 2)), WithExternals(i))
		_, ok := r.(*CmpR)
		require.True(t, ok, "got %T %s", r, r)
		assert.Equal(t, "($i in (-inf, inf))", r.String())
	})

	t.Run("gap", func(t *testing.T) {
		r, _ := compileExpr(t, NewOr(at, cmp(value.OpLt, 1), cmp(value.OpGt, 5)), WithExternals(i))
		_, ok := r.(*Or)
		assert.True(t, ok, "got %T %s", r, r)
	})

	t.Run("union excludes NaN", func(t *testing.T) {
		d := external("d", seqtype.DoubleOne)
		two := NewConst(at, value.Dbl(2))
		r, _ := compileExpr(t, NewOr(at,
			NewCmpG(at, value.OpLt, ref(d), two),
			NewCmpG(at, value.OpGe, ref(d), two)), WithExternals(d))
		for _, in := range []float64{math.NaN(), 1, 2, math.Inf(1)} {
			out := evalExpr(t, r, []binding{{d, value.Items{value.Dbl(in)}}})
			assert.Equal(t, value.Bln(!math.IsNaN(in)), single(t, out), "$d = %v in %s", in, r)
		}
	})

	t.Run("untyped union not fused", func(t *testing.T) {
		u := external("u", seqtype.New(seqtype.Untyped, seqtype.ExactlyOne))
		r, _ := compileExpr(t, NewOr(at,
			NewCmpG(at, value.OpLt, ref(u), ints(3)),
			NewCmpG(at, value.OpGe, ref(u), ints(2))), WithExternals(u))
		_, fused := r.(*CmpR)
		assert.False(t, fused, "got %s", r)

		qc := newQC([]binding{{u, value.Items{value.Untyped("abc")}}})
		_, err := r.Item(qc)
		assert.Error(t, err)
	})
}

func TestStringRangeFusion(t *testing.T) {
	s := external("s", seqtype.StringOne)
	r, _ := compileExpr(t, NewAnd(at,
		NewCmpG(at, value.OpGe, ref(s), strs("b")),
		NewCmpG(at, value.OpLt, ref(s), strs("d"))), WithExternals(s))

	_, ok := r.(*CmpSR)
	require.True(t, ok, "got %T %s", r, r)
	for in, want := range map[string]bool{"a": false, "b": true, "cz": true, "d": false} {
		out := evalExpr(t, r, []binding{{s, strs(in).Val}})
		assert.Equal(t, value.Bln(want), single(t, out), "$s = %q", in)
	}
}

func TestPositionalRangeFusion(t *testing.T) {
	x := external("x", seqtype.IntStar)
	pred := NewAnd(at,
		NewCmpG(at, value.OpGe, call(t, "position"), ints(2)),
		NewCmpG(at, value.OpLe, call(t, "position"), ints(3)))

	r, _ := compileExpr(t, NewFilter(at, ref(x), pred), WithExternals(x))

	assert.Equal(t, "subsequence($x, 2, 2)", r.String())
}

func TestDistributivity(t *testing.T) {
	a := external("a", seqtype.BooleanOne)
	b := external("b", seqtype.BooleanOne)
	c := external("c", seqtype.BooleanOne)
	vars := WithExternals(a, b, c)

	t.Run("factor", func(t *testing.T) {
		e := NewOr(at, NewAnd(at, ref(a), ref(b)), NewAnd(at, ref(a), ref(c)))
		r, events := compileExpr(t, e, vars)
		assert.Equal(t, "($a and ($b or $c))", r.String())
		assert.Contains(t, rules(events), "distribute or")
		assertStable(t, r, vars)

		for _, x := range []bool{false, true} {
			for _, y := range []bool{false, true} {
				for _, z := range []bool{false, true} {
					out := evalExpr(t, r, []binding{
						{a, value.Items{value.Bln(x)}},
						{b, value.Items{value.Bln(y)}},
						{c, value.Items{value.Bln(z)}},
					})
					want := (x && y) || (x && z)
					assert.Equal(t, value.Bln(want), single(t, out), "%v %v %v", x, y, z)
				}
			}
		}
	})

	t.Run("dual", func(t *testing.T) {
		e := NewAnd(at, NewOr(at, ref(a), ref(b)), NewOr(at, ref(a), ref(c)))
		r, _ := compileExpr(t, e, vars)
		assert.Equal(t, "($a or ($b and $c))", r.String())
	})

	t.Run("absorb", func(t *testing.T) {
		e := NewOr(at, NewAnd(at, ref(a), ref(b)), ref(a))
		r, _ := compileExpr(t, e, vars)
		assert.Equal(t, "$a", r.String())
	})
}

func TestLogicConstants(t *testing.T) {
	a := external("a", seqtype.BooleanOne)

	r, _ := compileExpr(t, NewAnd(at, call(t, "true"), ref(a)), WithExternals(a))
	assert.Equal(t, "$a", r.String())

	r, _ = compileExpr(t, NewOr(at, call(t, "true"), ref(a)), WithExternals(a))
	b, ok := constBool(r)
	require.True(t, ok)
	assert.True(t, b)

	r, _ = compileExpr(t, NewAnd(at, ref(a), ref(a)), WithExternals(a))
	assert.Equal(t, "$a", r.String())
}

func TestCountComparisons(t *testing.T) {
	s := external("s", seqtype.IntStar)
	tests := []struct {
		op   value.CmpOp
		n    int64
		want string
	}{
		{value.OpGt, 0, "exists($s)"},
		{value.OpGe, 1, "exists($s)"},
		{value.OpNe, 0, "exists($s)"},
		{value.OpEq, 0, "empty($s)"},
		{value.OpLt, 1, "empty($s)"},
		{value.OpLe, 0, "empty($s)"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.op, tt.n), func(t *testing.T) {
			r, _ := compileExpr(t, NewCmpG(at, tt.op, call(t, "count", ref(s)), ints(tt.n)), WithExternals(s))
			assert.Equal(t, tt.want, r.String())
		})
	}
}

func TestSwapConstantLeft(t *testing.T) {
	i := external("i", seqtype.IntegerOne)
	r, events := compileExpr(t, NewCmpV(at, value.OpLt, ints(5), ref(i)), WithExternals(i))

	assert.Equal(t, "($i in (5, inf))", r.String())
	assert.Contains(t, rules(events), "swap operands")
}

func TestIdenticalOperands(t *testing.T) {
	i := external("i", seqtype.IntegerOne)
	d := external("d", seqtype.DoubleOne)

	r, _ := compileExpr(t, NewCmpV(at, value.OpEq, ref(i), ref(i)), WithExternals(i))
	b, ok := constBool(r)
	require.True(t, ok)
	assert.True(t, b)

	// NaN ne NaN, so doubles are left alone.
	r, _ = compileExpr(t, NewCmpV(at, value.OpEq, ref(d), ref(d)), WithExternals(d))
	_, ok = constBool(r)
	assert.False(t, ok)
}
