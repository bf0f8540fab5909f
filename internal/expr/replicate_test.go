package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

func TestReplicateHugeCount(t *testing.T) {
	n := external("n", seqtype.IntegerOne)
	r, _ := compileExpr(t, call(t, "replicate", ints(1, 2), ref(n)), WithExternals(n))
	_, ok := r.(*Replicate)
	require.True(t, ok, "got %T %s", r, r)
	huge := []binding{{n, value.Items{value.Int(1 << 60)}}}

	var err error
	assert.NotPanics(t, func() {
		_, err = r.Value(newQC(huge, WithQuota(&stepLimit{max: 100})))
	})
	assert.True(t, qerr.Is(err, qerr.CodeQuota), "got %v", err)

	it, err := r.Iter(newQC(huge, WithQuota(&stepLimit{max: 100})))
	require.NoError(t, err)
	seen := 0
	for {
		v, err := it.Next()
		if err != nil {
			assert.True(t, qerr.Is(err, qerr.CodeQuota), "got %v", err)
			break
		}
		require.NotNil(t, v, "sequence ended after %d items", seen)
		seen++
	}
	assert.Positive(t, seen)

	v := evalExpr(t, r, []binding{{n, value.Items{value.Int(3)}}})
	assert.Equal(t, []int64{1, 2, 1, 2, 1, 2}, intsOf(t, v))
}

func TestReplicateNegativeCount(t *testing.T) {
	n := external("n", seqtype.IntegerOne)
	r, _ := compileExpr(t, call(t, "replicate", ints(1, 2), ref(n)), WithExternals(n))

	_, err := r.Value(newQC([]binding{{n, value.Items{value.Int(-1)}}}))
	assert.True(t, qerr.Is(err, qerr.CodeInvalidValue), "got %v", err)
}
