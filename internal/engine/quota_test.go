package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/qerr"
)

func TestQuotaEnforcerWithinLimit(t *testing.T) {
	q := NewQuotaEnforcer(10)
	for i := range 10 {
		require.NoError(t, q.Check(), "step %d", i+1)
	}
	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.MaxSteps())
}

func TestQuotaEnforcerExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(5)
	for range 5 {
		require.NoError(t, q.Check())
	}

	err := q.Check()
	require.Error(t, err)

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 6, se.Steps)
	assert.Equal(t, 5, se.Limit)
	assert.Contains(t, err.Error(), "6 steps > 5 limit")
}

func TestQuotaEnforcerReset(t *testing.T) {
	q := NewQuotaEnforcer(2)
	q.Check()
	q.Check()
	require.Error(t, q.Check())

	q.Reset()
	assert.Equal(t, 0, q.Current())
	assert.NoError(t, q.Check())
}

func TestStepsExceededErrorIsQueryError(t *testing.T) {
	err := fmt.Errorf("evaluate: %w", &StepsExceededError{Steps: 3, Limit: 2})

	assert.True(t, IsStepsExceededError(err))
	assert.True(t, IsQuotaError(err))
	assert.True(t, qerr.Is(err, qerr.CodeQuota))
	assert.False(t, qerr.Match(err, []string{"*"}), "quota errors are never catchable")
}

func TestIsQuotaErrorRejectsOthers(t *testing.T) {
	assert.False(t, IsQuotaError(nil))
	assert.False(t, IsQuotaError(fmt.Errorf("boom")))
	assert.False(t, IsQuotaError(qerr.New(qerr.CodeDivByZero, qerr.Info{}, "div")))
	assert.False(t, IsStepsExceededError(qerr.New(qerr.CodeQuota, qerr.Info{}, "quota")))
}
