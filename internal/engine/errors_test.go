package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineErrorMessages(t *testing.T) {
	tests := []struct {
		err  *EngineError
		want string
	}{
		{NewMissingExternalError("p", "n"), "MISSING_EXTERNAL: no value for external variable $n (plan=p)"},
		{NewUnknownExternalError("p", "k"), "UNKNOWN_EXTERNAL: plan declares no external variable $k (plan=p)"},
		{&EngineError{Code: ErrCodeMissingExternal, Message: "m"}, "MISSING_EXTERNAL: m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestEngineErrorUnwrapsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("evaluate: %w", NewMissingExternalError("p", "n"))
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "n", ee.Details["variable"])
}
