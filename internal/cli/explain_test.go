package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainText(t *testing.T) {
	out, err := execute(t, NewExplainCommand(&RootOptions{Format: "text"}), plansDir, "sum")
	require.NoError(t, err)

	assert.Contains(t, out, "query sum")
	assert.Contains(t, out, "type:       xs:integer")
	assert.Contains(t, out, "pre-evaluate")
	assert.Contains(t, out, "plan:\n  3\n")
}

func TestExplainJSON(t *testing.T) {
	out, err := execute(t, NewExplainCommand(&RootOptions{Format: "json"}), plansDir, "second")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "second", resp.Data.Name)
	assert.NotEmpty(t, resp.Data.QueryID)
	assert.NotEmpty(t, resp.Data.Fingerprint)

	var rules []string
	for _, ev := range resp.Data.Rewrites {
		rules = append(rules, ev.Rule)
	}
	assert.Contains(t, rules, "positional access")
}

func TestExplainRecheck(t *testing.T) {
	out, err := execute(t, NewExplainCommand(&RootOptions{Format: "text"}), plansDir, "literal", "--recheck")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ fixpoint reached")
}

func TestExplainUnknownPlan(t *testing.T) {
	out, err := execute(t, NewExplainCommand(&RootOptions{Format: "text"}), plansDir, "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E009]")
}

func TestExplainMissingPlans(t *testing.T) {
	_, err := execute(t, NewExplainCommand(&RootOptions{Format: "text"}), "/nonexistent/plans", "sum")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestExplainStaticError(t *testing.T) {
	out, err := execute(t, NewExplainCommand(&RootOptions{Format: "json"}), plansDir, "undefined")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "XPST0008", resp.Error.Code)
}
