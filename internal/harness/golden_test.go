package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Arithmetic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/arithmetic.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult("s")
	result.Trace = []TraceEvent{{Plan: "p", Seq: 1, Rule: "pre-evaluate", Before: "(1 + 2)", After: "3"}}
	result.Cases = []CaseResult{
		{Name: "ok", Plan: "p", Type: "xs:integer", Final: "3", Items: []string{"3"}, Steps: 9},
		{Name: "bad", Plan: "q", Items: []string{}, Error: "FOAR0001"},
	}

	first, err := Snapshot(result)
	require.NoError(t, err)
	second, err := Snapshot(result)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	s := string(first)
	assert.Contains(t, s, `"error":"FOAR0001"`)
	assert.NotContains(t, s, "steps", "step counts stay out of golden files")
	assert.Equal(t, 1, strings.Count(s, `"error"`), "error only appears on failed cases")
}
