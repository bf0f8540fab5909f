package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

var scenarioFiles = []string{
	"testdata/scenarios/arithmetic.yaml",
	"testdata/scenarios/positional.yaml",
	"testdata/scenarios/books.yaml",
	"testdata/scenarios/errors.yaml",
}

func loadScenarios(t *testing.T) []*Scenario {
	t.Helper()
	var out []*Scenario
	for _, path := range scenarioFiles {
		s, err := LoadScenario(path)
		require.NoError(t, err, "failed to load scenario from %s", path)
		out = append(out, s)
	}
	return out
}

// TestScenarios runs the checked-in scenarios. Each one exercises a group
// of rewrites end to end and checks the fixpoint and scan equivalence
// properties on every case.
func TestScenarios(t *testing.T) {
	for _, s := range loadScenarios(t) {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)

			assert.True(t, result.Pass, "scenario should pass: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Len(t, result.Cases, len(s.Cases))
			assert.NotEmpty(t, result.Trace, "every scenario fires at least one rewrite")
		})
	}
}

func TestRunAll_PreservesOrder(t *testing.T) {
	scenarios := loadScenarios(t)

	results, err := RunAll(context.Background(), scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, len(scenarios))
	for i, r := range results {
		assert.Equal(t, scenarios[i].Name, r.Scenario)
		assert.True(t, r.Pass, "%s: %v", r.Scenario, r.Errors)
	}
}

func TestRunAll_SetupError(t *testing.T) {
	scenarios := []*Scenario{{
		Name:  "broken",
		Plans: []string{"testdata/plans/missing.cue"},
		Cases: []Case{{Plan: "p"}},
	}}

	_, err := RunAll(context.Background(), scenarios, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario broken")
	assert.Contains(t, err.Error(), "failed to read plan file")
}

func writePlans(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestRun_ReportsFailures(t *testing.T) {
	path := writePlans(t, `
plan: sum: query: arith: {op: "+", left: const: 1, right: const: 2}
`)
	two := 2
	scenario := &Scenario{
		Name:  "failing",
		Plans: []string{path},
		Cases: []Case{
			{Plan: "sum", Expect: Expect{Items: []string{"4"}}},
			{Name: "bad type", Plan: "sum", Expect: Expect{Type: "xs:string"}},
			{Name: "bad count", Plan: "sum", Expect: Expect{Count: &two}},
			{Name: "not empty", Plan: "sum", Expect: Expect{Empty: true}},
			{Name: "no error", Plan: "sum", Expect: Expect{Error: "FOAR0001"}},
			{Name: "unknown plan", Plan: "nope"},
		},
		Assertions: []Assertion{
			{Type: AssertRewriteAbsent, Plan: "sum", Rule: "pre-evaluate"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	require.Len(t, result.Errors, 7)
	assert.Contains(t, result.Errors[0], `sum: items: expected ["4"], got ["3"]`)
	assert.Contains(t, result.Errors[1], "bad type: static type: expected xs:string, got xs:integer")
	assert.Contains(t, result.Errors[2], "bad count: count: expected 2, got 1")
	assert.Contains(t, result.Errors[3], "not empty: expected empty sequence")
	assert.Contains(t, result.Errors[4], "no error: expected error FOAR0001, got 1 items")
	assert.Contains(t, result.Errors[5], `unknown plan: unexpected error no plan named "nope"`)
	assert.Contains(t, result.Errors[6], "rewrite_absent")
}

func TestRun_TraceRecordedOncePerPlan(t *testing.T) {
	path := writePlans(t, `plan: sum: query: arith: {op: "+", left: const: 1, right: const: 2}`)
	scenario := &Scenario{
		Name:  "repeat",
		Plans: []string{path},
		Cases: []Case{
			{Plan: "sum", Expect: Expect{Items: []string{"3"}}},
			{Name: "again", Plan: "sum", Expect: Expect{Items: []string{"3"}}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "%v", result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{Plan: "sum", Seq: 1, Rule: "pre-evaluate", Before: "(1 + 2)", After: "3"}, result.Trace[0])
	assert.Equal(t, "3", result.Cases[1].Final)
}

func TestLoadPlanFiles_Duplicate(t *testing.T) {
	a := writePlans(t, `plan: p: query: const: 1`)
	b := writePlans(t, `plan: p: query: const: 2`)

	_, err := loadPlanFiles([]string{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate plan "p"`)
}

func TestLoadPlanFiles_NoPlanStruct(t *testing.T) {
	path := writePlans(t, `query: const: 1`)

	_, err := loadPlanFiles([]string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no plan struct")
}

func TestToBindings(t *testing.T) {
	got, err := toBindings(map[string]any{
		"s":    "x",
		"i":    3,
		"f":    1.5,
		"b":    true,
		"none": nil,
		"list": []any{1, "two", []any{3}},
		"doc":  map[string]any{"xml": "<a>hi</a>"},
	})
	require.NoError(t, err)

	assert.Equal(t, value.Items{value.Str("x")}, got["s"])
	assert.Equal(t, value.Items{value.Int(3)}, got["i"])
	assert.Equal(t, value.Items{value.Dbl(1.5)}, got["f"])
	assert.Equal(t, value.Items{value.Bln(true)}, got["b"])
	assert.Zero(t, got["none"].Len())
	assert.Equal(t, value.Items{value.Int(1), value.Str("two"), value.Int(3)}, got["list"])

	require.EqualValues(t, 1, got["doc"].Len())
	doc, ok := got["doc"].At(0).(*value.Node)
	require.True(t, ok)
	assert.Equal(t, "hi", value.StringOf(doc))
}

func TestToBindings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		wantErr string
	}{
		{"unsupported", struct{}{}, "unsupported binding type"},
		{"object without xml", map[string]any{"json": "{}"}, "must be {xml: string}"},
		{"malformed xml", map[string]any{"xml": "<a>"}, "$v"},
		{"nested", []any{1, struct{}{}}, "[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toBindings(map[string]any{"v": tt.in})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"query error", qerr.New(qerr.CodeDivByZero, qerr.Info{}, "division by zero"), "FOAR0001"},
		{"wrapped query error", fmt.Errorf("evaluate p: %w", qerr.New(qerr.CodeType, qerr.Info{}, "bad")), "XPTY0004"},
		{"compile error", &compiler.CompileError{Field: "query", Code: compiler.ErrUnknownNode, Message: "m"}, "E110"},
		{"engine error", engine.NewMissingExternalError("p", "n"), "MISSING_EXTERNAL"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestEqualStrings(t *testing.T) {
	assert.True(t, equalStrings(nil, []string{}))
	assert.True(t, equalStrings([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, equalStrings([]string{"a"}, []string{"a", "b"}))
	assert.False(t, equalStrings([]string{"a", "b"}, []string{"b", "a"}))
}
