package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestPlan writes a one-plan CUE file for testing.
func createTestPlan(t *testing.T, dir, name string) string {
	t.Helper()
	plansDir := filepath.Join(dir, "plans")
	require.NoError(t, os.MkdirAll(plansDir, 0755))
	path := filepath.Join(plansDir, name)
	src := `plan: sum: query: arith: {op: "+", left: const: 1, right: const: 2}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	createTestPlan(t, dir, "arith.cue")

	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
plans:
  - plans/arith.cue
records:
  books:
    - <book/>
max_steps: 100
cases:
  - plan: sum
    bindings:
      n: 3
    expect:
      items: ["3"]
      type: xs:integer
assertions:
  - type: rewrite_fired
    plan: sum
    rule: pre-evaluate
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, []string{filepath.Join(dir, "plans", "arith.cue")}, scenario.Plans)
	assert.Equal(t, []string{"<book/>"}, scenario.Records["books"])
	assert.Equal(t, 100, scenario.MaxSteps)
	require.Len(t, scenario.Cases, 1)
	assert.Equal(t, "sum", scenario.Cases[0].Plan)
	assert.Equal(t, 3, scenario.Cases[0].Bindings["n"])
	assert.Equal(t, []string{"3"}, scenario.Cases[0].Expect.Items)
	assert.Equal(t, "xs:integer", scenario.Cases[0].Expect.Type)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertRewriteFired, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	planPath := createTestPlan(t, dir, "arith.cue")
	path := writeScenario(t, t.TempDir(), `
name: based
description: plans resolved against another directory
plans: [plans/arith.cue]
cases:
  - plan: sum
`)

	scenario, err := LoadScenarioWithBasePath(path, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{planPath}, scenario.Plans)
}

func TestParseScenario_UnknownField(t *testing.T) {
	dir := t.TempDir()
	createTestPlan(t, dir, "arith.cue")

	_, err := ParseScenario([]byte(`
name: typo
description: misspelled assertions key
plans: [plans/arith.cue]
cases:
  - plan: sum
assertion:
  - type: rewrite_fired
`), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	createTestPlan(t, dir, "arith.cue")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
plans: [plans/arith.cue]
cases: [{plan: sum}]`,
			wantErr: "description is required",
		},
		{
			name: "no plans",
			content: `
name: n
description: d
cases: [{plan: sum}]`,
			wantErr: "plans list is required",
		},
		{
			name: "no cases",
			content: `
name: n
description: d
plans: [plans/arith.cue]`,
			wantErr: "cases list is required",
		},
		{
			name: "plan file not found",
			content: `
name: n
description: d
plans: [plans/missing.cue]
cases: [{plan: sum}]`,
			wantErr: "plan file not found",
		},
		{
			name: "negative max steps",
			content: `
name: n
description: d
plans: [plans/arith.cue]
max_steps: -1
cases: [{plan: sum}]`,
			wantErr: "max_steps must be non-negative",
		},
		{
			name: "case without plan",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{expect: {empty: true}}]`,
			wantErr: "cases[0]: plan is required",
		},
		{
			name: "error with items",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum, expect: {error: FOAR0001, items: ["1"]}}]`,
			wantErr: "expect.error excludes",
		},
		{
			name: "empty with items",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum, expect: {empty: true, items: ["1"]}}]`,
			wantErr: "expect.empty excludes items",
		},
		{
			name: "assertion without type",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{plan: sum}]`,
			wantErr: "assertions[0]: type is required",
		},
		{
			name: "assertion without plan",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: rewrite_fired, rule: r}]`,
			wantErr: "assertions[0]: plan is required",
		},
		{
			name: "fired without rule",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: rewrite_fired, plan: sum}]`,
			wantErr: "rule is required for rewrite_fired",
		},
		{
			name: "order without rules",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: rewrite_order, plan: sum}]`,
			wantErr: "rules list is required",
		},
		{
			name: "negative count",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: rewrite_count, plan: sum, rule: r, count: -1}]`,
			wantErr: "count must be non-negative",
		},
		{
			name: "streamable without value",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: streamable, plan: sum}]`,
			wantErr: "value is required for streamable",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
plans: [plans/arith.cue]
cases: [{plan: sum}]
assertions: [{type: trace_contains, plan: sum}]`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCaseLabel(t *testing.T) {
	assert.Equal(t, "sum", Case{Plan: "sum"}.label())
	assert.Equal(t, "named", Case{Name: "named", Plan: "sum"}.label())
}
