package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/xqcore/internal/value"
)

// Snapshot is the golden form of a scenario result: the rewrite trace and
// the outcome of each case. Step counts are left out so that a change in
// evaluation strategy alone does not break goldens.
func Snapshot(result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = map[string]any{
			"plan":   ev.Plan,
			"seq":    ev.Seq,
			"rule":   ev.Rule,
			"before": ev.Before,
			"after":  ev.After,
		}
	}
	cases := make([]any, len(result.Cases))
	for i, c := range result.Cases {
		m := map[string]any{
			"name":  c.Name,
			"plan":  c.Plan,
			"type":  c.Type,
			"final": c.Final,
			"items": c.Items,
		}
		if c.Error != "" {
			m["error"] = c.Error
		}
		cases[i] = m
	}
	return value.MarshalCanonical(map[string]any{
		"scenario": result.Scenario,
		"trace":    trace,
		"cases":    cases,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
