package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xqcore/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Golden   string // golden file directory
	Parallel int    // scenarios run at once
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenarios through the conformance harness.

Each scenario compiles and evaluates its plans against a fresh in-memory
store, checks expected items, types and errors, checks the rewrite trace
assertions and compares a snapshot with its golden file when one exists.
Plan paths are relative to the scenario file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  xqc test ./scenarios
  xqc test ./scenarios --filter "book*"
  xqc test ./scenarios --golden ./golden --update
  xqc test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <scenarios>/golden)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "scenarios to run at once")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return commandError(formatter, ErrCodeNotFound, fmt.Errorf("scenarios directory not found: %s", scenariosDir))
	}
	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return commandError(formatter, ErrCodeScanError, err)
	}

	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "golden")
	}

	result := TestResult{Scenarios: []ScenarioResult{}, Total: len(files)}
	if len(files) == 0 {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	// Scenarios that fail to load are reported and skipped; the rest run
	// together.
	var (
		loaded []*harness.Scenario
		slots  []int
	)
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			result.Scenarios = append(result.Scenarios, ScenarioResult{
				Name:   filepath.Base(file),
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}
		slots = append(slots, len(result.Scenarios))
		result.Scenarios = append(result.Scenarios, ScenarioResult{Name: s.Name})
		loaded = append(loaded, s)
	}

	logs := io.Discard
	if opts.Verbose {
		logs = formatter.GetErrWriter()
	}
	runs, err := harness.RunAll(cmd.Context(), loaded, opts.Parallel,
		harness.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, err)
	}
	for i, run := range runs {
		result.Scenarios[slots[i]] = checkScenario(run, goldenDir, opts.Update)
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result, opts.Update)
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// checkScenario turns a harness result into a ScenarioResult, updating or
// comparing the golden snapshot.
func checkScenario(run *harness.Result, goldenDir string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: run.Scenario, Pass: run.Pass, Errors: run.Errors}

	snapshot, err := harness.Snapshot(run)
	if err != nil {
		return failScenario(sr, fmt.Sprintf("snapshot: %v", err))
	}
	path := filepath.Join(goldenDir, run.Scenario+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			return failScenario(sr, fmt.Sprintf("failed to create golden directory: %v", err))
		}
		if err := os.WriteFile(path, snapshot, 0644); err != nil {
			return failScenario(sr, fmt.Sprintf("failed to write golden file: %v", err))
		}
		return sr
	}

	golden, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// No golden file: expectations and assertions only.
		return sr
	}
	if err != nil {
		return failScenario(sr, fmt.Sprintf("failed to read golden file: %v", err))
	}
	if !bytes.Equal(golden, snapshot) {
		return failScenario(sr, "snapshot does not match golden file (run with --update to regenerate)")
	}
	return sr
}

func failScenario(sr ScenarioResult, msg string) ScenarioResult {
	sr.Pass = false
	sr.Errors = append(sr.Errors, msg)
	return sr
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	err := formatter.writeJSON(CLIResponse{
		Status: "error",
		Data:   result,
		Error:  &CLIError{Code: "E_TEST_FAILED", Message: msg},
	})
	if err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult, updated bool) error {
	w := formatter.Writer

	for _, sr := range result.Scenarios {
		if sr.Pass {
			if updated {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
			} else {
				fmt.Fprintf(w, "✓ %s\n", sr.Name)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
