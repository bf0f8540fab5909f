package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xqcore/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Plans  int                        `json:"plans"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plans>",
		Short: "Check plans without compiling them",
		Long: `Check every plan in a CUE file or directory for structural errors:
unknown node kinds, missing operands, malformed steps, unknown functions
and types. All problems are reported, not just the first.

Examples:
  xqc validate ./plans
  xqc validate ./plans/books.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, plansPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	set, err := LoadPlans(plansPath)
	if err != nil {
		var details any
		if le, ok := err.(*LoadError); ok && le.Pos.IsValid() {
			details = map[string]any{"line": le.Pos.Line(), "column": le.Pos.Column()}
		}
		_ = formatter.Error(loadErrorCode(err), err.Error(), details)
		return WrapExitError(ExitCommandError, loadErrorCode(err), err)
	}
	formatter.VerboseLog("Found %d plan(s) in %d file(s)", len(set.Plans), set.FileCount)

	errs := ValidatePlans(set, formatter)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(set.Plans), errs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Plans: len(set.Plans)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d plan(s) valid\n", len(set.Plans))
	return nil
}

// ValidatePlans checks every plan in the set, in name order.
func ValidatePlans(set *PlanSet, formatter *OutputFormatter) []compiler.ValidationError {
	var all []compiler.ValidationError
	for _, name := range set.Names() {
		formatter.VerboseLog("Validating plan: %s", name)
		all = append(all, compiler.Validate(set.Plans[name])...)
	}
	return all
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, plans int, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.writeJSON(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Plans: plans, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		})
		if err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(w, "line %d:%d\n", e.Line, e.Column)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}
