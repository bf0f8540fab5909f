package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/harness"
	"github.com/roach88/xqcore/internal/qerr"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Recheck bool // run one more pass and report rules that still fire
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	engine.Explanation
	QueryID string `json:"query_id"`

	// Unstable lists the rules that fired again on an extra pass. It is
	// empty for a query that reached its fixpoint.
	Unstable []string `json:"unstable,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <plans> <plan-name>",
		Short: "Compile a plan and print its rewrite trace",
		Long: `Compile a plan, optimize it to a fixpoint and print the static type,
every rewrite that fired and the final plan.

<plans> is a CUE file or a directory of CUE files.

Examples:
  xqc explain ./plans positional_second
  xqc explain ./plans books --recheck --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Recheck, "recheck", false, "run an extra optimization pass and report rules that still fire")

	return cmd
}

func runExplain(opts *ExplainOptions, plansPath, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	q, env, err := compilePlan(cmd.Context(), opts.RootOptions, formatter, plansPath, name)
	if err != nil {
		return err
	}
	defer env.Close()

	result := ExplainResult{Explanation: q.Explain(), QueryID: q.ID}
	if opts.Recheck {
		fired, err := env.engine.Recheck(cmd.Context(), q)
		if err != nil {
			return commandError(formatter, ErrCodeGeneric, err)
		}
		for _, ev := range fired {
			result.Unstable = append(result.Unstable, ev.Rule)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprint(w, result.Explanation.String())
	if opts.Recheck {
		if len(result.Unstable) == 0 {
			fmt.Fprintln(w, "✓ fixpoint reached")
		} else {
			fmt.Fprintf(w, "✗ rules fire again: %v\n", result.Unstable)
		}
	}
	return nil
}

// compilePlan loads and compiles one plan. Failures are reported through
// formatter and returned as ExitErrors.
func compilePlan(ctx context.Context, opts *RootOptions, formatter *OutputFormatter, plansPath, name string) (*engine.Query, *environment, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	set, err := LoadPlans(plansPath)
	if err != nil {
		return nil, nil, commandError(formatter, loadErrorCode(err), err)
	}
	formatter.VerboseLog("Found %d plan(s) in %d file(s)", len(set.Plans), set.FileCount)

	p, err := set.Load(name)
	if err != nil {
		if code := loadErrorCode(err); code != ErrCodeGeneric {
			return nil, nil, commandError(formatter, code, err)
		}
		return nil, nil, queryError(formatter, err)
	}

	env, err := newEnvironment(opts, formatter.GetErrWriter())
	if err != nil {
		return nil, nil, commandError(formatter, loadErrorCode(err), err)
	}

	q, err := env.engine.Compile(ctx, p)
	if err != nil {
		env.Close()
		return nil, nil, queryError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s in %d pass(es), %d rewrite(s)", name, q.Passes, len(q.Trace))
	return q, env, nil
}

// commandError reports a command-level failure (exit code 2).
func commandError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// queryError reports a failure of the query itself (exit code 1). Query
// errors carry their own code and, when known, the source position.
func queryError(formatter *OutputFormatter, err error) error {
	code := errorCode(err)
	var details any
	if qe, ok := qerr.As(err); ok && !qe.Info.IsZero() {
		details = map[string]any{"position": qe.Info.String()}
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, code, err)
}

// errorCode returns the code reported for a failed query.
func errorCode(err error) string {
	if code := harness.ErrorCode(err); code != err.Error() {
		return code
	}
	return ErrCodeGeneric
}
