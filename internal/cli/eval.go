package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xqcore/internal/value"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Bind    []string // name=value, repeatable; repeated names build a sequence
	BindXML []string // name=file
}

// EvalResult is the JSON payload of the eval command.
type EvalResult struct {
	QueryID string       `json:"query_id"`
	Type    string       `json:"type"`
	Items   []string     `json:"items"`
	Steps   int          `json:"steps"`
	Updates []EvalUpdate `json:"updates,omitempty"`
}

// EvalUpdate is one pending update of an updating query.
type EvalUpdate struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <plans> <plan-name>",
		Short: "Compile and evaluate a plan",
		Long: `Compile a plan and evaluate it, printing one result item per line.

External variables are bound with --bind name=value. Integers, doubles
and booleans are recognized; anything else binds a string. Repeat a name
to bind a sequence. --bind-xml name=file binds a parsed XML document.

Examples:
  xqc eval ./plans books
  xqc eval ./plans greet --bind who=world
  xqc eval ./plans total --bind n=1 --bind n=2 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Bind, "bind", nil, "bind an external variable (name=value)")
	cmd.Flags().StringArrayVar(&opts.BindXML, "bind-xml", nil, "bind an external variable to an XML file (name=file)")

	return cmd
}

func runEval(opts *EvalOptions, plansPath, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	bindings, err := parseBindings(opts.Bind, opts.BindXML)
	if err != nil {
		return commandError(formatter, ErrCodeBinding, err)
	}

	q, env, err := compilePlan(cmd.Context(), opts.RootOptions, formatter, plansPath, name)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	if formatter.Format != "json" && q.Streamable() {
		w := formatter.Writer
		steps, err := env.engine.Stream(ctx, q, bindings, func(it value.Item) error {
			_, err := fmt.Fprintln(w, formatItem(it))
			return err
		})
		if err != nil {
			return queryError(formatter, err)
		}
		formatter.VerboseLog("%d step(s)", steps)
		return nil
	}

	res, err := env.engine.Evaluate(ctx, q, bindings)
	if err != nil {
		return queryError(formatter, err)
	}
	out := EvalResult{
		QueryID: q.ID,
		Type:    q.SeqType().String(),
		Items:   []string{},
		Steps:   res.Steps,
	}
	if res.Value != nil {
		for _, it := range value.Slice(res.Value) {
			out.Items = append(out.Items, formatItem(it))
		}
	}
	for _, u := range res.Updates {
		out.Updates = append(out.Updates, EvalUpdate{Kind: u.Kind, Target: u.Target.XML()})
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	w := formatter.Writer
	for _, item := range out.Items {
		fmt.Fprintln(w, item)
	}
	for _, u := range out.Updates {
		fmt.Fprintf(w, "update %s %s\n", u.Kind, u.Target)
	}
	formatter.VerboseLog("%d item(s), %d step(s)", len(out.Items), out.Steps)
	return nil
}

// formatItem renders nodes as XML and atomic items by their string value.
func formatItem(it value.Item) string {
	if n, ok := it.(*value.Node); ok {
		return n.XML()
	}
	return value.StringOf(it)
}

// parseBindings turns --bind and --bind-xml flags into external variable
// bindings. Names may carry a leading "$".
func parseBindings(binds, xmlBinds []string) (map[string]value.Seq, error) {
	items := make(map[string]value.Items)
	for _, b := range binds {
		name, raw, err := splitBinding(b)
		if err != nil {
			return nil, err
		}
		items[name] = append(items[name], parseAtomic(raw))
	}
	for _, b := range xmlBinds {
		name, path, err := splitBinding(b)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("--bind-xml %s: %w", name, err)
		}
		doc, err := value.ParseXMLString(string(data))
		if err != nil {
			return nil, fmt.Errorf("--bind-xml %s: %w", name, err)
		}
		items[name] = append(items[name], doc)
	}

	bindings := make(map[string]value.Seq, len(items))
	for name, seq := range items {
		bindings[name] = seq
	}
	return bindings, nil
}

func splitBinding(b string) (string, string, error) {
	name, raw, ok := strings.Cut(b, "=")
	name = strings.TrimPrefix(name, "$")
	if !ok || name == "" {
		return "", "", fmt.Errorf("binding %q: expected name=value", b)
	}
	return name, raw, nil
}

// parseAtomic picks the narrowest type the text parses as.
func parseAtomic(raw string) value.Item {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return value.Int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return value.Dbl(f)
	}
	switch raw {
	case "true":
		return value.Bln(true)
	case "false":
		return value.Bln(false)
	}
	return value.Str(raw)
}
