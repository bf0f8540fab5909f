package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Query is a compiled, optimized plan ready for evaluation.
//
// A Query is immutable after Compile returns: it may be evaluated any number
// of times, concurrently, each evaluation with its own bindings.
type Query struct {
	// ID correlates logs and spans of this compilation.
	ID string

	// Seq is the logical clock value stamped at compile time.
	Seq int64

	Name        string
	Fingerprint string

	// Root is the final tree.
	Root expr.Expr

	// Trace lists every rewrite fired while compiling, in order.
	Trace []expr.RewriteEvent

	// Passes is the number of optimization passes run, including the
	// compile pass.
	Passes int

	externals []compiler.External
	context   value.Item
}

// SeqType returns the static type of the query result.
func (q *Query) SeqType() seqtype.SeqType {
	return q.Root.SeqType()
}

// Streamable reports whether the result may be consumed item by item. An
// updating query or one that needs the size of its own result must be
// materialized, and a single item gains nothing from streaming.
func (q *Query) Streamable() bool {
	return !expr.Has(q.Root, expr.FlagUpd|expr.FlagLast) && q.SeqType().Many()
}

// Externals returns the names of the external variables, in declaration
// order.
func (q *Query) Externals() []string {
	names := make([]string, len(q.externals))
	for i, ext := range q.externals {
		names[i] = ext.Var.Name
	}
	return names
}

// Explanation describes how a query was compiled.
type Explanation struct {
	Name        string              `json:"name"`
	Fingerprint string              `json:"fingerprint"`
	Type        string              `json:"type"`
	Streamable  bool                `json:"streamable"`
	Passes      int                 `json:"passes"`
	Nodes       int                 `json:"nodes"`
	Rewrites    []expr.RewriteEvent `json:"rewrites"`
	Plan        string              `json:"plan"`
}

// Explain returns the compilation summary of q.
func (q *Query) Explain() Explanation {
	rewrites := q.Trace
	if rewrites == nil {
		rewrites = []expr.RewriteEvent{}
	}
	return Explanation{
		Name:        q.Name,
		Fingerprint: q.Fingerprint,
		Type:        q.SeqType().String(),
		Streamable:  q.Streamable(),
		Passes:      q.Passes,
		Nodes:       expr.Size(q.Root),
		Rewrites:    rewrites,
		Plan:        q.Root.String(),
	}
}

// String renders the explanation as text, one rewrite per line.
func (x Explanation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %s\n", x.Name)
	fmt.Fprintf(&b, "  type:       %s\n", x.Type)
	fmt.Fprintf(&b, "  streamable: %t\n", x.Streamable)
	fmt.Fprintf(&b, "  passes:     %d\n", x.Passes)
	fmt.Fprintf(&b, "  nodes:      %d\n", x.Nodes)
	if len(x.Rewrites) > 0 {
		b.WriteString("rewrites:\n")
		for _, ev := range x.Rewrites {
			fmt.Fprintf(&b, "  %3d %s\n      %s\n   => %s\n", ev.Seq, ev.Rule, ev.Before, ev.After)
		}
	}
	fmt.Fprintf(&b, "plan:\n  %s\n", x.Plan)
	return b.String()
}
