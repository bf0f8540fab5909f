// Package compiler loads CUE plan documents into untyped query trees.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Plan is a loaded plan document: an untyped query tree plus the external
// variables and initial context it is evaluated with.
type Plan struct {
	Name      string
	Query     expr.Expr
	Externals []External

	// Context is the initial context item, or nil for none.
	Context value.Item

	// Source is the JSON form of the plan document. Equal documents have
	// equal sources.
	Source []byte
}

// External is an external variable declared by a plan.
type External struct {
	Var *expr.Var

	// Default is the value bound when the caller supplies none; nil means
	// the variable must be supplied.
	Default value.Seq
}

// Vars returns the declared external variables.
func (p *Plan) Vars() []*expr.Var {
	out := make([]*expr.Var, len(p.Externals))
	for i, e := range p.Externals {
		out[i] = e.Var
	}
	return out
}

// LoadPlan reads a plan document into an untyped query tree. Every node
// carries the CUE position it was read from. Fails on the first problem;
// use Validate to list them all.
//
// The value should be the plan struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`plan: cheap: { query: {...} }`)
//	p, err := LoadPlan(v.LookupPath(cue.ParsePath("plan.cheap")))
func LoadPlan(v cue.Value) (*Plan, error) {
	if err := v.Err(); err != nil {
		return nil, FormatCUEError(err)
	}
	l := &loader{}
	p := l.plan(v)
	if len(l.errs) > 0 {
		first := l.errs[0]
		return nil, &CompileError{
			Field:   first.Field,
			Code:    first.Code,
			Message: first.Message,
			Pos:     l.firstPos,
		}
	}
	return p, nil
}

// Validate checks a plan document and returns every problem found.
// Does not fail fast.
func Validate(v cue.Value) []ValidationError {
	if err := v.Err(); err != nil {
		ce, ok := FormatCUEError(err).(*CompileError)
		if !ok {
			return []ValidationError{{Field: "cue", Message: err.Error(), Code: ErrCUE}}
		}
		return []ValidationError{{
			Field: ce.Field, Message: ce.Message, Code: ErrCUE,
			Line: ce.Pos.Line(), Column: ce.Pos.Column(),
		}}
	}
	l := &loader{}
	l.plan(v)
	return l.errs
}

// loader accumulates problems while building a plan.
type loader struct {
	errs     []ValidationError
	firstPos token.Pos
}

func (l *loader) addError(v cue.Value, code, format string, args ...any) {
	pos := v.Pos()
	if len(l.errs) == 0 {
		l.firstPos = pos
	}
	e := ValidationError{
		Field:   fieldName(v),
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
	if pos.IsValid() {
		e.Line, e.Column = pos.Line(), pos.Column()
	}
	l.errs = append(l.errs, e)
}

func fieldName(v cue.Value) string {
	if s := v.Path().String(); s != "" {
		return s
	}
	return "plan"
}

func (l *loader) plan(v cue.Value) *Plan {
	p := &Plan{}

	if labels := v.Path().Selectors(); len(labels) > 0 {
		p.Name = labels[len(labels)-1].String()
	}
	if nv := v.LookupPath(cue.ParsePath("name")); nv.Exists() {
		p.Name = l.stringOf(nv)
	}

	p.Externals = l.externals(v.LookupPath(cue.ParsePath("externals")))

	if cv := v.LookupPath(cue.ParsePath("context")); cv.Exists() {
		items := l.literal(cv)
		switch len(items) {
		case 0:
		case 1:
			p.Context = items[0]
		default:
			l.addError(cv, ErrInvalidLiteral, "context must be a single item, got %d", len(items))
		}
	}

	qv := v.LookupPath(cue.ParsePath("query"))
	if !qv.Exists() {
		l.addError(v, ErrMissingField, "query is required")
		return p
	}
	p.Query = l.node(qv)

	src, err := v.MarshalJSON()
	if err != nil {
		l.addError(v, ErrCUE, "%v", err)
	}
	p.Source = src
	return p
}

// externals reads "externals: { name: { type?: string, value?: literal } }".
func (l *loader) externals(v cue.Value) []External {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		l.addError(v, ErrFieldType, "externals must be a struct")
		return nil
	}

	var out []External
	for iter.Next() {
		name, ev := iter.Label(), iter.Value()
		ext := External{Var: expr.NewVar(name)}
		if tv := ev.LookupPath(cue.ParsePath("type")); tv.Exists() {
			spelled := l.stringOf(tv)
			st, ok := ParseSeqType(spelled)
			if !ok {
				l.addError(tv, ErrUnknownType, "unknown sequence type %q", spelled)
			}
			ext.Var.Type = st
		}
		if vv := ev.LookupPath(cue.ParsePath("value")); vv.Exists() {
			ext.Default = value.Items(l.literal(vv))
		}
		out = append(out, ext)
	}
	return out
}

// ParseSeqType parses a sequence type such as "xs:integer", "element()*"
// or "item()+". The empty sequence is "empty-sequence()".
func ParseSeqType(s string) (seqtype.SeqType, bool) {
	s = strings.TrimSpace(s)
	if s == "empty-sequence()" {
		return seqtype.Empty, true
	}
	occ := seqtype.ExactlyOne
	if n := len(s); n > 0 {
		switch s[n-1] {
		case '?':
			occ, s = seqtype.ZeroOrOne, s[:n-1]
		case '*':
			occ, s = seqtype.ZeroOrMore, s[:n-1]
		case '+':
			occ, s = seqtype.OneOrMore, s[:n-1]
		}
	}
	for k := seqtype.Item; k <= seqtype.Function; k++ {
		if k.String() == s {
			return seqtype.New(k, occ), true
		}
	}
	if k, ok := value.ParseKind(s); ok {
		return seqtype.New(k, occ), true
	}
	return seqtype.ItemStar, false
}
