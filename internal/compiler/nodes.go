package compiler

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

// NodeKinds lists the keys that select a node kind in a plan document.
// Every node is a struct with exactly one of them.
var NodeKinds = []string{
	"and", "arith", "call", "cast", "cmp", "collection", "const", "delete",
	"dot", "double", "dyncall", "filter", "for", "function", "if", "let",
	"map", "neg", "or", "path", "range", "replicate", "seq", "step",
	"switch", "try", "var", "xml",
}

// node reads one query node. Returns nil, with the problem recorded, if the
// node is malformed.
func (l *loader) node(v cue.Value) expr.Expr {
	iter, err := v.Fields()
	if err != nil {
		l.addError(v, ErrFieldType, "node must be a struct with one of: %s", strings.Join(NodeKinds, ", "))
		return nil
	}

	var (
		kind    string
		payload cue.Value
		n       int
	)
	for iter.Next() {
		n++
		kind, payload = iter.Label(), iter.Value()
	}
	switch n {
	case 0:
		l.addError(v, ErrUnknownNode, "empty node")
		return nil
	case 1:
	default:
		l.addError(v, ErrAmbiguousNode, "node has %d kinds, want exactly one", n)
		return nil
	}

	return l.build(kind, infoOf(v.Pos()), payload)
}

func (l *loader) build(kind string, info qerr.Info, v cue.Value) expr.Expr {
	switch kind {
	case "const":
		return expr.NewConst(info, l.literal(v)...)
	case "double":
		f, err := v.Float64()
		if err != nil {
			l.addError(v, ErrFieldType, "double must be a number")
			return nil
		}
		return expr.NewConst(info, value.Dbl(f))
	case "xml":
		it := l.xmlLiteral(v)
		if it == nil {
			return nil
		}
		return expr.NewConst(info, it)
	case "seq":
		ops := l.nodes(v)
		if !all(ops...) {
			return nil
		}
		return expr.NewList(info, ops...)
	case "range":
		ops := l.nodes(v)
		if len(ops) != 2 {
			l.addError(v, ErrFieldType, "range takes [low, high]")
			return nil
		}
		if !all(ops...) {
			return nil
		}
		return expr.NewRange(info, ops[0], ops[1])
	case "var":
		return expr.NewVarRef(info, l.stringOf(v))
	case "dot":
		return expr.NewContextValue(info)
	case "arith":
		return l.arith(info, v)
	case "neg":
		e := l.node(v)
		if !all(e) {
			return nil
		}
		return expr.NewUnary(info, e)
	case "cmp":
		return l.cmp(info, v)
	case "and":
		ops := l.nodes(v)
		if !all(ops...) {
			return nil
		}
		return expr.NewAnd(info, ops...)
	case "or":
		ops := l.nodes(v)
		if !all(ops...) {
			return nil
		}
		return expr.NewOr(info, ops...)
	case "if":
		c, t, e := l.field(v, "cond"), l.field(v, "then"), l.field(v, "else")
		if !all(c, t, e) {
			return nil
		}
		return expr.NewIf(info, c, t, e)
	case "switch":
		return l.switchNode(info, v)
	case "try":
		return l.try(info, v)
	case "cast":
		e := l.field(v, "expr")
		optional := l.optBool(v, "optional")
		if !all(e) {
			return nil
		}
		return expr.NewCast(info, e, l.stringOf(l.required(v, "type")), optional)
	case "map":
		ops := l.nodes(v)
		if len(ops) < 2 {
			l.addError(v, ErrFieldType, "map takes at least two operands")
			return nil
		}
		if !all(ops...) {
			return nil
		}
		return expr.NewMap(info, ops...)
	case "replicate":
		in, count := l.field(v, "input"), l.field(v, "count")
		if !all(in, count) {
			return nil
		}
		return expr.NewReplicate(info, in, count, l.optBool(v, "multiple"))
	case "step":
		s := l.step(info, v)
		if s == nil {
			return nil
		}
		return s
	case "path":
		return l.path(info, v)
	case "collection":
		return expr.NewCollection(info, l.stringOf(v))
	case "filter":
		root := l.field(v, "root")
		preds := l.nodes(l.required(v, "preds"))
		if !all(append(preds, root)...) {
			return nil
		}
		return expr.NewFilter(info, root, preds...)
	case "call":
		return l.call(info, v)
	case "function":
		return l.function(info, v)
	case "dyncall":
		fn := l.field(v, "fn")
		var args []expr.Expr
		if av := v.LookupPath(cue.ParsePath("args")); av.Exists() {
			args = l.nodes(av)
		}
		if !all(append(args, fn)...) {
			return nil
		}
		return expr.NewDynCall(info, fn, args...)
	case "delete":
		e := l.node(v)
		if !all(e) {
			return nil
		}
		return expr.NewDelete(info, e)
	case "let":
		bind, body := l.field(v, "bind"), l.field(v, "body")
		vr := expr.NewVar(l.stringOf(l.required(v, "var")))
		if !all(bind, body) {
			return nil
		}
		return expr.NewLet(info, vr, bind, body)
	case "for":
		in, body := l.field(v, "in"), l.field(v, "body")
		vr := expr.NewVar(l.stringOf(l.required(v, "var")))
		var pos *expr.Var
		if pv := v.LookupPath(cue.ParsePath("at")); pv.Exists() {
			pos = expr.NewVar(l.stringOf(pv))
		}
		if !all(in, body) {
			return nil
		}
		return expr.NewFor(info, vr, pos, in, body)
	}
	l.addError(v, ErrUnknownNode, "unknown node kind %q", kind)
	return nil
}

// all reports whether every operand was read.
func all(operands ...expr.Expr) bool {
	for _, o := range operands {
		if o == nil {
			return false
		}
	}
	return true
}

func (l *loader) nodes(v cue.Value) []expr.Expr {
	iter, err := v.List()
	if err != nil {
		l.addError(v, ErrFieldType, "expected a list of nodes")
		return nil
	}
	out := []expr.Expr{}
	for iter.Next() {
		out = append(out, l.node(iter.Value()))
	}
	return out
}

// required returns the named field, recording an error if it is absent.
func (l *loader) required(v cue.Value, name string) cue.Value {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		l.addError(v, ErrMissingField, "%s is required", name)
	}
	return f
}

// field reads the named node field.
func (l *loader) field(v cue.Value, name string) expr.Expr {
	f := l.required(v, name)
	if !f.Exists() {
		return nil
	}
	return l.node(f)
}

func (l *loader) stringOf(v cue.Value) string {
	if !v.Exists() {
		return ""
	}
	s, err := v.String()
	if err != nil {
		l.addError(v, ErrFieldType, "expected a string")
	}
	return s
}

func (l *loader) optBool(v cue.Value, name string) bool {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false
	}
	b, err := f.Bool()
	if err != nil {
		l.addError(f, ErrFieldType, "expected a bool")
	}
	return b
}

func (l *loader) arith(info qerr.Info, v cue.Value) expr.Expr {
	opv := l.required(v, "op")
	op, ok := value.ParseArithOp(l.stringOf(opv))
	if opv.Exists() && !ok {
		l.addError(opv, ErrUnknownOperator, "unknown arithmetic operator %q", l.stringOf(opv))
	}
	left, right := l.field(v, "left"), l.field(v, "right")
	if !ok {
		return nil
	}
	if !all(left, right) {
		return nil
	}
	return expr.NewArith(info, op, left, right)
}

// cmp reads a comparison. General operators ("=", "<") build general
// comparisons; value operators ("eq", "lt") build value comparisons.
func (l *loader) cmp(info qerr.Info, v cue.Value) expr.Expr {
	opv := l.required(v, "op")
	spelled := l.stringOf(opv)
	op, ok := value.ParseCmpOp(spelled)
	if opv.Exists() && !ok {
		l.addError(opv, ErrUnknownOperator, "unknown comparison operator %q", spelled)
	}
	left, right := l.field(v, "left"), l.field(v, "right")
	if !ok || left == nil || right == nil {
		return nil
	}
	if spelled == op.ValueName() {
		return expr.NewCmpV(info, op, left, right)
	}
	return expr.NewCmpG(info, op, left, right)
}

func (l *loader) switchNode(info qerr.Info, v cue.Value) expr.Expr {
	operand := l.field(v, "operand")
	def := l.field(v, "default")

	iter, err := l.required(v, "cases").List()
	if err != nil {
		l.addError(v, ErrFieldType, "cases must be a list")
		return nil
	}
	var cases []expr.SwitchCase
	valid := true
	for iter.Next() {
		cv := iter.Value()
		c := expr.SwitchCase{
			Values: l.nodes(l.required(cv, "values")),
			Result: l.field(cv, "result"),
		}
		if !all(append(c.Values, c.Result)...) {
			valid = false
		}
		cases = append(cases, c)
	}
	if !valid {
		return nil
	}
	if !all(operand, def) {
		return nil
	}
	return expr.NewSwitch(info, operand, cases, def)
}

func (l *loader) try(info qerr.Info, v cue.Value) expr.Expr {
	body := l.field(v, "body")

	iter, err := l.required(v, "catch").List()
	if err != nil {
		l.addError(v, ErrFieldType, "catch must be a list")
		return nil
	}
	var catches []expr.Catch
	valid := body != nil
	for iter.Next() {
		cv := iter.Value()
		c := expr.Catch{Body: l.field(cv, "body")}
		if c.Body == nil {
			valid = false
		}
		codes, err := l.required(cv, "codes").List()
		if err != nil {
			l.addError(cv, ErrFieldType, "codes must be a list of patterns")
			valid = false
			continue
		}
		for codes.Next() {
			pv := codes.Value()
			p := l.stringOf(pv)
			if !validCatchPattern(p) {
				l.addError(pv, ErrInvalidCatchCode, "invalid catch pattern %q", p)
				valid = false
			}
			c.Codes = append(c.Codes, p)
		}
		if vv := cv.LookupPath(cue.ParsePath("var")); vv.Exists() {
			c.Code = expr.NewVar(l.stringOf(vv))
		}
		catches = append(catches, c)
	}
	if !valid {
		return nil
	}
	return expr.NewTry(info, body, catches...)
}

// validCatchPattern accepts "*", "prefix:*", "*:local" and plain or
// prefixed names.
func validCatchPattern(p string) bool {
	if p == "" || strings.ContainsAny(p, " \t\n") {
		return false
	}
	prefix, local, found := strings.Cut(p, ":")
	if !found {
		return true
	}
	return prefix != "" && local != "" && !strings.Contains(local, ":")
}

// step parses "name", "@name", "..", "." or "axis::test".
func (l *loader) step(info qerr.Info, v cue.Value) *expr.Step {
	s := strings.TrimSpace(l.stringOf(v))
	switch {
	case s == "":
		l.addError(v, ErrInvalidStep, "empty step")
		return nil
	case s == "..":
		return expr.NewStep(info, expr.AxisParent, expr.ParseTest(expr.AxisParent, "node()"))
	case s == ".":
		return expr.NewStep(info, expr.AxisSelf, expr.ParseTest(expr.AxisSelf, "node()"))
	case strings.HasPrefix(s, "@"):
		return expr.NewStep(info, expr.AxisAttribute, expr.ParseTest(expr.AxisAttribute, s[1:]))
	}
	axisName, test, found := strings.Cut(s, "::")
	if !found {
		return expr.NewStep(info, expr.AxisChild, expr.ParseTest(expr.AxisChild, s))
	}
	axis, ok := expr.ParseAxis(axisName)
	if !ok || test == "" {
		l.addError(v, ErrInvalidStep, "invalid step %q", s)
		return nil
	}
	return expr.NewStep(info, axis, expr.ParseTest(axis, test))
}

// path reads "path: { root?: node, steps: [string] }". Without a root the
// path starts at the context item.
func (l *loader) path(info qerr.Info, v cue.Value) expr.Expr {
	var root expr.Expr = expr.NewContextValue(info)
	if rv := v.LookupPath(cue.ParsePath("root")); rv.Exists() {
		root = l.node(rv)
	}

	iter, err := l.required(v, "steps").List()
	if err != nil {
		l.addError(v, ErrFieldType, "steps must be a list of step strings")
		return nil
	}
	var steps []*expr.Step
	valid := root != nil
	for iter.Next() {
		sv := iter.Value()
		s := l.step(infoOf(sv.Pos()), sv)
		if s == nil {
			valid = false
			continue
		}
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		l.addError(v, ErrMissingField, "path needs at least one step")
		return nil
	}
	if !valid {
		return nil
	}
	return expr.NewPath(info, root, steps...)
}

func (l *loader) call(info qerr.Info, v cue.Value) expr.Expr {
	name := l.stringOf(l.required(v, "name"))
	var args []expr.Expr
	if av := v.LookupPath(cue.ParsePath("args")); av.Exists() {
		args = l.nodes(av)
	}
	if !all(args...) {
		return nil
	}
	fn, err := expr.NewFn(info, name, args...)
	if err != nil {
		l.addError(v, ErrUnknownFunction, "%v", err)
		return nil
	}
	return fn
}

func (l *loader) function(info qerr.Info, v cue.Value) expr.Expr {
	iter, err := l.required(v, "params").List()
	if err != nil {
		l.addError(v, ErrFieldType, "params must be a list of names")
		return nil
	}
	var params []*expr.Var
	seen := make(map[string]bool)
	for iter.Next() {
		pv := iter.Value()
		name := l.stringOf(pv)
		if seen[name] {
			l.addError(pv, ErrDuplicateName, "parameter $%s declared twice", name)
			continue
		}
		seen[name] = true
		params = append(params, expr.NewVar(name))
	}
	body := l.field(v, "body")
	if !all(body) {
		return nil
	}
	return expr.NewFuncLit(info, params, body)
}
