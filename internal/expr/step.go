package expr

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/xqcore/internal/index"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Axis is a navigation axis.
type Axis uint8

const (
	AxisChild Axis = iota
	AxisAttribute
	AxisSelf
	AxisDescendant
	AxisDescendantOrSelf
	AxisParent
)

var axisNames = [...]string{"child", "attribute", "self", "descendant", "descendant-or-self", "parent"}

func (a Axis) String() string { return axisNames[a] }

// ParseAxis resolves an axis name.
func ParseAxis(s string) (Axis, bool) {
	for i, n := range axisNames {
		if n == s {
			return Axis(i), true
		}
	}
	return 0, false
}

// Test is a node test. Kind restricts the node kind (seqtype.Node for
// any); an empty Name matches every name.
type Test struct {
	Kind seqtype.Kind
	Name string
}

// ParseTest parses "name", "*", "node()" or "text()" for axis a.
func ParseTest(a Axis, s string) Test {
	principal := seqtype.Element
	if a == AxisAttribute {
		principal = seqtype.Attribute
	}
	switch s {
	case "node()":
		return Test{Kind: seqtype.Node}
	case "text()":
		return Test{Kind: seqtype.Text}
	case "*":
		return Test{Kind: principal}
	}
	return Test{Kind: principal, Name: s}
}

func (t Test) matches(n *value.Node) bool {
	return n.Kind().InstanceOf(t.Kind) && (t.Name == "" || t.Name == n.Name)
}

func (t Test) String() string {
	switch {
	case t.Kind == seqtype.Node:
		return "node()"
	case t.Kind == seqtype.Text:
		return "text()"
	case t.Name == "":
		return "*"
	}
	return t.Name
}

// Step is an axis step relative to the context node.
type Step struct {
	base
	Axis Axis
	Test Test
}

// NewStep returns an axis step.
func NewStep(info qerr.Info, axis Axis, test Test) *Step {
	s := &Step{base: base{info: info}, Axis: axis, Test: test}
	s.st = s.stepType()
	return s
}

func (s *Step) stepType() seqtype.SeqType {
	k := s.Test.Kind
	if s.Axis == AxisAttribute {
		k = seqtype.Attribute
	}
	occ := seqtype.ZeroOrMore
	switch {
	case s.Axis == AxisSelf, s.Axis == AxisParent:
		occ = seqtype.ZeroOrOne
	case s.Axis == AxisAttribute && s.Test.Name != "":
		occ = seqtype.ZeroOrOne
	}
	return seqtype.New(k, occ)
}

// simple reports whether the step yields nodes in document order without
// duplicates for any set of input nodes at the same depth.
func (s *Step) simple() bool {
	switch s.Axis {
	case AxisChild, AxisAttribute, AxisSelf:
		return true
	}
	return false
}

func (s *Step) Compile(cc *CompileContext) (Expr, error) {
	if _, ok := cc.FocusType(); !ok {
		return nil, qerr.New(qerr.CodeNoContext, s.info, "no context node for %s", s)
	}
	return s.Optimize(cc)
}

func (s *Step) Optimize(*CompileContext) (Expr, error) {
	s.st = s.stepType()
	return s, nil
}

func (*Step) flags() Flag { return FlagCtx }

func (s *Step) count(v *Var) VarUsage {
	if v == nil {
		return VarOnce
	}
	return VarNever
}

func (s *Step) inline(ic *InlineContext) (Expr, error) {
	if ic.Var != nil {
		return nil, nil
	}
	return NewPath(s.info, ic.copyExpr(), NewStep(s.info, s.Axis, s.Test)).Optimize(ic.cc)
}

// apply appends the nodes reached from n.
func (s *Step) apply(n *value.Node, out []*value.Node) []*value.Node {
	switch s.Axis {
	case AxisChild:
		for _, c := range n.Children {
			if s.Test.matches(c) {
				out = append(out, c)
			}
		}
	case AxisAttribute:
		for _, a := range n.Attrs {
			if s.Test.Name == "" || s.Test.Name == a.Name {
				out = append(out, a)
			}
		}
	case AxisSelf:
		if s.Test.matches(n) {
			out = append(out, n)
		}
	case AxisParent:
		if n.Parent != nil && s.Test.matches(n.Parent) {
			out = append(out, n.Parent)
		}
	case AxisDescendant, AxisDescendantOrSelf:
		n.Walk(func(d *value.Node) {
			if (d != n || s.Axis == AxisDescendantOrSelf) && s.Test.matches(d) {
				out = append(out, d)
			}
		})
	}
	return out
}

func (s *Step) Value(qc *QueryContext) (value.Seq, error) {
	f := qc.Focus()
	if !f.Defined() {
		return nil, qerr.New(qerr.CodeNoContext, s.info, "no context node for %s", s)
	}
	n, err := asNode(f.Value, s.info)
	if err != nil {
		return nil, err
	}
	return nodeSeq(s.apply(n, nil)), nil
}

func (s *Step) Iter(qc *QueryContext) (Iter, error) { return iterOf(s, qc) }
func (s *Step) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(s, qc) }

func asNode(it value.Item, info qerr.Info) (*value.Node, error) {
	n, ok := it.(*value.Node)
	if !ok {
		return nil, qerr.WithValue(qerr.CodeType, info, it, "context item is not a node: %s", it.Kind())
	}
	return n, nil
}

func nodeSeq(nodes []*value.Node) value.Seq {
	out := make(value.Items, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

func (s *Step) Copy(*CompileContext, VarMap) Expr { return NewStep(s.info, s.Axis, s.Test) }

func (s *Step) Equal(o Expr) bool {
	os, ok := o.(*Step)
	return ok && s.Axis == os.Axis && s.Test == os.Test
}

func (s *Step) String() string {
	switch s.Axis {
	case AxisChild:
		return s.Test.String()
	case AxisAttribute:
		return "@" + s.Test.String()
	}
	return s.Axis.String() + "::" + s.Test.String()
}

// Path applies Steps to the nodes of Root, returning nodes in document
// order without duplicates.
type Path struct {
	base
	Root  Expr
	Steps []*Step
}

// NewPath returns a path expression.
func NewPath(info qerr.Info, root Expr, steps ...*Step) *Path {
	return &Path{base: base{info: info}, Root: root, Steps: steps}
}

func (p *Path) slots(fn slotFunc) bool { return fn(&p.Root, slotPlain) }

func (p *Path) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, p) }

func (p *Path) Optimize(cc *CompileContext) (Expr, error) {
	if inner, ok := p.Root.(*Path); ok {
		steps := append(slices.Clone(inner.Steps), p.Steps...)
		r, err := NewPath(p.info, inner.Root, steps...).Optimize(cc)
		if err != nil {
			return nil, err
		}
		return cc.Replace(p, r, "merge paths"), nil
	}
	rt := p.Root.SeqType()
	if rt.Zero() {
		return cc.Replace(p, p.Root, "empty path root"), nil
	}
	last := p.Steps[len(p.Steps)-1].stepType()
	occ := seqtype.ZeroOrMore
	if rt.ZeroOrOne() && p.allSingle() {
		occ = seqtype.ZeroOrOne
	}
	p.st = last.WithOcc(occ)
	return p, nil
}

func (p *Path) allSingle() bool {
	for _, s := range p.Steps {
		if s.stepType().Many() {
			return false
		}
	}
	return true
}

// ChildPath returns the names of a path of child and attribute steps
// starting at the context item, attributes written "@name".
func ChildPath(e Expr) ([]string, bool) {
	var steps []*Step
	switch x := e.(type) {
	case *Step:
		steps = []*Step{x}
	case *Path:
		if _, ok := x.Root.(*ContextValue); !ok {
			return nil, false
		}
		steps = x.Steps
	default:
		return nil, false
	}
	names := make([]string, len(steps))
	for i, s := range steps {
		if s.Test.Name == "" {
			return nil, false
		}
		switch {
		case s.Axis == AxisChild && s.Test.Kind == seqtype.Element:
			names[i] = s.Test.Name
		case s.Axis == AxisAttribute && i == len(steps)-1:
			names[i] = "@" + s.Test.Name
		default:
			return nil, false
		}
	}
	return names, true
}

func (p *Path) Value(qc *QueryContext) (value.Seq, error) {
	rv, err := p.Root.Value(qc)
	if err != nil {
		return nil, err
	}
	nodes := make([]*value.Node, rv.Len())
	for i := range rv.Len() {
		if nodes[i], err = asNode(rv.At(i), p.Root.Info()); err != nil {
			return nil, err
		}
	}
	for _, s := range p.Steps {
		var next []*value.Node
		for _, n := range nodes {
			if err := qc.Check(); err != nil {
				return nil, err
			}
			next = s.apply(n, next)
		}
		if len(nodes) > 1 || !s.simple() {
			next = docOrder(next)
		}
		nodes = next
	}
	return nodeSeq(nodes), nil
}

// docOrder sorts nodes in document order and removes duplicates.
func docOrder(nodes []*value.Node) []*value.Node {
	slices.SortFunc(nodes, func(a, b *value.Node) int {
		switch {
		case a == b:
			return 0
		case a.Before(b):
			return -1
		}
		return 1
	})
	return slices.Compact(nodes)
}

func (p *Path) Iter(qc *QueryContext) (Iter, error) { return iterOf(p, qc) }
func (p *Path) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(p, qc) }

func (p *Path) Copy(cc *CompileContext, vm VarMap) Expr {
	steps := make([]*Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.Copy(cc, vm).(*Step)
	}
	c := NewPath(p.info, p.Root.Copy(cc, vm), steps...)
	c.st = p.st
	return c
}

func (p *Path) Equal(o Expr) bool {
	op, ok := o.(*Path)
	if !ok || len(p.Steps) != len(op.Steps) || !p.Root.Equal(op.Root) {
		return false
	}
	for i, s := range p.Steps {
		if !s.Equal(op.Steps[i]) {
			return false
		}
	}
	return true
}

func (p *Path) String() string {
	parts := make([]string, 0, len(p.Steps)+1)
	parts = append(parts, p.Root.String())
	for _, s := range p.Steps {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "/")
}

// Collection is the sequence of records of a named collection.
type Collection struct {
	base
	Name string
}

// NewCollection returns collection(name).
func NewCollection(info qerr.Info, name string) *Collection {
	return &Collection{base: base{info: info, st: seqtype.ElementStar}, Name: name}
}

func (c *Collection) Compile(cc *CompileContext) (Expr, error) { return c.Optimize(cc) }
func (c *Collection) Optimize(*CompileContext) (Expr, error) { return c, nil }

func (c *Collection) Value(qc *QueryContext) (value.Seq, error) {
	return qc.collection(c.Name, c.info)
}

func (c *Collection) Iter(qc *QueryContext) (Iter, error) { return iterOf(c, qc) }
func (c *Collection) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(c, qc) }

func (c *Collection) Copy(*CompileContext, VarMap) Expr { return NewCollection(c.info, c.Name) }

func (c *Collection) Equal(o Expr) bool {
	oc, ok := o.(*Collection)
	return ok && c.Name == oc.Name
}

func (c *Collection) String() string { return "collection(" + strconv.Quote(c.Name) + ")" }

// FetchFunc produces the records selected by an index access.
type FetchFunc func(ctx context.Context) (value.Seq, error)

// IndexAccess is a leaf supplied by storage that answers a descriptor
// from an index. The core treats it as opaque.
type IndexAccess struct {
	base
	Desc  index.Descriptor
	fetch FetchFunc
}

// NewIndexAccess returns an index access leaf. fetch must return records in
// document order.
func NewIndexAccess(d index.Descriptor, info qerr.Info, fetch FetchFunc) *IndexAccess {
	return &IndexAccess{base: base{info: info, st: seqtype.ElementStar}, Desc: d, fetch: fetch}
}

func (a *IndexAccess) Compile(*CompileContext) (Expr, error) { return a, nil }
func (a *IndexAccess) Optimize(*CompileContext) (Expr, error) { return a, nil }

func (a *IndexAccess) Value(qc *QueryContext) (value.Seq, error) {
	v, err := a.fetch(qc.Context())
	if err != nil {
		return nil, qerr.Locate(err, a.info)
	}
	return v, nil
}

func (a *IndexAccess) Iter(qc *QueryContext) (Iter, error) { return iterOf(a, qc) }
func (a *IndexAccess) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(a, qc) }

func (a *IndexAccess) Copy(*CompileContext, VarMap) Expr { return NewIndexAccess(a.Desc, a.info, a.fetch) }

func (a *IndexAccess) Equal(o Expr) bool {
	oa, ok := o.(*IndexAccess)
	return ok && index.Key(a.Desc) == index.Key(oa.Desc)
}

func (a *IndexAccess) String() string { return "index-access(" + a.Desc.String() + ")" }
