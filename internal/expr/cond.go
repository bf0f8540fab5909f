package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// If is "if (Cond) then Then else Else".
type If struct {
	base
	Cond, Then, Else Expr
}

// NewIf returns a conditional.
func NewIf(info qerr.Info, cond, then, els Expr) *If {
	return &If{base: base{info: info}, Cond: cond, Then: then, Else: els}
}

func (i *If) slots(fn slotFunc) bool {
	return fn(&i.Cond, slotPlain) && fn(&i.Then, slotUpd) && fn(&i.Else, slotUpd)
}

func (i *If) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, i) }

func (i *If) Optimize(cc *CompileContext) (Expr, error) {
	cond, err := simplifyEBV(cc, i.Cond)
	if err != nil {
		return nil, err
	}
	i.Cond = cond
	i.st = i.Then.SeqType().Union(i.Else.SeqType())
	if b, ok := constBool(i.Cond); ok {
		if b {
			return cc.Replace(i, i.Then, "constant condition"), nil
		}
		return cc.Replace(i, i.Else, "constant condition"), nil
	}
	if i.Then.Equal(i.Else) && pure(i.Cond) {
		return cc.Replace(i, i.Then, "identical branches"), nil
	}
	tb, tok := constBool(i.Then)
	eb, eok := constBool(i.Else)
	if tok && eok && tb != eb {
		name := "boolean"
		if !tb {
			name = "not"
		}
		r, err := cc.Function(name, i.info, i.Cond)
		if err != nil {
			return nil, err
		}
		return cc.Replace(i, r, "boolean branches"), nil
	}
	return i, nil
}

func (i *If) branch(qc *QueryContext) (Expr, error) {
	b, err := ebv(i.Cond, qc)
	if err != nil {
		return nil, err
	}
	if b {
		return i.Then, nil
	}
	return i.Else, nil
}

func (i *If) Iter(qc *QueryContext) (Iter, error) {
	e, err := i.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Iter(qc)
}

func (i *If) Item(qc *QueryContext) (value.Item, error) {
	e, err := i.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Item(qc)
}

func (i *If) Value(qc *QueryContext) (value.Seq, error) {
	e, err := i.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Value(qc)
}

func (i *If) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewIf(i.info, i.Cond.Copy(cc, vm), i.Then.Copy(cc, vm), i.Else.Copy(cc, vm))
	c.st = i.st
	return c
}

func (i *If) Equal(o Expr) bool {
	oi, ok := o.(*If)
	return ok && i.Cond.Equal(oi.Cond) && i.Then.Equal(oi.Then) && i.Else.Equal(oi.Else)
}

func (i *If) String() string {
	return fmt.Sprintf("if (%s) then %s else %s", i.Cond, i.Then, i.Else)
}

// SwitchCase is one "case V1 case V2 return R" group.
type SwitchCase struct {
	Values []Expr
	Result Expr
}

// Switch selects the first case whose value equals the operand.
type Switch struct {
	base
	Operand Expr
	Cases   []SwitchCase
	Default Expr
}

// NewSwitch returns a switch expression.
func NewSwitch(info qerr.Info, operand Expr, cases []SwitchCase, def Expr) *Switch {
	return &Switch{base: base{info: info}, Operand: operand, Cases: cases, Default: def}
}

func (s *Switch) slots(fn slotFunc) bool {
	if !fn(&s.Operand, slotPlain) {
		return false
	}
	for i := range s.Cases {
		c := &s.Cases[i]
		if !eachExpr(fn, slotPlain, c.Values) || !fn(&c.Result, slotUpd) {
			return false
		}
	}
	return fn(&s.Default, slotUpd)
}

func (s *Switch) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, s) }

func (s *Switch) Optimize(cc *CompileContext) (Expr, error) {
	st := s.Default.SeqType()
	for _, c := range s.Cases {
		st = st.Union(c.Result.SeqType())
	}
	s.st = st
	op, ok := s.Operand.(*Const)
	if !ok {
		return s, nil
	}
	for _, c := range s.Cases {
		for _, v := range c.Values {
			vc, ok := v.(*Const)
			if !ok {
				return s, nil
			}
			if switchMatch(value.First(op.Val), value.First(vc.Val)) {
				return cc.Replace(s, c.Result, "constant switch"), nil
			}
		}
	}
	return cc.Replace(s, s.Default, "constant switch"), nil
}

// switchMatch compares atomized operands as deep-equal does: empty
// matches empty and incomparable values do not match.
func switchMatch(a, b value.Item) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, errA := value.Atomize(a)
	b, errB := value.Atomize(b)
	if errA != nil || errB != nil {
		return false
	}
	c, err := value.CompareValue(a, b)
	return err == nil && c == 0
}

func (s *Switch) branch(qc *QueryContext) (Expr, error) {
	op, err := atomized(s.Operand, qc)
	if err != nil {
		return nil, err
	}
	for _, c := range s.Cases {
		for _, v := range c.Values {
			x, err := atomized(v, qc)
			if err != nil {
				return nil, err
			}
			if switchMatch(op, x) {
				return c.Result, nil
			}
		}
	}
	return s.Default, nil
}

func (s *Switch) Iter(qc *QueryContext) (Iter, error) {
	e, err := s.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Iter(qc)
}

func (s *Switch) Item(qc *QueryContext) (value.Item, error) {
	e, err := s.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Item(qc)
}

func (s *Switch) Value(qc *QueryContext) (value.Seq, error) {
	e, err := s.branch(qc)
	if err != nil {
		return nil, err
	}
	return e.Value(qc)
}

func (s *Switch) Copy(cc *CompileContext, vm VarMap) Expr {
	cases := make([]SwitchCase, len(s.Cases))
	for i, c := range s.Cases {
		cases[i] = SwitchCase{Values: copyAll(cc, vm, c.Values), Result: c.Result.Copy(cc, vm)}
	}
	c := NewSwitch(s.info, s.Operand.Copy(cc, vm), cases, s.Default.Copy(cc, vm))
	c.st = s.st
	return c
}

func (s *Switch) Equal(o Expr) bool {
	os, ok := o.(*Switch)
	if !ok || len(s.Cases) != len(os.Cases) || !s.Operand.Equal(os.Operand) || !s.Default.Equal(os.Default) {
		return false
	}
	for i, c := range s.Cases {
		if !equalAll(c.Values, os.Cases[i].Values) || !c.Result.Equal(os.Cases[i].Result) {
			return false
		}
	}
	return true
}

func (s *Switch) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "switch (%s)", s.Operand)
	for _, c := range s.Cases {
		for _, v := range c.Values {
			fmt.Fprintf(&b, " case %s", v)
		}
		fmt.Fprintf(&b, " return %s", c.Result)
	}
	fmt.Fprintf(&b, " default return %s", s.Default)
	return b.String()
}

// Catch is one catch clause. Codes are name patterns; Code, if set, is
// bound to the caught error code.
type Catch struct {
	Codes []string
	Code  *Var
	Body  Expr
}

// Try is "try { Body } catch ...". The body is evaluated eagerly so that
// its errors surface inside the try.
type Try struct {
	base
	Body    Expr
	Catches []Catch
}

// NewTry returns a try/catch expression.
func NewTry(info qerr.Info, body Expr, catches ...Catch) *Try {
	return &Try{base: base{info: info}, Body: body, Catches: catches}
}

func (t *Try) slots(fn slotFunc) bool {
	if !fn(&t.Body, slotUpd) {
		return false
	}
	for i := range t.Catches {
		if !fn(&t.Catches[i].Body, slotUpd) {
			return false
		}
	}
	return true
}

func (t *Try) Compile(cc *CompileContext) (Expr, error) {
	var err error
	if t.Body, err = compileChild(cc, t.Body, true); err != nil {
		return nil, err
	}
	for i := range t.Catches {
		c := &t.Catches[i]
		if c.Code != nil {
			c.Code.Type = seqtype.StringOne
			cc.Declare(c.Code)
		}
		c.Body, err = compileChild(cc, c.Body, true)
		if c.Code != nil {
			cc.popVar()
		}
		if err != nil {
			return nil, err
		}
	}
	return t.Optimize(cc)
}

func (t *Try) Optimize(cc *CompileContext) (Expr, error) {
	st := t.Body.SeqType()
	for _, c := range t.Catches {
		st = st.Union(c.Body.SeqType())
	}
	t.st = st
	if _, ok := t.Body.(*Const); ok {
		return cc.Replace(t, t.Body, "try without error"), nil
	}
	return t, nil
}

func (t *Try) Value(qc *QueryContext) (value.Seq, error) {
	saved := qc.Focus()
	v, err := t.Body.Value(qc)
	if err == nil {
		return v, nil
	}
	for _, c := range t.Catches {
		if !qerr.Match(err, c.Codes) {
			continue
		}
		qc.focus = saved
		if c.Code != nil {
			qe, _ := qerr.As(err)
			qc.Bind(c.Code, value.Items{value.Str(qe.Code)})
		}
		return c.Body.Value(qc)
	}
	return nil, err
}

func (t *Try) Iter(qc *QueryContext) (Iter, error) { return iterOf(t, qc) }
func (t *Try) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(t, qc) }

func (t *Try) Copy(cc *CompileContext, vm VarMap) Expr {
	catches := make([]Catch, len(t.Catches))
	for i, c := range t.Catches {
		catches[i] = Catch{Codes: c.Codes, Code: vm.fresh(cc, c.Code), Body: c.Body.Copy(cc, vm)}
	}
	c := NewTry(t.info, t.Body.Copy(cc, vm), catches...)
	c.st = t.st
	return c
}

func (t *Try) Equal(o Expr) bool {
	ot, ok := o.(*Try)
	if !ok || len(t.Catches) != len(ot.Catches) || !t.Body.Equal(ot.Body) {
		return false
	}
	for i, c := range t.Catches {
		oc := ot.Catches[i]
		if strings.Join(c.Codes, "|") != strings.Join(oc.Codes, "|") || c.Code != oc.Code || !c.Body.Equal(oc.Body) {
			return false
		}
	}
	return true
}

func (t *Try) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "try { %s }", t.Body)
	for _, c := range t.Catches {
		fmt.Fprintf(&b, " catch %s { %s }", strings.Join(c.Codes, " | "), c.Body)
	}
	return b.String()
}

// Cast is "E cast as T" (with "?" when Optional).
type Cast struct {
	base
	E        Expr
	TypeName string
	Target   seqtype.Kind
	Optional bool
}

// NewCast returns a cast to the named atomic type.
func NewCast(info qerr.Info, e Expr, typeName string, optional bool) *Cast {
	return &Cast{base: base{info: info}, E: e, TypeName: typeName, Optional: optional}
}

func (c *Cast) slots(fn slotFunc) bool { return fn(&c.E, slotPlain) }

func (c *Cast) Compile(cc *CompileContext) (Expr, error) {
	k, ok := value.ParseKind(c.TypeName)
	if !ok {
		return nil, qerr.WithValue(qerr.CodeUnknownType, c.info, c.TypeName, "unknown type %s", c.TypeName)
	}
	if ok, code := value.CastTarget(k); !ok {
		return nil, qerr.WithValue(code, c.info, c.TypeName, "invalid cast target %s", c.TypeName)
	}
	c.Target = k
	return compileNode(cc, c)
}

func (c *Cast) Optimize(cc *CompileContext) (Expr, error) {
	t := c.E.SeqType()
	occ := seqtype.ExactlyOne
	if c.Optional {
		occ = seqtype.ZeroOrOne
	}
	c.st = seqtype.New(c.Target, occ)
	if t.One() && t.Kind == c.Target {
		return cc.Replace(c, c.E, "redundant cast"), nil
	}
	if allConst(c) {
		return cc.PreEval(c)
	}
	return c, nil
}

func (c *Cast) Item(qc *QueryContext) (value.Item, error) {
	v, err := atomized(c.E, qc)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if c.Optional {
			return nil, nil
		}
		return nil, qerr.New(qerr.CodeType, c.info, "empty sequence cannot be cast to %s", c.TypeName)
	}
	r, err := value.Cast(v, c.Target)
	return r, qerr.Locate(err, c.info)
}

func (c *Cast) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *Cast) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }

func (c *Cast) Copy(cc *CompileContext, vm VarMap) Expr {
	n := NewCast(c.info, c.E.Copy(cc, vm), c.TypeName, c.Optional)
	n.Target, n.st = c.Target, c.st
	return n
}

func (c *Cast) Equal(o Expr) bool {
	oc, ok := o.(*Cast)
	return ok && c.Target == oc.Target && c.Optional == oc.Optional && c.E.Equal(oc.E)
}

func (c *Cast) String() string {
	s := fmt.Sprintf("(%s cast as %s", c.E, c.TypeName)
	if c.Optional {
		s += "?"
	}
	return s + ")"
}

// Raise fails with a fixed error when evaluated. It stands in for
// sub-expressions whose evaluation is known to fail.
type Raise struct {
	base
	Err *qerr.QueryError
}

// NewRaise returns a node raising err.
func NewRaise(info qerr.Info, err *qerr.QueryError) *Raise {
	return &Raise{base: base{info: info, st: seqtype.Never}, Err: err}
}

func (r *Raise) Compile(*CompileContext) (Expr, error) { return r, nil }
func (r *Raise) Optimize(*CompileContext) (Expr, error) { return r, nil }

func (r *Raise) Item(*QueryContext) (value.Item, error) { return nil, r.fail() }
func (r *Raise) Iter(*QueryContext) (Iter, error) { return nil, r.fail() }
func (r *Raise) Value(*QueryContext) (value.Seq, error) { return nil, r.fail() }

func (r *Raise) fail() error {
	e := *r.Err
	if e.Info.IsZero() {
		e.Info = r.info
	}
	return &e
}

func (r *Raise) Copy(*CompileContext, VarMap) Expr { return NewRaise(r.info, r.Err) }

func (r *Raise) Equal(o Expr) bool {
	or, ok := o.(*Raise)
	return ok && r.Err.Code == or.Err.Code && r.Err.Message == or.Err.Message
}

func (r *Raise) String() string {
	return fmt.Sprintf("error(%q, %q)", string(r.Err.Code), r.Err.Message)
}
