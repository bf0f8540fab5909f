package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// FuncLit is an inline function "function($a, $b) { Body }". The body has
// no focus; variables of the enclosing scope are captured when the
// function item is created.
type FuncLit struct {
	base
	Params []*Var
	Body   Expr
	free   []*Var
}

// NewFuncLit returns an inline function.
func NewFuncLit(info qerr.Info, params []*Var, body Expr) *FuncLit {
	return &FuncLit{base: base{info: info, st: seqtype.One(seqtype.Function)}, Params: params, Body: body}
}

func (f *FuncLit) slots(fn slotFunc) bool { return fn(&f.Body, slotBody) }

func (f *FuncLit) Compile(cc *CompileContext) (Expr, error) {
	for _, p := range f.Params {
		cc.Declare(p)
	}
	err := cc.withoutFocus(func() (err error) {
		f.Body, err = compileChild(cc, f.Body, false)
		return err
	})
	for range f.Params {
		cc.popVar()
	}
	if err != nil {
		return nil, err
	}
	return f.Optimize(cc)
}

func (f *FuncLit) Optimize(*CompileContext) (Expr, error) {
	f.free = freeVars(f.Body, f.Params)
	return f, nil
}

// freeVars returns the variables referenced in e that are bound neither
// by bound nor inside e.
func freeVars(e Expr, bound []*Var) []*Var {
	inner := map[*Var]bool{}
	for _, v := range bound {
		inner[v] = true
	}
	Walk(e, func(x Expr) {
		switch n := x.(type) {
		case *Let:
			inner[n.Var] = true
		case *For:
			inner[n.Var] = true
			if n.Pos != nil {
				inner[n.Pos] = true
			}
		case *Try:
			for _, c := range n.Catches {
				if c.Code != nil {
					inner[c.Code] = true
				}
			}
		case *FuncLit:
			for _, p := range n.Params {
				inner[p] = true
			}
		}
	})
	var free []*Var
	seen := map[*Var]bool{}
	Walk(e, func(x Expr) {
		if r, ok := x.(*VarRef); ok && r.Var != nil && !inner[r.Var] && !seen[r.Var] {
			seen[r.Var] = true
			free = append(free, r.Var)
		}
	})
	return free
}

func (f *FuncLit) Item(qc *QueryContext) (value.Item, error) {
	captured := make(map[*Var]value.Seq, len(f.free))
	for _, v := range f.free {
		s, ok := qc.Lookup(v)
		if !ok {
			return nil, qerr.WithValue(qerr.CodeUndefinedVar, f.info, v.Name, "no value bound to $%s", v.Name)
		}
		captured[v] = s
	}
	return &value.Func{
		Name:  "anonymous",
		Arity: len(f.Params),
		Invoke: func(args []value.Seq) (value.Seq, error) {
			defer qc.enter(Focus{})()
			for v, s := range captured {
				defer qc.bindScoped(v, s)()
			}
			for i, p := range f.Params {
				defer qc.bindScoped(p, args[i])()
			}
			return f.Body.Value(qc)
		},
	}, nil
}

func (f *FuncLit) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(f, qc) }
func (f *FuncLit) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(f, qc) }

func (f *FuncLit) Copy(cc *CompileContext, vm VarMap) Expr {
	params := make([]*Var, len(f.Params))
	for i, p := range f.Params {
		params[i] = vm.fresh(cc, p)
	}
	c := NewFuncLit(f.info, params, f.Body.Copy(cc, vm))
	c.free = freeVars(c.Body, params)
	return c
}

func (f *FuncLit) Equal(o Expr) bool {
	of, ok := o.(*FuncLit)
	if !ok || len(f.Params) != len(of.Params) {
		return false
	}
	for i, p := range f.Params {
		if p != of.Params[i] {
			return false
		}
	}
	return f.Body.Equal(of.Body)
}

func (f *FuncLit) String() string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.String()
	}
	return fmt.Sprintf("function(%s) { %s }", strings.Join(names, ", "), f.Body)
}

// DynCall calls a function item: "Fn(Args...)".
type DynCall struct {
	base
	Fn   Expr
	Args []Expr
}

// NewDynCall returns a dynamic function call.
func NewDynCall(info qerr.Info, fn Expr, args ...Expr) *DynCall {
	return &DynCall{base: base{info: info, st: seqtype.ItemStar}, Fn: fn, Args: args}
}

func (d *DynCall) slots(fn slotFunc) bool {
	return fn(&d.Fn, slotPlain) && eachExpr(fn, slotPlain, d.Args)
}

func (*DynCall) flags() Flag { return FlagHOF }

func (d *DynCall) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, d) }

func (d *DynCall) Optimize(cc *CompileContext) (Expr, error) {
	if t := d.Fn.SeqType(); !t.IsNever() && !t.Zero() && !t.Kind.InstanceOf(seqtype.Function) &&
		!seqtype.Function.InstanceOf(t.Kind) {
		err := qerr.New(qerr.CodeType, d.info, "%s is not a function", t)
		return cc.Replace(d, NewRaise(d.info, err), "call of non-function"), nil
	}
	lit, ok := d.Fn.(*FuncLit)
	if !ok {
		return d, nil
	}
	if len(lit.Params) != len(d.Args) {
		err := qerr.New(qerr.CodeType, d.info, "function of arity %d called with %d arguments", len(lit.Params), len(d.Args))
		return cc.Replace(d, NewRaise(d.info, err), "arity mismatch"), nil
	}
	r := lit.Body
	for i := len(lit.Params) - 1; i >= 0; i-- {
		lit.Params[i].Type = d.Args[i].SeqType()
		r = NewLet(d.info, lit.Params[i], d.Args[i], r)
	}
	res, err := OptimizeTree(cc, r)
	if err != nil {
		return nil, err
	}
	return cc.Replace(d, res, "inline function"), nil
}

func (d *DynCall) Value(qc *QueryContext) (value.Seq, error) {
	it, err := d.Fn.Item(qc)
	if err != nil {
		return nil, err
	}
	f, ok := it.(*value.Func)
	if !ok {
		return nil, qerr.New(qerr.CodeType, d.Fn.Info(), "%s is not a function", d.Fn)
	}
	if f.Arity != len(d.Args) {
		return nil, qerr.New(qerr.CodeType, d.info, "function of arity %d called with %d arguments", f.Arity, len(d.Args))
	}
	args := make([]value.Seq, len(d.Args))
	for i, a := range d.Args {
		if args[i], err = a.Value(qc); err != nil {
			return nil, err
		}
	}
	if err := qc.Check(); err != nil {
		return nil, err
	}
	v, err := f.Invoke(args)
	return v, qerr.Locate(err, d.info)
}

func (d *DynCall) Iter(qc *QueryContext) (Iter, error) { return iterOf(d, qc) }
func (d *DynCall) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(d, qc) }

func (d *DynCall) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewDynCall(d.info, d.Fn.Copy(cc, vm), copyAll(cc, vm, d.Args)...)
	c.st = d.st
	return c
}

func (d *DynCall) Equal(o Expr) bool {
	od, ok := o.(*DynCall)
	return ok && d.Fn.Equal(od.Fn) && equalAll(d.Args, od.Args)
}

func (d *DynCall) String() string {
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	fn := d.Fn.String()
	if _, ok := d.Fn.(*FuncLit); ok {
		fn = "(" + fn + ")"
	}
	return fn + "(" + strings.Join(args, ", ") + ")"
}
