package expr

import (
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Var is a variable binding. References compare by identity.
type Var struct {
	Name string
	Type seqtype.SeqType
	id   int
}

// NewVar returns an unbound variable of unknown type.
func NewVar(name string) *Var {
	return &Var{Name: name, Type: seqtype.ItemStar}
}

func (v *Var) String() string { return "$" + v.Name }

// VarMap records the variables re-created by Copy.
type VarMap map[*Var]*Var

func (vm VarMap) get(v *Var) *Var {
	if n, ok := vm[v]; ok {
		return n
	}
	return v
}

func (vm VarMap) fresh(cc *CompileContext, v *Var) *Var {
	if v == nil {
		return nil
	}
	n := cc.newVar(v.Name, v.Type)
	vm[v] = n
	return n
}

// VarRef is a variable reference "$name".
type VarRef struct {
	base
	Name string
	Var  *Var
}

// NewVarRef returns an unresolved reference to name.
func NewVarRef(info qerr.Info, name string) *VarRef {
	return &VarRef{base: base{info: info, st: seqtype.ItemStar}, Name: name}
}

func (r *VarRef) Compile(cc *CompileContext) (Expr, error) {
	if r.Var == nil {
		v := cc.lookup(r.Name)
		if v == nil {
			return nil, qerr.WithValue(qerr.CodeUndefinedVar, r.info, r.Name, "undefined variable $%s", r.Name)
		}
		r.Var = v
	}
	return r.Optimize(cc)
}

func (r *VarRef) Optimize(*CompileContext) (Expr, error) {
	r.st = r.Var.Type
	return r, nil
}

func (r *VarRef) Value(qc *QueryContext) (value.Seq, error) {
	v, ok := qc.Lookup(r.Var)
	if !ok {
		return nil, qerr.WithValue(qerr.CodeUndefinedVar, r.info, r.Name, "no value bound to $%s", r.Name)
	}
	return v, nil
}

func (r *VarRef) Iter(qc *QueryContext) (Iter, error) { return iterOf(r, qc) }
func (r *VarRef) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(r, qc) }

func (r *VarRef) count(v *Var) VarUsage {
	if v != nil && v == r.Var {
		return VarOnce
	}
	return VarNever
}

func (r *VarRef) inline(ic *InlineContext) (Expr, error) {
	if ic.Var == nil || ic.Var != r.Var {
		return nil, nil
	}
	return ic.copyExpr(), nil
}

func (r *VarRef) Copy(_ *CompileContext, vm VarMap) Expr {
	return &VarRef{base: r.base, Name: r.Name, Var: vm.get(r.Var)}
}

func (r *VarRef) Equal(o Expr) bool {
	or, ok := o.(*VarRef)
	return ok && r.Var == or.Var && r.Name == or.Name
}

func (r *VarRef) String() string { return "$" + r.Name }

// Let is "let $v := Bind return Body".
type Let struct {
	base
	Var  *Var
	Bind Expr
	Body Expr
}

// NewLet returns a let binding.
func NewLet(info qerr.Info, v *Var, bind, body Expr) *Let {
	return &Let{base: base{info: info}, Var: v, Bind: bind, Body: body}
}

func (l *Let) slots(fn slotFunc) bool {
	return fn(&l.Bind, slotPlain) && fn(&l.Body, slotUpd)
}

func (l *Let) Compile(cc *CompileContext) (Expr, error) {
	var err error
	if l.Bind, err = compileChild(cc, l.Bind, false); err != nil {
		return nil, err
	}
	l.Var.Type = l.Bind.SeqType()
	cc.Declare(l.Var)
	defer cc.popVar()
	if l.Body, err = compileChild(cc, l.Body, true); err != nil {
		return nil, err
	}
	return l.Optimize(cc)
}

// compileChild compiles one child in the current focus and rejects
// updating expressions unless allowed.
func compileChild(cc *CompileContext, e Expr, upd bool) (Expr, error) {
	r, err := e.Compile(cc)
	if err != nil {
		return nil, err
	}
	if !upd && Has(r, FlagUpd) {
		return nil, qerr.New(qerr.CodeUpdatingSlot, r.Info(), "updating expression not allowed here: %s", r)
	}
	return r, nil
}

func (l *Let) Optimize(cc *CompileContext) (Expr, error) {
	l.Var.Type = l.Bind.SeqType()
	l.st = l.Body.SeqType()
	u := Count(l.Body, l.Var)
	if u == VarNever && pure(l.Bind) {
		return cc.Replace(l, l.Body, "unused let"), nil
	}
	if l.inlinable(u) {
		r, err := Inline(l.Body, NewInlineContext(cc, l.Var, l.Bind))
		if err != nil {
			return nil, err
		}
		if r == nil {
			r = l.Body
		}
		return cc.Replace(l, r, "inline let"), nil
	}
	return l, nil
}

func (l *Let) inlinable(u VarUsage) bool {
	switch l.Bind.(type) {
	case *Const, *VarRef:
		return true
	}
	return u == VarOnce && !Has(l.Bind, FlagNdt|FlagUpd|FlagHOF)
}

func (l *Let) bind(qc *QueryContext) error {
	v, err := l.Bind.Value(qc)
	if err != nil {
		return err
	}
	qc.Bind(l.Var, v)
	return nil
}

func (l *Let) Iter(qc *QueryContext) (Iter, error) {
	if err := l.bind(qc); err != nil {
		return nil, err
	}
	return l.Body.Iter(qc)
}

func (l *Let) Item(qc *QueryContext) (value.Item, error) {
	if err := l.bind(qc); err != nil {
		return nil, err
	}
	return l.Body.Item(qc)
}

func (l *Let) Value(qc *QueryContext) (value.Seq, error) {
	if err := l.bind(qc); err != nil {
		return nil, err
	}
	return l.Body.Value(qc)
}

func (l *Let) Copy(cc *CompileContext, vm VarMap) Expr {
	bind := l.Bind.Copy(cc, vm)
	c := NewLet(l.info, vm.fresh(cc, l.Var), bind, l.Body.Copy(cc, vm))
	c.st = l.st
	return c
}

func (l *Let) Equal(o Expr) bool {
	ol, ok := o.(*Let)
	return ok && l.Var == ol.Var && l.Bind.Equal(ol.Bind) && l.Body.Equal(ol.Body)
}

func (l *Let) String() string {
	return fmt.Sprintf("let %s := %s return %s", l.Var, l.Bind, l.Body)
}

// For is "for $v at $p in In return Body". Pos may be nil.
type For struct {
	base
	Var  *Var
	Pos  *Var
	In   Expr
	Body Expr
}

// NewFor returns a for loop.
func NewFor(info qerr.Info, v, pos *Var, in, body Expr) *For {
	return &For{base: base{info: info}, Var: v, Pos: pos, In: in, Body: body}
}

func (f *For) slots(fn slotFunc) bool {
	return fn(&f.In, slotPlain) && fn(&f.Body, slotLoop|slotUpd)
}

func (f *For) Compile(cc *CompileContext) (Expr, error) {
	var err error
	if f.In, err = compileChild(cc, f.In, false); err != nil {
		return nil, err
	}
	f.Var.Type = f.In.SeqType().ItemType()
	cc.Declare(f.Var)
	defer cc.popVar()
	if f.Pos != nil {
		f.Pos.Type = seqtype.IntegerOne
		cc.Declare(f.Pos)
		defer cc.popVar()
	}
	if f.Body, err = compileChild(cc, f.Body, true); err != nil {
		return nil, err
	}
	return f.Optimize(cc)
}

func (f *For) Optimize(cc *CompileContext) (Expr, error) {
	in, body := f.In.SeqType(), f.Body.SeqType()
	f.st = seqtype.New(body.Kind, in.Occ.Mul(body.Occ))
	if in.Zero() {
		return cc.Replace(f, cc.Empty(f.info), "empty for"), nil
	}
	if in.One() {
		r, err := NewLet(f.info, f.Var, f.In, f.Body).Optimize(cc)
		if err == nil && f.Pos != nil {
			r, err = NewLet(f.info, f.Pos, NewConst(f.info, value.Int(1)), r).Optimize(cc)
		}
		if err != nil {
			return nil, err
		}
		return cc.Replace(f, r, "single-item for"), nil
	}
	return f, nil
}

func (f *For) Iter(qc *QueryContext) (Iter, error) {
	in, err := f.In.Iter(qc)
	if err != nil {
		return nil, err
	}
	var pos int64
	var cur Iter
	return IterFunc(func() (value.Item, error) {
		for {
			if cur == nil {
				it, err := in.Next()
				if err != nil || it == nil {
					return nil, err
				}
				if err := qc.Check(); err != nil {
					return nil, err
				}
				pos++
				qc.Bind(f.Var, value.Items{it})
				if f.Pos != nil {
					qc.Bind(f.Pos, value.Items{value.Int(pos)})
				}
				if cur, err = f.Body.Iter(qc); err != nil {
					return nil, err
				}
			}
			v, err := cur.Next()
			if err != nil || v != nil {
				return v, err
			}
			cur = nil
		}
	}), nil
}

func (f *For) Item(qc *QueryContext) (value.Item, error) { return itemOf(f, qc) }
func (f *For) Value(qc *QueryContext) (value.Seq, error) { return valueOf(f, qc) }

func (f *For) Copy(cc *CompileContext, vm VarMap) Expr {
	in := f.In.Copy(cc, vm)
	v, p := vm.fresh(cc, f.Var), vm.fresh(cc, f.Pos)
	c := NewFor(f.info, v, p, in, f.Body.Copy(cc, vm))
	c.st = f.st
	return c
}

func (f *For) Equal(o Expr) bool {
	of, ok := o.(*For)
	return ok && f.Var == of.Var && f.Pos == of.Pos && f.In.Equal(of.In) && f.Body.Equal(of.Body)
}

func (f *For) String() string {
	if f.Pos != nil {
		return fmt.Sprintf("for %s at %s in %s return %s", f.Var, f.Pos, f.In, f.Body)
	}
	return fmt.Sprintf("for %s in %s return %s", f.Var, f.In, f.Body)
}
