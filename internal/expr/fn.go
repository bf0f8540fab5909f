package expr

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// fnDef describes a catalog function. Exactly one of item and seq is set.
type fnDef struct {
	name     string
	min, max int
	flags    Flag
	// ctx: a call without arguments applies to the context item.
	ctx  bool
	typ  func(args []Expr) seqtype.SeqType
	opt  func(cc *CompileContext, f *Fn) (Expr, error)
	item func(qc *QueryContext, f *Fn) (value.Item, error)
	seq  func(qc *QueryContext, f *Fn) (value.Seq, error)
}

var catalog map[string]*fnDef

// Fn is a call to a built-in function.
type Fn struct {
	base
	def  *fnDef
	Args []Expr
}

// NewFn returns a call to the named catalog function. Unknown names and
// wrong arities fail with XPST0017.
func NewFn(info qerr.Info, name string, args ...Expr) (*Fn, error) {
	return newFn(strings.TrimPrefix(name, "fn:"), info, args)
}

func newFn(name string, info qerr.Info, args []Expr) (*Fn, error) {
	def, ok := catalog[name]
	if !ok {
		return nil, qerr.WithValue(qerr.CodeUnknownFunction, info, name, "unknown function %s", name)
	}
	if def.ctx && len(args) == 0 {
		args = []Expr{NewContextValue(info)}
	}
	if len(args) < def.min || len(args) > def.max {
		return nil, qerr.WithValue(qerr.CodeUnknownFunction, info, name,
			"function %s#%d not found", name, len(args))
	}
	f := &Fn{base: base{info: info}, def: def, Args: args}
	f.st = def.typ(args)
	return f, nil
}

// Name returns the function name.
func (f *Fn) Name() string { return f.def.name }

func (f *Fn) flags() Flag { return f.def.flags }
func (f *Fn) slots(fn slotFunc) bool { return eachExpr(fn, slotPlain, f.Args) }

func (f *Fn) Compile(cc *CompileContext) (Expr, error) {
	if f.def.flags&FlagPos != 0 {
		if _, ok := cc.FocusType(); !ok {
			return nil, qerr.New(qerr.CodeNoContext, f.info, "no focus for %s()", f.def.name)
		}
	}
	return compileNode(cc, f)
}

func (f *Fn) Optimize(cc *CompileContext) (Expr, error) {
	f.st = f.def.typ(f.Args)
	if f.def.opt != nil {
		r, err := f.def.opt(cc, f)
		if err != nil || r != Expr(f) {
			return r, err
		}
	}
	if f.def.flags == 0 && f.def.name != "error" && allConst(f) {
		return cc.PreEval(f)
	}
	return f, nil
}

func (f *Fn) Item(qc *QueryContext) (value.Item, error) {
	if f.def.item != nil {
		return f.def.item(qc, f)
	}
	return itemFromValue(f, qc)
}

func (f *Fn) Value(qc *QueryContext) (value.Seq, error) {
	if f.def.seq != nil {
		return f.def.seq(qc, f)
	}
	return valueFromItem(f, qc)
}

func (f *Fn) Iter(qc *QueryContext) (Iter, error) {
	if f.def.item != nil {
		return iterFromItem(f, qc)
	}
	return iterOf(f, qc)
}

func (f *Fn) Copy(cc *CompileContext, vm VarMap) Expr {
	return &Fn{base: f.base, def: f.def, Args: copyAll(cc, vm, f.Args)}
}

func (f *Fn) Equal(o Expr) bool {
	of, ok := o.(*Fn)
	return ok && f.def == of.def && equalAll(f.Args, of.Args)
}

func (f *Fn) String() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.String()
	}
	return f.def.name + "(" + strings.Join(parts, ", ") + ")"
}

// isFn returns e as a call to name.
func isFn(e Expr, name string) (*Fn, bool) {
	f, ok := e.(*Fn)
	if !ok || f.def.name != name {
		return nil, false
	}
	return f, true
}

func fixed(t seqtype.SeqType) func([]Expr) seqtype.SeqType {
	return func([]Expr) seqtype.SeqType { return t }
}

// atMostOne returns the type of the first item of args[0].
func atMostOne(args []Expr) seqtype.SeqType {
	t := args[0].SeqType()
	return t.WithOcc(seqtype.Occ{Min: min(t.Occ.Min, 1), Max: min(t.Occ.Max, 1)})
}

func init() {
	defs := []*fnDef{
		{name: "true", typ: fixed(seqtype.BooleanOne),
			item: func(*QueryContext, *Fn) (value.Item, error) { return value.Bln(true), nil }},
		{name: "false", typ: fixed(seqtype.BooleanOne),
			item: func(*QueryContext, *Fn) (value.Item, error) { return value.Bln(false), nil }},
		{name: "not", min: 1, max: 1, typ: fixed(seqtype.BooleanOne), opt: optNot,
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				b, err := ebv(f.Args[0], qc)
				return value.Bln(!b), err
			}},
		{name: "boolean", min: 1, max: 1, typ: fixed(seqtype.BooleanOne), opt: optBoolean,
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				b, err := ebv(f.Args[0], qc)
				return value.Bln(b), err
			}},
		{name: "empty", min: 1, max: 1, typ: fixed(seqtype.BooleanOne), opt: optEmptyExists,
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				ok, err := nonEmpty(f.Args[0], qc)
				return value.Bln(!ok), err
			}},
		{name: "exists", min: 1, max: 1, typ: fixed(seqtype.BooleanOne), opt: optEmptyExists,
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				ok, err := nonEmpty(f.Args[0], qc)
				return value.Bln(ok), err
			}},
		{name: "count", min: 1, max: 1, typ: fixed(seqtype.IntegerOne), opt: optCount, item: evalCount},
		{name: "string", max: 1, ctx: true, typ: fixed(seqtype.StringOne), opt: optString,
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				s, err := stringArg(f.Args[0], qc)
				return value.Str(s), err
			}},
		{name: "string-length", max: 1, ctx: true, typ: fixed(seqtype.IntegerOne),
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				s, err := stringArg(f.Args[0], qc)
				return value.Int(utf8.RuneCountInString(s)), err
			}},
		{name: "position", flags: FlagPos, typ: fixed(seqtype.IntegerOne),
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				fc := qc.Focus()
				if !fc.Defined() {
					return nil, qerr.New(qerr.CodeNoContext, f.info, "no focus for position()")
				}
				return value.Int(fc.Pos), nil
			}},
		{name: "last", flags: FlagPos | FlagLast, typ: fixed(seqtype.IntegerOne),
			item: func(qc *QueryContext, f *Fn) (value.Item, error) {
				fc := qc.Focus()
				if !fc.Defined() || fc.Size == SizeUnknown {
					return nil, qerr.New(qerr.CodeNoContext, f.info, "no context size for last()")
				}
				return value.Int(fc.Size), nil
			}},
		{name: "head", min: 1, max: 1, typ: atMostOne, opt: optHead,
			seq: func(qc *QueryContext, f *Fn) (value.Seq, error) { return subValue(qc, f.Args[0], 1, 1) }},
		{name: "tail", min: 1, max: 1, opt: optTail,
			seq: func(qc *QueryContext, f *Fn) (value.Seq, error) {
				return subValue(qc, f.Args[0], 2, seqtype.Unbounded)
			},
			typ: func(args []Expr) seqtype.SeqType {
				t := args[0].SeqType()
				return t.WithOcc(subOcc(t.Occ, 1))
			}},
		{name: "foot", min: 1, max: 1, typ: atMostOne, opt: optFoot, item: evalFoot},
		{name: "subsequence", min: 2, max: 3, opt: optSubsequence, seq: evalSubsequence,
			typ: func(args []Expr) seqtype.SeqType {
				t := args[0].SeqType()
				return t.WithOcc(seqtype.Occ{Max: t.Occ.Max})
			}},
		{name: "sum", min: 1, max: 2, item: evalSum,
			typ: func(args []Expr) seqtype.SeqType {
				if len(args) == 2 {
					return seqtype.AtomicOpt
				}
				if k := args[0].SeqType().Kind; k.IsNumeric() {
					return seqtype.One(k)
				}
				return seqtype.New(seqtype.AnyAtomic, seqtype.ExactlyOne)
			}},
		{name: "data", max: 1, ctx: true, opt: optData,
			typ: func(args []Expr) seqtype.SeqType {
				return seqtype.New(seqtype.AnyAtomic, args[0].SeqType().Occ)
			},
			seq: func(qc *QueryContext, f *Fn) (value.Seq, error) { return atomizedSeq(f.Args[0], qc) }},
		{name: "string-join", min: 1, max: 2, typ: fixed(seqtype.StringOne), item: evalStringJoin},
		{name: "normalize-unicode", min: 1, max: 2, typ: fixed(seqtype.StringOne), item: evalNormalize},
		{name: "random", flags: FlagNdt, typ: fixed(seqtype.DoubleOne),
			item: func(qc *QueryContext, _ *Fn) (value.Item, error) { return value.Dbl(qc.rand.Float64()), nil }},
		{name: "error", max: 2, typ: fixed(seqtype.Never), item: evalError},
		{name: "replicate", min: 2, max: 3, opt: optReplicate, seq: evalReplicate,
			typ: func(args []Expr) seqtype.SeqType {
				return args[0].SeqType().WithOcc(seqtype.ZeroOrMore)
			}},
	}
	catalog = make(map[string]*fnDef, len(defs))
	for _, d := range defs {
		if d.max < d.min {
			d.max = d.min
		}
		catalog[d.name] = d
	}
}

// subOcc returns the occurrence left after skipping n items.
func subOcc(o seqtype.Occ, n int64) seqtype.Occ {
	r := seqtype.Occ{Min: max(o.Min-n, 0), Max: o.Max}
	if o.Max != seqtype.Unbounded {
		r.Max = max(o.Max-n, 0)
	}
	return r
}

func optNot(cc *CompileContext, f *Fn) (Expr, error) {
	arg, err := simplifyEBV(cc, f.Args[0])
	if err != nil {
		return nil, err
	}
	f.Args[0] = arg
	if b, ok := constBool(arg); ok {
		return cc.Replace(f, cc.Bool(!b, f.info), "constant not"), nil
	}
	if inner, ok := isFn(arg, "not"); ok {
		r, err := cc.Function("boolean", f.info, inner.Args[0])
		if err != nil {
			return nil, err
		}
		return cc.Replace(f, r, "double not"), nil
	}
	if inner, ok := arg.(*Fn); ok && (inner.def.name == "empty" || inner.def.name == "exists") {
		to := "empty"
		if inner.def.name == "empty" {
			to = "exists"
		}
		r, err := cc.Function(to, f.info, inner.Args[0])
		if err != nil {
			return nil, err
		}
		return cc.Replace(f, r, "negated "+inner.def.name), nil
	}
	if p, ok := arg.(*CmpPos); ok {
		if inv, ok := p.invert(); ok {
			return cc.Replace(f, inv, "negated position range"), nil
		}
	}
	return f, nil
}

func optBoolean(cc *CompileContext, f *Fn) (Expr, error) {
	arg, err := simplifyEBV(cc, f.Args[0])
	if err != nil {
		return nil, err
	}
	f.Args[0] = arg
	if t := arg.SeqType(); t.One() && t.Kind == seqtype.Boolean {
		return cc.Replace(f, arg, "boolean of boolean"), nil
	}
	return f, nil
}

func optEmptyExists(cc *CompileContext, f *Fn) (Expr, error) {
	t := f.Args[0].SeqType()
	exists := f.def.name == "exists"
	if !pure(f.Args[0]) || t.IsNever() {
		return f, nil
	}
	switch {
	case t.Zero():
		return cc.Replace(f, cc.Bool(!exists, f.info), "static cardinality"), nil
	case t.Occ.Min > 0:
		return cc.Replace(f, cc.Bool(exists, f.info), "static cardinality"), nil
	}
	return f, nil
}

func optCount(cc *CompileContext, f *Fn) (Expr, error) {
	if n, ok := f.Args[0].SeqType().Exact(); ok && pure(f.Args[0]) {
		return cc.Replace(f, NewConst(f.info, value.Int(n)), "static count"), nil
	}
	return f, nil
}

func optString(cc *CompileContext, f *Fn) (Expr, error) {
	if t := f.Args[0].SeqType(); t.One() && t.Kind == seqtype.String {
		return cc.Replace(f, f.Args[0], "string of string"), nil
	}
	return f, nil
}

func optData(cc *CompileContext, f *Fn) (Expr, error) {
	if t := f.Args[0].SeqType(); t.Kind.Atomic() && t.Kind != seqtype.None {
		return cc.Replace(f, f.Args[0], "data of atomic"), nil
	}
	return f, nil
}

func optHead(cc *CompileContext, f *Fn) (Expr, error) {
	r, err := NewSubseq(f.info, f.Args[0], 1, 1).Optimize(cc)
	if err != nil {
		return nil, err
	}
	return cc.Replace(f, r, "head"), nil
}

func optTail(cc *CompileContext, f *Fn) (Expr, error) {
	r, err := NewSubseq(f.info, f.Args[0], 2, seqtype.Unbounded).Optimize(cc)
	if err != nil {
		return nil, err
	}
	return cc.Replace(f, r, "tail"), nil
}

func optFoot(cc *CompileContext, f *Fn) (Expr, error) {
	if t := f.Args[0].SeqType(); t.ZeroOrOne() {
		return cc.Replace(f, f.Args[0], "foot of single item"), nil
	}
	return f, nil
}

func optSubsequence(cc *CompileContext, f *Fn) (Expr, error) {
	start, ok := constNumber(f.Args[1])
	if !ok {
		return f, nil
	}
	length := math.Inf(1)
	if len(f.Args) == 3 {
		if length, ok = constNumber(f.Args[2]); !ok {
			return f, nil
		}
	}
	first, n := subseqBounds(start, length)
	if n == 0 {
		return cc.Replace(f, cc.Empty(f.info), "empty subsequence"), nil
	}
	r, err := NewSubseq(f.info, f.Args[0], first, n).Optimize(cc)
	if err != nil {
		return nil, err
	}
	return cc.Replace(f, r, "constant subsequence"), nil
}

// constNumber returns the value of a numeric constant.
func constNumber(e Expr) (float64, bool) {
	c, ok := e.(*Const)
	if !ok || c.Val.Len() != 1 || !c.Val.At(0).Kind().IsNumeric() {
		return 0, false
	}
	return value.ToDouble(c.Val.At(0)), true
}

// subseqBounds returns the 1-based first position and count of the items
// selected by subsequence(E, start, length). Count is Unbounded for an
// open end.
func subseqBounds(start, length float64) (first, n int64) {
	s := math.Floor(start + 0.5)
	e := s + math.Floor(length+0.5)
	if math.IsNaN(s) || math.IsNaN(e) || e <= 1 || e <= s {
		return 0, 0
	}
	lo := max(s, 1)
	if lo >= float64(seqtype.Unbounded) {
		return 0, 0
	}
	first = int64(lo)
	if math.IsInf(e, 1) || e-lo >= float64(seqtype.Unbounded) {
		return first, seqtype.Unbounded
	}
	return first, int64(e - lo)
}

func nonEmpty(e Expr, qc *QueryContext) (bool, error) {
	it, err := e.Iter(qc)
	if err != nil {
		return false, err
	}
	v, err := it.Next()
	return v != nil, err
}

func evalCount(qc *QueryContext, f *Fn) (value.Item, error) {
	if c, ok := f.Args[0].(*Const); ok {
		return value.Int(c.Val.Len()), nil
	}
	it, err := f.Args[0].Iter(qc)
	if err != nil {
		return nil, err
	}
	var n int64
	for {
		v, err := it.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return value.Int(n), nil
		}
		if err := qc.Check(); err != nil {
			return nil, err
		}
		n++
	}
}

func stringArg(e Expr, qc *QueryContext) (string, error) {
	v, err := e.Item(qc)
	if err != nil || v == nil {
		return "", err
	}
	if fn, ok := v.(*value.Func); ok {
		return "", qerr.WithValue(qerr.CodeFuncAtomize, e.Info(), fn.Name, "function items have no string value")
	}
	return value.StringOf(v), nil
}

func evalFoot(qc *QueryContext, f *Fn) (value.Item, error) {
	v, err := f.Args[0].Value(qc)
	if err != nil || v.Len() == 0 {
		return nil, err
	}
	return v.At(v.Len() - 1), nil
}

func evalSubsequence(qc *QueryContext, f *Fn) (value.Seq, error) {
	start, err := doubleArg(f.Args[1], qc)
	if err != nil {
		return nil, err
	}
	length := math.Inf(1)
	if len(f.Args) == 3 {
		if length, err = doubleArg(f.Args[2], qc); err != nil {
			return nil, err
		}
	}
	first, n := subseqBounds(start, length)
	if n == 0 {
		return value.Empty, nil
	}
	return subValue(qc, f.Args[0], first, n)
}

// subValue returns n items of e starting at 1-based position first.
func subValue(qc *QueryContext, e Expr, first, n int64) (value.Seq, error) {
	v, err := e.Value(qc)
	if err != nil {
		return nil, err
	}
	return value.Sub(v, first-1, n), nil
}

func doubleArg(e Expr, qc *QueryContext) (float64, error) {
	v, err := atomized(e, qc)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, qerr.New(qerr.CodeType, e.Info(), "empty sequence where xs:double expected")
	}
	if _, ok := v.(value.Untyped); ok {
		if v, err = value.Cast(v, seqtype.Double); err != nil {
			return 0, qerr.Locate(err, e.Info())
		}
	}
	if !v.Kind().IsNumeric() {
		return 0, qerr.WithValue(qerr.CodeType, e.Info(), v, "xs:double expected, %s found", v.Kind())
	}
	return value.ToDouble(v), nil
}

func evalSum(qc *QueryContext, f *Fn) (value.Item, error) {
	v, err := atomizedSeq(f.Args[0], qc)
	if err != nil {
		return nil, err
	}
	if v.Len() == 0 {
		if len(f.Args) == 2 {
			return atomized(f.Args[1], qc)
		}
		return value.Int(0), nil
	}
	acc := v.At(0)
	if _, ok := acc.(value.Untyped); ok {
		if acc, err = value.Cast(acc, seqtype.Double); err != nil {
			return nil, qerr.Locate(err, f.info)
		}
	}
	if !acc.Kind().IsNumeric() {
		return nil, qerr.WithValue(qerr.CodeType, f.info, acc, "sum of non-numeric value %s", acc.Kind())
	}
	for i := int64(1); i < v.Len(); i++ {
		if err := qc.Check(); err != nil {
			return nil, err
		}
		if acc, err = value.Arith(value.OpAdd, acc, v.At(i)); err != nil {
			return nil, qerr.Locate(err, f.info)
		}
	}
	return acc, nil
}

func evalStringJoin(qc *QueryContext, f *Fn) (value.Item, error) {
	v, err := atomizedSeq(f.Args[0], qc)
	if err != nil {
		return nil, err
	}
	sep := ""
	if len(f.Args) == 2 {
		if sep, err = stringArg(f.Args[1], qc); err != nil {
			return nil, err
		}
	}
	parts := make([]string, v.Len())
	for i := range v.Len() {
		parts[i] = value.StringOf(v.At(i))
	}
	return value.Str(strings.Join(parts, sep)), nil
}

func evalNormalize(qc *QueryContext, f *Fn) (value.Item, error) {
	s, err := stringArg(f.Args[0], qc)
	if err != nil {
		return nil, err
	}
	form := "NFC"
	if len(f.Args) == 2 {
		if form, err = stringArg(f.Args[1], qc); err != nil {
			return nil, err
		}
	}
	r, err := value.Normalize(s, form)
	if err != nil {
		return nil, qerr.Locate(err, f.info)
	}
	return value.Str(r), nil
}

func evalError(qc *QueryContext, f *Fn) (value.Item, error) {
	code, msg := qerr.CodeUser, "error() called"
	if len(f.Args) > 0 {
		s, err := stringArg(f.Args[0], qc)
		if err != nil {
			return nil, err
		}
		if s = strings.TrimPrefix(s, "err:"); s != "" {
			code = qerr.Code(s)
		}
	}
	if len(f.Args) > 1 {
		s, err := stringArg(f.Args[1], qc)
		if err != nil {
			return nil, err
		}
		msg = s
	}
	return nil, qerr.New(code, f.info, "%s", msg)
}

func optReplicate(cc *CompileContext, f *Fn) (Expr, error) {
	multiple := false
	if len(f.Args) == 3 {
		b, ok := constBool(f.Args[2])
		if !ok {
			return f, nil
		}
		multiple = b
	}
	r, err := NewReplicate(f.info, f.Args[0], f.Args[1], multiple).Optimize(cc)
	if err != nil {
		return nil, err
	}
	return cc.Replace(f, r, "replicate"), nil
}

func evalReplicate(qc *QueryContext, f *Fn) (value.Seq, error) {
	multiple := false
	if len(f.Args) == 3 {
		b, err := ebv(f.Args[2], qc)
		if err != nil {
			return nil, err
		}
		multiple = b
	}
	return NewReplicate(f.info, f.Args[0], f.Args[1], multiple).Value(qc)
}
