package value

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/xqcore/internal/seqtype"
)

// Item is a sealed interface implemented by every value a query can produce.
// Only Int, Dbl, Dec, Str, Bln, Untyped, *Node and *Func implement it.
type Item interface {
	item() // Sealed

	// Kind returns the dynamic item kind.
	Kind() seqtype.Kind
}

// Int is an xs:integer.
type Int int64

func (Int) item() {}
func (Int) Kind() seqtype.Kind { return seqtype.Integer }

// Dbl is an xs:double.
type Dbl float64

func (Dbl) item() {}
func (Dbl) Kind() seqtype.Kind { return seqtype.Double }

// Str is an xs:string.
type Str string

func (Str) item() {}
func (Str) Kind() seqtype.Kind { return seqtype.String }

// Bln is an xs:boolean.
type Bln bool

func (Bln) item() {}
func (Bln) Kind() seqtype.Kind { return seqtype.Boolean }

// Untyped is an xs:untypedAtomic, the atomized value of a node.
type Untyped string

func (Untyped) item() {}
func (Untyped) Kind() seqtype.Kind { return seqtype.Untyped }

// Dec is an xs:decimal. The zero value is 0.
type Dec struct {
	d *apd.Decimal
}

func (Dec) item() {}
func (Dec) Kind() seqtype.Kind { return seqtype.Decimal }

// decCtx is the context for decimal arithmetic: 34 significant digits, as
// decimal128.
var decCtx = apd.BaseContext.WithPrecision(34)

// NewDec returns the decimal with coefficient coeff and exponent exp.
func NewDec(coeff int64, exp int32) Dec {
	return Dec{apd.New(coeff, exp)}
}

// ParseDec parses a decimal literal.
func ParseDec(s string) (Dec, bool) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil || d.Form != apd.Finite {
		return Dec{}, false
	}
	return Dec{d}, true
}

func decFromInt(n Int) Dec {
	return Dec{apd.New(int64(n), 0)}
}

// Decimal returns the underlying value. It must not be modified.
func (d Dec) Decimal() *apd.Decimal {
	if d.d == nil {
		return apd.New(0, 0)
	}
	return d.d
}

// IsInt reports whether d has no fractional part.
func (d Dec) IsInt() bool {
	var r apd.Decimal
	r.Reduce(d.Decimal())
	return r.Exponent >= 0
}

// Float returns d as a float64.
func (d Dec) Float() float64 {
	f, err := d.Decimal().Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}

func (d Dec) String() string {
	var r apd.Decimal
	r.Reduce(d.Decimal())
	return r.Text('f')
}

// Func is a function item. Invoke receives one materialized sequence per
// parameter.
type Func struct {
	Name   string
	Arity  int
	Invoke func(args []Seq) (Seq, error)
}

func (*Func) item() {}
func (*Func) Kind() seqtype.Kind { return seqtype.Function }

// FormatDouble renders f in the canonical xs:double lexical form.
func FormatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case f == 0:
		if math.Signbit(f) {
			return "-0"
		}
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'E', -1, 64)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// StringOf returns the string value of it.
func StringOf(it Item) string {
	switch v := it.(type) {
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Dbl:
		return FormatDouble(float64(v))
	case Dec:
		return v.String()
	case Str:
		return string(v)
	case Bln:
		if v {
			return "true"
		}
		return "false"
	case Untyped:
		return string(v)
	case *Node:
		return v.StringValue()
	case *Func:
		return v.Name + "#" + strconv.Itoa(v.Arity)
	}
	return ""
}

// Literal renders it the way it would be written in a query.
func Literal(it Item) string {
	switch v := it.(type) {
	case Str:
		return `"` + strings.ReplaceAll(string(v), `"`, `""`) + `"`
	case Untyped:
		return `xs:untypedAtomic("` + strings.ReplaceAll(string(v), `"`, `""`) + `")`
	case Bln:
		return StringOf(v) + "()"
	case Dbl:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return `xs:double("` + FormatDouble(f) + `")`
		}
		s := FormatDouble(f)
		if !strings.ContainsAny(s, ".E") {
			s += "e0"
		}
		return s
	case Dec:
		s := v.String()
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case *Node:
		return v.XML()
	}
	return StringOf(it)
}

// Identical reports whether a and b are the same value of the same kind.
// NaN is identical to NaN. Nodes are identical only to themselves.
func Identical(a, b Item) bool {
	switch x := a.(type) {
	case Dbl:
		y, ok := b.(Dbl)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) {
			return math.IsNaN(float64(y))
		}
		return x == y
	case Dec:
		y, ok := b.(Dec)
		return ok && x.Decimal().Cmp(y.Decimal()) == 0
	case *Func:
		return a == b
	}
	return a == b
}
