package value

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
)

// truncCtx rounds toward zero, as casts to xs:integer do.
var truncCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundDown
	return c
}()

// CastTarget reports whether k can be the target of a cast. Abstract kinds
// yield qerr.CodeAbstractType; non-atomic kinds yield qerr.CodeUnknownType.
func CastTarget(k seqtype.Kind) (ok bool, code qerr.Code) {
	switch k {
	case seqtype.Integer, seqtype.Decimal, seqtype.Double, seqtype.String,
		seqtype.Boolean, seqtype.Untyped:
		return true, ""
	case seqtype.AnyAtomic, seqtype.Numeric:
		return false, qerr.CodeAbstractType
	}
	return false, qerr.CodeUnknownType
}

// ParseKind resolves an atomic type name such as "xs:integer".
func ParseKind(name string) (seqtype.Kind, bool) {
	switch strings.TrimPrefix(name, "xs:") {
	case "integer":
		return seqtype.Integer, true
	case "decimal":
		return seqtype.Decimal, true
	case "double":
		return seqtype.Double, true
	case "string":
		return seqtype.String, true
	case "boolean":
		return seqtype.Boolean, true
	case "untypedAtomic":
		return seqtype.Untyped, true
	case "anyAtomicType":
		return seqtype.AnyAtomic, true
	case "numeric":
		return seqtype.Numeric, true
	}
	return seqtype.None, false
}

// Cast converts an atomic item to kind k.
func Cast(it Item, k seqtype.Kind) (Item, error) {
	it, err := Atomize(it)
	if err != nil {
		return nil, err
	}
	if it.Kind() == k {
		return it, nil
	}
	switch k {
	case seqtype.String:
		return Str(StringOf(it)), nil
	case seqtype.Untyped:
		return Untyped(StringOf(it)), nil
	case seqtype.Boolean:
		return castBoolean(it)
	case seqtype.Double:
		return castDouble(it)
	case seqtype.Decimal:
		return castDecimal(it)
	case seqtype.Integer:
		return castInteger(it)
	}
	return nil, qerr.New(qerr.CodeUnknownType, qerr.Info{}, "cannot cast to %s", k)
}

func invalidCast(it Item, k seqtype.Kind) error {
	return qerr.WithValue(qerr.CodeCast, qerr.Info{}, Literal(it), "cannot cast to %s", k)
}

func castBoolean(it Item) (Item, error) {
	switch v := it.(type) {
	case Str, Untyped:
		switch strings.TrimSpace(StringOf(v)) {
		case "true", "1":
			return Bln(true), nil
		case "false", "0":
			return Bln(false), nil
		}
		return nil, invalidCast(it, seqtype.Boolean)
	}
	b, err := EBV(it, false)
	if err != nil {
		return nil, invalidCast(it, seqtype.Boolean)
	}
	return Bln(b), nil
}

func castDouble(it Item) (Item, error) {
	switch v := it.(type) {
	case Int, Dec:
		return Dbl(ToDouble(v)), nil
	case Bln:
		if v {
			return Dbl(1), nil
		}
		return Dbl(0), nil
	}
	s := strings.TrimSpace(StringOf(it))
	switch s {
	case "INF", "+INF":
		return Dbl(math.Inf(1)), nil
	case "-INF":
		return Dbl(math.Inf(-1)), nil
	case "NaN":
		return Dbl(math.NaN()), nil
	}
	if strings.ContainsAny(s, "xXpP_") || strings.EqualFold(s, "inf") || strings.EqualFold(s, "infinity") {
		return nil, invalidCast(it, seqtype.Double)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalidCast(it, seqtype.Double)
	}
	return Dbl(f), nil
}

func castDecimal(it Item) (Item, error) {
	switch v := it.(type) {
	case Int:
		return decFromInt(v), nil
	case Bln:
		if v {
			return NewDec(1, 0), nil
		}
		return NewDec(0, 0), nil
	case Dbl:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, qerr.WithValue(qerr.CodeInvalidValue, qerr.Info{}, FormatDouble(f), "cannot cast to xs:decimal")
		}
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(f); err != nil {
			return nil, invalidCast(it, seqtype.Decimal)
		}
		return Dec{d}, nil
	}
	s := strings.TrimSpace(StringOf(it))
	if strings.ContainsAny(s, "eEnNiI") {
		return nil, invalidCast(it, seqtype.Decimal)
	}
	d, ok := ParseDec(s)
	if !ok {
		return nil, invalidCast(it, seqtype.Decimal)
	}
	return d, nil
}

func castInteger(it Item) (Item, error) {
	switch v := it.(type) {
	case Bln:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case Dbl:
		f := math.Trunc(float64(v))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, qerr.WithValue(qerr.CodeInvalidValue, qerr.Info{}, FormatDouble(float64(v)), "cannot cast to xs:integer")
		}
		if f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, qerr.WithValue(qerr.CodeDecOverflow, qerr.Info{}, FormatDouble(float64(v)), "integer out of range")
		}
		return Int(int64(f)), nil
	case Dec:
		r := new(apd.Decimal)
		if _, err := truncCtx.RoundToIntegralValue(r, v.Decimal()); err != nil {
			return nil, invalidCast(it, seqtype.Integer)
		}
		n, err := r.Int64()
		if err != nil {
			return nil, qerr.WithValue(qerr.CodeDecOverflow, qerr.Info{}, v.String(), "integer out of range")
		}
		return Int(n), nil
	}
	s := strings.TrimSpace(StringOf(it))
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return nil, qerr.WithValue(qerr.CodeDecOverflow, qerr.Info{}, s, "integer out of range")
		}
		return nil, invalidCast(it, seqtype.Integer)
	}
	return Int(n), nil
}

// Normalize applies a Unicode normalization form ("NFC", "NFD", "NFKC",
// "NFKD"; the empty form leaves s unchanged).
func Normalize(s, form string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(form)) {
	case "":
		return s, nil
	case "NFC":
		return norm.NFC.String(s), nil
	case "NFD":
		return norm.NFD.String(s), nil
	case "NFKC":
		return norm.NFKC.String(s), nil
	case "NFKD":
		return norm.NFKD.String(s), nil
	}
	return "", qerr.WithValue(qerr.CodeNormalization, qerr.Info{}, form, "unsupported normalization form")
}
