package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/xqcore/internal/value"
)

// literal reads a CUE value as a sequence of items:
//
//	null               empty sequence
//	true, 3, "s"       xs:boolean, xs:integer, xs:string
//	1.5                xs:decimal
//	[a, b]             the concatenation of a and b
//	{double: 1e3}      xs:double
//	{decimal: "1.10"}  xs:decimal from its lexical form
//	{untyped: "s"}     xs:untypedAtomic
//	{xml: "<a/>"}      a parsed document node
func (l *loader) literal(v cue.Value) []value.Item {
	switch v.Kind() {
	case cue.NullKind:
		return nil
	case cue.BoolKind:
		b, _ := v.Bool()
		return []value.Item{value.Bln(b)}
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			l.addError(v, ErrInvalidLiteral, "integer out of range")
			return nil
		}
		return []value.Item{value.Int(n)}
	case cue.FloatKind:
		text, err := v.MarshalJSON()
		if err != nil {
			l.addError(v, ErrInvalidLiteral, "%v", err)
			return nil
		}
		d, ok := value.ParseDec(string(text))
		if !ok {
			l.addError(v, ErrInvalidLiteral, "invalid decimal %s", text)
			return nil
		}
		return []value.Item{d}
	case cue.StringKind:
		s, _ := v.String()
		return []value.Item{value.Str(s)}
	case cue.ListKind:
		iter, _ := v.List()
		var out []value.Item
		for iter.Next() {
			out = append(out, l.literal(iter.Value())...)
		}
		return out
	case cue.StructKind:
		return l.typedLiteral(v)
	}
	l.addError(v, ErrInvalidLiteral, "literal must be a concrete value")
	return nil
}

func (l *loader) typedLiteral(v cue.Value) []value.Item {
	if xv := v.LookupPath(cue.ParsePath("xml")); xv.Exists() {
		if it := l.xmlLiteral(xv); it != nil {
			return []value.Item{it}
		}
		return nil
	}
	if dv := v.LookupPath(cue.ParsePath("double")); dv.Exists() {
		f, err := dv.Float64()
		if err != nil {
			l.addError(dv, ErrInvalidLiteral, "double must be a number")
			return nil
		}
		return []value.Item{value.Dbl(f)}
	}
	if dv := v.LookupPath(cue.ParsePath("decimal")); dv.Exists() {
		s := l.stringOf(dv)
		d, ok := value.ParseDec(s)
		if !ok {
			l.addError(dv, ErrInvalidLiteral, "invalid decimal %q", s)
			return nil
		}
		return []value.Item{d}
	}
	if uv := v.LookupPath(cue.ParsePath("untyped")); uv.Exists() {
		return []value.Item{value.Untyped(l.stringOf(uv))}
	}
	l.addError(v, ErrInvalidLiteral, "struct literal needs one of xml, double, decimal, untyped")
	return nil
}

// xmlLiteral parses an XML string into a document node.
func (l *loader) xmlLiteral(v cue.Value) value.Item {
	s := l.stringOf(v)
	doc, err := value.ParseXMLString(s)
	if err != nil {
		l.addError(v, ErrInvalidLiteral, "%v", err)
		return nil
	}
	return doc
}
