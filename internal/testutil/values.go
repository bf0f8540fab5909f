package testutil

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/value"
)

// Ints builds a sequence of integers.
func Ints(ns ...int64) value.Items {
	out := make(value.Items, len(ns))
	for i, n := range ns {
		out[i] = value.Int(n)
	}
	return out
}

// Strs builds a sequence of strings.
func Strs(ss ...string) value.Items {
	out := make(value.Items, len(ss))
	for i, s := range ss {
		out[i] = value.Str(s)
	}
	return out
}

// Doc parses an XML document, failing the test on error.
func Doc(t testing.TB, xml string) *value.Node {
	t.Helper()
	doc, err := value.ParseXMLString(xml)
	require.NoError(t, err)
	return doc
}

// Strings renders every item of s by its string value.
func Strings(s value.Seq) []string {
	out := make([]string, 0, s.Len())
	for i := range s.Len() {
		out = append(out, value.StringOf(s.At(i)))
	}
	return out
}

// LoadPlan compiles CUE source and loads the plan at "plan.<name>",
// failing the test on any error.
func LoadPlan(t testing.TB, src, name string) *compiler.Plan {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename(name+".cue"))
	require.NoError(t, v.Err())
	p, err := compiler.LoadPlan(v.LookupPath(cue.ParsePath("plan." + name)))
	require.NoError(t, err)
	return p
}
