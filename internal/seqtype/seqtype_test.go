package seqtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleKinds = []Kind{
	None, Item, AnyAtomic, Numeric, Double, Decimal, Integer, String,
	Boolean, Untyped, Node, Document, Element, Attribute, Text, Function,
}

var sampleOccs = []Occ{
	Zero, ZeroOrOne, ExactlyOne, OneOrMore, ZeroOrMore, Exactly(3), {2, 5}, occNone,
}

func sampleTypes() []SeqType {
	var out []SeqType
	for _, k := range sampleKinds {
		for _, o := range sampleOccs {
			out = append(out, New(k, o))
		}
	}
	return out
}

func TestNewNormalizes(t *testing.T) {
	assert.Equal(t, Empty, New(Integer, Zero))
	assert.Equal(t, Never, New(None, ExactlyOne))
	assert.Equal(t, Never, New(String, occNone))
	assert.Equal(t, SeqType{Integer, OneOrMore}, New(Integer, OneOrMore))
}

func TestKindUnion(t *testing.T) {
	tests := []struct {
		a, b, want Kind
	}{
		{Integer, Double, Numeric},
		{Integer, Decimal, Decimal},
		{Integer, String, AnyAtomic},
		{Element, Attribute, Node},
		{Element, Integer, Item},
		{None, Text, Text},
		{Function, Function, Function},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"|"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Union(tt.b))
			assert.Equal(t, tt.want, tt.b.Union(tt.a))
		})
	}
}

func TestUnionLaws(t *testing.T) {
	ts := sampleTypes()
	for _, a := range ts {
		for _, b := range ts {
			u := a.Union(b)
			require.True(t, u.InstanceOf(u), "%s", u)
			assert.True(t, a.InstanceOf(u), "%s ⊑ %s ∪ %s", a, a, b)
			assert.True(t, b.InstanceOf(u), "%s ⊑ %s ∪ %s", b, a, b)
			assert.Equal(t, u, b.Union(a), "commutative %s %s", a, b)
			if a.InstanceOf(b) {
				assert.Equal(t, b, u, "%s ⊑ %s implies union is %s", a, b, b)
			}
		}
	}
}

func TestUnionAssociative(t *testing.T) {
	ts := sampleTypes()
	for _, a := range ts[:40] {
		for _, b := range ts {
			for _, c := range ts[len(ts)-40:] {
				assert.Equal(t, a.Union(b).Union(c), a.Union(b.Union(c)))
			}
		}
	}
}

func TestIntersectLaws(t *testing.T) {
	ts := sampleTypes()
	for _, a := range ts {
		for _, b := range ts {
			i, ok := a.Intersect(b)
			j, ok2 := b.Intersect(a)
			assert.Equal(t, ok, ok2)
			assert.Equal(t, i, j, "commutative %s %s", a, b)
			if !ok {
				assert.True(t, i.IsNever())
				continue
			}
			assert.True(t, i.InstanceOf(a), "%s ∩ %s = %s", a, b, i)
			assert.True(t, i.InstanceOf(b), "%s ∩ %s = %s", a, b, i)
		}
	}
}

func TestEmptyInstanceOf(t *testing.T) {
	for _, b := range sampleTypes() {
		if b.IsNever() {
			continue
		}
		assert.Equal(t, b.Occ.Min == 0, Empty.InstanceOf(b), "%s", b)
		assert.True(t, Never.InstanceOf(b))
		assert.Equal(t, b, Never.Union(b))
	}
}

func TestOccArithmetic(t *testing.T) {
	assert.Equal(t, Occ{2, 2}, ExactlyOne.Add(ExactlyOne))
	assert.Equal(t, Occ{1, Unbounded}, ExactlyOne.Add(ZeroOrMore))
	assert.Equal(t, Occ{0, 3}, ZeroOrOne.Mul(Exactly(3)))
	assert.Equal(t, Occ{Unbounded, Unbounded}, Occ{Unbounded, Unbounded}.Add(ExactlyOne))
	assert.True(t, ExactlyOne.Add(occNone).IsNone())

	n, ok := Exactly(4).Exact()
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
	_, ok = OneOrMore.Exact()
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Equal(t, "xs:integer+", New(Integer, OneOrMore).String())
	assert.Equal(t, "xs:string?", StringOpt.String())
	assert.Equal(t, "element()*", ElementStar.String())
	assert.Equal(t, "item(){2,5}", New(Item, Occ{2, 5}).String())
	assert.Equal(t, "empty-sequence()", Empty.String())
	assert.Equal(t, "none", Never.String())
}

func TestReflexive(t *testing.T) {
	assert.True(t, Integer.Reflexive())
	assert.True(t, String.Reflexive())
	assert.False(t, Double.Reflexive())
	assert.False(t, Untyped.Reflexive())
	assert.False(t, Element.Reflexive())
}
