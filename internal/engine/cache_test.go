package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/xqcore/internal/compiler"
)

func TestFingerprintDomainSeparated(t *testing.T) {
	p := &compiler.Plan{Name: "a", Source: []byte(`{"query":{"const":1}}`)}
	fp := Fingerprint(p)

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(&compiler.Plan{Name: "a", Source: []byte(`{"query":{"const":1}}`)}))
	assert.NotEqual(t, fp, Fingerprint(&compiler.Plan{Name: "b", Source: p.Source}))
	assert.NotEqual(t, fp, Fingerprint(&compiler.Plan{Name: "a", Source: []byte(`{"query":{"const":2}}`)}))
	assert.NotEqual(t, fp, hashWithDomain("xqcore/other/v1", []byte("a\x00"+string(p.Source))))
}

func TestFingerprintIgnoresFormatting(t *testing.T) {
	a := loadPlan(t, `plan: p: query: arith: {op: "+", left: const: 1, right: const: 2}`, "p")
	b := loadPlan(t, `
plan: p: {
	query: arith: {
		op:    "+"
		left:  {const: 1}
		right: {const: 2}
	}
}`, "p")
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestPlanCacheEvictsOldest(t *testing.T) {
	c := newPlanCache(2)
	q1, q2, q3 := &Query{ID: "1"}, &Query{ID: "2"}, &Query{ID: "3"}
	c.put("a", q1)
	c.put("b", q2)
	c.put("a", q1)
	c.put("c", q3)

	assert.Equal(t, 2, c.len())
	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry evicted")
	got, ok := c.get("c")
	assert.True(t, ok)
	assert.Same(t, q3, got)
}

func TestPlanCacheDisabled(t *testing.T) {
	c := newPlanCache(0)
	c.put("a", &Query{})
	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}
