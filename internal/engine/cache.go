package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/roach88/xqcore/internal/compiler"
)

// DomainPlan is the domain prefix of plan fingerprints. The version suffix
// allows the fingerprint algorithm to change without colliding with old keys.
const DomainPlan = "xqcore/plan/v1"

// hashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint identifies a plan by its name and document text. Two plans
// with the same fingerprint compile to the same query.
func Fingerprint(p *compiler.Plan) string {
	data := make([]byte, 0, len(p.Name)+1+len(p.Source))
	data = append(data, p.Name...)
	data = append(data, 0x00)
	data = append(data, p.Source...)
	return hashWithDomain(DomainPlan, data)
}

// planCache holds compiled queries by fingerprint. Compiled queries are
// immutable, so one entry may be evaluated by many goroutines at once.
//
// Eviction is first-in first-out once the cache holds max entries.
type planCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*Query
	order   []string
}

func newPlanCache(max int) *planCache {
	return &planCache{max: max, entries: make(map[string]*Query)}
}

func (c *planCache) get(key string) (*Query, bool) {
	if c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[key]
	return q, ok
}

func (c *planCache) put(key string, q *Query) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = q
		return
	}
	for len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = q
	c.order = append(c.order, key)
}

func (c *planCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
