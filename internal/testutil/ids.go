// Package testutil provides deterministic helpers for tests: constant query
// ids, countdown cancellation and value builders.
package testutil

// FixedIDGenerator returns the same query id every time.
//
// Unlike engine.FixedGenerator, which returns ids in sequence and panics
// when they run out, this generator never runs out. Golden explain output
// stays byte-identical however many queries a scenario compiles.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a constant id generator.
// If id is empty, Generate() returns "test-query".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-query"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
