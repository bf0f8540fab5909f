// Package seqtype provides the static sequence-type lattice used by the
// expression compiler.
//
// A SeqType pairs an item Kind with an occurrence range (Occ). Both halves
// form lattices:
//
//	Kind:  none ⊑ integer ⊑ decimal ⊑ numeric ⊑ anyAtomicType ⊑ item
//	       none ⊑ element ⊑ node ⊑ item, ...
//	Occ:   [min, max] intervals ordered by inclusion
//
// Union widens both halves (common supertype, interval hull), Intersect
// narrows them, and InstanceOf is the partial order. The operations satisfy:
//
//   - Union and Intersect are associative and commutative
//   - a.InstanceOf(b) implies a.Union(b) == b
//   - the empty-sequence type is an instance of every type that admits zero items
//   - None (the type of an expression that never returns) is the bottom element
//
// SeqType values are immutable and may be shared freely.
package seqtype
