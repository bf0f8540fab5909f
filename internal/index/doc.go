// Package index describes the index accesses the optimizer can propose to a
// storage collaborator.
//
// A Descriptor names a collection, a path of child steps below each record's
// root element, and the values the step must match:
//
//	TokenMatch     path = "token"
//	NumericRange   min <= path <= max    (bounds may be open or infinite)
//	StringRange    "a" <= path < "b"     (codepoint order)
//
// The optimizer only issues descriptors; storage answers cost queries and
// produces access nodes. Neither side inspects the other's internals.
//
// Descriptor is a sealed interface, so backends can switch exhaustively:
//
//	switch d := desc.(type) {
//	case index.TokenMatch:
//	case index.NumericRange:
//	case index.StringRange:
//	}
package index
