// Package value implements the items and materialized sequences that query
// expressions produce: atomic values (integers, decimals, doubles, strings,
// booleans, untyped atomics), XML nodes and function items.
//
// Items are immutable. Sequences (Seq) are restartable and random access;
// lazily iterated results live in package expr.
package value
