// Package expr implements query expression trees: their compilation,
// static optimization and lazy evaluation.
//
// LIFECYCLE:
//
// A tree is built untyped (by package compiler, or by hand in tests) and
// handed to Compile. Every node compiles its children, checks legality
// (variable resolution, focus availability, updating-expression placement,
// cast targets), assigns its static type and calls Optimize. Optimize
// returns the node itself or a replacement; the parent stores whatever
// comes back in its child slot. Rewrites never share subtrees, so the tree
// stays a tree.
//
// The engine repeats bottom-up Optimize passes (OptimizeTree) until no
// rewrite fires. Every rewrite is reported to the CompileContext tracer as
// a RewriteEvent.
//
// EVALUATION:
//
// Each node offers three entry points: Iter (lazy), Item (at most one item)
// and Value (materialized). A node implements the most natural one and
// derives the others with itemOf, valueOf and iterOf. The dynamic focus
// (context item, position, size) lives in the QueryContext and is swapped
// by scoped guards that restore it on every path.
//
// FLAGS:
//
// Has reports compile-time properties (context dependence, position and
// size dependence, non-determinism, updates, higher-order calls) of a node
// and its descendants. Child slots that run under a focus the node
// establishes (predicates, right-hand sides of maps) do not contribute
// focus flags; that is what lets the optimizer treat a filter's root
// independently of its predicates.
package expr
