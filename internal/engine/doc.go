// Package engine drives compilation and evaluation of query plans.
//
// Compile takes an untyped tree from a plan, compiles it bottom-up (which
// infers static types and runs every node's Optimize) and then re-runs
// full optimization passes until one fires no rewrite. The result is an
// immutable Query holding the final tree, its rewrite trace and its static
// type.
//
// Evaluate and Stream run a Query against a fresh query context: external
// variables bound from the caller or their defaults, the plan's context
// item as the initial focus, a per-evaluation step quota and the caller's
// context for cancellation.
//
// CRITICAL PATTERNS:
//
// CP-1: Fixpoint
// A compilation ends when a pass fires no rule. Passes are bounded by
// WithMaxPasses, and a tree that repeats the text of an earlier pass stops
// the loop. Either way the tree reached is a valid rewrite of the input.
//
// CP-2: Logical Clock
// Queries and evaluations are stamped from one counter per Engine. The evaluation
// number seeds random(); wall-clock time never does.
//
// CP-3: Immutable Queries
// The plan cache hands the same *Query to every caller with an equal
// fingerprint. Nothing writes to a Query after Compile returns.
//
// CP-4: Quota
// Every iterator step counts against the evaluation's QuotaEnforcer.
// Exceeding it fails with XQIN0002, which try/catch never intercepts.
package engine
