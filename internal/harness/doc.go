// Package harness runs conformance scenarios against the query engine.
//
// A scenario compiles plans from CUE files, optionally seeds a record store,
// evaluates cases and checks the results, the rewrite trace and the
// properties every compiled query must have.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	plans:
//	  - plans/books.cue
//	records:
//	  books:
//	    - <book><title>A</title><price>5</price></book>
//	cases:
//	  - plan: cheap
//	    bindings: { limit: 10 }
//	    expect:
//	      items: [A]
//	      type: element()*
//	  - plan: broken
//	    expect:
//	      error: FOAR0001
//	assertions:
//	  - type: rewrite_fired
//	    plan: cheap
//	    rule: index access
//
// Plan files hold plans under "plan.<name>". Binding values are YAML
// scalars (strings, integers, floats, booleans), lists of them, or
// {xml: "..."} for a document node.
//
// # Assertion Types
//
//   - rewrite_fired: the rule fired while compiling the plan
//   - rewrite_absent: the rule never fired
//   - rewrite_order: the rules fired in the given order
//   - rewrite_count: the rule fired exactly N times
//   - streamable: the query's streamable hint has the given value
//
// # Properties
//
// Every case is also checked for two properties: a second optimization
// pass over the compiled tree fires no rule, and when the scenario has
// records, evaluating with index negotiation and with plain scans gives the
// same items.
//
// # Deterministic Testing
//
// Scenarios compile with a fixed query id and run in a fresh in-memory
// store, so traces are identical across runs and can be compared against
// golden files. RunAll runs scenarios concurrently; they share nothing.
package harness
