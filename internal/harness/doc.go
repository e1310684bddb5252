// Package harness runs end-to-end guard expansion scenarios.
//
// A scenario expands one source file with a fresh expander, checks every
// concrete instantiation of the guarded declarations it finds, records the
// run in an in-memory ledger and evaluates assertions against the result.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: |
//	  suffix: "_check"
//	source: |
//	  #[guard(N > 0)]
//	  fn f<const N: usize>() {}
//	  fn main() { f::<0>(); }
//	assertions:
//	  - type: trace_contains
//	    event: expansion
//	    fields: { ident: f, kind: fn }
//	  - type: trace_contains
//	    event: instance
//	    fields: { text: "f ::< 0 >", passed: false, code: E301 }
//	  - type: final_state
//	    table: expansions
//	    where: { ident: f }
//	    expect: { code: "" }
//
// file may replace source; it is resolved relative to the scenario file.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type with matching fields
//   - trace_order: guarded items were expanded in the given order
//   - trace_count: exactly N events of the given type
//   - output_contains, output_excludes: a substring of the expanded source
//   - final_state: queries a ledger table (runs, expansions) for one row
//
// # Deterministic Testing
//
// Run IDs are derived from the scenario name and expansion IDs are content
// addressed, so repeated runs produce identical traces and ledger rows and
// can be compared against golden snapshots.
package harness
