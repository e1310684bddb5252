// Package ir holds the records the tool persists and the canonical JSON
// encoding that gives them content-addressed identity.
//
// ir imports nothing internal, so the expander, the ledger and the CLI can
// all depend on it.
//
// Constraints:
//   - no floats anywhere; numbers are int64
//   - all JSON tags use snake_case
//   - identity hashes cover content only, never run metadata
package ir
