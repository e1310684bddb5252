// Package store provides the SQLite-backed expansion ledger.
//
// The ledger records every run of the expander that asked for it:
//   - Runs: one row per command invocation, ordered by a ledger-assigned seq
//   - Expansions: one row per guard application in that run
//
// Expansion IDs are content addressed (see internal/ir/hash.go), so an
// emitted expansion recorded by any earlier run can be served back as a
// cache hit. Rejected applications are recorded but never served.
//
// # Ordering
//
// Queries never order by wall-clock time. Runs order by seq; expansions
// order by seq within their run, then id COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
