// Package store provides the SQLite-backed call journal.
//
// The journal records, per dispatcher session:
//   - Calls: every issued call with its request and, once known, its outcome
//   - Drops: callbacks and results that were discarded (unmatched, late,
//     malformed, or with no receiver)
//
// # Critical Patterns
//
// Single outcome per call:
//   - An outcome only applies to a row still in the awaiting state
//   - A second outcome for the same call is ignored and reported as such
//
// Deterministic reads:
//   - Calls are read ORDER BY correlation_id, drops ORDER BY id
//   - Timestamps are recorded for operators, never used for ordering
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
