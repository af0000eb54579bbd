// Package store provides SQLite-backed storage for filtered events, rule log
// lines and published permission interest.
//
// Tables:
//   - events: one row per executed event with its outcome
//   - rule_log: rule log lines, keyed by event ID, in emission order
//   - permissions: the permission interest of each loaded chain
//
// # Ordering
//
// Events are ordered by seq, a per-database counter assigned on insert.
// Rule log lines are ordered by their autoincrement id. Wall-clock time is
// never used for ordering, so listings are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
