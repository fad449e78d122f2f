// Package store persists plan and run outcomes in SQLite.
//
// A run row records one invocation of the tool (a plan or an executed run)
// together with a snapshot of the environment it was evaluated against. Each
// run owns an ordered list of result rows, one per test case.
//
// Ordering never depends on wall time: runs carry a store-assigned seq and
// results carry the logical seq handed out while the run was in progress.
// All queries order by seq ASC with id as a binary tie-breaker.
//
// The environment snapshot and result details are stored as canonical JSON
// so identical outcomes produce identical rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce results.run_id references
package store
