// Package store provides SQLite-backed durable storage for the filing index.
//
// The store holds two independently synchronized streams plus the task
// bookkeeping that guards them:
//   - SEC feeds, filings, files, filers and former names
//   - ESEF catalog filings, their errors and languages, and entities
//   - Task trackers, last-update stamps, merge telemetry and action logs
//
// # Critical Patterns
//
// Single-flight tasks
//   - At most one task_tracker row per task_name has is_closed = 0
//   - Enforced by a partial UNIQUE index, checked in an immediate transaction
//
// Atomic units
//   - One transaction per feed and per catalog filing key (WithTx)
//   - A failed unit rolls back alone; earlier units stay committed
//
// Deterministic reads
//   - Every list query carries an ORDER BY
//   - Empty results are empty slices, never nil
//
// # Database Configuration
//
//   - WAL mode: search reads run alongside a sync
//   - synchronous=NORMAL
//   - busy_timeout=5000: processes wait for each other's write lock
//   - foreign_keys=ON
//
// Timestamps are stored in UTC at second precision; a Filing's comparison
// tuple (model.FilingKey) relies on that to match parsed items.
package store
