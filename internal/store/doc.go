// Package store provides SQLite-backed persistence for drover.
//
// Two concerns live here: the durable task list consumed by the
// scheduler, and the single-row lease record used for cross-instance
// coordination. The database lives in the configured data directory
// and schema changes are applied through embedded migrations.
package store
