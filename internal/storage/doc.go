// Package storage persists the sync-run ledger: one record per sync attempt
// (sponsor, trigger, task count, duration, error).
//
// This is operational history only. The task store itself is in-memory and
// intentionally not persisted.
package storage
