// Package store is the in-memory authoritative collection of sponsor task
// records.
//
// All mutation discipline lives here:
//   - Replace swaps a sponsor's whole partition atomically.
//   - UpdateStatus mutates matching records in place.
//   - Query and Sponsors return snapshot copies.
//
// There is no persistence; the store is initialized empty at startup and
// discarded at shutdown.
package store
