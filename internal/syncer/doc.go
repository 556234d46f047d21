// Package syncer fans sponsor task records in from every source adapter and
// replaces that sponsor's slice of the store atomically.
//
// It is used by both the manual trigger endpoint and the periodic refresh
// job; the two can race, and the engine linearizes runs per sponsor.
package syncer
