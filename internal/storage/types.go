package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the sync-run ledger.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SyncRun records one sync attempt for one sponsor.
// Keep it compact and schema-stable.
type SyncRun struct {
	At        time.Time `json:"at"`
	SponsorID string    `json:"sponsor_id"`
	Trigger   string    `json:"trigger"`
	Tasks     int       `json:"tasks"`
	TookMS    int64     `json:"took_ms"`
	Error     string    `json:"error,omitempty"`
}
