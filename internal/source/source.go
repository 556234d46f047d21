// Package source defines the adapters the sync engine pulls task records
// from, one per origin system.
//
// Fixture adapters return deterministic record sets (the daemon's prototype
// mode). The Google Calendar adapter can alternatively run live against the
// Calendar API when credentials are configured.
package source

import (
	"context"

	"sponsorsync/internal/task"
)

// Adapter produces the ordered sequence of task records one origin system
// currently holds for a sponsor.
//
// Fetch may block on network I/O and may fail; callers must not hold any
// store lock across it.
type Adapter interface {
	Name() task.Source
	Fetch(ctx context.Context, sponsorID string) ([]task.Task, error)
}
