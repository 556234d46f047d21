package syncer

import (
	"errors"
	"fmt"

	"sponsorsync/internal/task"
)

// ErrEmptySponsorID rejects a sync request before anything is fetched or
// mutated.
var ErrEmptySponsorID = errors.New("sponsor id is required")

// SourceError reports that a single source adapter failed during a sync.
// The store is guaranteed untouched when a SourceError is returned.
type SourceError struct {
	Source task.Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsSourceError reports whether err (or anything it wraps) is a source
// fetch failure.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}
