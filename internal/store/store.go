package store

import (
	"errors"
	"sort"
	"sync"

	"sponsorsync/internal/task"
)

// ErrNoMatch is returned by UpdateStatus when zero records carry the
// requested business key.
var ErrNoMatch = errors.New("no matching task")

// Store holds every task record for every sponsor plus the set of sponsors
// registered for periodic refresh.
//
// It is the single shared mutable resource in the daemon: foreground request
// handlers and the background refresh job all go through the methods below.
// One RWMutex guards everything; total data volume is small, and a single
// exclusive-access discipline keeps the replace invariant easy to reason
// about under concurrent access.
type Store struct {
	mu       sync.RWMutex
	tasks    []task.Task
	sponsors map[string]struct{}
}

func New() *Store {
	return &Store{sponsors: map[string]struct{}{}}
}

// Replace removes every record owned by sponsorID and appends tasks, as one
// critical section. Readers never observe the gap between removal and
// insertion, and records of other sponsors are untouched.
func (s *Store) Replace(sponsorID string, tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.SponsorID != sponsorID {
			kept = append(kept, t)
		}
	}
	s.tasks = append(kept, tasks...)
}

// Register marks a sponsor for periodic refresh. Idempotent.
func (s *Store) Register(sponsorID string) {
	s.mu.Lock()
	s.sponsors[sponsorID] = struct{}{}
	s.mu.Unlock()
}

// Sponsors returns a sorted point-in-time copy of the registered set, safe
// to iterate while other goroutines register sponsors concurrently.
func (s *Store) Sponsors() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.sponsors))
	for id := range s.sponsors {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Query returns a copy of all records matching f, preserving store order.
// The result reflects a consistent snapshot: it can never mix pre- and
// mid-replacement state for any sponsor.
func (s *Store) Query(f task.Filter) []task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// UpdateStatus sets the status on every record matching the business key
// (sponsorID, source, name). Duplicates are not deduplicated; all matches
// are mutated in place. Returns the match count, or ErrNoMatch when it is
// zero (in which case the store is unchanged).
func (s *Store) UpdateStatus(sponsorID string, source task.Source, name, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := 0
	for i := range s.tasks {
		if s.tasks[i].MatchesKey(sponsorID, source, name) {
			s.tasks[i].Status = status
			matched++
		}
	}
	if matched == 0 {
		return 0, ErrNoMatch
	}
	return matched, nil
}

// Len reports the current number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// SponsorCount reports the size of the registered-sponsor set.
func (s *Store) SponsorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sponsors)
}
