package task

import "strings"

// Source identifies the origin system a task record was pulled from.
//
// The set is extensible; these are the sources the daemon ships adapters for.
type Source string

const (
	SourceSalesforce     Source = "salesforce"
	SourceAsana          Source = "asana"
	SourceGoogleCalendar Source = "google_calendar"
)

// Task is one task-like record scoped to a single sponsor.
//
// DueDate is an ISO-8601 date string (YYYY-MM-DD). It is carried as opaque
// text; the daemon never parses or validates it.
//
// There is no surrogate ID. The business key is (sponsor_id, source, name),
// and positions in the store are not durable because every sync replaces a
// sponsor's records wholesale.
type Task struct {
	SponsorID string `json:"sponsor_id"`
	Source    Source `json:"source"`
	Name      string `json:"name"`
	DueDate   string `json:"due_date"`
	Status    string `json:"status"`
}

// MatchesKey reports whether t carries the given business key.
func (t Task) MatchesKey(sponsorID string, source Source, name string) bool {
	return t.SponsorID == sponsorID && t.Source == source && t.Name == name
}

// Filter selects tasks by exact-match equality. Empty fields are ignored;
// both set means logical AND.
type Filter struct {
	SponsorID string
	Status    string
}

// Matches reports whether t satisfies every non-empty predicate.
func (f Filter) Matches(t Task) bool {
	if f.SponsorID != "" && t.SponsorID != f.SponsorID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// ParseSource normalizes a source name. It accepts any non-empty value (the
// set of sources is open) but canonicalizes case and whitespace.
func ParseSource(s string) (Source, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	return Source(s), true
}
