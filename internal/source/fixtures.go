package source

import (
	"context"

	"sponsorsync/internal/task"
)

// fixtureAdapter serves a fixed template per sponsor. It stands in for a
// remote integration until real credentials are wired up.
type fixtureAdapter struct {
	name     task.Source
	template []fixtureRecord
}

type fixtureRecord struct {
	name    string
	dueDate string
	status  string
}

func (a *fixtureAdapter) Name() task.Source { return a.name }

func (a *fixtureAdapter) Fetch(ctx context.Context, sponsorID string) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(a.template))
	for _, r := range a.template {
		out = append(out, task.Task{
			SponsorID: sponsorID,
			Source:    a.name,
			Name:      r.name,
			DueDate:   r.dueDate,
			Status:    r.status,
		})
	}
	return out, nil
}

// Salesforce returns the fixture adapter for the Salesforce source.
func Salesforce() Adapter {
	return &fixtureAdapter{name: task.SourceSalesforce, template: []fixtureRecord{
		{"Finalize contract", "2025-08-01", "pending"},
		{"Upload logo", "2025-08-05", "pending"},
	}}
}

// Asana returns the fixture adapter for the Asana source.
func Asana() Adapter {
	return &fixtureAdapter{name: task.SourceAsana, template: []fixtureRecord{
		{"Post campaign assets", "2025-07-30", "done"},
		{"Review creative brief", "2025-08-03", "pending"},
	}}
}

// GoogleCalendarFixture returns the fixture adapter for the Google Calendar
// source. See NewGoogleCalendar for the live variant.
func GoogleCalendarFixture() Adapter {
	return &fixtureAdapter{name: task.SourceGoogleCalendar, template: []fixtureRecord{
		{"Activation deadline", "2025-08-10", "pending"},
		{"Post-event report", "2025-08-20", "pending"},
	}}
}
