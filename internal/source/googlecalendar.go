package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"sponsorsync/internal/task"
)

// GoogleCalendarConfig configures the live Google Calendar adapter.
//
// CredentialsFile is the downloaded Google API credentials.json;
// TokenFile holds a previously obtained OAuth token (access + refresh).
// Obtaining the initial token is an offline setup step, not something the
// daemon does interactively.
type GoogleCalendarConfig struct {
	CalendarID      string
	CredentialsFile string
	TokenFile       string

	// Window bounds how far ahead events are pulled. Zero means 90 days.
	Window time.Duration
}

type googleCalendarAdapter struct {
	srv        *calendar.Service
	calendarID string
	window     time.Duration
}

// NewGoogleCalendar builds the live Calendar adapter. Events are scoped to a
// sponsor via the private extended property "sponsor_id".
func NewGoogleCalendar(ctx context.Context, cfg GoogleCalendarConfig) (Adapter, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret file %s: %w", cfg.CredentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token %s: %w", cfg.TokenFile, err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}

	id := cfg.CalendarID
	if id == "" {
		id = "primary"
	}
	window := cfg.Window
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	return &googleCalendarAdapter{srv: srv, calendarID: id, window: window}, nil
}

func (a *googleCalendarAdapter) Name() task.Source { return task.SourceGoogleCalendar }

func (a *googleCalendarAdapter) Fetch(ctx context.Context, sponsorID string) ([]task.Task, error) {
	now := time.Now()
	events, err := a.srv.Events.List(a.calendarID).
		Context(ctx).
		PrivateExtendedProperty(fmt.Sprintf("sponsor_id=%s", sponsorID)).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(a.window).Format(time.RFC3339)).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}

	out := make([]task.Task, 0, len(events.Items))
	for _, ev := range events.Items {
		if ev == nil || ev.Summary == "" {
			continue
		}
		out = append(out, task.Task{
			SponsorID: sponsorID,
			Source:    task.SourceGoogleCalendar,
			Name:      ev.Summary,
			DueDate:   eventDueDate(ev),
			Status:    eventStatus(ev),
		})
	}
	return out, nil
}

// eventDueDate extracts the YYYY-MM-DD date of an event, preferring all-day
// dates over timed starts.
func eventDueDate(ev *calendar.Event) string {
	if ev.Start == nil {
		return ""
	}
	if ev.Start.Date != "" {
		return ev.Start.Date
	}
	if ts, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
		return ts.Format("2006-01-02")
	}
	return ""
}

func eventStatus(ev *calendar.Event) string {
	switch ev.Status {
	case "cancelled":
		return "done"
	default:
		return "pending"
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
