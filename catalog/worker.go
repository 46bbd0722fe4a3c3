// Package catalog ingests calendar data into the graph store.
//
// The worker is single-flight per process: a run that arrives while another
// is active is rejected immediately with ErrAlreadyRunning and performs no
// reads or writes. Within a run, each event is processed independently; a bad
// event is counted and skipped, never aborting the batch.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prepwise/glance/graph"
	"github.com/prepwise/glance/model"
)

// ErrAlreadyRunning is returned when a catalog run is requested while one is
// in progress.
var ErrAlreadyRunning = errors.New("catalog: already_running")

// Calendar fetches raw events from the calendar provider.
type Calendar interface {
	GetCalendarEvents(ctx context.Context, userTokens model.UserTokens, opts FetchOptions) ([]model.CalendarEvent, error)
}

// FetchOptions controls how far back and how much a calendar fetch pulls.
type FetchOptions struct {
	MonthsBack int `json:"monthsBack"`
	BatchSize  int `json:"batchSize"`
}

// DefaultFetchOptions returns the standard fetch window.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{MonthsBack: 6, BatchSize: 250}
}

// RunError records one event the run could not ingest.
type RunError struct {
	EventID string `json:"eventId"`
	Message string `json:"message"`
}

// RunReport summarizes one catalog run, including the partial counts and the
// per-event errors of a run that skipped events.
type RunReport struct {
	UserEmail       string        `json:"userEmail"`
	EventsFetched   int           `json:"eventsFetched"`
	MeetingsCreated int           `json:"meetingsCreated"`
	PeopleCreated   int           `json:"peopleCreated"`
	EventsSkipped   int           `json:"eventsSkipped"`
	Errors          []RunError    `json:"errors"`
	Duration        time.Duration `json:"-"`
	DurationMs      int64         `json:"durationMs"`
	StartedAt       time.Time     `json:"startedAt"`
}

// RunLog records completed catalog runs. Satisfied by storage.SQLiteStore.
type RunLog interface {
	RecordCatalogRun(ctx context.Context, report RunReport) error
}

// Worker ingests a user's calendar into the graph store.
type Worker struct {
	calendar Calendar
	upserter graph.Upserter
	runLog   RunLog
	logger   *slog.Logger

	// lease is a single-slot semaphore. Holding the token means a run is
	// active; TryAcquire is a non-blocking channel receive.
	lease chan struct{}
}

// NewWorker creates a catalog worker. runLog may be nil when run history is
// not persisted.
func NewWorker(calendar Calendar, upserter graph.Upserter, runLog RunLog, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		calendar: calendar,
		upserter: upserter,
		runLog:   runLog,
		logger:   logger,
		lease:    make(chan struct{}, 1),
	}
	w.lease <- struct{}{}
	return w
}

// tryAcquire takes the run lease without blocking.
func (w *Worker) tryAcquire() bool {
	select {
	case <-w.lease:
		return true
	default:
		return false
	}
}

func (w *Worker) release() {
	w.lease <- struct{}{}
}

// ProcessCalendarData runs one catalog ingestion for the user. Returns
// ErrAlreadyRunning, without touching the calendar or the graph, if a run is
// already active.
func (w *Worker) ProcessCalendarData(ctx context.Context, user model.UserContext, tokens model.UserTokens, opts FetchOptions) (RunReport, error) {
	if !w.tryAcquire() {
		w.logger.Warn("catalog run rejected, another run is active", "user", user.Email)
		return RunReport{}, ErrAlreadyRunning
	}
	defer w.release()

	started := time.Now()
	report := RunReport{UserEmail: user.Email, StartedAt: started, Errors: []RunError{}}

	events, err := w.calendar.GetCalendarEvents(ctx, tokens, opts)
	if err != nil {
		return report, fmt.Errorf("catalog: fetching calendar events: %w", err)
	}
	report.EventsFetched = len(events)

	for _, event := range events {
		if err := w.ingestEvent(ctx, &report, event); err != nil {
			report.EventsSkipped++
			report.Errors = append(report.Errors, RunError{
				EventID: event.GoogleEventID,
				Message: err.Error(),
			})
			w.logger.Warn("skipping calendar event",
				"eventId", event.GoogleEventID, "error", err)
		}
	}

	report.Duration = time.Since(started)
	report.DurationMs = report.Duration.Milliseconds()
	w.logger.Info("catalog run finished",
		"user", user.Email,
		"fetched", report.EventsFetched,
		"meetings", report.MeetingsCreated,
		"people", report.PeopleCreated,
		"skipped", report.EventsSkipped,
		"duration", report.Duration)

	if w.runLog != nil {
		if err := w.runLog.RecordCatalogRun(ctx, report); err != nil {
			w.logger.Warn("failed to record catalog run", "error", err)
		}
	}
	return report, nil
}

// ingestEvent upserts one event and the people it references. Upserts are
// idempotent in the store, so re-cataloging the same window is safe.
func (w *Worker) ingestEvent(ctx context.Context, report *RunReport, event model.CalendarEvent) error {
	if event.GoogleEventID == "" {
		return fmt.Errorf("event has no id")
	}
	if event.Title == "" && event.StartTime.IsZero() {
		return fmt.Errorf("event %s has neither title nor start time", event.GoogleEventID)
	}

	if err := w.upserter.CreateMeeting(ctx, event); err != nil {
		return fmt.Errorf("upserting meeting: %w", err)
	}
	report.MeetingsCreated++

	for _, email := range participantEmails(event) {
		person := model.Person{Email: email, Name: nameFromEmail(email)}
		if err := w.upserter.CreatePerson(ctx, person); err != nil {
			w.logger.Warn("failed to upsert person",
				"eventId", event.GoogleEventID, "email", email, "error", err)
			continue
		}
		report.PeopleCreated++
	}
	return nil
}

// participantEmails collects the organizer and attendees, deduplicated,
// dropping anything that does not look like an address.
func participantEmails(event model.CalendarEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || !strings.Contains(email, "@") {
			return
		}
		if _, dup := seen[email]; dup {
			return
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	add(event.Organizer)
	for _, attendee := range event.Attendees {
		add(attendee)
	}
	return out
}

// nameFromEmail derives a display name from the local part of an address:
// "jane.doe@corp.com" becomes "Jane Doe". A cataloged profile later
// overwrites it.
func nameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
