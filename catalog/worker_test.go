package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prepwise/glance/model"
)

// blockingCalendar serves events, optionally blocking until released so a
// second run can be attempted mid-flight.
type blockingCalendar struct {
	mu      sync.Mutex
	calls   int
	events  []model.CalendarEvent
	err     error
	started chan struct{}
	release chan struct{}
}

func (c *blockingCalendar) GetCalendarEvents(ctx context.Context, tokens model.UserTokens, opts FetchOptions) ([]model.CalendarEvent, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.started != nil {
		close(c.started)
		<-c.release
	}
	return c.events, c.err
}

func (c *blockingCalendar) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingUpserter struct {
	mu       sync.Mutex
	meetings []string
	people   []string
	failFor  map[string]error
}

func (u *recordingUpserter) CreateMeeting(ctx context.Context, event model.CalendarEvent) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err, ok := u.failFor[event.GoogleEventID]; ok {
		return err
	}
	u.meetings = append(u.meetings, event.GoogleEventID)
	return nil
}

func (u *recordingUpserter) CreatePerson(ctx context.Context, person model.Person) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.people = append(u.people, person.Email)
	return nil
}

func event(id, organizer string, attendees ...string) model.CalendarEvent {
	return model.CalendarEvent{
		GoogleEventID: id,
		Title:         "Weekly Sync",
		StartTime:     time.Now(),
		EndTime:       time.Now().Add(30 * time.Minute),
		Organizer:     organizer,
		Attendees:     attendees,
	}
}

func TestProcessCalendarData(t *testing.T) {
	calendar := &blockingCalendar{events: []model.CalendarEvent{
		event("e1", "alice@corp.com", "bob@corp.com", "alice@corp.com"),
		event("e2", "bob@corp.com"),
	}}
	upserter := &recordingUpserter{}
	worker := NewWorker(calendar, upserter, nil, nil)

	report, err := worker.ProcessCalendarData(context.Background(),
		model.UserContext{Email: "alice@corp.com"}, model.UserTokens{AccessToken: "tok"},
		DefaultFetchOptions())
	if err != nil {
		t.Fatalf("ProcessCalendarData failed: %v", err)
	}

	if report.EventsFetched != 2 || report.MeetingsCreated != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
	// e1 contributes alice and bob (deduplicated); e2 contributes bob again.
	if report.PeopleCreated != 3 {
		t.Errorf("expected 3 person upserts, got %d", report.PeopleCreated)
	}
	if report.EventsSkipped != 0 {
		t.Errorf("expected no skips, got %d", report.EventsSkipped)
	}
}

func TestProcessCalendarDataIsolatesBadEvents(t *testing.T) {
	calendar := &blockingCalendar{events: []model.CalendarEvent{
		event("good-1", "alice@corp.com"),
		{GoogleEventID: ""}, // no id
		event("bad-upsert", "alice@corp.com"),
		event("good-2", "bob@corp.com"),
	}}
	upserter := &recordingUpserter{failFor: map[string]error{
		"bad-upsert": errors.New("constraint violation"),
	}}
	worker := NewWorker(calendar, upserter, nil, nil)

	report, err := worker.ProcessCalendarData(context.Background(),
		model.UserContext{Email: "alice@corp.com"}, model.UserTokens{}, DefaultFetchOptions())
	if err != nil {
		t.Fatalf("ProcessCalendarData failed: %v", err)
	}

	if report.MeetingsCreated != 2 {
		t.Errorf("expected 2 meetings despite bad events, got %d", report.MeetingsCreated)
	}
	if report.EventsSkipped != 2 {
		t.Errorf("expected 2 skipped events, got %d", report.EventsSkipped)
	}

	// Each skip is collected with its event id, not just counted.
	if len(report.Errors) != 2 {
		t.Fatalf("expected 2 collected errors, got %+v", report.Errors)
	}
	if report.Errors[0].EventID != "" || !strings.Contains(report.Errors[0].Message, "no id") {
		t.Errorf("unexpected first error: %+v", report.Errors[0])
	}
	if report.Errors[1].EventID != "bad-upsert" || !strings.Contains(report.Errors[1].Message, "constraint violation") {
		t.Errorf("unexpected second error: %+v", report.Errors[1])
	}

	// The report surface carries the errors too.
	encoded, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if !strings.Contains(string(encoded), "bad-upsert") {
		t.Errorf("serialized report must name the failing event, got %s", encoded)
	}
}

func TestRunReportWithoutErrorsSerializesEmptyList(t *testing.T) {
	calendar := &blockingCalendar{events: []model.CalendarEvent{event("e1", "alice@corp.com")}}
	worker := NewWorker(calendar, &recordingUpserter{}, nil, nil)

	report, err := worker.ProcessCalendarData(context.Background(),
		model.UserContext{Email: "alice@corp.com"}, model.UserTokens{}, DefaultFetchOptions())
	if err != nil {
		t.Fatalf("ProcessCalendarData failed: %v", err)
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if !strings.Contains(string(encoded), `"errors":[]`) {
		t.Errorf("expected an empty errors list, got %s", encoded)
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	calendar := &blockingCalendar{
		events:  []model.CalendarEvent{event("e1", "alice@corp.com")},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	upserter := &recordingUpserter{}
	worker := NewWorker(calendar, upserter, nil, nil)

	ctx := context.Background()
	user := model.UserContext{Email: "alice@corp.com"}

	done := make(chan error, 1)
	go func() {
		_, err := worker.ProcessCalendarData(ctx, user, model.UserTokens{}, DefaultFetchOptions())
		done <- err
	}()

	<-calendar.started

	// Second run while the first is mid-fetch: rejected, no reads, no writes.
	_, err := worker.ProcessCalendarData(ctx, user, model.UserTokens{}, DefaultFetchOptions())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if calendar.callCount() != 1 {
		t.Errorf("rejected run must not touch the calendar, got %d calls", calendar.callCount())
	}

	close(calendar.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The lease is free again.
	calendar.started = nil
	if _, err := worker.ProcessCalendarData(ctx, user, model.UserTokens{}, DefaultFetchOptions()); err != nil {
		t.Errorf("expected run after release to succeed, got %v", err)
	}
}

func TestNameFromEmail(t *testing.T) {
	cases := map[string]string{
		"jane.doe@corp.com":  "Jane Doe",
		"bob@corp.com":       "Bob",
		"dev_team@corp.com":  "Dev Team",
		"no-at-sign":         "no-at-sign",
		"sam-o'neil@x.co":    "Sam O'neil",
	}
	for email, want := range cases {
		if got := nameFromEmail(email); got != want {
			t.Errorf("nameFromEmail(%q) = %q, want %q", email, got, want)
		}
	}
}
