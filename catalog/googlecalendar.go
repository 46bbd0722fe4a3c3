// Google Calendar client.
//
// Talks to the Calendar v3 events endpoint directly over HTTP with the
// user's bearer token. Pagination follows nextPageToken until the window is
// exhausted or the page cap is reached.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prepwise/glance/model"
)

const (
	calendarEventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"
	maxPages          = 40
)

// GoogleCalendar fetches events from the Google Calendar API.
type GoogleCalendar struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

var _ Calendar = (*GoogleCalendar)(nil)

// NewGoogleCalendar creates a calendar client. httpClient may be nil.
func NewGoogleCalendar(httpClient *http.Client, logger *slog.Logger) *GoogleCalendar {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleCalendar{httpClient: httpClient, baseURL: calendarEventsURL, logger: logger}
}

// eventsPage mirrors the fields we read from the v3 events response.
type eventsPage struct {
	Items         []apiEvent `json:"items"`
	NextPageToken string     `json:"nextPageToken"`
}

type apiEvent struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
	Organizer struct {
		Email string `json:"email"`
	} `json:"organizer"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

// GetCalendarEvents fetches the user's primary calendar over the window
// [now - monthsBack, now], batchSize events per page.
func (g *GoogleCalendar) GetCalendarEvents(ctx context.Context, tokens model.UserTokens, opts FetchOptions) ([]model.CalendarEvent, error) {
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("calendar: missing access token")
	}
	if opts.MonthsBack <= 0 {
		opts.MonthsBack = DefaultFetchOptions().MonthsBack
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultFetchOptions().BatchSize
	}

	timeMin := time.Now().AddDate(0, -opts.MonthsBack, 0)
	var events []model.CalendarEvent
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		result, err := g.fetchPage(ctx, tokens.AccessToken, timeMin, opts.BatchSize, pageToken)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Items {
			events = append(events, convertEvent(item))
		}
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	g.logger.Info("fetched calendar events", "count", len(events), "monthsBack", opts.MonthsBack)
	return events, nil
}

func (g *GoogleCalendar) fetchPage(ctx context.Context, accessToken string, timeMin time.Time, batchSize int, pageToken string) (*eventsPage, error) {
	params := url.Values{}
	params.Set("timeMin", timeMin.Format(time.RFC3339))
	params.Set("maxResults", strconv.Itoa(batchSize))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: fetching events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("calendar: events request returned %d: %s", resp.StatusCode, body)
	}

	var page eventsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("calendar: decoding events response: %w", err)
	}
	return &page, nil
}

func convertEvent(item apiEvent) model.CalendarEvent {
	event := model.CalendarEvent{
		GoogleEventID: item.ID,
		Title:         item.Summary,
		Description:   item.Description,
		Location:      item.Location,
		Organizer:     item.Organizer.Email,
		StartTime:     parseEventTime(item.Start.DateTime, item.Start.Date),
		EndTime:       parseEventTime(item.End.DateTime, item.End.Date),
	}
	for _, attendee := range item.Attendees {
		if attendee.Email != "" {
			event.Attendees = append(event.Attendees, attendee.Email)
		}
	}
	return event
}

// parseEventTime handles both timed events (dateTime) and all-day events
// (date only).
func parseEventTime(dateTime, date string) time.Time {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t
		}
	}
	if date != "" {
		if t, err := time.Parse("2006-01-02", date); err == nil {
			return t
		}
	}
	return time.Time{}
}
