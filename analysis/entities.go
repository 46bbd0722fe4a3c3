// Entity extraction from raw query results.
//
// Graph query results arrive as generic row maps. Rows that carry an email
// become people, rows with an id plus start time become meetings, rows with
// an id plus url/type become documents. Extraction is idempotent: entities
// are keyed by natural id, so merging the same result twice cannot grow a
// collection.

package analysis

import (
	"strings"
	"time"

	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// Entities is a deduplicated collection of people, meetings, documents, and
// topics accumulated from step results.
type Entities struct {
	People    map[string]model.Person
	Meetings  map[string]model.Meeting
	Documents map[string]model.Document
	Topics    map[string]struct{}
}

// NewEntities returns an empty collection.
func NewEntities() *Entities {
	return &Entities{
		People:    make(map[string]model.Person),
		Meetings:  make(map[string]model.Meeting),
		Documents: make(map[string]model.Document),
		Topics:    make(map[string]struct{}),
	}
}

// Counts returns the cardinality of each collection.
func (e *Entities) Counts() (people, meetings, documents, topics int) {
	return len(e.People), len(e.Meetings), len(e.Documents), len(e.Topics)
}

// MergeResult extracts entities from one step result into the collection.
func (e *Entities) MergeResult(result strategy.StepResult) {
	for _, row := range result.Results.Results {
		e.mergeRow(row)
	}
}

func (e *Entities) mergeRow(row map[string]any) {
	if email := stringField(row, "email"); email != "" {
		person := e.People[email]
		person.Email = email
		if name := stringField(row, "name"); name != "" {
			person.Name = name
		}
		if dept := stringField(row, "department"); dept != "" {
			person.Department = dept
		}
		if role := stringField(row, "role"); role != "" {
			person.Role = role
		}
		e.People[email] = person
	}

	id := stringField(row, "id")
	title := stringField(row, "title")

	switch {
	case id != "" && hasField(row, "startTime"):
		meeting := e.Meetings[id]
		meeting.ID = id
		if title != "" {
			meeting.Title = title
		}
		if desc := stringField(row, "description"); desc != "" {
			meeting.Description = desc
		}
		if t, ok := timeField(row, "startTime"); ok {
			meeting.StartTime = t
		}
		if t, ok := timeField(row, "endTime"); ok {
			meeting.EndTime = t
		}
		if org := stringField(row, "organizer"); org != "" {
			meeting.Organizer = org
		}
		if participants := stringSliceField(row, "participants"); len(participants) > 0 {
			meeting.Participants = participants
		}
		e.Meetings[id] = meeting
		e.extractTopics(meeting.Title + " " + meeting.Description)

	case id != "" && (hasField(row, "url") || hasField(row, "type")):
		doc := e.Documents[id]
		doc.ID = id
		if title != "" {
			doc.Title = title
		}
		if url := stringField(row, "url"); url != "" {
			doc.URL = url
		}
		if typ := stringField(row, "type"); typ != "" {
			doc.Type = typ
		}
		e.Documents[id] = doc
	}
}

// Topic keyword families: meeting-cadence words, project/technical words,
// and business words. A word from any family found in meeting text becomes
// a topic.
var topicKeywords = []string{
	// cadence
	"standup", "sync", "review", "retro", "retrospective", "planning",
	"1:1", "one-on-one", "kickoff", "all-hands", "demo", "check-in",
	// project / technical
	"launch", "release", "sprint", "roadmap", "design", "architecture",
	"migration", "deployment", "api", "infrastructure", "incident", "postmortem",
	// business
	"budget", "hiring", "revenue", "strategy", "okr", "quarterly",
	"forecast", "customer", "sales", "marketing",
}

func (e *Entities) extractTopics(text string) {
	lower := strings.ToLower(text)
	for _, keyword := range topicKeywords {
		if strings.Contains(lower, keyword) {
			e.Topics[keyword] = struct{}{}
		}
	}
}

// Row field helpers. Values come either from Neo4j records or decoded JSON,
// so times may be time.Time, RFC3339 strings, or driver-specific values with
// a Time() accessor.

func stringField(row map[string]any, key string) string {
	v, ok := row[key].(string)
	if !ok {
		return ""
	}
	return v
}

func hasField(row map[string]any, key string) bool {
	v, ok := row[key]
	return ok && v != nil
}

func timeField(row map[string]any, key string) (time.Time, bool) {
	switch v := row[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	case interface{ Time() time.Time }:
		return v.Time(), true
	}
	return time.Time{}, false
}

func stringSliceField(row map[string]any, key string) []string {
	switch v := row[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
