package analysis

import (
	"testing"
	"time"

	"github.com/prepwise/glance/strategy"
)

func meetingRow(id, title string) map[string]any {
	return map[string]any{
		"id":        id,
		"title":     title,
		"startTime": "2026-08-24T10:00:00Z",
		"endTime":   "2026-08-24T10:30:00Z",
		"organizer": "alice@corp.com",
	}
}

func TestMergeResultExtractsEntities(t *testing.T) {
	e := NewEntities()
	e.MergeResult(strategy.StepResult{
		Success: true,
		Results: strategy.ResultSet{Results: []map[string]any{
			meetingRow("m1", "Sprint Planning"),
			{"email": "alice@corp.com", "name": "Alice", "department": "Engineering"},
			{"id": "d1", "title": "Roadmap", "url": "https://docs/d1", "type": "doc"},
		}},
	})

	people, meetings, documents, topics := e.Counts()
	if people != 1 || meetings != 1 || documents != 1 {
		t.Errorf("expected 1/1/1 entities, got %d/%d/%d", people, meetings, documents)
	}
	// "Sprint Planning" carries two topic keywords.
	if topics != 2 {
		t.Errorf("expected 2 topics, got %d", topics)
	}

	meeting := e.Meetings["m1"]
	want, _ := time.Parse(time.RFC3339, "2026-08-24T10:00:00Z")
	if !meeting.StartTime.Equal(want) {
		t.Errorf("expected parsed start time, got %v", meeting.StartTime)
	}
}

func TestMergeResultIsIdempotent(t *testing.T) {
	e := NewEntities()
	result := strategy.StepResult{
		Success: true,
		Results: strategy.ResultSet{Results: []map[string]any{
			meetingRow("m1", "Design Review"),
			{"email": "bob@corp.com", "name": "Bob"},
		}},
	}

	e.MergeResult(result)
	first := snapshot(e)
	e.MergeResult(result)
	e.MergeResult(result)
	second := snapshot(e)

	if first != second {
		t.Errorf("re-merging the same result changed counts: %v -> %v", first, second)
	}
}

func TestMergeEnrichesExistingEntity(t *testing.T) {
	e := NewEntities()
	e.MergeResult(strategy.StepResult{
		Success: true,
		Results: strategy.ResultSet{Results: []map[string]any{
			{"email": "carol@corp.com"},
		}},
	})
	e.MergeResult(strategy.StepResult{
		Success: true,
		Results: strategy.ResultSet{Results: []map[string]any{
			{"email": "carol@corp.com", "name": "Carol", "department": "Sales"},
		}},
	})

	person := e.People["carol@corp.com"]
	if person.Name != "Carol" || person.Department != "Sales" {
		t.Errorf("expected later rows to enrich the person, got %+v", person)
	}
	if len(e.People) != 1 {
		t.Errorf("expected a single person, got %d", len(e.People))
	}
}

func TestTimeFieldHandlesNativeTime(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	got, ok := timeField(map[string]any{"startTime": now}, "startTime")
	if !ok || !got.Equal(now) {
		t.Errorf("expected native time passthrough, got %v (%v)", got, ok)
	}
}

type counts struct{ people, meetings, documents, topics int }

func snapshot(e *Entities) counts {
	p, m, d, tp := e.Counts()
	return counts{p, m, d, tp}
}
