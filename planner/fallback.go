// Deterministic fallback planning.
//
// When the LLM path fails, a single-step strategy is derived from keyword
// intent matching. This guarantees the pipeline always has some executable
// strategy, whatever the model returned.

package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/prepwise/glance/strategy"
)

// FallbackStrategy derives a single-step strategy from keyword intents in
// the query. The match order is significant: collaboration and people
// intents are more specific than the meeting catch-all.
func FallbackStrategy(userQuery string) (strategy.Strategy, error) {
	if strings.TrimSpace(userQuery) == "" {
		return strategy.Strategy{}, fmt.Errorf("empty query")
	}

	lower := strings.ToLower(userQuery)

	qt := strategy.QueryGeneralSearch
	params := map[string]any{"query": userQuery}
	description := "Search meetings, people, and documents for the question"

	switch {
	case containsAny(lower, "collaborat"):
		qt = strategy.QueryAnalyzeCollaboration
		params = map[string]any{"timeframe": "recent"}
		description = "Analyze recent collaboration patterns"
	case containsAny(lower, "people", "participant", "who", "attendee"):
		qt = strategy.QueryGetParticipants
		params = map[string]any{"timeframe": "recent"}
		description = "List participants of recent meetings"
	case containsAny(lower, "document", "file", "attachment", "doc "):
		qt = strategy.QueryFindDocuments
		params = map[string]any{"query": userQuery}
		description = "Find documents related to the question"
	case containsAny(lower, "meeting", "week", "today", "schedule", "calendar", "agenda"):
		qt = strategy.QueryFindMeetings
		params = map[string]any{"timeframe": guessTimeframe(lower), "query": ""}
		description = "Find meetings in the guessed timeframe"
	}

	return strategy.Strategy{
		Analysis:        fmt.Sprintf("Keyword-derived plan for: %s", userQuery),
		Complexity:      strategy.ComplexityLow,
		ExpectedOutcome: "A best-effort answer from a single query",
		Steps: []strategy.Step{{
			StepNumber:    1,
			Description:   description,
			QueryType:     qt,
			Parameters:    params,
			Dependencies:  []int{},
			EstimatedTime: strategy.EstimateFast,
		}},
		Metadata: strategy.Metadata{
			Source:    "fallback",
			CreatedAt: time.Now(),
		},
	}, nil
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func guessTimeframe(lower string) string {
	switch {
	case strings.Contains(lower, "today"):
		return "today"
	case strings.Contains(lower, "week"):
		return "week"
	case strings.Contains(lower, "month"):
		return "month"
	default:
		return "recent"
	}
}
