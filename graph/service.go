// Package graph provides the organizational graph store.
//
// The store holds people, meetings, documents, and departments extracted from
// a user's calendar, and answers the closed set of typed queries the planner
// can schedule. Consumers depend on the two small interfaces below; the Neo4j
// implementation and the caching decorator both satisfy QueryService.
package graph

import (
	"context"

	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// QueryService executes one typed query against the graph store.
type QueryService interface {
	ExecuteQuery(ctx context.Context, queryType strategy.QueryType, params map[string]any, user model.UserContext) (strategy.ResultSet, error)
}

// Upserter writes people and meetings into the graph store. Upserts are
// idempotent, keyed by natural id (email for people, source event id for
// meetings).
type Upserter interface {
	CreatePerson(ctx context.Context, person model.Person) error
	CreateMeeting(ctx context.Context, event model.CalendarEvent) error
}

// ToolInfo describes one query type for the discovery endpoint.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Expensive   bool   `json:"expensive"`
}

// Tools lists every query type the store supports.
func Tools() []ToolInfo {
	descriptions := map[strategy.QueryType]string{
		strategy.QueryGeneralSearch:          "Free-text search across meetings, people, and documents",
		strategy.QueryFindMeetings:           "Find meetings, optionally constrained to a timeframe",
		strategy.QueryGetMeetingDetails:      "Fetch full details for specific meetings",
		strategy.QueryGetParticipants:        "List participants of meetings",
		strategy.QueryFindDocuments:          "Find documents attached to meetings",
		strategy.QueryGetDocumentContent:     "Fetch stored content for specific documents",
		strategy.QueryFindPeople:             "Find people by name, email, or department",
		strategy.QueryGetPersonProfile:       "Fetch a person's profile and meeting involvement",
		strategy.QueryGetTimeline:            "Build a chronological timeline of meetings",
		strategy.QueryAnalyzeCollaboration:   "Analyze collaboration patterns between people",
		strategy.QueryAnalyzeMeetingPatterns: "Analyze meeting cadence and load over time",
		strategy.QueryAnalyzeTopics:          "Analyze recurring topics across meetings",
		strategy.QueryGetDepartmentInsights:  "Aggregate meeting activity by department",
	}

	tools := make([]ToolInfo, 0, len(descriptions))
	for _, qt := range strategy.AllQueryTypes() {
		tools = append(tools, ToolInfo{
			Name:        qt.String(),
			Description: descriptions[qt],
			Expensive:   qt.IsExpensive(),
		})
	}
	return tools
}
