// Query type catalog.
//
// The graph store understands a closed set of typed queries. Keeping this as a
// proper enum (rather than free-form strings) means a new query type is a
// compile-time change: the graph dispatcher's switch must be extended or the
// build breaks.

package strategy

import (
	"encoding/json"
	"fmt"
)

// QueryType identifies one of the typed queries the graph store can execute.
type QueryType int

const (
	// QueryGeneralSearch is the generic fallback query. Unknown types coming
	// out of the LLM are coerced to it by the planner (never by the validator,
	// which rejects unknown types outright).
	QueryGeneralSearch QueryType = iota
	QueryFindMeetings
	QueryGetMeetingDetails
	QueryGetParticipants
	QueryFindDocuments
	QueryGetDocumentContent
	QueryFindPeople
	QueryGetPersonProfile
	QueryGetTimeline
	QueryAnalyzeCollaboration
	QueryAnalyzeMeetingPatterns
	QueryAnalyzeTopics
	QueryGetDepartmentInsights
)

var queryTypeNames = map[QueryType]string{
	QueryGeneralSearch:          "general_search",
	QueryFindMeetings:           "find_meetings",
	QueryGetMeetingDetails:      "get_meeting_details",
	QueryGetParticipants:        "get_participants",
	QueryFindDocuments:          "find_documents",
	QueryGetDocumentContent:     "get_document_content",
	QueryFindPeople:             "find_people",
	QueryGetPersonProfile:       "get_person_profile",
	QueryGetTimeline:            "get_timeline",
	QueryAnalyzeCollaboration:   "analyze_collaboration",
	QueryAnalyzeMeetingPatterns: "analyze_meeting_patterns",
	QueryAnalyzeTopics:          "analyze_topics",
	QueryGetDepartmentInsights:  "get_department_insights",
}

var queryTypesByName = func() map[string]QueryType {
	m := make(map[string]QueryType, len(queryTypeNames))
	for qt, name := range queryTypeNames {
		m[name] = qt
	}
	return m
}()

// AllQueryTypes returns every known query type in a stable order.
func AllQueryTypes() []QueryType {
	types := make([]QueryType, 0, len(queryTypeNames))
	for qt := QueryGeneralSearch; qt <= QueryGetDepartmentInsights; qt++ {
		types = append(types, qt)
	}
	return types
}

// String returns the wire name of the query type.
func (q QueryType) String() string {
	if name, ok := queryTypeNames[q]; ok {
		return name
	}
	return "unknown"
}

// ParseQueryType resolves a wire name to a QueryType.
// Returns false for names outside the catalog.
func ParseQueryType(name string) (QueryType, bool) {
	qt, ok := queryTypesByName[name]
	return qt, ok
}

// IsExpensive reports whether the query type is flagged resource-intensive
// for performance estimation: the analyze_* family plus department insights.
func (q QueryType) IsExpensive() bool {
	switch q {
	case QueryAnalyzeCollaboration, QueryAnalyzeMeetingPatterns,
		QueryAnalyzeTopics, QueryGetDepartmentInsights:
		return true
	default:
		return false
	}
}

// IsFiltering reports whether the query type narrows a result set.
// Used by the optimizer to suggest running filters before expensive analyses.
func (q QueryType) IsFiltering() bool {
	switch q {
	case QueryFindMeetings, QueryGetParticipants, QueryFindDocuments:
		return true
	default:
		return false
	}
}

// SupportsTimeframe reports whether a timeframe parameter is meaningful
// for this query type.
func (q QueryType) SupportsTimeframe() bool {
	switch q {
	case QueryFindMeetings, QueryAnalyzeCollaboration, QueryAnalyzeMeetingPatterns:
		return true
	default:
		return false
	}
}

// MarshalJSON writes the query type as its wire name.
func (q QueryType) MarshalJSON() ([]byte, error) {
	name, ok := queryTypeNames[q]
	if !ok {
		return nil, fmt.Errorf("unknown query type %d", int(q))
	}
	return json.Marshal(name)
}

// UnmarshalJSON reads a wire name, rejecting names outside the catalog.
// Callers that need lenient coercion (the planner) must decode into a string
// and use ParseQueryType themselves.
func (q *QueryType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	qt, ok := queryTypesByName[name]
	if !ok {
		return fmt.Errorf("unknown query type %q", name)
	}
	*q = qt
	return nil
}
