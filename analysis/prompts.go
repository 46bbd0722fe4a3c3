// Analysis prompts.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prepwise/glance/strategy"
)

const analysisSystemPrompt = `You evaluate whether query results answer a user's question about their meetings.
You respond with a single JSON object and nothing else: no prose, no markdown fences, no commentary.`

// followUpQueryTypes is the catalog offered to the follow-up prompt. It is
// narrower than the full dispatch catalog: the generic fallback and timeline
// queries never make useful follow-ups.
var followUpQueryTypes = []strategy.QueryType{
	strategy.QueryFindMeetings,
	strategy.QueryGetMeetingDetails,
	strategy.QueryGetParticipants,
	strategy.QueryFindDocuments,
	strategy.QueryGetDocumentContent,
	strategy.QueryFindPeople,
	strategy.QueryGetPersonProfile,
	strategy.QueryAnalyzeCollaboration,
	strategy.QueryAnalyzeMeetingPatterns,
	strategy.QueryAnalyzeTopics,
	strategy.QueryGetDepartmentInsights,
}

func buildAnalysisPrompt(agg aggregated, strat strategy.Strategy) string {
	people, meetings, documents, topics := agg.entities.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "Original plan: %s\n", strat.Analysis)
	fmt.Fprintf(&b, "Expected outcome: %s\n\n", strat.ExpectedOutcome)

	fmt.Fprintf(&b, "Executed %d successful steps. Result counts by query type:\n", agg.stepCount)
	types := make([]string, 0, len(agg.countsByType))
	for qt := range agg.countsByType {
		types = append(types, qt)
	}
	sort.Strings(types)
	for _, qt := range types {
		fmt.Fprintf(&b, "- %s: %d results\n", qt, agg.countsByType[qt])
	}

	fmt.Fprintf(&b, "\nAggregated entities: %d people, %d meetings, %d documents, %d topics\n",
		people, meetings, documents, topics)
	if len(agg.timeframes) > 0 {
		fmt.Fprintf(&b, "Timeframes queried: %s\n", strings.Join(agg.timeframes, ", "))
	}

	b.WriteString(`
Judge how well these results satisfy the plan. Respond with exactly this JSON shape:
{
  "completeness": 0.0,
  "confidence": 0.0,
  "insights": ["notable finding"],
  "gaps": ["information still missing"]
}
Scores are between 0 and 1. List a gap only if more querying could close it.`)
	return b.String()
}

func buildFollowUpPrompt(result strategy.AnalysisResult, strat strategy.Strategy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The plan %q is incomplete: %s\n", strat.Analysis, result.Reason)

	if len(result.Gaps) > 0 {
		b.WriteString("Identified gaps:\n")
		for _, gap := range result.Gaps {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
	}
	if len(result.Insights) > 0 {
		b.WriteString("Findings so far:\n")
		for _, insight := range result.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	names := make([]string, len(followUpQueryTypes))
	for i, qt := range followUpQueryTypes {
		names[i] = qt.String()
	}

	fmt.Fprintf(&b, `
Propose 1-3 additional query steps that close these gaps.
Available query types: %s

Respond with exactly this JSON shape:
{
  "steps": [
    {
      "description": "what this step finds",
      "queryType": "one of the query types above",
      "parameters": {},
      "dependencies": []
    }
  ]
}`, strings.Join(names, ", "))
	return b.String()
}
