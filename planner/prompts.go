// Planning prompts. The capabilities document is static: it describes the
// closed query-type catalog the graph store executes.

package planner

import (
	"fmt"
	"strings"
)

const planningSystemPrompt = `You are a query planner for a meeting-intelligence system.
You respond with a single JSON object and nothing else: no prose, no markdown fences, no commentary.`

const capabilitiesDoc = `You plan multi-step queries against an organizational graph of meetings, people, documents, and departments.

Available query types:
- find_meetings: find meetings, optionally within a timeframe (parameters: query, timeframe)
- get_meeting_details: full details for specific meetings (parameters: meetingIds)
- get_participants: participants of meetings (parameters: meetingIds, timeframe)
- find_documents: documents attached to meetings (parameters: query)
- get_document_content: stored content of documents (parameters: documentIds)
- find_people: people by name, email, or department (parameters: query)
- get_person_profile: one person's profile and meeting involvement (parameters: email)
- get_timeline: chronological meeting timeline (parameters: timeframe)
- analyze_collaboration: collaboration patterns between people (parameters: timeframe)
- analyze_meeting_patterns: meeting cadence and load over time (parameters: timeframe)
- analyze_topics: recurring topics across meetings (parameters: timeframe)
- get_department_insights: meeting activity aggregated by department (parameters: timeframe)
- general_search: free-text search when nothing more specific fits (parameters: query)

Timeframe values: today, week, month, quarter, recent.`

const strategySchema = `Respond with exactly this JSON shape:
{
  "analysis": "what the user is asking and how you will answer it",
  "complexity": "low|medium|high",
  "steps": [
    {
      "stepNumber": 1,
      "description": "what this step finds",
      "queryType": "one of the query types above",
      "parameters": {},
      "dependencies": [],
      "estimatedTime": "fast|medium|slow"
    }
  ],
  "expectedOutcome": "what the final answer should contain",
  "followUpQuestions": []
}

Rules:
- stepNumber starts at 1 and is contiguous.
- dependencies list stepNumbers of earlier steps whose results this step needs.
- Prefer filtering steps (find_meetings, get_participants, find_documents) before analysis steps.
- Use 1-5 steps. Include a timeframe parameter wherever one applies.`

func buildPlanningPrompt(userQuery string, pctx Context) string {
	var b strings.Builder
	b.WriteString(capabilitiesDoc)
	b.WriteString("\n\n")

	if history := formatHistory(pctx.ConversationHistory); history != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User question: %s\n\n", userQuery)
	b.WriteString(strategySchema)
	return b.String()
}
