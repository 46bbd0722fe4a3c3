// Final answer synthesis.
//
// The synthesizer is the last LLM touchpoint of a run. Like analysis, it
// degrades instead of failing: when the model is unreachable the user still
// gets a deterministic summary built from the cached entities.

package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/strategy"
)

const synthesisSystemPrompt = `You answer questions about a user's meetings, colleagues, and documents.
Answer directly from the findings provided. Be concise and concrete: name people,
meetings, and documents rather than describing categories. If the findings are
incomplete, say what is missing instead of guessing.`

// AnswerSynthesizer produces the final response from an execution's
// accumulated state.
type AnswerSynthesizer struct {
	client *llm.Client
	store  *Store
	logger *slog.Logger
}

var _ Synthesizer = (*AnswerSynthesizer)(nil)

// NewAnswerSynthesizer creates a synthesizer reading from the given store.
func NewAnswerSynthesizer(client *llm.Client, store *Store, logger *slog.Logger) *AnswerSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerSynthesizer{client: client, store: store, logger: logger}
}

// Synthesize builds the final answer. LLM failure falls back to a
// deterministic summary of what was found.
func (a *AnswerSynthesizer) Synthesize(ctx context.Context, userQuery, executionID string, strat strategy.Strategy, result strategy.AnalysisResult) string {
	prompt := a.buildPrompt(userQuery, executionID, strat, result)

	response, err := a.client.Generate(ctx, prompt, llm.Options{
		SystemPrompt: synthesisSystemPrompt,
	})
	if err != nil || strings.TrimSpace(response) == "" {
		a.logger.Warn("synthesis LLM call failed, using deterministic summary",
			"executionId", executionID, "error", err)
		return a.fallbackSummary(executionID, result)
	}
	return strings.TrimSpace(response)
}

func (a *AnswerSynthesizer) buildPrompt(userQuery, executionID string, strat strategy.Strategy, result strategy.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", userQuery)
	fmt.Fprintf(&b, "Plan: %s\n\n", strat.Analysis)

	entities, ok := a.store.Entities(executionID)
	if ok {
		if len(entities.Meetings) > 0 {
			b.WriteString("Meetings found:\n")
			for _, m := range entities.Meetings {
				fmt.Fprintf(&b, "- %s (%s, organized by %s)\n",
					m.Title, m.StartTime.Format("Mon Jan 2 15:04"), m.Organizer)
			}
		}
		if len(entities.People) > 0 {
			b.WriteString("People found:\n")
			for _, p := range entities.People {
				fmt.Fprintf(&b, "- %s <%s> %s\n", p.Name, p.Email, p.Department)
			}
		}
		if len(entities.Documents) > 0 {
			b.WriteString("Documents found:\n")
			for _, d := range entities.Documents {
				fmt.Fprintf(&b, "- %s (%s)\n", d.Title, d.Type)
			}
		}
		if len(entities.Topics) > 0 {
			topics := make([]string, 0, len(entities.Topics))
			for t := range entities.Topics {
				topics = append(topics, t)
			}
			sort.Strings(topics)
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(topics, ", "))
		}
	}

	if len(result.Insights) > 0 {
		b.WriteString("\nAnalysis findings:\n")
		for _, insight := range result.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}
	if len(result.Gaps) > 0 {
		b.WriteString("Known gaps:\n")
		for _, gap := range result.Gaps {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
	}

	b.WriteString("\nAnswer the question from these findings.")
	return b.String()
}

// fallbackSummary is what the user sees when synthesis cannot reach the LLM.
func (a *AnswerSynthesizer) fallbackSummary(executionID string, result strategy.AnalysisResult) string {
	var b strings.Builder

	entities, ok := a.store.Entities(executionID)
	if !ok {
		return "I could not retrieve any results for this question."
	}

	people, meetings, documents, topics := entities.Counts()
	if people+meetings+documents == 0 {
		return "I could not find any meetings, people, or documents matching this question."
	}

	fmt.Fprintf(&b, "I found %d meetings, %d people, and %d documents", meetings, people, documents)
	if topics > 0 {
		names := make([]string, 0, topics)
		for t := range entities.Topics {
			names = append(names, t)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, " covering %s", strings.Join(names, ", "))
	}
	b.WriteString(".")

	for _, insight := range result.Insights {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(insight, "."))
	}
	return b.String()
}
