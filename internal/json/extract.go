// Package json provides JSON extraction utilities for parsing LLM responses.
//
// LLMs often return JSON wrapped in markdown fences or surrounded by prose,
// even when instructed to emit JSON only. This package extracts the JSON
// portion and, for responses that contain no JSON at all, classifies whether
// the model fell back into conversational prose.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// conversationalMarkers are phrases that indicate the model answered in
// prose instead of honoring the JSON-only contract. They are a logging
// diagnostic only: fallback decisions key off parse failure, never off
// this heuristic.
var conversationalMarkers = []string{
	"i found",
	"i looked",
	"i checked",
	"i searched",
	"here's what",
	"here is what",
	"based on your",
	"it looks like",
}

// extract finds and returns the JSON object portion of a response string.
// Handles the common patterns: pure JSON, JSON inside a fenced code block,
// and a JSON object embedded in surrounding text (first '{' to last '}').
func extract(response string) (string, error) {
	response = stripCodeFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end > start {
			candidate := response[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON object in response: %q", preview)
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

// Extract returns the raw JSON object portion of a response string.
func Extract(response string) (string, error) {
	return extract(response)
}

// Unmarshal extracts the JSON portion of a response and decodes it into T.
func Unmarshal[T any](response string) (T, error) {
	var result T
	jsonStr, err := extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return result, nil
}

// UnmarshalInto extracts the JSON portion of a response and decodes it into
// the provided pointer. Non-generic variant for callers that already hold a
// destination value.
func UnmarshalInto(response string, dest any) error {
	jsonStr, err := extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

// LooksConversational reports whether a response reads like prose rather
// than data: it does not start with '{' after fence stripping, or contains
// known conversational markers.
func LooksConversational(response string) bool {
	trimmed := stripCodeFences(response)
	if !strings.HasPrefix(strings.TrimSpace(trimmed), "{") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range conversationalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
