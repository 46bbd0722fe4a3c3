package graph

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	cfg.URI = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing URI")
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"query": "budget",
		"limit": float64(25), // decoded JSON numbers arrive as float64
		"ids":   []any{"a", "b"},
	}

	if got := stringParam(params, "query", "x"); got != "budget" {
		t.Errorf("stringParam = %q", got)
	}
	if got := stringParam(params, "missing", "fallback"); got != "fallback" {
		t.Errorf("stringParam fallback = %q", got)
	}
	if got := intParam(params, "limit", 10); got != 25 {
		t.Errorf("intParam = %d", got)
	}
	if got := intParam(params, "missing", 10); got != 10 {
		t.Errorf("intParam fallback = %d", got)
	}
	if got := sliceParam(params, "ids"); len(got) != 2 {
		t.Errorf("sliceParam = %v", got)
	}
	if got := sliceParam(params, "missing"); len(got) != 0 {
		t.Errorf("sliceParam fallback = %v", got)
	}
}

func TestTimeframeBounds(t *testing.T) {
	now := time.Now().UTC()

	since, until := timeframeBounds(map[string]any{"timeframe": "week"})
	sinceTime, err := time.Parse(time.RFC3339, since)
	if err != nil {
		t.Fatalf("since is not RFC3339: %v", err)
	}
	untilTime, err := time.Parse(time.RFC3339, until)
	if err != nil {
		t.Fatalf("until is not RFC3339: %v", err)
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	if diff := sinceTime.Sub(weekAgo); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected since about a week ago, got %v", sinceTime)
	}
	if !untilTime.After(now) {
		t.Error("until must include upcoming meetings")
	}

	// Unrecognized values behave like "recent".
	recentSince, _ := timeframeBounds(map[string]any{"timeframe": "fortnight"})
	monthSince, _ := timeframeBounds(map[string]any{"timeframe": "month"})
	if recentSince[:10] != monthSince[:10] {
		t.Errorf("expected unrecognized timeframe to match the 30-day window, got %s vs %s",
			recentSince, monthSince)
	}
}
