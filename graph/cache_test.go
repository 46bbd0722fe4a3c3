package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

type countingService struct {
	calls int
	err   error
}

func (c *countingService) ExecuteQuery(ctx context.Context, queryType strategy.QueryType, params map[string]any, user model.UserContext) (strategy.ResultSet, error) {
	c.calls++
	if c.err != nil {
		return strategy.ResultSet{}, c.err
	}
	return strategy.ResultSet{Results: []map[string]any{{"id": "m1"}}}, nil
}

func TestCachedQueryServiceHitsCache(t *testing.T) {
	inner := &countingService{}
	cached := NewCachedQueryService(inner, 16, time.Minute, nil)
	ctx := context.Background()
	user := model.UserContext{Email: "alice@corp.com"}
	params := map[string]any{"timeframe": "week"}

	for i := 0; i < 3; i++ {
		result, err := cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, params, user)
		if err != nil {
			t.Fatalf("ExecuteQuery failed: %v", err)
		}
		if len(result.Results) != 1 {
			t.Fatalf("unexpected result: %+v", result)
		}
	}

	if inner.calls != 1 {
		t.Errorf("expected a single store call, got %d", inner.calls)
	}
}

func TestCachedQueryServiceKeysByUser(t *testing.T) {
	inner := &countingService{}
	cached := NewCachedQueryService(inner, 16, time.Minute, nil)
	ctx := context.Background()
	params := map[string]any{"timeframe": "week"}

	cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, params, model.UserContext{Email: "alice@corp.com"})
	cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, params, model.UserContext{Email: "bob@corp.com"})

	if inner.calls != 2 {
		t.Errorf("different users must not share cache entries, got %d calls", inner.calls)
	}
}

func TestCachedQueryServiceNeverCachesFailures(t *testing.T) {
	inner := &countingService{err: errors.New("unavailable")}
	cached := NewCachedQueryService(inner, 16, time.Minute, nil)
	ctx := context.Background()
	user := model.UserContext{Email: "alice@corp.com"}

	for i := 0; i < 2; i++ {
		if _, err := cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, nil, user); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("failures must fall through every time, got %d calls", inner.calls)
	}

	// Once the store recovers, the next call succeeds and is cached.
	inner.err = nil
	cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, nil, user)
	cached.ExecuteQuery(ctx, strategy.QueryFindMeetings, nil, user)
	if inner.calls != 3 {
		t.Errorf("expected recovery call to be cached, got %d calls", inner.calls)
	}
}
