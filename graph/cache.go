// Expirable LRU cache in front of the graph store's read path.
// Write paths (upserts) go directly to the store and are unaffected.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// CachedQueryService decorates a QueryService with a TTL-bounded LRU cache.
// Expensive analysis queries benefit the most: identical follow-up steps in
// the same conversation hit the cache instead of the store.
type CachedQueryService struct {
	inner  QueryService
	cache  *expirable.LRU[string, strategy.ResultSet]
	logger *slog.Logger
}

// NewCachedQueryService wraps a QueryService with an LRU of the given size
// whose entries expire after ttl.
func NewCachedQueryService(inner QueryService, size int, ttl time.Duration, logger *slog.Logger) *CachedQueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedQueryService{
		inner:  inner,
		cache:  expirable.NewLRU[string, strategy.ResultSet](size, nil, ttl),
		logger: logger,
	}
}

// ExecuteQuery serves from the cache when possible, falling through to the
// underlying store on miss. Failed queries are never cached.
func (c *CachedQueryService) ExecuteQuery(ctx context.Context, queryType strategy.QueryType, params map[string]any, user model.UserContext) (strategy.ResultSet, error) {
	key := cacheKey(queryType, params, user)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("graph query served from cache", "queryType", queryType.String())
		return cached, nil
	}

	result, err := c.inner.ExecuteQuery(ctx, queryType, params, user)
	if err != nil {
		return strategy.ResultSet{}, err
	}

	c.cache.Add(key, result)
	return result, nil
}

// Ping reports connectivity of the underlying store, if it supports it.
func (c *CachedQueryService) Ping(ctx context.Context) error {
	if pinger, ok := c.inner.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// cacheKey builds a stable key from the query type, parameters, and user.
// json.Marshal sorts map keys, so equal parameter maps produce equal keys.
func cacheKey(queryType strategy.QueryType, params map[string]any, user model.UserContext) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		// Unencodable parameters: fall back to a per-call unique key,
		// which simply disables caching for this query.
		encoded = []byte(fmt.Sprintf("%p-%d", &params, time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s|%s|%s", user.Email, queryType, encoded)
}

var _ QueryService = (*CachedQueryService)(nil)
