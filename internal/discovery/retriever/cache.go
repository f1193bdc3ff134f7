package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"manifold/internal/discovery"
	"manifold/internal/observability"
)

// CachedRetriever wraps a Retriever with an optional Redis-backed
// second-level cache in front of SearchSemantic, the leg most worth caching
// since it is the only one that calls out to an embedding model. Cache
// misses and Redis outages both fall through to the underlying Retriever;
// caching is purely an optimization, never a correctness dependency.
type CachedRetriever struct {
	Retriever
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRetriever wraps next with a Redis cache at addr. A zero or
// negative ttl defaults to 5 minutes.
func NewCachedRetriever(next Retriever, addr string, ttl time.Duration) *CachedRetriever {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRetriever{
		Retriever: next,
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:       ttl,
	}
}

func (c *CachedRetriever) SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error) {
	key := cacheKey(query, maxResults, minSimilarity)
	if cached, ok := c.readCache(ctx, key); ok {
		return cached, nil
	}

	matches, err := c.Retriever.SearchSemantic(ctx, query, maxResults, minSimilarity)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, matches)
	return matches, nil
}

func (c *CachedRetriever) readCache(ctx context.Context, key string) ([]discovery.ProfileMatch, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("semantic cache read")
		return nil, false
	}
	var matches []discovery.ProfileMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("semantic cache decode")
		return nil, false
	}
	return matches, true
}

func (c *CachedRetriever) writeCache(ctx context.Context, key string, matches []discovery.ProfileMatch) {
	body, err := json.Marshal(matches)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("semantic cache write")
	}
}

func cacheKey(query string, maxResults int, minSimilarity float64) string {
	return fmt.Sprintf("discovery:semantic:%s:%d:%.3f", query, maxResults, minSimilarity)
}

// Close releases the underlying Redis client.
func (c *CachedRetriever) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
