package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/flowdeck/flowdeck/backend/go-services/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// SummaryCache stores payload-free diagram projections in Redis. The
// version is part of the key, so a stale entry can never be served for a
// newer version; old entries simply age out via TTL.
type SummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSummaryCache creates a cache with the given key prefix (defaults to
// "diagram:summary:") and entry TTL (defaults to 10 minutes).
func NewSummaryCache(client *redis.Client, prefix string, ttl time.Duration) *SummaryCache {
	if prefix == "" {
		prefix = "diagram:summary:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SummaryCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *SummaryCache) key(id string, version int64) string {
	return c.prefix + id + ":" + Fingerprint(id, version)
}

// Get returns the cached summary for (id, version), or nil on a miss.
// Redis errors degrade to a miss; the store stays authoritative.
func (c *SummaryCache) Get(ctx context.Context, id string, version int64) (*diagram.Summary, error) {
	b, err := c.client.Get(ctx, c.key(id, version)).Bytes()
	if err != nil {
		metrics.SummaryCacheHits.WithLabelValues("miss").Inc()
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s diagram.Summary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	metrics.SummaryCacheHits.WithLabelValues("hit").Inc()
	return &s, nil
}

// Put stores a summary under its version-qualified key.
func (c *SummaryCache) Put(ctx context.Context, s diagram.Summary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(s.ID, s.Version), b, c.ttl).Err()
}
