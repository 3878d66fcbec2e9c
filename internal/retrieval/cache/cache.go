// Package cache memoizes retrieve responses in Redis. Identical queries
// within the TTL share one computed result, and concurrent identical
// queries are collapsed to a single computation via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/pkg/config"
	"github.com/bookquest-ai/bookquest/pkg/metrics"
	pkgredis "github.com/bookquest-ai/bookquest/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "retrieve:"

// Store is the slice of the redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Store = (*pkgredis.Client)(nil)

type QueryCache struct {
	client  Store
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(client Store, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query, book string, limit int) (*retrieval.Response, bool) {
	key := c.buildKey(query, book, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp retrieval.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed, dropping entry", "key", key, "error", err)
		// Drop the undecodable entry so the next request recomputes instead
		// of hitting the same decode failure until TTL expiry.
		if delErr := c.client.Del(ctx, key); delErr != nil {
			c.logger.Error("cache delete failed", "key", key, "error", delErr)
		}
		c.miss()
		return nil, false
	}
	c.hit()
	return &resp, true
}

func (c *QueryCache) Set(ctx context.Context, query, book string, limit int, resp *retrieval.Response) {
	// Degraded responses are not cached: they reflect a transient backend
	// failure, and serving them for a full TTL would hide recovery.
	if resp.Degraded {
		return
	}
	key := c.buildKey(query, book, limit)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or computes and stores it. The
// bool reports whether the response came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query, book string,
	limit int,
	computeFn func() (*retrieval.Response, error),
) (*retrieval.Response, bool, error) {
	if resp, ok := c.Get(ctx, query, book, limit); ok {
		return resp, true, nil
	}
	key := c.buildKey(query, book, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, query, book, limit); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, book, limit, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*retrieval.Response), false, nil
}

// Invalidate drops every cached response. Called after a rebuild installs
// a new index snapshot, since prior rankings may no longer be valid.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating retrieve cache: %w", err)
	}
	c.logger.Info("retrieve cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) buildKey(query, book string, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	raw := fmt.Sprintf("%s|book=%s|limit=%d", normalized, book, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
