package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/pkg/config"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	dels int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	f.dels += len(keys)
	return nil
}

func (f *fakeStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			deleted++
		}
	}
	return deleted, nil
}

func newTestCache(store Store) *QueryCache {
	return New(store, config.RedisConfig{CacheTTL: time.Minute}, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(store)
	ctx := context.Background()

	resp := &retrieval.Response{Query: "white whale", Results: []retrieval.Result{{DocID: "moby-dick_1_0_aa11", Score: 0.9}}}
	c.Set(ctx, "white whale", "", 7, resp)

	got, ok := c.Get(ctx, "white whale", "", 7)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Results) != 1 || got.Results[0].DocID != "moby-dick_1_0_aa11" {
		t.Errorf("unexpected cached response: %+v", got)
	}
}

func TestGetDropsUndecodableEntry(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(store)
	ctx := context.Background()

	key := c.buildKey("white whale", "", 7)
	store.data[key] = "{not json"

	if _, ok := c.Get(ctx, "white whale", "", 7); ok {
		t.Fatal("expected miss for undecodable entry")
	}
	if store.dels != 1 {
		t.Fatalf("dels = %d, want 1 (entry should be dropped)", store.dels)
	}
	if _, exists := store.data[key]; exists {
		t.Error("undecodable entry still present after Get")
	}
}

func TestDegradedResponseNotCached(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(store)
	ctx := context.Background()

	c.Set(ctx, "white whale", "", 7, &retrieval.Response{Query: "white whale", Degraded: true})
	if len(store.data) != 0 {
		t.Errorf("degraded response was cached: %v", store.data)
	}
}

func TestGetOrComputeStoresResult(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(store)
	ctx := context.Background()

	calls := 0
	compute := func() (*retrieval.Response, error) {
		calls++
		return &retrieval.Response{Query: "woods"}, nil
	}

	resp, cached, err := c.GetOrCompute(ctx, "woods", "", 7, compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if cached || resp.Query != "woods" || calls != 1 {
		t.Fatalf("first call: cached=%v calls=%d", cached, calls)
	}

	_, cached, err = c.GetOrCompute(ctx, "woods", "", 7, compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if !cached || calls != 1 {
		t.Errorf("second call: cached=%v calls=%d, want hit without recompute", cached, calls)
	}
}

func TestInvalidateFlushesOnlyCacheKeys(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(store)
	ctx := context.Background()

	c.Set(ctx, "white whale", "", 7, &retrieval.Response{Query: "white whale"})
	store.data["other:key"] = "keep"

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, exists := store.data["other:key"]; !exists {
		t.Error("invalidate removed a key outside the cache prefix")
	}
	for k := range store.data {
		if strings.HasPrefix(k, keyPrefix) {
			t.Errorf("cache key %s survived invalidation", k)
		}
	}
}
