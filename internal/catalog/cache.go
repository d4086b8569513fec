package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/soundmint-backend/pkg/redis"
)

// SnapshotCache stores the latest snapshot. Get reports false when nothing
// has been stored yet.
type SnapshotCache interface {
	Get(ctx context.Context) (Snapshot, bool, error)
	Put(ctx context.Context, snap Snapshot) error
}

// MemoryCache keeps the snapshot in process.
type MemoryCache struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(context.Context) (Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false, nil
	}
	return *c.snap, true, nil
}

func (c *MemoryCache) Put(_ context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = &snap
	return nil
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CatalogKey(name string) string
}

const snapshotKeyName = "snapshot"

// RedisCache shares snapshots between the API and the catalog worker. The
// retention outlives freshness so a stale snapshot stays available as a
// fallback while the chain is unreachable.
type RedisCache struct {
	store     redisStore
	retention time.Duration
}

func NewRedisCache(store redisStore, retention time.Duration) (*RedisCache, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("cache retention must be positive")
	}
	return &RedisCache{store: store, retention: retention}, nil
}

func (c *RedisCache) Get(ctx context.Context) (Snapshot, bool, error) {
	raw, err := c.store.Get(ctx, c.store.CatalogKey(snapshotKeyName))
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read catalog snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode catalog snapshot: %w", err)
	}
	return snap, true, nil
}

func (c *RedisCache) Put(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	if err := c.store.Set(ctx, c.store.CatalogKey(snapshotKeyName), payload, c.retention); err != nil {
		return fmt.Errorf("store catalog snapshot: %w", err)
	}
	return nil
}
