package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "consol:snapshot:version"

// Cache keeps recently served snapshots in Redis so the read path stays hot
// between recalculations. A version counter is bumped on every upsert, which
// invalidates all cached entries without explicit deletes. Cache failures
// always degrade to the database read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ver, tenantID int64, month string) string {
	return fmt.Sprintf("consol:snapshot:v%d:%d:%s", ver, tenantID, month)
}

// Get returns a cached snapshot when present.
func (c *Cache) Get(ctx context.Context, tenantID int64, month string) (Snapshot, bool) {
	if c == nil || c.client == nil {
		return Snapshot{}, false
	}
	ver, err := c.version(ctx)
	if err != nil {
		return Snapshot{}, false
	}
	payload, err := c.client.Get(ctx, c.key(ver, tenantID, month)).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot under the current version.
func (c *Cache) Set(ctx context.Context, snap Snapshot) {
	if c == nil || c.client == nil {
		return
	}
	ver, err := c.version(ctx)
	if err != nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ver, snap.TenantID, snap.Month), payload, c.ttl).Err()
}

// Bump invalidates every cached snapshot by advancing the version counter.
func (c *Cache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, cacheVersionKey).Err()
}
