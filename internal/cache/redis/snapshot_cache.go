package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache. The whole snapshot is kept
// as JSON at "snapshot:latest"; each chain's price is also written to a hash
// at "price:{chain}" with fields "price", "tick" and "ts" (Unix nanoseconds)
// so dashboards can read one chain without decoding the snapshot.
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. Entries expire after ttl so a
// stopped watcher does not leave a stale price behind; zero keeps them.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

// SetSnapshot stores snap and both chain prices in one pipeline.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}

	pipe := sc.c.rdb.TxPipeline()
	pipe.Set(ctx, sc.c.key("snapshot", "latest"), data, sc.ttl)
	for _, p := range []domain.ChainPrice{snap.ChainA, snap.ChainB} {
		key := sc.c.key("price", p.Chain)
		pipe.HSet(ctx, key, map[string]any{
			"price": p.Price.String(),
			"tick":  p.Tick,
			"ts":    p.Timestamp.UnixNano(),
		})
		if sc.ttl > 0 {
			pipe.Expire(ctx, key, sc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the last stored snapshot, or domain.ErrNotFound.
func (sc *SnapshotCache) LatestSnapshot(ctx context.Context) (domain.PriceSnapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.c.key("snapshot", "latest")).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}

	var snap domain.PriceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
