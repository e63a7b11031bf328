package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the latest price snapshot visible to other processes.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap PriceSnapshot) error
	LatestSnapshot(ctx context.Context) (PriceSnapshot, error)
}

// LockManager hands out short-lived distributed leases.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// StreamMessage is one entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus fans out bot events over pub/sub and keeps a bounded durable
// stream of them.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRevRange(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// RateLimiter caps how often an event keyed by key may happen.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
