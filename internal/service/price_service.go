package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// PriceService is the watcher's snapshot sink: it caches the latest snapshot
// and publishes it for live listeners.
type PriceService struct {
	cache  domain.SnapshotCache
	bus    domain.EventBus
	logger *slog.Logger
}

// NewPriceService creates a PriceService. Either dependency may be nil.
func NewPriceService(cache domain.SnapshotCache, bus domain.EventBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// SetSnapshot caches snap and publishes it on the prices channel. Only a
// cache failure is returned; publish failures are logged.
func (s *PriceService) SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("price_service: cache snapshot: %w", err)
		}
	}
	if s.bus != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("price_service: marshal snapshot: %w", err)
		}
		if err := s.bus.Publish(ctx, ChannelPrices, data); err != nil {
			s.logger.WarnContext(ctx, "publish snapshot failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// LatestSnapshot returns the cached snapshot, or domain.ErrNotFound when no
// cache is configured.
func (s *PriceService) LatestSnapshot(ctx context.Context) (domain.PriceSnapshot, error) {
	if s.cache == nil {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return s.cache.LatestSnapshot(ctx)
}
