package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/notify"
)

// OracleService records oracle cycle outcomes and remembers the last update
// of every chain.
type OracleService struct {
	sinks  Sinks
	logger *slog.Logger

	mu       sync.Mutex
	latest   map[string]domain.OracleUpdate
	failures map[string]int
}

// NewOracleService creates an OracleService.
func NewOracleService(sinks Sinks, logger *slog.Logger) *OracleService {
	return &OracleService{
		sinks:    sinks,
		logger:   logger.With(slog.String("component", "oracle_service")),
		latest:   make(map[string]domain.OracleUpdate),
		failures: make(map[string]int),
	}
}

// RecordUpdate implements oracle.Recorder.
func (s *OracleService) RecordUpdate(ctx context.Context, u domain.OracleUpdate) {
	s.mu.Lock()
	s.latest[u.Chain] = u
	s.failures[u.Chain] = 0
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if s.sinks.Updates != nil {
		if err := s.sinks.Updates.Create(ctx, u); err != nil {
			s.logger.WarnContext(ctx, "persist oracle update failed",
				slog.String("chain", u.Chain),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.sinks.Bus != nil {
		publish(ctx, s.sinks.Bus, ChannelOracle, StreamOracle, u, s.logger)
	}
}

// RecordFailure implements oracle.Recorder.
func (s *OracleService) RecordFailure(ctx context.Context, chain string, err error) {
	s.mu.Lock()
	s.failures[chain]++
	s.mu.Unlock()

	if s.sinks.Alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	title, msg := notify.FormatOracleFailure(chain, err)
	if nerr := s.sinks.Alerts.Notify(ctx, notify.EventOracleFailed, title, msg); nerr != nil {
		s.logger.WarnContext(ctx, "notify oracle failure failed",
			slog.String("chain", chain),
			slog.String("error", nerr.Error()),
		)
	}
}

// Latest returns the last update of chain seen by this process, falling back
// to the durable store.
func (s *OracleService) Latest(ctx context.Context, chain string) (domain.OracleUpdate, error) {
	s.mu.Lock()
	u, ok := s.latest[chain]
	s.mu.Unlock()
	if ok {
		return u, nil
	}
	if s.sinks.Updates == nil {
		return domain.OracleUpdate{}, domain.ErrNotFound
	}
	u, err := s.sinks.Updates.LatestByChain(ctx, chain)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "load latest oracle update failed",
			slog.String("chain", chain),
			slog.String("error", err.Error()),
		)
	}
	return u, err
}

// ConsecutiveFailures reports failed cycles since the last success of chain.
func (s *OracleService) ConsecutiveFailures(chain string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[chain]
}
