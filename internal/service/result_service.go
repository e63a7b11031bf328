package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/notify"
)

// Redis channel and stream names.
const (
	ChannelArbitrage = "arbitrage"
	StreamArbitrage  = "arbitrage:results"
	ChannelOracle    = "oracle"
	StreamOracle     = "oracle:updates"
	ChannelPrices    = "prices"
)

// sinkTimeout bounds each sink write. Sinks run on a context detached from
// shutdown so a result produced while stopping is still journaled.
const sinkTimeout = 10 * time.Second

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Sinks are the optional destinations for bot events. Nil fields are skipped.
type Sinks struct {
	Results  domain.ArbResultStore
	Updates  domain.OracleUpdateStore
	Archive  domain.ResultArchiver
	Bus      domain.EventBus
	Snapshot domain.SnapshotCache
	Alerts   Alerter
}

// Stats are the running counters of one process.
type Stats struct {
	Executed    int      `json:"executed"`
	Failed      int      `json:"failed"`
	LocalOnly   int      `json:"local_only"`
	TotalProfit *big.Int `json:"total_profit_quote"`
	LastResult  string   `json:"last_result_id,omitempty"`
}

// ResultService records arbitrage results. It keeps a bounded in-memory
// history and fans each result out to the configured sinks; sink failures
// are logged and never reach the engine.
type ResultService struct {
	sinks  Sinks
	keep   int
	logger *slog.Logger

	mu     sync.Mutex
	recent []domain.ArbitrageResult
	stats  Stats
}

// NewResultService creates a ResultService that keeps the last keep results
// in memory.
func NewResultService(sinks Sinks, keep int, logger *slog.Logger) *ResultService {
	if keep <= 0 {
		keep = 100
	}
	return &ResultService{
		sinks:  sinks,
		keep:   keep,
		logger: logger.With(slog.String("component", "result_service")),
		stats:  Stats{TotalProfit: new(big.Int)},
	}
}

// Record implements arbitrage.ResultRecorder.
func (s *ResultService) Record(ctx context.Context, result domain.ArbitrageResult) {
	s.remember(result)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if s.sinks.Results != nil {
		if err := s.sinks.Results.Create(ctx, result); err != nil {
			s.warn(ctx, "persist result", result.ID, err)
		}
	}
	if s.sinks.Archive != nil {
		if err := s.sinks.Archive.Archive(ctx, result); err != nil {
			s.warn(ctx, "archive result", result.ID, err)
		}
	}
	if s.sinks.Bus != nil {
		publish(ctx, s.sinks.Bus, ChannelArbitrage, StreamArbitrage, result, s.logger)
	}
	if s.sinks.Alerts != nil {
		title, msg := notify.FormatResult(result)
		if err := s.sinks.Alerts.Notify(ctx, notify.ResultEvent(result), title, msg); err != nil {
			s.warn(ctx, "notify result", result.ID, err)
		}
	}
}

// Recent returns up to limit results, newest first. The durable store is
// preferred; the in-memory history is used when it is absent or failing.
func (s *ResultService) Recent(ctx context.Context, limit int) []domain.ArbitrageResult {
	if limit <= 0 {
		limit = 20
	}
	if s.sinks.Results != nil {
		out, err := s.sinks.Results.ListRecent(ctx, limit)
		if err == nil {
			return out
		}
		s.logger.WarnContext(ctx, "list recent results failed, using memory",
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.recent))
	out := make([]domain.ArbitrageResult, 0, n)
	for i := len(s.recent) - 1; i >= len(s.recent)-n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Stats returns a copy of the running counters.
func (s *ResultService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.TotalProfit = new(big.Int).Set(s.stats.TotalProfit)
	return st
}

// Flush pushes buffered archive batches, if an archive is configured.
func (s *ResultService) Flush(ctx context.Context) error {
	if s.sinks.Archive == nil {
		return nil
	}
	return s.sinks.Archive.Flush(ctx)
}

func (s *ResultService) remember(r domain.ArbitrageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, r)
	if len(s.recent) > s.keep {
		s.recent = s.recent[len(s.recent)-s.keep:]
	}

	s.stats.LastResult = r.ID
	if !r.Success {
		s.stats.Failed++
		return
	}
	s.stats.Executed++
	if r.LocalOnly {
		s.stats.LocalOnly++
	}
	if r.ActualProfitQuote != nil {
		s.stats.TotalProfit.Add(s.stats.TotalProfit, r.ActualProfitQuote)
	}
}

func (s *ResultService) warn(ctx context.Context, op, id string, err error) {
	s.logger.WarnContext(ctx, op+" failed",
		slog.String("result_id", id),
		slog.String("error", err.Error()),
	)
}

// publish sends v on a pub/sub channel and appends it to a stream. Failures
// are logged only.
func publish(ctx context.Context, bus domain.EventBus, channel, stream string, v any, logger *slog.Logger) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.WarnContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, data); err != nil {
		logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, stream, data); err != nil {
		logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}
