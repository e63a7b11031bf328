// Package watcher polls both chains for their pool price and raises a
// discrepancy when the spread between them crosses a threshold.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// PriceSource reads one chain's current price.
type PriceSource interface {
	ReadPrice(ctx context.Context, chain domain.ChainConfig) (domain.ChainPrice, error)
}

// SnapshotSink receives every applied snapshot.
type SnapshotSink interface {
	SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error
}

// Listener is called synchronously for each discrepancy.
type Listener func(ctx context.Context, d domain.PriceDiscrepancy)

// Config holds the chains to compare and the polling parameters.
type Config struct {
	ChainA       domain.ChainConfig
	ChainB       domain.ChainConfig
	PollInterval time.Duration
	ThresholdBps decimal.Decimal
}

var bpsScale = decimal.NewFromInt(10_000)

// Watcher polls on a ticker from a single goroutine, so polls never overlap.
type Watcher struct {
	cfg    Config
	source PriceSource
	sink   SnapshotSink
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	listeners []Listener
	latest    *domain.PriceSnapshot
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSink forwards applied snapshots to sink.
func WithSink(sink SnapshotSink) Option {
	return func(w *Watcher) { w.sink = sink }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New creates a stopped Watcher.
func New(cfg Config, source PriceSource, logger *slog.Logger, opts ...Option) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	w := &Watcher{
		cfg:    cfg,
		source: source,
		now:    time.Now,
		logger: logger.With(slog.String("component", "price_watcher")),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// OnDiscrepancy registers a listener.
func (w *Watcher) OnDiscrepancy(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// LatestSnapshot returns the most recent applied snapshot.
func (w *Watcher) LatestSnapshot() (domain.PriceSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest == nil {
		return domain.PriceSnapshot{}, false
	}
	return *w.latest, true
}

// Start polls immediately and then on every interval until Stop. Polls run on
// ctx; Stop does not cancel a poll already in flight. Calling Start on a
// running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop, w.done = stop, done
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "watcher started",
		slog.String("chain_a", w.cfg.ChainA.Name),
		slog.String("chain_b", w.cfg.ChainB.Name),
		slog.Duration("interval", w.cfg.PollInterval),
		slog.String("threshold_bps", w.cfg.ThresholdBps.String()),
	)

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		for {
			w.poll(ctx, stop)
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts future polls and waits for the polling goroutine to exit. A poll
// in flight completes, but its result is not applied.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	w.logger.Info("watcher stopped")
}

// Poll runs a single cycle and returns its error, if any.
func (w *Watcher) Poll(ctx context.Context) error {
	return w.pollOnce(ctx, nil)
}

func (w *Watcher) poll(ctx context.Context, stop <-chan struct{}) {
	if err := w.pollOnce(ctx, stop); err != nil {
		w.logger.WarnContext(ctx, "poll failed", slog.String("error", err.Error()))
	}
}

func (w *Watcher) pollOnce(ctx context.Context, stop <-chan struct{}) error {
	var a, b domain.ChainPrice
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = w.source.ReadPrice(gctx, w.cfg.ChainA)
		if err != nil {
			return fmt.Errorf("watcher: read %s: %w", w.cfg.ChainA.Name, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		b, err = w.source.ReadPrice(gctx, w.cfg.ChainB)
		if err != nil {
			return fmt.Errorf("watcher: read %s: %w", w.cfg.ChainB.Name, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	snap := domain.PriceSnapshot{
		ChainA:    a,
		ChainB:    b,
		SpreadBps: SpreadBps(a.Price, b.Price),
		Timestamp: w.now(),
	}

	if stopped(stop) {
		w.logger.InfoContext(ctx, "discarding snapshot read after stop",
			slog.String("spread_bps", snap.SpreadBps.StringFixed(2)),
		)
		return nil
	}

	w.mu.Lock()
	w.latest = &snap
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	w.logger.DebugContext(ctx, "prices polled",
		slog.String("price_a", a.Price.String()),
		slog.String("price_b", b.Price.String()),
		slog.String("spread_bps", snap.SpreadBps.StringFixed(2)),
	)

	if w.sink != nil {
		if err := w.sink.SetSnapshot(ctx, snap); err != nil {
			w.logger.WarnContext(ctx, "snapshot sink failed", slog.String("error", err.Error()))
		}
	}

	if snap.SpreadBps.LessThan(w.cfg.ThresholdBps) {
		return nil
	}

	dir := domain.DirectionBCheaper
	if a.Price.LessThan(b.Price) {
		dir = domain.DirectionACheaper
	}
	d := domain.PriceDiscrepancy{Snapshot: snap, Direction: dir, Timestamp: snap.Timestamp}
	w.logger.InfoContext(ctx, "price discrepancy detected",
		slog.String("direction", string(dir)),
		slog.String("spread_bps", snap.SpreadBps.StringFixed(2)),
	)
	for _, l := range listeners {
		l(ctx, d)
	}
	return nil
}

// SpreadBps returns |a-b| / ((a+b)/2) * 10000, or zero when the average is
// not positive.
func SpreadBps(a, b decimal.Decimal) decimal.Decimal {
	avg := a.Add(b).Div(decimal.NewFromInt(2))
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(avg).Mul(bpsScale)
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
