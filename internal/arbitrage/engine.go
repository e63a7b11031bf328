// Package arbitrage turns price discrepancies into executed strategies. The
// Engine owns the cooldown and concurrency gates; execution itself is
// delegated to a session Executor.
package arbitrage

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// Executor runs a strategy to completion inside a settlement session.
type Executor interface {
	ExecuteArbitrage(ctx context.Context, strategy domain.ArbitrageStrategy) (domain.SessionResult, error)
}

// ResultRecorder receives every result the engine produces. Record runs on its
// own goroutine after the concurrency slot is released.
type ResultRecorder interface {
	Record(ctx context.Context, result domain.ArbitrageResult)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder attaches a sink for results.
func WithRecorder(r ResultRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithDecimals sets the base and quote asset decimals (default 18 and 6).
func WithDecimals(base, quote int32) Option {
	return func(e *Engine) {
		e.baseDecimals = base
		e.quoteDecimals = quote
	}
}

// WithBackend labels results with the session backend kind.
func WithBackend(kind string) Option {
	return func(e *Engine) { e.backend = kind }
}

// Engine gates discrepancies and executes the ones that pass.
type Engine struct {
	risk          domain.RiskConfig
	exec          Executor
	recorder      ResultRecorder
	baseDecimals  int32
	quoteDecimals int32
	backend       string
	now           func() time.Time
	logger        *slog.Logger

	mu            sync.Mutex
	active        int
	lastExecution time.Time

	pending sync.WaitGroup
}

// NewEngine creates an Engine with the given risk limits.
func NewEngine(risk domain.RiskConfig, exec Executor, logger *slog.Logger, opts ...Option) *Engine {
	if risk.MaxConcurrentSessions <= 0 {
		risk.MaxConcurrentSessions = 1
	}
	e := &Engine{
		risk:          risk,
		exec:          exec,
		baseDecimals:  18,
		quoteDecimals: 6,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "arbitrage_engine")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ActiveSessionCount returns the number of executions in flight.
func (e *Engine) ActiveSessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// HandleDiscrepancy applies the cooldown, concurrency, and profit gates and
// executes the derived strategy. It returns nil when the discrepancy was
// skipped. Execution failures come back as a result with Success false.
func (e *Engine) HandleDiscrepancy(ctx context.Context, d domain.PriceDiscrepancy) *domain.ArbitrageResult {
	strategy, ok := e.admit(ctx, d)
	if !ok {
		return nil
	}

	result := func() *domain.ArbitrageResult {
		defer e.release()
		return e.execute(ctx, strategy)
	}()

	if e.recorder != nil {
		r := *result
		e.pending.Add(1)
		go func() {
			defer e.pending.Done()
			e.recorder.Record(context.WithoutCancel(ctx), r)
		}()
	}
	return result
}

// Wait blocks until every result handed to the recorder has been recorded.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// execute runs strategy and turns the outcome into a result. The caller holds
// a concurrency slot.
func (e *Engine) execute(ctx context.Context, strategy domain.ArbitrageStrategy) *domain.ArbitrageResult {
	started := e.now()
	e.logger.InfoContext(ctx, "executing strategy",
		slog.String("strategy_id", strategy.ID),
		slog.String("direction", string(strategy.Direction)),
		slog.String("amount_base", strategy.AmountBase.String()),
		slog.String("expected_profit", strategy.ExpectedProfitQuote.String()),
		slog.String("spread_bps", strategy.SpreadBps.StringFixed(2)),
	)

	res, err := e.exec.ExecuteArbitrage(ctx, strategy)
	result := &domain.ArbitrageResult{
		ID:          uuid.NewString(),
		Strategy:    strategy,
		Backend:     e.backend,
		StartedAt:   started,
		CompletedAt: e.now(),
	}
	if err != nil {
		result.Error = err.Error()
		e.logger.ErrorContext(ctx, "strategy execution failed",
			slog.String("strategy_id", strategy.ID),
			slog.String("error", err.Error()),
		)
	} else {
		result.Success = true
		result.SessionID = res.SessionID
		result.ActualProfitQuote = res.NetProfitQuote
		result.OrdersExecuted = len(res.Orders)
		result.LocalOnly = res.LocalOnly
		e.logger.InfoContext(ctx, "strategy executed",
			slog.String("strategy_id", strategy.ID),
			slog.String("session_id", res.SessionID),
			slog.String("profit", res.NetProfitQuote.String()),
			slog.Bool("local_only", res.LocalOnly),
		)
		if res.LocalOnly {
			e.logger.WarnContext(ctx, "strategy settled in a local-only session",
				slog.String("session_id", res.SessionID),
			)
		}
	}

	return result
}

// admit runs every gate and, when all pass, takes a concurrency slot and
// stamps the execution time in the same critical section.
func (e *Engine) admit(ctx context.Context, d domain.PriceDiscrepancy) (domain.ArbitrageStrategy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !e.lastExecution.IsZero() && now.Sub(e.lastExecution) < e.risk.Cooldown {
		e.logger.InfoContext(ctx, "skipping discrepancy: cooldown active",
			slog.Duration("remaining", e.risk.Cooldown-now.Sub(e.lastExecution)),
		)
		return domain.ArbitrageStrategy{}, false
	}
	if e.active >= e.risk.MaxConcurrentSessions {
		e.logger.InfoContext(ctx, "skipping discrepancy: concurrency limit reached",
			slog.Int("active", e.active),
			slog.Int("max", e.risk.MaxConcurrentSessions),
		)
		return domain.ArbitrageStrategy{}, false
	}

	strategy, ok := e.derive(d, now)
	if !ok {
		e.logger.InfoContext(ctx, "skipping discrepancy: no edge after chain assignment",
			slog.String("direction", string(d.Direction)),
		)
		return domain.ArbitrageStrategy{}, false
	}
	if e.risk.MinProfit != nil && strategy.ExpectedProfitQuote.Cmp(e.risk.MinProfit) < 0 {
		e.logger.WarnContext(ctx, "skipping discrepancy: expected profit below minimum",
			slog.String("expected_profit", strategy.ExpectedProfitQuote.String()),
			slog.String("min_profit", e.risk.MinProfit.String()),
		)
		return domain.ArbitrageStrategy{}, false
	}

	e.active++
	e.lastExecution = now
	return strategy, true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
}

// DeriveStrategy builds the strategy for d without touching any gate. ok is
// false when selling the dearer side would not gain anything.
func (e *Engine) DeriveStrategy(d domain.PriceDiscrepancy) (domain.ArbitrageStrategy, bool) {
	return e.derive(d, e.now())
}

func (e *Engine) derive(d domain.PriceDiscrepancy, now time.Time) (domain.ArbitrageStrategy, bool) {
	a, b := d.Snapshot.ChainA, d.Snapshot.ChainB
	s := domain.ArbitrageStrategy{
		ID:            uuid.NewString(),
		SpreadBps:     d.Snapshot.SpreadBps,
		BaseDecimals:  e.baseDecimals,
		QuoteDecimals: e.quoteDecimals,
		DetectedAt:    d.Timestamp,
		CreatedAt:     now,
	}
	if d.Direction == domain.DirectionACheaper {
		s.Direction = domain.BuyASellB
		s.BuyChain, s.SellChain = chainName(a, "A"), chainName(b, "B")
		s.BuyPrice, s.SellPrice = a.Price, b.Price
	} else {
		s.Direction = domain.BuyBSellA
		s.BuyChain, s.SellChain = chainName(b, "B"), chainName(a, "A")
		s.BuyPrice, s.SellPrice = b.Price, a.Price
	}

	diff := s.SellPrice.Sub(s.BuyPrice)
	if !diff.IsPositive() {
		return domain.ArbitrageStrategy{}, false
	}
	scaledBuy := s.BuyPrice.Shift(e.quoteDecimals).Round(0).BigInt()
	if scaledBuy.Sign() <= 0 {
		return domain.ArbitrageStrategy{}, false
	}

	maxTrade := e.risk.MaxTradeAmount
	if maxTrade == nil {
		maxTrade = new(big.Int)
	}
	baseScale := pow10(e.baseDecimals)
	amount := new(big.Int).Mul(maxTrade, baseScale)
	amount.Quo(amount, scaledBuy)

	profit := new(big.Int).Mul(amount, diff.Shift(e.quoteDecimals).Round(0).BigInt())
	profit.Quo(profit, baseScale)

	s.AmountBase = amount
	s.ExpectedProfitQuote = profit
	return s, true
}

func chainName(p domain.ChainPrice, fallback string) string {
	if p.Chain != "" {
		return p.Chain
	}
	return fallback
}

func pow10(n int32) *big.Int {
	return decimal.New(1, n).BigInt()
}
