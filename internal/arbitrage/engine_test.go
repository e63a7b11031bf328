package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func risk() domain.RiskConfig {
	return domain.RiskConfig{
		MaxTradeAmount:        big.NewInt(100_000_000), // 100 USDC
		MinProfit:             big.NewInt(1_000_000),   // 1 USDC
		MaxConcurrentSessions: 1,
		Cooldown:              10 * time.Second,
	}
}

func discrepancy(priceA, priceB string) domain.PriceDiscrepancy {
	a := decimal.RequireFromString(priceA)
	b := decimal.RequireFromString(priceB)
	dir := domain.DirectionACheaper
	if b.LessThan(a) {
		dir = domain.DirectionBCheaper
	}
	avg := a.Add(b).Div(decimal.NewFromInt(2))
	return domain.PriceDiscrepancy{
		Snapshot: domain.PriceSnapshot{
			ChainA:    domain.ChainPrice{Chain: "chain-a", Price: a},
			ChainB:    domain.ChainPrice{Chain: "chain-b", Price: b},
			SpreadBps: a.Sub(b).Abs().Div(avg).Mul(decimal.NewFromInt(10_000)),
		},
		Direction: dir,
	}
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeExecutor) ExecuteArbitrage(ctx context.Context, s domain.ArbitrageStrategy) (domain.SessionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.SessionResult{}, f.err
	}
	return domain.SessionResult{
		SessionID:      "sim-session-1",
		Orders:         make([]domain.TradeResult, 2),
		NetProfitQuote: s.ExpectedProfitQuote,
	}, nil
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu      sync.Mutex
	results []domain.ArbitrageResult
	block   chan struct{}
}

func (r *recorder) Record(_ context.Context, res domain.ArbitrageResult) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) recorded() []domain.ArbitrageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ArbitrageResult(nil), r.results...)
}

func TestDirectionFollowsCheaperChain(t *testing.T) {
	e := NewEngine(risk(), &fakeExecutor{}, quietLogger())

	s, ok := e.DeriveStrategy(discrepancy("0.95", "1.05"))
	if !ok {
		t.Fatalf("expected strategy")
	}
	if s.Direction != domain.BuyASellB || s.BuyChain != "chain-a" || s.SellChain != "chain-b" {
		t.Fatalf("A cheaper: %s buy=%s sell=%s", s.Direction, s.BuyChain, s.SellChain)
	}

	s, ok = e.DeriveStrategy(discrepancy("1.05", "0.95"))
	if !ok {
		t.Fatalf("expected strategy")
	}
	if s.Direction != domain.BuyBSellA || s.BuyChain != "chain-b" || s.SellChain != "chain-a" {
		t.Fatalf("B cheaper: %s buy=%s sell=%s", s.Direction, s.BuyChain, s.SellChain)
	}
}

func TestStrategySizing(t *testing.T) {
	e := NewEngine(risk(), &fakeExecutor{}, quietLogger())

	tests := []struct {
		name   string
		a, b   string
		amount string
		profit int64
	}{
		// 1e8 * 1e18 / 950000 and amount * 100000 / 1e18
		{"five percent edge", "0.95", "1.05", "105263157894736842105", 10_526_315},
		// 1e8 * 1e18 / 900000 and amount * 200000 / 1e18
		{"ten percent edge", "0.90", "1.10", "111111111111111111111", 22_222_222},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := e.DeriveStrategy(discrepancy(tt.a, tt.b))
			if !ok {
				t.Fatalf("expected strategy")
			}
			want, _ := new(big.Int).SetString(tt.amount, 10)
			if s.AmountBase.Cmp(want) != 0 {
				t.Fatalf("amount = %s, want %s", s.AmountBase, want)
			}
			if s.ExpectedProfitQuote.Cmp(big.NewInt(tt.profit)) != 0 {
				t.Fatalf("profit = %s, want %d", s.ExpectedProfitQuote, tt.profit)
			}
		})
	}
}

func TestNoEdgeAfterAssignment(t *testing.T) {
	e := NewEngine(risk(), &fakeExecutor{}, quietLogger())
	d := discrepancy("1.00", "1.00")
	if _, ok := e.DeriveStrategy(d); ok {
		t.Fatalf("equal prices produced a strategy")
	}
	// Direction disagreeing with the prices leaves no edge either.
	d = discrepancy("0.95", "1.05")
	d.Direction = domain.DirectionBCheaper
	if _, ok := e.DeriveStrategy(d); ok {
		t.Fatalf("inverted direction produced a strategy")
	}
}

func TestMinProfitSkipsExecution(t *testing.T) {
	r := risk()
	r.MinProfit = big.NewInt(1_000_000_000) // unreachable with a 100 USDC trade
	exec := &fakeExecutor{}
	e := NewEngine(r, exec, quietLogger())

	if res := e.HandleDiscrepancy(context.Background(), discrepancy("0.95", "1.05")); res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if exec.Calls() != 0 {
		t.Fatalf("executor called %d times", exec.Calls())
	}
}

func TestCooldownAllowsOneOfTwo(t *testing.T) {
	exec := &fakeExecutor{}
	rec := &recorder{}
	e := NewEngine(risk(), exec, quietLogger(), WithRecorder(rec), WithBackend("simulated"))
	ctx := context.Background()

	first := e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05"))
	second := e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05"))
	if first == nil || !first.Success {
		t.Fatalf("first = %+v, want success", first)
	}
	if second != nil {
		t.Fatalf("second = %+v, want nil during cooldown", second)
	}
	if exec.Calls() != 1 {
		t.Fatalf("executor calls = %d", exec.Calls())
	}
	e.Wait()
	if got := rec.recorded(); len(got) != 1 || got[0].Backend != "simulated" || got[0].OrdersExecuted != 2 {
		t.Fatalf("recorded = %+v", got)
	}
}

func TestSlowRecorderDoesNotHoldSlot(t *testing.T) {
	r := risk()
	r.Cooldown = 0
	rec := &recorder{block: make(chan struct{})}
	e := NewEngine(r, &fakeExecutor{}, quietLogger(), WithRecorder(rec))
	ctx := context.Background()

	done := make(chan *domain.ArbitrageResult, 1)
	go func() { done <- e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) }()

	select {
	case res := <-done:
		if res == nil || !res.Success {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("HandleDiscrepancy blocked on the recorder")
	}
	if n := e.ActiveSessionCount(); n != 0 {
		t.Fatalf("active = %d while recording", n)
	}
	if e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) == nil {
		t.Fatalf("second execution refused while first was recording")
	}

	close(rec.block)
	e.Wait()
	if got := rec.recorded(); len(got) != 2 {
		t.Fatalf("recorded %d results, want 2", len(got))
	}
}

func TestCooldownExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exec := &fakeExecutor{}
	e := NewEngine(risk(), exec, quietLogger(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) == nil {
		t.Fatalf("first execution skipped")
	}
	now = now.Add(9 * time.Second)
	if e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) != nil {
		t.Fatalf("executed inside cooldown")
	}
	now = now.Add(time.Second)
	if e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) == nil {
		t.Fatalf("skipped after cooldown elapsed")
	}
}

func TestFailureDoesNotLeakSlot(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("session: sell order: rejected")}
	e := NewEngine(risk(), exec, quietLogger())

	if e.ActiveSessionCount() != 0 {
		t.Fatalf("initial count = %d", e.ActiveSessionCount())
	}
	res := e.HandleDiscrepancy(context.Background(), discrepancy("0.95", "1.05"))
	if res == nil || res.Success || res.Error == "" {
		t.Fatalf("result = %+v, want failure", res)
	}
	if e.ActiveSessionCount() != 0 {
		t.Fatalf("count after failure = %d", e.ActiveSessionCount())
	}
}

func TestConcurrencyCapIsAtomic(t *testing.T) {
	r := risk()
	r.Cooldown = 0
	exec := &fakeExecutor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	e := NewEngine(r, exec, quietLogger())
	ctx := context.Background()

	done := make(chan *domain.ArbitrageResult)
	go func() { done <- e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")) }()
	<-exec.started

	if e.ActiveSessionCount() != 1 {
		t.Fatalf("active = %d during execution", e.ActiveSessionCount())
	}
	if res := e.HandleDiscrepancy(ctx, discrepancy("0.95", "1.05")); res != nil {
		t.Fatalf("second execution admitted past the cap")
	}

	close(exec.block)
	if res := <-done; res == nil || !res.Success {
		t.Fatalf("first result = %+v", res)
	}
	if e.ActiveSessionCount() != 0 {
		t.Fatalf("active = %d after completion", e.ActiveSessionCount())
	}
}
