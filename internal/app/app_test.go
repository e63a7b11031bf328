package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/ghostyield/internal/config"
	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/notify"
	"github.com/alanyoungcy/ghostyield/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSender struct{}

func (stubSender) Name() string { return "stub" }

func (stubSender) Send(context.Context, string, string) error { return nil }

func TestSinksAlertsOnlyWhenNotifierEnabled(t *testing.T) {
	deps := &Dependencies{Notifier: notify.NewNotifier(nil, nil, quietLogger())}
	if deps.Sinks().Alerts != nil {
		t.Fatalf("alerts wired without senders")
	}

	deps.Notifier = notify.NewNotifier([]notify.Sender{stubSender{}}, nil, quietLogger())
	if deps.Sinks().Alerts == nil {
		t.Fatalf("alerts not wired")
	}
}

type memCache struct {
	snap domain.PriceSnapshot
	ok   bool
}

func (c *memCache) SetSnapshot(_ context.Context, s domain.PriceSnapshot) error {
	c.snap, c.ok = s, true
	return nil
}

func (c *memCache) LatestSnapshot(context.Context) (domain.PriceSnapshot, error) {
	if !c.ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return c.snap, nil
}

func TestRuntimeWithoutArbitrage(t *testing.T) {
	cache := &memCache{}
	logger := quietLogger()
	rt := &runtime{
		prices:  service.NewPriceService(cache, nil, logger),
		results: service.NewResultService(service.Sinks{}, 10, logger),
		oracle:  service.NewOracleService(service.Sinks{}, logger),
		chains:  []string{"base-sepolia"},
	}
	ctx := context.Background()

	if got := rt.ActiveSessions(); got != nil {
		t.Fatalf("sessions = %v", got)
	}
	if _, err := rt.LatestSnapshot(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}

	_ = cache.SetSnapshot(ctx, domain.PriceSnapshot{ChainA: domain.ChainPrice{Chain: "a"}})
	snap, err := rt.LatestSnapshot(ctx)
	if err != nil || snap.ChainA.Chain != "a" {
		t.Fatalf("snapshot = %+v, %v", snap, err)
	}

	rt.oracle.RecordFailure(ctx, "base-sepolia", errors.New("rpc down"))
	if got := rt.OracleFailures("base-sepolia"); got != 1 {
		t.Fatalf("failures = %d", got)
	}
	if got := rt.OracleChains(); len(got) != 1 {
		t.Fatalf("chains = %v", got)
	}
}

func TestCloseRunsInReverseOnce(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, quietLogger())

	var order []int
	a.closers = append(a.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })
	a.Close()
	a.Close()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("order = %v", order)
	}
}
