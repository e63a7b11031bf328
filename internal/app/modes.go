package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ghostyield/internal/arbitrage"
	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/oracle"
	"github.com/alanyoungcy/ghostyield/internal/server"
	"github.com/alanyoungcy/ghostyield/internal/server/handler"
	"github.com/alanyoungcy/ghostyield/internal/server/ws"
	"github.com/alanyoungcy/ghostyield/internal/service"
	"github.com/alanyoungcy/ghostyield/internal/session"
	"github.com/alanyoungcy/ghostyield/internal/watcher"
)

// shutdownTimeout bounds the final archive flush and HTTP drain.
const shutdownTimeout = 10 * time.Second

// runtime is the live state the status API reads. Fields for components
// the mode does not run stay nil.
type runtime struct {
	backend session.Kind
	manager *session.Manager
	watcher *watcher.Watcher
	prices  *service.PriceService
	results *service.ResultService
	oracle  *service.OracleService
	chains  []string
}

func (rt *runtime) ActiveSessions() []domain.SessionInfo {
	if rt.manager == nil {
		return nil
	}
	return rt.manager.ActiveSessions()
}

// LatestSnapshot prefers the in-process watcher and falls back to the shared
// cache, which an oracle-only process can still read.
func (rt *runtime) LatestSnapshot(ctx context.Context) (domain.PriceSnapshot, error) {
	if rt.watcher != nil {
		if snap, ok := rt.watcher.LatestSnapshot(); ok {
			return snap, nil
		}
	}
	return rt.prices.LatestSnapshot(ctx)
}

func (rt *runtime) Stats() service.Stats {
	return rt.results.Stats()
}

func (rt *runtime) OracleChains() []string {
	return rt.chains
}

func (rt *runtime) OracleLatest(ctx context.Context, chain string) (domain.OracleUpdate, error) {
	return rt.oracle.Latest(ctx, chain)
}

func (rt *runtime) OracleFailures(chain string) int {
	return rt.oracle.ConsecutiveFailures(chain)
}

// serve starts every component the mode enables inside one errgroup and
// blocks until ctx is cancelled or a component fails.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	sinks := deps.Sinks()
	rt := &runtime{
		prices:  service.NewPriceService(sinks.Snapshot, sinks.Bus, a.logger),
		results: service.NewResultService(sinks, 200, a.logger),
		oracle:  service.NewOracleService(sinks, a.logger),
	}

	// The oracle goes first: it is the only start step that can fail.
	if a.cfg.RunsOracle() {
		if err := a.startOracle(ctx, g, deps, rt); err != nil {
			return err
		}
	}
	if a.cfg.RunsArbitrage() {
		a.startArbitrage(ctx, g, deps, rt)
	}
	if deps.Archiver != nil {
		a.startArchiveFlush(ctx, g, rt)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, rt)
	}

	err := g.Wait()

	// Every loop has exited, so the last results are buffered by now.
	if deps.Archiver != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if ferr := rt.results.Flush(flushCtx); ferr != nil {
			a.logger.Warn("final archive flush failed", slog.String("error", ferr.Error()))
		}
	}
	return err
}

// startArbitrage runs the watcher feeding the engine. Polls run on a context
// detached from shutdown so an execution in flight completes; shutdown only
// stops future polls.
func (a *App) startArbitrage(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	backend := session.NewBackend(a.cfg.Backend(), nil, a.logger)
	a.closers = append(a.closers, func() {
		if err := backend.Close(); err != nil {
			a.logger.Warn("close session backend failed", slog.String("error", err.Error()))
		}
	})
	if backend.Downgraded {
		a.logger.WarnContext(ctx, "arbitrage runs on simulated sessions",
			slog.String("reason", backend.Reason),
		)
	}

	manager := session.NewManager(backend.Session, a.cfg.Arbitrage.Token, a.logger)
	engine := arbitrage.NewEngine(a.cfg.Risk(), manager, a.logger,
		arbitrage.WithRecorder(rt.results),
		arbitrage.WithDecimals(int32(a.cfg.ChainA.BaseDecimals), int32(a.cfg.ChainA.QuoteDecimals)),
		arbitrage.WithBackend(string(backend.Kind)),
	)

	w := watcher.New(a.cfg.WatcherConfig(), deps.PriceReader, a.logger, watcher.WithSink(rt.prices))
	w.OnDiscrepancy(func(ctx context.Context, d domain.PriceDiscrepancy) {
		engine.HandleDiscrepancy(ctx, d)
	})

	rt.backend = backend.Kind
	rt.manager = manager
	rt.watcher = w

	w.Start(context.WithoutCancel(ctx))
	g.Go(func() error {
		<-ctx.Done()
		w.Stop()
		engine.Wait()
		return nil
	})
}

// startOracle runs one update loop per configured chain.
func (a *App) startOracle(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) error {
	key, err := crypto.ResolveKey(a.cfg.OracleKey())
	if err != nil {
		return fmt.Errorf("app: oracle key: %w", err)
	}

	chains := a.cfg.OracleChains()
	for _, c := range chains {
		rt.chains = append(rt.chains, c.Name)
	}

	u := oracle.New(chains, key, deps.OracleClient, oracle.Options{
		Retry:    a.cfg.RetryOptions(),
		Locker:   deps.LockManager,
		LockTTL:  a.cfg.Oracle.LockTTL.Duration,
		Recorder: rt.oracle,
	}, a.logger)
	if err := u.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("app: start oracle updater: %w", err)
	}

	g.Go(func() error {
		<-ctx.Done()
		u.Stop()
		u.Wait()
		return nil
	})
	return nil
}

// startArchiveFlush uploads buffered results every flush interval.
func (a *App) startArchiveFlush(ctx context.Context, g *errgroup.Group, rt *runtime) {
	interval := a.cfg.S3.FlushInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := rt.results.Flush(ctx); err != nil {
					a.logger.WarnContext(ctx, "archive flush failed", slog.String("error", err.Error()))
				}
			}
		}
	})
}

// startHTTPServer serves the status API. The WebSocket stream and event
// history need the Redis event bus.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	backend := string(rt.backend)
	if backend == "" {
		backend = "none"
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:      a.cfg.Mode,
			Backend:   backend,
			StartedAt: a.startedAt,
		}, rt, a.logger),
		Arb: handler.NewArbHandler(rt.results, a.logger),
	}
	if deps.EventBus != nil {
		handlers.Events = handler.NewEventHandler(deps.EventBus,
			[]string{service.StreamArbitrage, service.StreamOracle}, a.logger)
		handlers.Hub = ws.NewHub(deps.EventBus,
			[]string{service.ChannelArbitrage, service.ChannelOracle, service.ChannelPrices},
			ws.Config{Mode: a.cfg.Mode, Backend: backend, StartedAt: a.startedAt},
			a.logger,
		)
		g.Go(func() error {
			return handlers.Hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitPerMinute,
		Limiter:     deps.RateLimiter,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
