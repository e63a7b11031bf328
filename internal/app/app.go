// Package app wires the bot together and runs it in the configured mode:
// "arbitrage" runs the price watcher and the arbitrage engine, "oracle" runs
// the utilization updater, and "full" runs both. Optional sinks (Postgres,
// Redis, S3, alerts) and the status API are attached when enabled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/config"
)

// App owns the configuration, the logger, and cleanup functions run in
// reverse order on Close.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// Run wires dependencies and blocks until ctx is cancelled or a component
// fails. Components stop gracefully on cancellation and Run returns nil.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("simulate", a.cfg.Arbitrage.Simulate),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.serve(ctx, deps)
}

// Close releases resources in reverse registration order. Later calls are
// no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
