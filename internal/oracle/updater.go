package oracle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/retry"
)

// Recorder receives the outcome of every cycle that ran while the updater
// was running.
type Recorder interface {
	RecordUpdate(ctx context.Context, update domain.OracleUpdate)
	RecordFailure(ctx context.Context, chain string, err error)
}

// Options tune the updater. Locker and Recorder are optional.
type Options struct {
	Retry    retry.Options
	Locker   domain.LockManager
	LockTTL  time.Duration
	Recorder Recorder
}

// task is one chain's loop. It owns its config and stop channel only.
type task struct {
	chain domain.ChainOracleConfig
	stop  chan struct{}
}

// Updater runs one independent update loop per chain.
type Updater struct {
	chains []domain.ChainOracleConfig
	key    *ecdsa.PrivateKey
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

// New creates a stopped Updater.
func New(chains []domain.ChainOracleConfig, key *ecdsa.PrivateKey, deps Deps, opts Options, logger *slog.Logger) *Updater {
	if opts.Retry == (retry.Options{}) {
		opts.Retry = retry.DefaultOptions()
	}
	return &Updater{
		chains: chains,
		key:    key,
		deps:   deps,
		opts:   opts,
		logger: logger.With(slog.String("component", "oracle_updater")),
	}
}

// Start launches a loop per chain that updates immediately and then every
// chain.UpdateInterval. It is a no-op when already running and fails with
// domain.ErrMissingKey when no signing key is configured. Chain names key the
// loops and must be unique.
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tasks != nil {
		return nil
	}
	if u.key == nil {
		return fmt.Errorf("oracle: %w", domain.ErrMissingKey)
	}

	tasks := make(map[string]*task, len(u.chains))
	for _, c := range u.chains {
		if _, dup := tasks[c.Name]; dup {
			return fmt.Errorf("oracle: duplicate chain %q", c.Name)
		}
		tasks[c.Name] = &task{chain: c, stop: make(chan struct{})}
	}

	u.tasks = tasks
	for _, t := range tasks {
		u.wg.Add(1)
		go u.loop(ctx, t)
	}
	u.logger.InfoContext(ctx, "oracle updater started", slog.Int("chains", len(u.chains)))
	return nil
}

// Stop clears every chain's loop. Cycles already in flight finish, but their
// outcome is not recorded.
func (u *Updater) Stop() {
	u.mu.Lock()
	tasks := u.tasks
	u.tasks = nil
	u.mu.Unlock()

	if tasks == nil {
		return
	}
	for _, t := range tasks {
		close(t.stop)
	}
	u.logger.Info("oracle updater stopped")
}

// Wait blocks until every loop has exited.
func (u *Updater) Wait() {
	u.wg.Wait()
}

// Running reports whether the loops are active.
func (u *Updater) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tasks != nil
}

func (u *Updater) loop(ctx context.Context, t *task) {
	defer u.wg.Done()

	interval := t.chain.UpdateInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		u.execute(ctx, t)
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (u *Updater) execute(ctx context.Context, t *task) {
	if u.opts.Locker != nil {
		ttl := u.opts.LockTTL
		if ttl <= 0 {
			ttl = t.chain.UpdateInterval
		}
		release, err := u.opts.Locker.Acquire(ctx, "oracle:"+t.chain.Name, ttl)
		if errors.Is(err, domain.ErrLockHeld) {
			u.logger.InfoContext(ctx, "oracle update held by another replica", slog.String("chain", t.chain.Name))
			return
		}
		if err != nil {
			u.logger.WarnContext(ctx, "oracle lock unavailable, updating anyway",
				slog.String("chain", t.chain.Name),
				slog.String("error", err.Error()),
			)
		} else {
			defer release()
		}
	}

	update, err := RunCycle(ctx, t.chain, u.key, u.deps, u.opts.Retry, u.logger)
	if isStopped(t.stop) {
		u.logger.InfoContext(ctx, "oracle cycle finished after stop",
			slog.String("chain", t.chain.Name),
			slog.Bool("ok", err == nil),
		)
		return
	}
	if err != nil {
		u.logger.ErrorContext(ctx, "oracle update cycle failed",
			slog.String("chain", t.chain.Name),
			slog.String("error", err.Error()),
		)
		if u.opts.Recorder != nil {
			u.opts.Recorder.RecordFailure(ctx, t.chain.Name, err)
		}
		return
	}
	if u.opts.Recorder != nil {
		u.opts.Recorder.RecordUpdate(ctx, update)
	}
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
