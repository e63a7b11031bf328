// Package retry runs operations that can fail transiently with a bounded
// number of attempts and capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options controls the retry schedule. MaxRetries counts retries after the
// first attempt, so an operation runs at most MaxRetries+1 times.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultOptions returns two retries starting at 500ms, doubling, capped at 2s.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (o Options) Delay(attempt int) time.Duration {
	mult := o.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(o.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= mult
		if o.MaxDelay > 0 && d >= float64(o.MaxDelay) {
			return o.MaxDelay
		}
	}
	if o.MaxDelay > 0 && time.Duration(d) > o.MaxDelay {
		return o.MaxDelay
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, the retries are exhausted, or ctx is done.
// The returned error wraps the last failure.
func Do(ctx context.Context, opts Options, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, opts, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, opts Options, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == retries {
			break
		}

		delay := opts.Delay(attempt)
		logger.WarnContext(ctx, "operation failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", retries+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry: %s: %w (last error: %v)", op, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("retry: %s failed after %d attempts: %w", op, retries+1, lastErr)
}
