// Package notify delivers operator alerts to Telegram and Discord. Alerts are
// filtered by event kind and, when a rate limiter is attached, capped per
// kind so a failing loop cannot flood the channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// Event kinds.
const (
	EventArbExecuted  = "arb_executed"
	EventArbFailed    = "arb_failed"
	EventArbLocalOnly = "arb_local_only"
	EventOracleFailed = "oracle_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every Sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	limiter domain.RateLimiter
	limit   int
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRateLimit caps each event kind to perMinute alerts across every process
// sharing limiter.
func WithRateLimit(limiter domain.RateLimiter, perMinute int) Option {
	return func(n *Notifier) {
		n.limiter = limiter
		n.limit = perMinute
	}
}

// NewNotifier creates a Notifier. Only kinds listed in events are delivered;
// an empty list allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger, opts ...Option) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify delivers one alert of kind event. Filtered and rate-limited alerts
// are dropped silently.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.limiter != nil && n.limit > 0 {
		ok, err := n.limiter.Allow(ctx, "notify:"+event, n.limit, time.Minute)
		if err != nil {
			n.logger.WarnContext(ctx, "notification rate limit unavailable",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			n.logger.InfoContext(ctx, "notification rate limited", slog.String("event", event))
			return nil
		}
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
