package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

type countingLimiter struct {
	allowed int
	calls   int
	err     error
}

func (l *countingLimiter) Allow(_ context.Context, _ string, limit int, _ time.Duration) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	if l.allowed >= limit {
		return false, nil
	}
	l.allowed++
	return true, nil
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventArbFailed}, quietLogger())

	ctx := context.Background()
	if err := n.Notify(ctx, EventArbExecuted, "executed", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, EventArbFailed, "failed", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "failed" {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())
	_ = n.Notify(context.Background(), EventOracleFailed, "oracle", "")
	if len(s.titles) != 1 {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestNotifyRateLimited(t *testing.T) {
	s := &recordingSender{name: "rec"}
	l := &countingLimiter{}
	n := NewNotifier([]Sender{s}, nil, quietLogger(), WithRateLimit(l, 2))

	for i := 0; i < 5; i++ {
		if err := n.Notify(context.Background(), EventArbFailed, "failed", ""); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if len(s.titles) != 2 {
		t.Fatalf("delivered %d, want 2", len(s.titles))
	}
	if l.calls != 5 {
		t.Fatalf("limiter calls = %d", l.calls)
	}
}

func TestNotifyLimiterErrorStillDelivers(t *testing.T) {
	s := &recordingSender{name: "rec"}
	l := &countingLimiter{err: errors.New("redis down")}
	n := NewNotifier([]Sender{s}, nil, quietLogger(), WithRateLimit(l, 1))

	if err := n.Notify(context.Background(), EventArbFailed, "failed", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 1 {
		t.Fatalf("delivered %d, want 1", len(s.titles))
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), EventArbExecuted, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v", err)
	}
	if len(good.titles) != 1 {
		t.Fatalf("good sender skipped")
	}
}

func TestNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	if n.Enabled() {
		t.Fatalf("Enabled with no senders")
	}
	if err := n.Notify(context.Background(), EventArbFailed, "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if got["chat_id"] != "42" || got["text"] != "*Title*\nbody" || got["parse_mode"] != "Markdown" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscordSenderNoContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["content"] != "**t**\nm" {
		t.Fatalf("payload = %v", got)
	}
}

func TestFormatResult(t *testing.T) {
	strategy := domain.ArbitrageStrategy{
		BuyChain:            "base-sepolia",
		SellChain:           "unichain-sepolia",
		SpreadBps:           decimal.NewFromInt(100),
		BuyPrice:            decimal.NewFromFloat(0.98),
		SellPrice:           decimal.NewFromFloat(0.99),
		ExpectedProfitQuote: big.NewInt(1_000_000),
		QuoteDecimals:       6,
	}

	tests := []struct {
		name      string
		result    domain.ArbitrageResult
		wantEvent string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "executed",
			result:    domain.ArbitrageResult{Success: true, Strategy: strategy, ActualProfitQuote: big.NewInt(97_900), OrdersExecuted: 2},
			wantEvent: EventArbExecuted,
			wantTitle: "Arbitrage executed",
			wantBody:  "profit 0.0979 over 2 orders",
		},
		{
			name:      "local only",
			result:    domain.ArbitrageResult{Success: true, LocalOnly: true, Strategy: strategy, ActualProfitQuote: big.NewInt(1)},
			wantEvent: EventArbLocalOnly,
			wantTitle: "Arbitrage executed (local only)",
			wantBody:  "tracked locally only",
		},
		{
			name:      "failed",
			result:    domain.ArbitrageResult{Strategy: strategy, Error: "session refused"},
			wantEvent: EventArbFailed,
			wantTitle: "Arbitrage failed",
			wantBody:  "error: session refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultEvent(tt.result); got != tt.wantEvent {
				t.Fatalf("event = %s, want %s", got, tt.wantEvent)
			}
			title, body := FormatResult(tt.result)
			if title != tt.wantTitle {
				t.Fatalf("title = %q", title)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Fatalf("body %q missing %q", body, tt.wantBody)
			}
			if !strings.Contains(body, "base-sepolia -> unichain-sepolia at 100.0 bps") {
				t.Fatalf("body %q missing route", body)
			}
		})
	}
}

func TestUnits(t *testing.T) {
	if got := Units(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("Units = %s", got)
	}
	if got := Units(nil, 6); got != "0" {
		t.Fatalf("Units(nil) = %s", got)
	}
}
