package server

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
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/server/handler"
	"github.com/alanyoungcy/ghostyield/internal/server/ws"
	"github.com/alanyoungcy/ghostyield/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeStatus struct {
	snap    *domain.PriceSnapshot
	updates map[string]domain.OracleUpdate
}

func (f *fakeStatus) ActiveSessions() []domain.SessionInfo {
	return []domain.SessionInfo{{ID: "s1", Status: domain.SessionActive}}
}

func (f *fakeStatus) LatestSnapshot(context.Context) (domain.PriceSnapshot, error) {
	if f.snap == nil {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return *f.snap, nil
}

func (f *fakeStatus) Stats() service.Stats {
	return service.Stats{Executed: 3, TotalProfit: big.NewInt(42)}
}

func (f *fakeStatus) OracleChains() []string { return []string{"base-sepolia", "unichain-sepolia"} }

func (f *fakeStatus) OracleLatest(_ context.Context, chain string) (domain.OracleUpdate, error) {
	u, ok := f.updates[chain]
	if !ok {
		return domain.OracleUpdate{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeStatus) OracleFailures(chain string) int {
	if chain == "unichain-sepolia" {
		return 2
	}
	return 0
}

type fakeResults struct{}

func (fakeResults) Recent(_ context.Context, limit int) []domain.ArbitrageResult {
	out := []domain.ArbitrageResult{{ID: "r2"}, {ID: "r1"}}
	return out[:min(limit, len(out))]
}

func (fakeResults) Stats() service.Stats { return service.Stats{Failed: 1, TotalProfit: new(big.Int)} }

type fakeStreams struct{ err error }

func (f fakeStreams) StreamRevRange(_ context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.StreamMessage{
		{ID: "2-0", Payload: []byte(`{"id":"r2"}`)},
		{ID: "1-0", Payload: []byte("not json")},
	}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestServer(t *testing.T, cfg Config, deps map[string]handler.Pinger, status *fakeStatus, hub *ws.Hub) *httptest.Server {
	t.Helper()
	logger := quietLogger()
	s := NewServer(cfg, Handlers{
		Health: handler.NewHealthHandler(deps, logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{Mode: "arbitrage", Backend: "simulated", StartedAt: time.Now()}, status, logger),
		Arb:    handler.NewArbHandler(fakeResults{}, logger),
		Events: handler.NewEventHandler(fakeStreams{}, []string{service.StreamArbitrage}, logger),
		Hub:    hub,
	}, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, header http.Header, out any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{}, map[string]handler.Pinger{"redis": fakePinger{}}, &fakeStatus{}, nil)
	var body map[string]any
	if code := getJSON(t, srv.URL+"/api/health", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	srv := newTestServer(t, Config{}, map[string]handler.Pinger{"postgres": fakePinger{err: errors.New("refused")}}, &fakeStatus{}, nil)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if code := getJSON(t, srv.URL+"/api/health", nil, &body); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "degraded" || body.Checks["postgres"] != "refused" {
		t.Fatalf("body = %+v", body)
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret"}, nil, &fakeStatus{}, nil)

	if code := getJSON(t, srv.URL+"/api/status", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/status", http.Header{"Authorization": {"Bearer wrong"}}, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/status", http.Header{"X-Api-Key": {"secret"}}, nil); code != http.StatusOK {
		t.Fatalf("api key status = %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/health", nil, nil); code != http.StatusOK {
		t.Fatalf("health requires auth: %d", code)
	}
}

func TestStatus(t *testing.T) {
	snap := domain.PriceSnapshot{SpreadBps: decimal.NewFromInt(75)}
	status := &fakeStatus{
		snap:    &snap,
		updates: map[string]domain.OracleUpdate{"base-sepolia": {Chain: "base-sepolia", Utilization: 55}},
	}
	srv := newTestServer(t, Config{}, nil, status, nil)

	var body struct {
		Mode           string               `json:"mode"`
		Backend        string               `json:"backend"`
		ActiveSessions []domain.SessionInfo `json:"active_sessions"`
		Snapshot       *domain.PriceSnapshot
		Stats          struct {
			Executed int    `json:"executed"`
			Profit   string `json:"total_profit_quote"`
		} `json:"stats"`
		Oracle []struct {
			Chain    string               `json:"chain"`
			Latest   *domain.OracleUpdate `json:"latest"`
			Failures int                  `json:"consecutive_failures"`
		} `json:"oracle"`
	}
	if code := getJSON(t, srv.URL+"/api/status", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Mode != "arbitrage" || body.Backend != "simulated" || len(body.ActiveSessions) != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.Snapshot == nil || !body.Snapshot.SpreadBps.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("snapshot = %+v", body.Snapshot)
	}
	if body.Stats.Executed != 3 {
		t.Fatalf("stats = %+v", body.Stats)
	}
	if len(body.Oracle) != 2 || body.Oracle[0].Latest == nil || body.Oracle[0].Latest.Utilization != 55 {
		t.Fatalf("oracle = %+v", body.Oracle)
	}
	if body.Oracle[1].Latest != nil || body.Oracle[1].Failures != 2 {
		t.Fatalf("oracle[1] = %+v", body.Oracle[1])
	}
}

func TestLatestSnapshotNotFound(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, &fakeStatus{}, nil)
	if code := getJSON(t, srv.URL+"/api/prices/latest", nil, nil); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
}

func TestRecentResults(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, &fakeStatus{}, nil)
	var body struct {
		Results []domain.ArbitrageResult `json:"results"`
	}
	if code := getJSON(t, srv.URL+"/api/arbitrage/recent?limit=1", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Results) != 1 || body.Results[0].ID != "r2" {
		t.Fatalf("results = %+v", body.Results)
	}
}

func TestEvents(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, &fakeStatus{}, nil)

	var body struct {
		Events []struct {
			ID      string          `json:"id"`
			Payload json.RawMessage `json:"payload"`
		} `json:"events"`
	}
	if code := getJSON(t, srv.URL+"/api/events/"+service.StreamArbitrage, nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Events) != 1 || body.Events[0].ID != "2-0" {
		t.Fatalf("events = %+v", body.Events)
	}
	if code := getJSON(t, srv.URL+"/api/events/secrets", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown stream status = %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "secret"}, nil, &fakeStatus{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{Limiter: denyAll{}, RateLimit: 10}, nil, &fakeStatus{}, nil)
	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q", got)
	}
}

type chanSubscriber struct {
	feeds map[string]chan []byte
}

func (s *chanSubscriber) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch, ok := s.feeds[channel]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

func TestWebSocketRelaysEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &chanSubscriber{feeds: map[string]chan []byte{
		service.ChannelArbitrage: make(chan []byte, 1),
	}}
	hub := ws.NewHub(sub, []string{service.ChannelArbitrage}, ws.Config{Mode: "arbitrage"}, quietLogger())
	go hub.Run(ctx)

	srv := newTestServer(t, Config{}, nil, &fakeStatus{}, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first ws.Envelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "bot_status" {
		t.Fatalf("first frame = %+v", first)
	}

	sub.feeds[service.ChannelArbitrage] <- []byte(`{"id":"r9"}`)

	var evt ws.Envelope
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != "event" || evt.Channel != service.ChannelArbitrage || string(evt.Payload) != `{"id":"r9"}` {
		t.Fatalf("event = %+v", evt)
	}
}

func TestWebSocketAuthByQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(&chanSubscriber{feeds: map[string]chan []byte{}}, nil, ws.Config{}, quietLogger())
	go hub.Run(ctx)

	srv := newTestServer(t, Config{APIKey: "secret"}, nil, &fakeStatus{}, hub)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Fatalf("dial without key succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without key: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?api_key=secret", nil)
	if err != nil {
		t.Fatalf("Dial with key: %v", err)
	}
	conn.Close()
}
