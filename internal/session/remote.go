package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/platform/clearnode"
)

const (
	remotePrefix = "clearnode-"
	localPrefix  = "local-session-"
)

// Counterparty is the part of the ClearNode client a remote session needs.
type Counterparty interface {
	Connect(ctx context.Context) error
	Ready() bool
	Address() common.Address
	CreateAppSession(ctx context.Context, counterparty common.Address, asset, amount string) (domain.AppSession, error)
	CloseAppSession(ctx context.Context, appSessionID string, allocations []clearnode.Allocation) error
	Close() error
}

var _ Counterparty = (*clearnode.Client)(nil)

// RemoteConfig describes the app session opened for each strategy.
type RemoteConfig struct {
	Counterparty  common.Address
	Asset         string
	Amount        string
	BaseDecimals  int32
	QuoteDecimals int32
}

// Remote hosts each session as a ClearNode app session. When the
// counterparty refuses to open one, the session is tracked locally and
// flagged LocalOnly.
type Remote struct {
	*ledger
	client Counterparty
	cfg    RemoteConfig
	logger *slog.Logger
}

var _ Session = (*Remote)(nil)

// NewRemote creates a remote session backend over client.
func NewRemote(client Counterparty, cfg RemoteConfig, logger *slog.Logger) *Remote {
	if cfg.Asset == "" {
		cfg.Asset = "ytest.usd"
	}
	if cfg.Amount == "" {
		cfg.Amount = "100"
	}
	return &Remote{
		ledger: newLedger("clearnode-order", cfg.BaseDecimals, cfg.QuoteDecimals),
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "remote_session")),
	}
}

func (r *Remote) Kind() Kind { return KindRemote }

// CreateSession connects (or reuses the authenticated connection) and opens
// an app session. A connection failure is returned; an app session failure
// falls back to local tracking.
func (r *Remote) CreateSession(ctx context.Context) (domain.SessionInfo, error) {
	if err := r.client.Connect(ctx); err != nil {
		return domain.SessionInfo{}, fmt.Errorf("session: connect: %w", err)
	}

	app, err := r.client.CreateAppSession(ctx, r.cfg.Counterparty, r.cfg.Asset, r.cfg.Amount)
	if err != nil {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		id := fmt.Sprintf("%s%d-%s", localPrefix, r.now().UnixMilli(), suffix)
		r.logger.WarnContext(ctx, "app session creation failed, tracking locally",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		return r.open(id, "", true), nil
	}

	id := remotePrefix + app.AppSessionID
	r.logger.InfoContext(ctx, "app session opened",
		slog.String("session_id", id),
		slog.String("status", app.Status),
	)
	return r.open(id, app.AppSessionID, false), nil
}

func (r *Remote) PlaceOrder(_ context.Context, sessionID string, order domain.TradeOrder) (domain.TradeResult, error) {
	return r.place(sessionID, order)
}

// CloseSession closes the local record and, for hosted sessions, the app
// session with zero allocations. A dropped connection gets one reconnect
// attempt. Remote close failures are logged only.
func (r *Remote) CloseSession(ctx context.Context, sessionID string) (domain.SessionResult, error) {
	res, e, err := r.close(sessionID)
	if err != nil {
		return domain.SessionResult{}, err
	}
	if e.remoteID == "" {
		return res, nil
	}
	if !r.client.Ready() {
		if err := r.client.Connect(ctx); err != nil {
			r.logger.WarnContext(ctx, "app session left open, reconnect failed",
				slog.String("session_id", sessionID),
				slog.String("app_session_id", e.remoteID),
				slog.String("error", err.Error()),
			)
			return res, nil
		}
	}

	allocations := []clearnode.Allocation{
		{Participant: r.client.Address().Hex(), Asset: r.cfg.Asset, Amount: "0"},
		{Participant: r.cfg.Counterparty.Hex(), Asset: r.cfg.Asset, Amount: "0"},
	}
	if err := r.client.CloseAppSession(ctx, e.remoteID, allocations); err != nil {
		r.logger.WarnContext(ctx, "app session close failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	return res, nil
}

func (r *Remote) Session(sessionID string) (domain.SessionInfo, bool) {
	return r.get(sessionID)
}

func (r *Remote) Sessions() []domain.SessionInfo {
	return r.list()
}

// Close disconnects the counterparty client.
func (r *Remote) Close() error {
	return r.client.Close()
}
