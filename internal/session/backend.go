package session

import (
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/platform/clearnode"
)

// BackendConfig selects and configures a Session implementation.
type BackendConfig struct {
	Simulate  bool
	Key       crypto.KeySource
	ClearNode clearnode.Config
	Remote    RemoteConfig
}

// ClientFactory builds a counterparty client for the wallet key.
type ClientFactory func(key *ecdsa.PrivateKey) (Counterparty, error)

// Backend is the Session chosen at startup. Downgraded is set when a remote
// backend was requested but could not be built; Reason says why.
type Backend struct {
	Session    Session
	Kind       Kind
	Downgraded bool
	Reason     string
}

// Close releases the backend's connection, if any.
func (b Backend) Close() error {
	if c, ok := b.Session.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewBackend picks the session implementation once. A remote backend that
// cannot be built (missing or unreadable key, bad client config) falls back
// to the simulation with a warning. A nil factory uses the ClearNode client.
func NewBackend(cfg BackendConfig, factory ClientFactory, logger *slog.Logger) Backend {
	root := logger
	logger = logger.With(slog.String("component", "session_backend"))
	base, quote := cfg.Remote.BaseDecimals, cfg.Remote.QuoteDecimals

	if cfg.Simulate {
		logger.Info("using simulated sessions")
		return Backend{Session: NewSimulated(base, quote), Kind: KindSimulated}
	}

	if factory == nil {
		factory = func(key *ecdsa.PrivateKey) (Counterparty, error) {
			return clearnode.NewClient(cfg.ClearNode, key, root)
		}
	}

	remote, err := buildRemote(cfg, factory, root)
	if err != nil {
		logger.Warn("remote sessions unavailable, falling back to simulation",
			slog.String("error", err.Error()),
		)
		return Backend{
			Session:    NewSimulated(base, quote),
			Kind:       KindSimulated,
			Downgraded: true,
			Reason:     err.Error(),
		}
	}
	logger.Info("using remote sessions",
		slog.String("url", cfg.ClearNode.URL),
		slog.String("counterparty", cfg.Remote.Counterparty.Hex()),
	)
	return Backend{Session: remote, Kind: KindRemote}
}

func buildRemote(cfg BackendConfig, factory ClientFactory, logger *slog.Logger) (*Remote, error) {
	key, err := crypto.ResolveKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("session: resolve wallet key: %w", err)
	}
	client, err := factory(key)
	if err != nil {
		return nil, fmt.Errorf("session: build client: %w", err)
	}
	return NewRemote(client, cfg.Remote, logger), nil
}
