package config

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/platform/clearnode"
	"github.com/alanyoungcy/ghostyield/internal/retry"
	"github.com/alanyoungcy/ghostyield/internal/session"
	"github.com/alanyoungcy/ghostyield/internal/watcher"
)

// Domain converts the chain section. Call it only on a validated Config.
func (c ChainConfig) Domain() domain.ChainConfig {
	out := domain.ChainConfig{
		Name:          c.Name,
		ChainID:       c.ChainID,
		RPCURL:        c.RPCURL,
		StateView:     common.HexToAddress(c.StateView),
		PoolID:        common.HexToHash(c.PoolID),
		BaseToken:     common.HexToAddress(c.BaseToken),
		QuoteToken:    common.HexToAddress(c.QuoteToken),
		BaseDecimals:  int32(c.BaseDecimals),
		QuoteDecimals: int32(c.QuoteDecimals),
	}
	if c.OracleAddress != "" {
		out.OracleAddress = common.HexToAddress(c.OracleAddress)
	}
	return out
}

// WatcherConfig returns the watcher configuration for both chains.
func (c *Config) WatcherConfig() watcher.Config {
	return watcher.Config{
		ChainA:       c.ChainA.Domain(),
		ChainB:       c.ChainB.Domain(),
		PollInterval: c.Watcher.PollInterval.Duration,
		ThresholdBps: decimal.NewFromFloat(c.Watcher.ThresholdBps),
	}
}

// Risk returns the engine's risk gates.
func (c *Config) Risk() domain.RiskConfig {
	return domain.RiskConfig{
		MaxTradeAmount:        big.NewInt(c.Arbitrage.MaxTradeAmount),
		MinProfit:             big.NewInt(c.Arbitrage.MinProfit),
		MaxConcurrentSessions: c.Arbitrage.MaxConcurrentSessions,
		Cooldown:              c.Arbitrage.Cooldown.Duration,
	}
}

// WalletKey is the ClearNode wallet key source.
func (c *Config) WalletKey() crypto.KeySource {
	return crypto.KeySource{
		Raw:      c.Wallet.PrivateKey,
		FilePath: c.Wallet.EncryptedKeyPath,
		Password: c.Wallet.KeyPassword,
	}
}

// OracleKey is the oracle signing key source, falling back to the wallet.
func (c *Config) OracleKey() crypto.KeySource {
	src := crypto.KeySource{
		Raw:      c.Oracle.PrivateKey,
		FilePath: c.Oracle.EncryptedKeyPath,
		Password: c.Oracle.KeyPassword,
	}
	if src.Configured() {
		return src
	}
	return c.WalletKey()
}

// ClearNodeClient returns the protocol client configuration.
func (c *Config) ClearNodeClient() clearnode.Config {
	return clearnode.Config{
		URL:         c.ClearNode.URL,
		Application: c.ClearNode.Application,
		Scope:       c.ClearNode.Scope,
		Allowances: []crypto.Allowance{
			{Asset: c.ClearNode.Asset, Amount: c.ClearNode.AllowanceAmount},
		},
		SessionTTL:     c.ClearNode.SessionTTL.Duration,
		ConnectTimeout: c.ClearNode.ConnectTimeout.Duration,
		RequestTimeout: c.ClearNode.RequestTimeout.Duration,
		ChannelTimeout: c.ClearNode.ChannelTimeout.Duration,
	}
}

// Backend returns the session backend selection. Decimals come from chain A;
// both chains trade the same pair.
func (c *Config) Backend() session.BackendConfig {
	return session.BackendConfig{
		Simulate:  c.Arbitrage.Simulate,
		Key:       c.WalletKey(),
		ClearNode: c.ClearNodeClient(),
		Remote: session.RemoteConfig{
			Counterparty:  common.HexToAddress(c.ClearNode.Counterparty),
			Asset:         c.ClearNode.Asset,
			Amount:        c.ClearNode.SessionAmount,
			BaseDecimals:  int32(c.ChainA.BaseDecimals),
			QuoteDecimals: int32(c.ChainA.QuoteDecimals),
		},
	}
}

// OracleChains returns the per-chain oracle configuration.
func (c *Config) OracleChains() []domain.ChainOracleConfig {
	out := make([]domain.ChainOracleConfig, 0, len(c.Oracle.Chains))
	for _, oc := range c.Oracle.Chains {
		out = append(out, domain.ChainOracleConfig{
			Name:                oc.Name,
			ChainID:             oc.ChainID,
			OracleAddress:       common.HexToAddress(oc.OracleAddress),
			PrimaryRPC:          oc.PrimaryRPC,
			FallbackRPC:         oc.FallbackRPC,
			EMAWindow:           oc.EMAWindow,
			UpdateInterval:      oc.UpdateInterval.Duration,
			StaleTTL:            oc.StaleTTL.Duration,
			DivergenceThreshold: oc.DivergenceThreshold,
		})
	}
	return out
}

// RetryOptions returns the oracle push backoff.
func (c *Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxRetries: c.Oracle.Retry.MaxRetries,
		BaseDelay:  c.Oracle.Retry.BaseDelay.Duration,
		MaxDelay:   c.Oracle.Retry.MaxDelay.Duration,
		Multiplier: c.Oracle.Retry.Multiplier,
	}
}
