// Package config defines the top-level configuration for the ghostyield bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GHOSTYIELD_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Wallet    WalletConfig    `toml:"wallet"`
	ChainA    ChainConfig     `toml:"chain_a"`
	ChainB    ChainConfig     `toml:"chain_b"`
	Watcher   WatcherConfig   `toml:"watcher"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	ClearNode ClearNodeConfig `toml:"clearnode"`
	Oracle    OracleConfig    `toml:"oracle"`
	RPC       RPCConfig       `toml:"rpc"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
}

// WalletConfig holds the ClearNode wallet credentials. The key may be given
// raw or as an encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig describes one monitored chain and its pool.
type ChainConfig struct {
	Name          string `toml:"name"`
	ChainID       int64  `toml:"chain_id"`
	RPCURL        string `toml:"rpc_url"`
	StateView     string `toml:"state_view"`
	PoolID        string `toml:"pool_id"`
	BaseToken     string `toml:"base_token"`
	QuoteToken    string `toml:"quote_token"`
	OracleAddress string `toml:"oracle_address"`
	BaseDecimals  int    `toml:"base_decimals"`
	QuoteDecimals int    `toml:"quote_decimals"`
}

// WatcherConfig holds the price polling parameters.
type WatcherConfig struct {
	PollInterval duration `toml:"poll_interval"`
	ThresholdBps float64  `toml:"threshold_bps"`
}

// ArbitrageConfig holds the engine's risk gates. Amounts are in quote-asset
// base units (USDC has 6 decimals).
type ArbitrageConfig struct {
	Simulate              bool     `toml:"simulate"`
	Token                 string   `toml:"token"`
	MaxTradeAmount        int64    `toml:"max_trade_amount"`
	MinProfit             int64    `toml:"min_profit"`
	MaxConcurrentSessions int      `toml:"max_concurrent_sessions"`
	Cooldown              duration `toml:"cooldown"`
}

// ClearNodeConfig holds the settlement counterparty connection parameters.
type ClearNodeConfig struct {
	URL             string   `toml:"url"`
	Application     string   `toml:"application"`
	Scope           string   `toml:"scope"`
	Asset           string   `toml:"asset"`
	AllowanceAmount string   `toml:"allowance_amount"`
	SessionTTL      duration `toml:"session_ttl"`
	ConnectTimeout  duration `toml:"connect_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ChannelTimeout  duration `toml:"channel_timeout"`
	Counterparty    string   `toml:"counterparty"`
	SessionAmount   string   `toml:"session_amount"`
}

// OracleConfig holds the utilization oracle updater parameters. When no key
// is set the wallet key signs oracle transactions.
type OracleConfig struct {
	PrivateKey       string              `toml:"private_key"`
	EncryptedKeyPath string              `toml:"encrypted_key_path"`
	KeyPassword      string              `toml:"key_password"`
	LockTTL          duration            `toml:"lock_ttl"`
	Retry            RetryConfig         `toml:"retry"`
	Chains           []OracleChainConfig `toml:"chains"`
}

// OracleChainConfig is one chain's oracle entry.
type OracleChainConfig struct {
	Name                string   `toml:"name"`
	ChainID             int64    `toml:"chain_id"`
	OracleAddress       string   `toml:"oracle_address"`
	PrimaryRPC          string   `toml:"primary_rpc"`
	FallbackRPC         string   `toml:"fallback_rpc"`
	EMAWindow           int      `toml:"ema_window"`
	UpdateInterval      duration `toml:"update_interval"`
	StaleTTL            duration `toml:"stale_ttl"`
	DivergenceThreshold int      `toml:"divergence_threshold"`
}

// RetryConfig holds the backoff used for oracle pushes.
type RetryConfig struct {
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  duration `toml:"base_delay"`
	MaxDelay   duration `toml:"max_delay"`
	Multiplier float64  `toml:"multiplier"`
}

// RPCConfig limits the request rate against every JSON-RPC endpoint.
type RPCConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	SnapshotTTL  duration `toml:"snapshot_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	FlushInterval  duration `toml:"flush_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMinute caps requests per client IP when Redis is enabled.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MaxPerMinute caps alerts per event kind when Redis is enabled; zero
	// disables the cap.
	MaxPerMinute int `toml:"max_per_minute"`
}

// StateView deployments of the Uniswap v4 periphery on the default chains.
const (
	baseSepoliaStateView     = "0x571291B572ED32Ce6751A2cb2F1CFeeD1E09a81D"
	unichainSepoliaStateView = "0x75f7Ab88D2f27386c1e5C304eBBBA84D3BfF0adF"
)

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "arbitrage",
		LogLevel: "info",
		ChainA: ChainConfig{
			Name:          "base-sepolia",
			ChainID:       84532,
			StateView:     baseSepoliaStateView,
			BaseDecimals:  18,
			QuoteDecimals: 6,
		},
		ChainB: ChainConfig{
			Name:          "unichain-sepolia",
			ChainID:       1301,
			StateView:     unichainSepoliaStateView,
			BaseDecimals:  18,
			QuoteDecimals: 6,
		},
		Watcher: WatcherConfig{
			PollInterval: duration{5 * time.Second},
			ThresholdBps: 50,
		},
		Arbitrage: ArbitrageConfig{
			Token:                 "CPT",
			MaxTradeAmount:        100_000_000,
			MinProfit:             1_000_000,
			MaxConcurrentSessions: 1,
			Cooldown:              duration{10 * time.Second},
		},
		ClearNode: ClearNodeConfig{
			URL:             "wss://clearnet-sandbox.yellow.com/ws",
			Application:     "ghost-yield",
			Scope:           "console",
			Asset:           "ytest.usd",
			AllowanceAmount: "1000000000",
			SessionTTL:      duration{time.Hour},
			ConnectTimeout:  duration{15 * time.Second},
			RequestTimeout:  duration{15 * time.Second},
			ChannelTimeout:  duration{30 * time.Second},
			Counterparty:    "0xc7E6827ad9DA2c89188fAEd836F9285E6bFdCCCC",
			SessionAmount:   "100",
		},
		Oracle: OracleConfig{
			LockTTL: duration{time.Minute},
			Retry: RetryConfig{
				MaxRetries: 2,
				BaseDelay:  duration{500 * time.Millisecond},
				MaxDelay:   duration{2 * time.Second},
				Multiplier: 2,
			},
			Chains: []OracleChainConfig{
				defaultOracleChain("base-sepolia", 84532),
				defaultOracleChain("unichain-sepolia", 1301),
			},
		},
		RPC: RPCConfig{
			RequestsPerSecond: 10,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			SnapshotTTL:  duration{time.Minute},
			StreamMaxLen: 10_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ghostyield",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ghostyield-results",
			ForcePathStyle: true,
			Prefix:         "arbitrage",
			FlushInterval:  duration{time.Hour},
		},
		Server: ServerConfig{
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events:       []string{"arb_executed", "arb_failed", "arb_local_only", "oracle_failed"},
			MaxPerMinute: 20,
		},
	}
}

func defaultOracleChain(name string, chainID int64) OracleChainConfig {
	return OracleChainConfig{
		Name:                name,
		ChainID:             chainID,
		EMAWindow:           60,
		UpdateInterval:      duration{time.Minute},
		StaleTTL:            duration{20 * time.Minute},
		DivergenceThreshold: 15,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"oracle":    true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsArbitrage reports whether the mode includes the watcher and engine.
func (c *Config) RunsArbitrage() bool {
	m := strings.ToLower(c.Mode)
	return m == "arbitrage" || m == "full"
}

// RunsOracle reports whether the mode includes the oracle updater.
func (c *Config) RunsOracle() bool {
	m := strings.ToLower(c.Mode)
	return m == "oracle" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, oracle, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.RPC.RequestsPerSecond <= 0 {
		errs = append(errs, "rpc: requests_per_second must be > 0")
	}

	if c.RunsArbitrage() {
		errs = append(errs, c.ChainA.validate("chain_a")...)
		errs = append(errs, c.ChainB.validate("chain_b")...)
		if c.ChainA.Name == c.ChainB.Name {
			errs = append(errs, "chain_a and chain_b must have different names")
		}

		if c.Watcher.PollInterval.Duration <= 0 {
			errs = append(errs, "watcher: poll_interval must be > 0")
		}
		if c.Watcher.ThresholdBps <= 0 {
			errs = append(errs, "watcher: threshold_bps must be > 0")
		}

		if c.Arbitrage.MaxTradeAmount <= 0 {
			errs = append(errs, "arbitrage: max_trade_amount must be > 0")
		}
		if c.Arbitrage.MinProfit < 0 {
			errs = append(errs, "arbitrage: min_profit must be >= 0")
		}
		if c.Arbitrage.MaxConcurrentSessions < 1 {
			errs = append(errs, "arbitrage: max_concurrent_sessions must be >= 1")
		}
		if c.Arbitrage.Cooldown.Duration < 0 {
			errs = append(errs, "arbitrage: cooldown must be >= 0")
		}

		if !c.Arbitrage.Simulate {
			if !strings.HasPrefix(c.ClearNode.URL, "ws://") && !strings.HasPrefix(c.ClearNode.URL, "wss://") {
				errs = append(errs, fmt.Sprintf("clearnode: url must be a ws:// or wss:// URL, got %q", c.ClearNode.URL))
			}
			if !common.IsHexAddress(c.ClearNode.Counterparty) {
				errs = append(errs, fmt.Sprintf("clearnode: counterparty %q is not a valid address", c.ClearNode.Counterparty))
			}
			if c.ClearNode.Application == "" {
				errs = append(errs, "clearnode: application must not be empty")
			}
		}
	}

	if c.RunsOracle() {
		if len(c.Oracle.Chains) == 0 {
			errs = append(errs, "oracle: at least one [[oracle.chains]] entry is required")
		}
		seen := make(map[string]bool, len(c.Oracle.Chains))
		for i, oc := range c.Oracle.Chains {
			errs = append(errs, oc.validate(fmt.Sprintf("oracle.chains[%d]", i))...)
			if oc.Name != "" && seen[oc.Name] {
				errs = append(errs, fmt.Sprintf("oracle.chains[%d]: duplicate name %q", i, oc.Name))
			}
			seen[oc.Name] = true
		}
		if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
			errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
		}
		if !c.OracleKey().Configured() {
			errs = append(errs, "oracle: a signing key is required (oracle.private_key, oracle.encrypted_key_path or the wallet key)")
		}
		if c.Oracle.Retry.MaxRetries < 0 {
			errs = append(errs, "oracle.retry: max_retries must be >= 0")
		}
		if c.Oracle.Retry.Multiplier < 1 {
			errs = append(errs, "oracle.retry: multiplier must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c ChainConfig) validate(section string) []string {
	var errs []string
	if c.Name == "" {
		errs = append(errs, section+": name must not be empty")
	}
	if c.RPCURL == "" {
		errs = append(errs, section+": rpc_url must not be empty")
	}
	if !common.IsHexAddress(c.StateView) {
		errs = append(errs, fmt.Sprintf("%s: state_view %q is not a valid address", section, c.StateView))
	}
	if !isHash(c.PoolID) {
		errs = append(errs, fmt.Sprintf("%s: pool_id %q must be a 32-byte hex string", section, c.PoolID))
	}
	if !common.IsHexAddress(c.BaseToken) {
		errs = append(errs, fmt.Sprintf("%s: base_token %q is not a valid address", section, c.BaseToken))
	}
	if !common.IsHexAddress(c.QuoteToken) {
		errs = append(errs, fmt.Sprintf("%s: quote_token %q is not a valid address", section, c.QuoteToken))
	}
	if c.OracleAddress != "" && !common.IsHexAddress(c.OracleAddress) {
		errs = append(errs, fmt.Sprintf("%s: oracle_address %q is not a valid address", section, c.OracleAddress))
	}
	if c.BaseDecimals < 0 || c.BaseDecimals > 36 || c.QuoteDecimals < 0 || c.QuoteDecimals > 36 {
		errs = append(errs, section+": decimals must be between 0 and 36")
	}
	return errs
}

func (c OracleChainConfig) validate(section string) []string {
	var errs []string
	if c.Name == "" {
		errs = append(errs, section+": name must not be empty")
	}
	if c.PrimaryRPC == "" {
		errs = append(errs, section+": primary_rpc must not be empty")
	}
	if !common.IsHexAddress(c.OracleAddress) {
		errs = append(errs, fmt.Sprintf("%s: oracle_address %q is not a valid address", section, c.OracleAddress))
	}
	if c.EMAWindow < 1 {
		errs = append(errs, section+": ema_window must be >= 1")
	}
	if c.UpdateInterval.Duration <= 0 {
		errs = append(errs, section+": update_interval must be > 0")
	}
	return errs
}

func isHash(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
