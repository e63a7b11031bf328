package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. An empty path skips the file. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the legacy bot variables first and then the
// GHOSTYIELD_* variables, so a prefixed variable wins when both are set.
func applyEnvOverrides(cfg *Config) {
	applyLegacyEnv(cfg)

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "GHOSTYIELD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "GHOSTYIELD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "GHOSTYIELD_WALLET_KEY_PASSWORD")

	// ── Chains ──
	setChainEnv(&cfg.ChainA, "GHOSTYIELD_CHAIN_A_")
	setChainEnv(&cfg.ChainB, "GHOSTYIELD_CHAIN_B_")

	// ── Watcher ──
	setDuration(&cfg.Watcher.PollInterval, "GHOSTYIELD_WATCHER_POLL_INTERVAL")
	setFloat64(&cfg.Watcher.ThresholdBps, "GHOSTYIELD_WATCHER_THRESHOLD_BPS")

	// ── Arbitrage ──
	setBool(&cfg.Arbitrage.Simulate, "GHOSTYIELD_ARBITRAGE_SIMULATE")
	setStr(&cfg.Arbitrage.Token, "GHOSTYIELD_ARBITRAGE_TOKEN")
	setInt64(&cfg.Arbitrage.MaxTradeAmount, "GHOSTYIELD_ARBITRAGE_MAX_TRADE_AMOUNT")
	setInt64(&cfg.Arbitrage.MinProfit, "GHOSTYIELD_ARBITRAGE_MIN_PROFIT")
	setInt(&cfg.Arbitrage.MaxConcurrentSessions, "GHOSTYIELD_ARBITRAGE_MAX_CONCURRENT_SESSIONS")
	setDuration(&cfg.Arbitrage.Cooldown, "GHOSTYIELD_ARBITRAGE_COOLDOWN")

	// ── ClearNode ──
	setStr(&cfg.ClearNode.URL, "GHOSTYIELD_CLEARNODE_URL")
	setStr(&cfg.ClearNode.Application, "GHOSTYIELD_CLEARNODE_APPLICATION")
	setStr(&cfg.ClearNode.Scope, "GHOSTYIELD_CLEARNODE_SCOPE")
	setStr(&cfg.ClearNode.Asset, "GHOSTYIELD_CLEARNODE_ASSET")
	setStr(&cfg.ClearNode.AllowanceAmount, "GHOSTYIELD_CLEARNODE_ALLOWANCE_AMOUNT")
	setDuration(&cfg.ClearNode.SessionTTL, "GHOSTYIELD_CLEARNODE_SESSION_TTL")
	setDuration(&cfg.ClearNode.ConnectTimeout, "GHOSTYIELD_CLEARNODE_CONNECT_TIMEOUT")
	setDuration(&cfg.ClearNode.RequestTimeout, "GHOSTYIELD_CLEARNODE_REQUEST_TIMEOUT")
	setDuration(&cfg.ClearNode.ChannelTimeout, "GHOSTYIELD_CLEARNODE_CHANNEL_TIMEOUT")
	setStr(&cfg.ClearNode.Counterparty, "GHOSTYIELD_CLEARNODE_COUNTERPARTY")
	setStr(&cfg.ClearNode.SessionAmount, "GHOSTYIELD_CLEARNODE_SESSION_AMOUNT")

	// ── Oracle ──
	setStr(&cfg.Oracle.PrivateKey, "GHOSTYIELD_ORACLE_PRIVATE_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "GHOSTYIELD_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "GHOSTYIELD_ORACLE_KEY_PASSWORD")
	setDuration(&cfg.Oracle.LockTTL, "GHOSTYIELD_ORACLE_LOCK_TTL")
	setInt(&cfg.Oracle.Retry.MaxRetries, "GHOSTYIELD_ORACLE_RETRY_MAX_RETRIES")
	setDuration(&cfg.Oracle.Retry.BaseDelay, "GHOSTYIELD_ORACLE_RETRY_BASE_DELAY")
	setDuration(&cfg.Oracle.Retry.MaxDelay, "GHOSTYIELD_ORACLE_RETRY_MAX_DELAY")
	setFloat64(&cfg.Oracle.Retry.Multiplier, "GHOSTYIELD_ORACLE_RETRY_MULTIPLIER")

	// ── RPC ──
	setFloat64(&cfg.RPC.RequestsPerSecond, "GHOSTYIELD_RPC_REQUESTS_PER_SECOND")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "GHOSTYIELD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "GHOSTYIELD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GHOSTYIELD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GHOSTYIELD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GHOSTYIELD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GHOSTYIELD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GHOSTYIELD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "GHOSTYIELD_REDIS_SNAPSHOT_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "GHOSTYIELD_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "GHOSTYIELD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "GHOSTYIELD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "GHOSTYIELD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GHOSTYIELD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GHOSTYIELD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GHOSTYIELD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GHOSTYIELD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GHOSTYIELD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GHOSTYIELD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GHOSTYIELD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GHOSTYIELD_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "GHOSTYIELD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "GHOSTYIELD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GHOSTYIELD_S3_REGION")
	setStr(&cfg.S3.Bucket, "GHOSTYIELD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GHOSTYIELD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GHOSTYIELD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GHOSTYIELD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GHOSTYIELD_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "GHOSTYIELD_S3_PREFIX")
	setDuration(&cfg.S3.FlushInterval, "GHOSTYIELD_S3_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GHOSTYIELD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GHOSTYIELD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GHOSTYIELD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "GHOSTYIELD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMinute, "GHOSTYIELD_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GHOSTYIELD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GHOSTYIELD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GHOSTYIELD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GHOSTYIELD_NOTIFY_EVENTS")
	setInt(&cfg.Notify.MaxPerMinute, "GHOSTYIELD_NOTIFY_MAX_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "GHOSTYIELD_MODE")
	setStr(&cfg.LogLevel, "GHOSTYIELD_LOG_LEVEL")
}

// applyLegacyEnv maps the variable names used by earlier deployments of the
// bot and oracle scripts.
func applyLegacyEnv(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "YELLOW_PRIVATE_KEY")
	setStr(&cfg.ClearNode.URL, "YELLOW_WS_URL")
	setStr(&cfg.ClearNode.Asset, "YELLOW_ASSET")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	setStr(&cfg.ChainA.RPCURL, "CHAIN_A_RPC_URL")
	setStr(&cfg.ChainA.Name, "CHAIN_A_NAME")
	setInt64(&cfg.ChainA.ChainID, "CHAIN_A_ID")
	setStr(&cfg.ChainB.RPCURL, "CHAIN_B_RPC_URL")
	setStr(&cfg.ChainB.Name, "CHAIN_B_NAME")
	setInt64(&cfg.ChainB.ChainID, "CHAIN_B_ID")

	setMillis(&cfg.Watcher.PollInterval, "POLL_INTERVAL_MS")
	setFloat64(&cfg.Watcher.ThresholdBps, "THRESHOLD_BPS")
	setInt64(&cfg.Arbitrage.MaxTradeAmount, "MAX_TRADE_AMOUNT_USDC")
	setInt64(&cfg.Arbitrage.MinProfit, "MIN_PROFIT_USDC")

	setStr(&cfg.Oracle.PrivateKey, "DEPLOYER_PRIVATE_KEY")
	for i := range cfg.Oracle.Chains {
		oc := &cfg.Oracle.Chains[i]
		setMillis(&oc.UpdateInterval, "ORACLE_BOT_INTERVAL_MS")
		setSeconds(&oc.StaleTTL, "ORACLE_STALE_TTL_SECONDS")
		setInt(&oc.DivergenceThreshold, "ORACLE_DIVERGENCE_THRESHOLD")
	}
	legacy := []string{"ORACLE_BASE_", "ORACLE_UNICHAIN_"}
	for i, prefix := range legacy {
		if i >= len(cfg.Oracle.Chains) {
			break
		}
		oc := &cfg.Oracle.Chains[i]
		setStr(&oc.Name, prefix+"CHAIN_NAME")
		setInt64(&oc.ChainID, prefix+"CHAIN_ID")
		setStr(&oc.PrimaryRPC, prefix+"PRIMARY_RPC")
		setStr(&oc.FallbackRPC, prefix+"FALLBACK_RPC")
		setStr(&oc.OracleAddress, prefix+"ORACLE_ADDRESS")
		setInt(&oc.EMAWindow, prefix+"EMA_WINDOW")
	}
}

func setChainEnv(c *ChainConfig, prefix string) {
	setStr(&c.Name, prefix+"NAME")
	setInt64(&c.ChainID, prefix+"CHAIN_ID")
	setStr(&c.RPCURL, prefix+"RPC_URL")
	setStr(&c.StateView, prefix+"STATE_VIEW")
	setStr(&c.PoolID, prefix+"POOL_ID")
	setStr(&c.BaseToken, prefix+"BASE_TOKEN")
	setStr(&c.QuoteToken, prefix+"QUOTE_TOKEN")
	setStr(&c.OracleAddress, prefix+"ORACLE_ADDRESS")
	setInt(&c.BaseDecimals, prefix+"BASE_DECIMALS")
	setInt(&c.QuoteDecimals, prefix+"QUOTE_DECIMALS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setMillis and setSeconds read bare integers in the unit the legacy
// variables used.
func setMillis(dst *duration, key string) {
	var n int64
	setInt64(&n, key)
	if n > 0 {
		dst.Duration = time.Duration(n) * time.Millisecond
	}
}

func setSeconds(dst *duration, key string) {
	var n int64
	setInt64(&n, key)
	if n > 0 {
		dst.Duration = time.Duration(n) * time.Second
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
