package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testPool  = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testCPT   = "0x2222222222222222222222222222222222222222"
	testUSDC  = "0x3333333333333333333333333333333333333333"
	testOracl = "0x4444444444444444444444444444444444444444"
)

func validConfig() Config {
	cfg := Defaults()
	for _, c := range []*ChainConfig{&cfg.ChainA, &cfg.ChainB} {
		c.RPCURL = "https://rpc.example"
		c.PoolID = testPool
		c.BaseToken = testCPT
		c.QuoteToken = testUSDC
	}
	return cfg
}

func TestDefaultsWithChainsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.LogLevel = "verbose"
	cfg.Arbitrage.MaxConcurrentSessions = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		"log_level",
		"chain_a: rpc_url",
		"chain_b: pool_id",
		"max_concurrent_sessions",
		"oracle.chains[0]: primary_rpc",
		"oracle: a signing key is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateModes(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"arbitrage", false},
		{"ARBITRAGE", false},
		{"trade", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := validConfig()
			cfg.Mode = tt.mode
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOracleModeSkipsChainChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "oracle"
	cfg.Oracle.PrivateKey = "0xabc"
	for i := range cfg.Oracle.Chains {
		cfg.Oracle.Chains[i].PrimaryRPC = "https://rpc.example"
		cfg.Oracle.Chains[i].OracleAddress = testOracl
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsDuplicateOracleChains(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "oracle"
	cfg.Oracle.PrivateKey = "0xabc"
	cfg.Oracle.Chains[1].Name = cfg.Oracle.Chains[0].Name
	for i := range cfg.Oracle.Chains {
		cfg.Oracle.Chains[i].PrimaryRPC = "https://rpc.example"
		cfg.Oracle.Chains[i].OracleAddress = testOracl
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `oracle.chains[1]: duplicate name "base-sepolia"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestRemoteBackendRequiresCounterparty(t *testing.T) {
	cfg := validConfig()
	cfg.ClearNode.Counterparty = "nope"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "counterparty") {
		t.Fatalf("err = %v", err)
	}
	cfg.Arbitrage.Simulate = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("simulated mode should not need a counterparty: %v", err)
	}
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "full"

[watcher]
poll_interval = "2s"
threshold_bps = 75

[arbitrage]
cooldown = "30s"

[[oracle.chains]]
name = "sepolia"
chain_id = 11155111
primary_rpc = "https://file.example"
oracle_address = "` + testOracl + `"
ema_window = 10
update_interval = "90s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GHOSTYIELD_WATCHER_THRESHOLD_BPS", "120")
	t.Setenv("GHOSTYIELD_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "full" || cfg.Watcher.PollInterval.Duration != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Watcher)
	}
	if cfg.Watcher.ThresholdBps != 120 {
		t.Fatalf("threshold = %v, want env override 120", cfg.Watcher.ThresholdBps)
	}
	if !cfg.Redis.Enabled {
		t.Fatalf("redis not enabled by env")
	}
	if cfg.Arbitrage.MinProfit != 1_000_000 {
		t.Fatalf("default min_profit lost: %d", cfg.Arbitrage.MinProfit)
	}
	if len(cfg.Oracle.Chains) != 1 || cfg.Oracle.Chains[0].UpdateInterval.Duration != 90*time.Second {
		t.Fatalf("oracle chains = %+v", cfg.Oracle.Chains)
	}
}

func TestLegacyEnvNames(t *testing.T) {
	t.Setenv("CHAIN_A_RPC_URL", "https://a.example")
	t.Setenv("POLL_INTERVAL_MS", "2500")
	t.Setenv("MAX_TRADE_AMOUNT_USDC", "50000000")
	t.Setenv("YELLOW_PRIVATE_KEY", "0xwallet")
	t.Setenv("DEPLOYER_PRIVATE_KEY", "0xdeployer")
	t.Setenv("ORACLE_UNICHAIN_PRIMARY_RPC", "https://uni.example")
	t.Setenv("ORACLE_BOT_INTERVAL_MS", "30000")
	t.Setenv("ORACLE_STALE_TTL_SECONDS", "600")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.ChainA.RPCURL != "https://a.example" {
		t.Fatalf("chain_a rpc = %q", cfg.ChainA.RPCURL)
	}
	if cfg.Watcher.PollInterval.Duration != 2500*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Watcher.PollInterval.Duration)
	}
	if cfg.Arbitrage.MaxTradeAmount != 50_000_000 {
		t.Fatalf("max trade = %d", cfg.Arbitrage.MaxTradeAmount)
	}
	if cfg.Wallet.PrivateKey != "0xwallet" || cfg.Oracle.PrivateKey != "0xdeployer" {
		t.Fatalf("keys not mapped")
	}
	uni := cfg.Oracle.Chains[1]
	if uni.PrimaryRPC != "https://uni.example" || uni.UpdateInterval.Duration != 30*time.Second || uni.StaleTTL.Duration != 10*time.Minute {
		t.Fatalf("unichain oracle = %+v", uni)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("THRESHOLD_BPS", "10")
	t.Setenv("GHOSTYIELD_WATCHER_THRESHOLD_BPS", "90")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	if cfg.Watcher.ThresholdBps != 90 {
		t.Fatalf("threshold = %v, want 90", cfg.Watcher.ThresholdBps)
	}
}

func TestInvalidEnvValuesAreIgnored(t *testing.T) {
	t.Setenv("GHOSTYIELD_SERVER_PORT", "eighty")
	t.Setenv("GHOSTYIELD_ARBITRAGE_COOLDOWN", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	if cfg.Server.Port != 8000 || cfg.Arbitrage.Cooldown.Duration != 10*time.Second {
		t.Fatalf("invalid env values were applied")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Oracle.Chains[0].PrimaryRPC = "https://rpc.example/v2/key"
	cfg.Postgres.Password = "pw"
	cfg.Notify.Events = []string{"arb_failed"}

	out := RedactedConfig(&cfg)
	if out.Wallet.PrivateKey != redacted || out.Postgres.Password != redacted || out.ChainA.RPCURL != redacted {
		t.Fatalf("secrets not redacted: %+v", out)
	}
	if out.Oracle.Chains[0].PrimaryRPC != redacted {
		t.Fatalf("oracle rpc not redacted")
	}
	if out.Oracle.Chains[1].FallbackRPC != "" {
		t.Fatalf("empty value replaced with placeholder")
	}
	if cfg.Wallet.PrivateKey != "0xsecret" || cfg.Oracle.Chains[0].PrimaryRPC != "https://rpc.example/v2/key" {
		t.Fatalf("original mutated")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] != "arb_failed" {
		t.Fatalf("events slice shared with original")
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "0xwallet"

	risk := cfg.Risk()
	if risk.MaxTradeAmount.Int64() != 100_000_000 || risk.MinProfit.Int64() != 1_000_000 || risk.Cooldown != 10*time.Second {
		t.Fatalf("risk = %+v", risk)
	}

	chain := cfg.ChainA.Domain()
	if chain.BaseToken.Hex() != testCPT || chain.QuoteDecimals != 6 || chain.ChainID != 84532 {
		t.Fatalf("chain = %+v", chain)
	}

	if got := cfg.OracleKey(); got.Raw != "0xwallet" {
		t.Fatalf("oracle key should fall back to the wallet, got %+v", got)
	}
	cfg.Oracle.PrivateKey = "0xoracle"
	if got := cfg.OracleKey(); got.Raw != "0xoracle" {
		t.Fatalf("oracle key = %+v", got)
	}

	b := cfg.Backend()
	if b.Remote.Amount != "100" || b.ClearNode.Allowances[0].Asset != "ytest.usd" || b.ClearNode.SessionTTL != time.Hour {
		t.Fatalf("backend = %+v", b)
	}

	if w := cfg.WatcherConfig(); w.ThresholdBps.IntPart() != 50 || w.PollInterval != 5*time.Second {
		t.Fatalf("watcher = %+v", w)
	}
}
