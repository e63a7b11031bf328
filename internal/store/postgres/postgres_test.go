package postgres

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "ghostyield", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@db:5432/ghostyield?sslmode=disable",
		},
		{
			name: "custom port",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "g", User: "u", SSLMode: "require"},
			want: "postgres://u:@db:6543/g?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
}

// testClient needs GHOSTYIELD_TEST_POSTGRES_DSN pointing at a scratch database.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("GHOSTYIELD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GHOSTYIELD_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return c
}

func TestResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore(testClient(t).Pool())

	huge, _ := new(big.Int).SetString("105263157894736842105", 10)
	now := time.Now().UTC().Truncate(time.Microsecond)
	res := domain.ArbitrageResult{
		ID:      uuid.NewString(),
		Success: true,
		Strategy: domain.ArbitrageStrategy{
			ID:                  uuid.NewString(),
			Direction:           domain.BuyASellB,
			BuyChain:            "base-sepolia",
			SellChain:           "unichain-sepolia",
			AmountBase:          huge,
			ExpectedProfitQuote: big.NewInt(10_526_315),
			SpreadBps:           decimal.NewFromInt(1000),
			BuyPrice:            decimal.RequireFromString("0.95"),
			SellPrice:           decimal.RequireFromString("1.05"),
		},
		SessionID:         "sim-session-1",
		ActualProfitQuote: big.NewInt(97_900),
		OrdersExecuted:    2,
		Backend:           "simulated",
		StartedAt:         now,
		CompletedAt:       now.Add(time.Second),
	}
	if err := store.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, res); err != nil {
		t.Fatalf("duplicate Create: %v", err)
	}

	list, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	for _, got := range list {
		if got.ID != res.ID {
			continue
		}
		if got.ActualProfitQuote.Cmp(res.ActualProfitQuote) != 0 || got.Strategy.AmountBase.Cmp(huge) != 0 {
			t.Fatalf("amounts lost precision: %+v", got)
		}
		return
	}
	t.Fatalf("result %s not listed", res.ID)
}

func TestOracleUpdateStoreLatest(t *testing.T) {
	ctx := context.Background()
	store := NewOracleUpdateStore(testClient(t).Pool())
	chain := "test-" + uuid.NewString()[:8]

	if _, err := store.LatestByChain(ctx, chain); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, util := range []int{40, 63} {
		u := domain.OracleUpdate{Chain: chain, Utilization: util, TxHash: "0xabc", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, u); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	got, err := store.LatestByChain(ctx, chain)
	if err != nil {
		t.Fatalf("LatestByChain: %v", err)
	}
	if got.Utilization != 63 {
		t.Fatalf("utilization = %d, want 63", got.Utilization)
	}
}
