package domain

import "context"

// ArbResultStore journals arbitrage results. Nothing in the engine reads it
// back; it exists for operators and the status API.
type ArbResultStore interface {
	Create(ctx context.Context, result ArbitrageResult) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageResult, error)
}

// OracleUpdateStore journals successful oracle pushes.
type OracleUpdateStore interface {
	Create(ctx context.Context, update OracleUpdate) error
	LatestByChain(ctx context.Context, chain string) (OracleUpdate, error)
}
