package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// ResultStore implements domain.ArbResultStore using PostgreSQL. Amounts are
// NUMERIC(78,0) and travel as decimal text so no uint256 loses precision.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Create inserts one result. Re-recording the same result id is a no-op.
func (s *ResultStore) Create(ctx context.Context, r domain.ArbitrageResult) error {
	strategyJSON, err := json.Marshal(r.Strategy)
	if err != nil {
		return fmt.Errorf("postgres: marshal strategy: %w", err)
	}

	var actual *string
	if r.ActualProfitQuote != nil {
		v := r.ActualProfitQuote.String()
		actual = &v
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO arbitrage_results (
			id, strategy_id, success, direction, buy_chain, sell_chain,
			amount_base, expected_profit, actual_profit, spread_bps, buy_price, sell_price,
			session_id, orders_executed, error, local_only, backend, strategy,
			started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric,
			$13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Strategy.ID, r.Success, string(r.Strategy.Direction), r.Strategy.BuyChain, r.Strategy.SellChain,
		bigText(r.Strategy.AmountBase), bigText(r.Strategy.ExpectedProfitQuote), actual,
		r.Strategy.SpreadBps.String(), r.Strategy.BuyPrice.String(), r.Strategy.SellPrice.String(),
		r.SessionID, r.OrdersExecuted, r.Error, r.LocalOnly, r.Backend, strategyJSON,
		r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arbitrage_result %s: %w", r.ID, err)
	}
	return nil
}

// ListRecent returns the newest results first. A non-positive limit means 50.
func (s *ResultStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, success, actual_profit::text, session_id, orders_executed, error,
		       local_only, backend, strategy, started_at, completed_at
		FROM arbitrage_results ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arbitrage_results: %w", err)
	}
	return pgx.CollectRows(rows, scanResult)
}

func scanResult(row pgx.CollectableRow) (domain.ArbitrageResult, error) {
	var (
		r            domain.ArbitrageResult
		actual       *string
		strategyJSON []byte
	)
	if err := row.Scan(&r.ID, &r.Success, &actual, &r.SessionID, &r.OrdersExecuted, &r.Error,
		&r.LocalOnly, &r.Backend, &strategyJSON, &r.StartedAt, &r.CompletedAt); err != nil {
		return domain.ArbitrageResult{}, fmt.Errorf("postgres: scan arbitrage_result: %w", err)
	}
	if err := json.Unmarshal(strategyJSON, &r.Strategy); err != nil {
		return domain.ArbitrageResult{}, fmt.Errorf("postgres: decode strategy %s: %w", r.ID, err)
	}
	if actual != nil {
		v, ok := new(big.Int).SetString(*actual, 10)
		if !ok {
			return domain.ArbitrageResult{}, fmt.Errorf("postgres: result %s: bad actual_profit %q", r.ID, *actual)
		}
		r.ActualProfitQuote = v
	}
	return r, nil
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Compile-time interface check.
var _ domain.ArbResultStore = (*ResultStore)(nil)
