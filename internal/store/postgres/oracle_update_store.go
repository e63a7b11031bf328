package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// OracleUpdateStore implements domain.OracleUpdateStore using PostgreSQL.
type OracleUpdateStore struct {
	pool *pgxpool.Pool
}

// NewOracleUpdateStore creates a new OracleUpdateStore.
func NewOracleUpdateStore(pool *pgxpool.Pool) *OracleUpdateStore {
	return &OracleUpdateStore{pool: pool}
}

// Create appends one successful push.
func (s *OracleUpdateStore) Create(ctx context.Context, u domain.OracleUpdate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle_updates (chain, utilization, tx_hash, used_fallback, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		u.Chain, u.Utilization, u.TxHash, u.UsedFallback, u.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert oracle_update %s: %w", u.Chain, err)
	}
	return nil
}

// LatestByChain returns the newest push for chain, or domain.ErrNotFound.
func (s *OracleUpdateStore) LatestByChain(ctx context.Context, chain string) (domain.OracleUpdate, error) {
	var u domain.OracleUpdate
	err := s.pool.QueryRow(ctx, `
		SELECT chain, utilization, tx_hash, used_fallback, updated_at
		FROM oracle_updates WHERE chain = $1
		ORDER BY updated_at DESC LIMIT 1`, chain,
	).Scan(&u.Chain, &u.Utilization, &u.TxHash, &u.UsedFallback, &u.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OracleUpdate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OracleUpdate{}, fmt.Errorf("postgres: latest oracle_update %s: %w", chain, err)
	}
	return u, nil
}

// Compile-time interface check.
var _ domain.OracleUpdateStore = (*OracleUpdateStore)(nil)
