package oracle

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/retry"
)

// Deps reads block gas data and writes the oracle. chain.OracleClient is the
// production implementation.
type Deps interface {
	FetchBlocks(ctx context.Context, rpcURL string, window int) ([]domain.BlockGas, error)
	PushUtilization(ctx context.Context, rpcURL string, chain domain.ChainOracleConfig, utilization int, ts time.Time, key *ecdsa.PrivateKey) (string, error)
}

// RunCycle performs one update for chain. Blocks are fetched from the primary
// RPC, or once from the fallback when the primary fails; the push goes to
// whichever RPC served the blocks and is retried with opts.
func RunCycle(ctx context.Context, chain domain.ChainOracleConfig, key *ecdsa.PrivateKey, deps Deps, opts retry.Options, logger *slog.Logger) (domain.OracleUpdate, error) {
	rpcURL := chain.PrimaryRPC
	usedFallback := false

	blocks, err := deps.FetchBlocks(ctx, chain.PrimaryRPC, chain.EMAWindow)
	if err != nil {
		if chain.FallbackRPC == "" {
			return domain.OracleUpdate{}, fmt.Errorf("oracle: %s: fetch blocks: %w", chain.Name, err)
		}
		logger.WarnContext(ctx, "primary RPC failed, switching to fallback RPC",
			slog.String("chain", chain.Name),
			slog.String("error", err.Error()),
		)
		usedFallback = true
		rpcURL = chain.FallbackRPC
		blocks, err = deps.FetchBlocks(ctx, chain.FallbackRPC, chain.EMAWindow)
		if err != nil {
			return domain.OracleUpdate{}, fmt.Errorf("oracle: %s: fetch blocks from fallback: %w", chain.Name, err)
		}
	}

	utilization := CalculateEMAUtilization(blocks)
	ts := time.Now()

	txHash, err := retry.DoValue(ctx, opts, logger, "oracle push "+chain.Name, func(ctx context.Context) (string, error) {
		return deps.PushUtilization(ctx, rpcURL, chain, utilization, ts, key)
	})
	if err != nil {
		return domain.OracleUpdate{}, fmt.Errorf("oracle: %s: push: %w", chain.Name, err)
	}

	logger.InfoContext(ctx, "oracle utilization updated",
		slog.String("chain", chain.Name),
		slog.Int("utilization", utilization),
		slog.Int("blocks", len(blocks)),
		slog.String("tx_hash", txHash),
		slog.Bool("used_fallback", usedFallback),
	)
	return domain.OracleUpdate{
		Chain:        chain.Name,
		Utilization:  utilization,
		TxHash:       txHash,
		UsedFallback: usedFallback,
		RPCURL:       rpcURL,
		Timestamp:    ts,
	}, nil
}
