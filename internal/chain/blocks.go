package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// BlockReader samples recent block headers.
type BlockReader struct {
	pool *Pool
}

// NewBlockReader creates a BlockReader that dials endpoints through pool.
func NewBlockReader(pool *Pool) *BlockReader {
	return &BlockReader{pool: pool}
}

// FetchRecentBlocks returns the gas usage of the n most recent blocks on
// rpcURL, oldest first.
func (r *BlockReader) FetchRecentBlocks(ctx context.Context, rpcURL string, n int) ([]domain.BlockGas, error) {
	if n <= 0 {
		return nil, nil
	}
	client, err := r.pool.Get(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	eth, err := client.Eth(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: latest header: %w", err)
	}

	head := latest.Number.Uint64()
	count := uint64(n)
	if count > head+1 {
		count = head + 1
	}

	blocks := make([]domain.BlockGas, count)
	blocks[count-1] = domain.BlockGas{Number: head, GasUsed: latest.GasUsed, GasLimit: latest.GasLimit}
	for i := uint64(1); i < count; i++ {
		num := head - i
		eth, err := client.Eth(ctx)
		if err != nil {
			return nil, err
		}
		h, err := eth.HeaderByNumber(ctx, new(big.Int).SetUint64(num))
		if err != nil {
			return nil, fmt.Errorf("chain: header %d: %w", num, err)
		}
		blocks[count-1-i] = domain.BlockGas{Number: num, GasUsed: h.GasUsed, GasLimit: h.GasLimit}
	}
	return blocks, nil
}
