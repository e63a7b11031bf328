package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// stateViewABI covers the single Uniswap v4 StateView call the watcher needs.
const stateViewABI = `[{
	"name": "getSlot0",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"internalType": "PoolId", "name": "poolId", "type": "bytes32"}],
	"outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tick", "type": "int24"},
		{"name": "protocolFee", "type": "uint24"},
		{"name": "lpFee", "type": "uint24"}
	]
}]`

// priceScale is the number of fractional digits kept when converting
// sqrtPriceX96 to a decimal price.
const priceScale = 18

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// PriceReader reads pool prices through the StateView lens contract.
type PriceReader struct {
	pool *Pool
	abi  abi.ABI
	now  func() time.Time
}

// NewPriceReader creates a PriceReader that dials endpoints through pool.
func NewPriceReader(pool *Pool) (*PriceReader, error) {
	parsed, err := abi.JSON(strings.NewReader(stateViewABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse StateView ABI: %w", err)
	}
	return &PriceReader{pool: pool, abi: parsed, now: time.Now}, nil
}

// ReadPrice returns the raw slot0 state of the configured pool and its price
// in quote units per base unit.
func (r *PriceReader) ReadPrice(ctx context.Context, cfg domain.ChainConfig) (domain.ChainPrice, error) {
	client, err := r.pool.Get(ctx, cfg.RPCURL)
	if err != nil {
		return domain.ChainPrice{}, err
	}
	eth, err := client.Eth(ctx)
	if err != nil {
		return domain.ChainPrice{}, err
	}

	data, err := r.abi.Pack("getSlot0", [32]byte(cfg.PoolID))
	if err != nil {
		return domain.ChainPrice{}, fmt.Errorf("chain: pack getSlot0: %w", err)
	}
	to := cfg.StateView
	out, err := eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return domain.ChainPrice{}, fmt.Errorf("chain: %s getSlot0: %w", cfg.Name, err)
	}

	values, err := r.abi.Unpack("getSlot0", out)
	if err != nil {
		return domain.ChainPrice{}, fmt.Errorf("chain: %s unpack getSlot0: %w", cfg.Name, err)
	}
	if len(values) < 2 {
		return domain.ChainPrice{}, fmt.Errorf("chain: %s getSlot0 returned %d values", cfg.Name, len(values))
	}
	sqrtPrice, ok := values[0].(*big.Int)
	if !ok {
		return domain.ChainPrice{}, fmt.Errorf("chain: %s unexpected sqrtPriceX96 type %T", cfg.Name, values[0])
	}
	tick, ok := values[1].(*big.Int)
	if !ok {
		return domain.ChainPrice{}, fmt.Errorf("chain: %s unexpected tick type %T", cfg.Name, values[1])
	}

	return domain.ChainPrice{
		Chain:        cfg.Name,
		SqrtPriceX96: sqrtPrice,
		Tick:         int32(tick.Int64()),
		Price:        PriceFromSqrtX96(sqrtPrice, cfg.BaseIsToken0(), cfg.BaseDecimals, cfg.QuoteDecimals),
		Timestamp:    r.now(),
	}, nil
}

// PriceFromSqrtX96 converts a Uniswap sqrtPriceX96 into a human price of the
// base asset in quote units. The pool price is token1 per token0, so it is
// inverted when the base asset is token1.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, baseIsToken0 bool, baseDecimals, quoteDecimals int32) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return decimal.Zero
	}
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	num, den := squared, new(big.Int).Set(q192)
	if !baseIsToken0 {
		num, den = new(big.Int).Set(q192), squared
	}

	exp := int64(baseDecimals) - int64(quoteDecimals) + priceScale
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(exp)), nil)
	if exp >= 0 {
		num = new(big.Int).Mul(num, pow)
	} else {
		den = new(big.Int).Mul(den, pow)
	}

	scaled := new(big.Int).Quo(num, den)
	return decimal.NewFromBigInt(scaled, -priceScale)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
