package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ChainConfig is the static identity of one execution environment. It is
// immutable after load.
type ChainConfig struct {
	Name          string
	ChainID       int64
	RPCURL        string
	StateView     common.Address
	PoolID        common.Hash
	BaseToken     common.Address // CPT
	QuoteToken    common.Address // USDC
	OracleAddress common.Address
	BaseDecimals  int32
	QuoteDecimals int32
}

// BaseIsToken0 reports whether the base asset sorts first in the pool, which
// decides the orientation of sqrtPriceX96.
func (c ChainConfig) BaseIsToken0() bool {
	return c.BaseToken.Cmp(c.QuoteToken) < 0
}

// ChainPrice is one chain's price reading.
type ChainPrice struct {
	Chain        string          `json:"chain"`
	SqrtPriceX96 *big.Int        `json:"sqrt_price_x96"`
	Tick         int32           `json:"tick"`
	Price        decimal.Decimal `json:"price"` // quote per base
	Timestamp    time.Time       `json:"timestamp"`
}

// PriceSnapshot pairs both chains' readings with the spread between them.
type PriceSnapshot struct {
	ChainA    ChainPrice      `json:"chain_a"`
	ChainB    ChainPrice      `json:"chain_b"`
	SpreadBps decimal.Decimal `json:"spread_bps"`
	Timestamp time.Time       `json:"timestamp"`
}

// Direction names the cheaper side of a discrepancy.
type Direction string

const (
	DirectionACheaper Direction = "A_CHEAPER"
	DirectionBCheaper Direction = "B_CHEAPER"
)

// PriceDiscrepancy is raised once per poll when the spread crosses the
// configured threshold.
type PriceDiscrepancy struct {
	Snapshot  PriceSnapshot `json:"snapshot"`
	Direction Direction     `json:"direction"`
	Timestamp time.Time     `json:"timestamp"`
}
