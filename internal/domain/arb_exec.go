package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection names which chain is bought and which is sold.
type TradeDirection string

const (
	BuyASellB TradeDirection = "BUY_A_SELL_B"
	BuyBSellA TradeDirection = "BUY_B_SELL_A"
)

// ArbitrageStrategy is derived from a discrepancy and never mutated after
// creation.
type ArbitrageStrategy struct {
	ID                  string          `json:"id"`
	Direction           TradeDirection  `json:"direction"`
	BuyChain            string          `json:"buy_chain"`
	SellChain           string          `json:"sell_chain"`
	AmountBase          *big.Int        `json:"amount_base"`
	ExpectedProfitQuote *big.Int        `json:"expected_profit_quote"`
	SpreadBps           decimal.Decimal `json:"spread_bps"`
	BuyPrice            decimal.Decimal `json:"buy_price"`
	SellPrice           decimal.Decimal `json:"sell_price"`
	BaseDecimals        int32           `json:"base_decimals"`
	QuoteDecimals       int32           `json:"quote_decimals"`
	DetectedAt          time.Time       `json:"detected_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RiskConfig holds the process-wide gates applied by the arbitrage engine.
// Amounts are in quote-asset base units (USDC has 6 decimals).
type RiskConfig struct {
	MaxTradeAmount        *big.Int
	MinProfit             *big.Int
	MaxConcurrentSessions int
	Cooldown              time.Duration
}

// ArbitrageResult is the outcome of one executed strategy.
type ArbitrageResult struct {
	ID                string            `json:"id"`
	Success           bool              `json:"success"`
	Strategy          ArbitrageStrategy `json:"strategy"`
	SessionID         string            `json:"session_id,omitempty"`
	ActualProfitQuote *big.Int          `json:"actual_profit_quote,omitempty"`
	OrdersExecuted    int               `json:"orders_executed"`
	Error             string            `json:"error,omitempty"`
	LocalOnly         bool              `json:"local_only"`
	Backend           string            `json:"backend,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
}
