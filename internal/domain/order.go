package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is BUY or SELL.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// SessionStatus is the lifecycle state of a settlement session. ACTIVE moves
// to CLOSED or ERROR; neither ever returns to ACTIVE.
type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionClosed SessionStatus = "CLOSED"
	SessionError  SessionStatus = "ERROR"
)

// SessionInfo describes one session owned by a Session implementation.
// LocalOnly marks sessions tracked locally because the counterparty refused
// to host them.
type SessionInfo struct {
	ID        string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Status    SessionStatus `json:"status"`
	LocalOnly bool          `json:"local_only"`
}

// TradeOrder is an order request placed inside a session.
type TradeOrder struct {
	Side       OrderSide       `json:"side"`
	Chain      string          `json:"chain"`
	Token      string          `json:"token"`
	AmountBase *big.Int        `json:"amount_base"`
	Price      decimal.Decimal `json:"price"` // quote per base
}

// TradeResult is an executed order with simulated slippage applied.
type TradeResult struct {
	OrderID        string          `json:"order_id"`
	Order          TradeOrder      `json:"order"`
	ExecutedAmount *big.Int        `json:"executed_amount"`
	ExecutedPrice  decimal.Decimal `json:"executed_price"`
	Timestamp      time.Time       `json:"timestamp"`
}

// SessionResult summarises a closed session. Orders at even indexes are
// costs and orders at odd indexes are revenue, so callers must place the BUY
// before the SELL.
type SessionResult struct {
	SessionID      string        `json:"session_id"`
	Orders         []TradeResult `json:"orders"`
	NetProfitQuote *big.Int      `json:"net_profit_quote"`
	Duration       time.Duration `json:"duration"`
	LocalOnly      bool          `json:"local_only"`
}
