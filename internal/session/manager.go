package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// cleanupTimeout bounds the close attempted after a failed execution.
const cleanupTimeout = 30 * time.Second

var (
	two      = decimal.NewFromInt(2)
	bpsScale = decimal.NewFromInt(10_000)
)

// Manager drives one strategy through a session: create, BUY, SELL, close.
type Manager struct {
	session Session
	token   string
	logger  *slog.Logger
}

// NewManager creates a Manager executing on s. token labels the traded
// asset on orders.
func NewManager(s Session, token string, logger *slog.Logger) *Manager {
	if token == "" {
		token = "CPT"
	}
	return &Manager{
		session: s,
		token:   token,
		logger:  logger.With(slog.String("component", "session_manager")),
	}
}

// Kind reports which session implementation the manager executes on.
func (m *Manager) Kind() Kind {
	return m.session.Kind()
}

// ActiveSessions lists sessions that are open right now.
func (m *Manager) ActiveSessions() []domain.SessionInfo {
	return m.session.Sessions()
}

// ExecuteArbitrage buys on the strategy's buy chain, sells on its sell chain,
// and closes the session. On any failure after the session exists it still
// attempts the close and returns the original error.
func (m *Manager) ExecuteArbitrage(ctx context.Context, strategy domain.ArbitrageStrategy) (result domain.SessionResult, err error) {
	info, err := m.session.CreateSession(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "session creation failed", slog.String("error", err.Error()))
		return domain.SessionResult{}, fmt.Errorf("session: create: %w", err)
	}
	sessionID := info.ID
	m.logger.InfoContext(ctx, "session created",
		slog.String("session_id", sessionID),
		slog.String("direction", string(strategy.Direction)),
		slog.String("kind", string(m.session.Kind())),
		slog.Bool("local_only", info.LocalOnly),
	)

	defer func() {
		if err == nil {
			return
		}
		m.logger.ErrorContext(ctx, "session execution failed, closing session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if _, cerr := m.session.CloseSession(cctx, sessionID); cerr != nil {
			m.logger.ErrorContext(ctx, "failed to close session after error",
				slog.String("session_id", sessionID),
				slog.String("error", cerr.Error()),
			)
		}
	}()

	buyPrice, sellPrice := EstimatePrices(strategy)

	buy, err := m.session.PlaceOrder(ctx, sessionID, domain.TradeOrder{
		Side:       domain.OrderSideBuy,
		Chain:      strategy.BuyChain,
		Token:      m.token,
		AmountBase: strategy.AmountBase,
		Price:      buyPrice,
	})
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("session: buy order: %w", err)
	}
	m.logger.InfoContext(ctx, "buy order executed",
		slog.String("session_id", sessionID),
		slog.String("order_id", buy.OrderID),
		slog.String("chain", strategy.BuyChain),
		slog.String("amount", buy.ExecutedAmount.String()),
		slog.String("executed_price", buy.ExecutedPrice.String()),
	)

	sell, err := m.session.PlaceOrder(ctx, sessionID, domain.TradeOrder{
		Side:       domain.OrderSideSell,
		Chain:      strategy.SellChain,
		Token:      m.token,
		AmountBase: strategy.AmountBase,
		Price:      sellPrice,
	})
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("session: sell order: %w", err)
	}
	m.logger.InfoContext(ctx, "sell order executed",
		slog.String("session_id", sessionID),
		slog.String("order_id", sell.OrderID),
		slog.String("chain", strategy.SellChain),
		slog.String("amount", sell.ExecutedAmount.String()),
		slog.String("executed_price", sell.ExecutedPrice.String()),
	)

	result, err = m.session.CloseSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("session: close: %w", err)
	}
	m.logger.InfoContext(ctx, "session closed",
		slog.String("session_id", sessionID),
		slog.String("net_profit", result.NetProfitQuote.String()),
		slog.Int("orders", len(result.Orders)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// EstimatePrices splits the strategy's spread around its mid price: the buy
// leg is quoted half the spread below mid and the sell leg half above. Mid is
// the average of the strategy's buy and sell prices, or 1 when either is
// missing.
func EstimatePrices(s domain.ArbitrageStrategy) (buy, sell decimal.Decimal) {
	mid := decimal.NewFromInt(1)
	if s.BuyPrice.IsPositive() && s.SellPrice.IsPositive() {
		mid = s.BuyPrice.Add(s.SellPrice).Div(two)
	}
	half := s.SpreadBps.Div(bpsScale).Div(two)
	one := decimal.NewFromInt(1)
	return mid.Mul(one.Sub(half)), mid.Mul(one.Add(half))
}
