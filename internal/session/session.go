// Package session executes arbitrage strategies inside settlement sessions.
// A Session is either a deterministic simulation or a remote app session on
// the ClearNode counterparty; both keep the same local ledger of orders.
package session

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// Kind identifies a Session implementation.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindRemote    Kind = "remote"
)

// Session is the lifecycle contract shared by every implementation:
// create, place orders, close.
type Session interface {
	CreateSession(ctx context.Context) (domain.SessionInfo, error)
	PlaceOrder(ctx context.Context, sessionID string, order domain.TradeOrder) (domain.TradeResult, error)
	CloseSession(ctx context.Context, sessionID string) (domain.SessionResult, error)
	Session(sessionID string) (domain.SessionInfo, bool)
	Sessions() []domain.SessionInfo
	Kind() Kind
}

var (
	buySlippage  = decimal.RequireFromString("1.001")
	sellSlippage = decimal.RequireFromString("0.999")
)

type entry struct {
	info     domain.SessionInfo
	orders   []domain.TradeResult
	remoteID string
}

// ledger is the in-memory session registry both implementations use.
type ledger struct {
	orderPrefix   string
	baseDecimals  int32
	quoteDecimals int32
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	orderSeq uint64
}

// newLedger values orders at the given decimals; zero is a valid scale.
// Negative decimals select the defaults of 18 and 6.
func newLedger(orderPrefix string, baseDecimals, quoteDecimals int32) *ledger {
	if baseDecimals < 0 {
		baseDecimals = 18
	}
	if quoteDecimals < 0 {
		quoteDecimals = 6
	}
	return &ledger{
		orderPrefix:   orderPrefix,
		baseDecimals:  baseDecimals,
		quoteDecimals: quoteDecimals,
		now:           time.Now,
		sessions:      make(map[string]*entry),
	}
}

func (l *ledger) open(id, remoteID string, localOnly bool) domain.SessionInfo {
	info := domain.SessionInfo{
		ID:        id,
		CreatedAt: l.now(),
		Status:    domain.SessionActive,
		LocalOnly: localOnly,
	}
	l.mu.Lock()
	l.sessions[id] = &entry{info: info, remoteID: remoteID}
	l.mu.Unlock()
	return info
}

func (l *ledger) place(id string, order domain.TradeOrder) (domain.TradeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.sessions[id]
	if !ok {
		return domain.TradeResult{}, fmt.Errorf("session: %s: %w", id, domain.ErrSessionNotFound)
	}
	if e.info.Status != domain.SessionActive {
		return domain.TradeResult{}, fmt.Errorf("session: %s (status %s): %w", id, e.info.Status, domain.ErrSessionInactive)
	}
	if order.AmountBase == nil || order.AmountBase.Sign() <= 0 {
		return domain.TradeResult{}, fmt.Errorf("session: amount must be positive: %w", domain.ErrInvalidOrder)
	}
	if !order.Price.IsPositive() {
		return domain.TradeResult{}, fmt.Errorf("session: price must be positive: %w", domain.ErrInvalidOrder)
	}

	slip := buySlippage
	if order.Side == domain.OrderSideSell {
		slip = sellSlippage
	}
	l.orderSeq++
	res := domain.TradeResult{
		OrderID:        fmt.Sprintf("%s-%d", l.orderPrefix, l.orderSeq),
		Order:          order,
		ExecutedAmount: new(big.Int).Set(order.AmountBase),
		ExecutedPrice:  order.Price.Mul(slip),
		Timestamp:      l.now(),
	}
	e.orders = append(e.orders, res)
	return res, nil
}

// close marks the session CLOSED, removes it, and returns the summary along
// with the entry so callers can release remote state.
func (l *ledger) close(id string) (domain.SessionResult, *entry, error) {
	l.mu.Lock()
	e, ok := l.sessions[id]
	if ok {
		delete(l.sessions, id)
	}
	l.mu.Unlock()
	if !ok {
		return domain.SessionResult{}, nil, fmt.Errorf("session: %s: %w", id, domain.ErrSessionNotFound)
	}

	e.info.Status = domain.SessionClosed
	return domain.SessionResult{
		SessionID:      id,
		Orders:         e.orders,
		NetProfitQuote: NetProfit(e.orders, l.baseDecimals, l.quoteDecimals),
		Duration:       l.now().Sub(e.info.CreatedAt),
		LocalOnly:      e.info.LocalOnly,
	}, e, nil
}

func (l *ledger) get(id string) (domain.SessionInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.sessions[id]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return e.info, true
}

func (l *ledger) list() []domain.SessionInfo {
	l.mu.Lock()
	out := make([]domain.SessionInfo, 0, len(l.sessions))
	for _, e := range l.sessions {
		out = append(out, e.info)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// NetProfit values each order as amount * round(price * 10^quoteDecimals) /
// 10^baseDecimals, counts even indexes as cost and odd indexes as revenue,
// and returns the difference in quote base units.
func NetProfit(orders []domain.TradeResult, baseDecimals, quoteDecimals int32) *big.Int {
	baseScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(baseDecimals)), nil)
	net := new(big.Int)
	for i, o := range orders {
		price := o.ExecutedPrice.Shift(quoteDecimals).Round(0).BigInt()
		value := new(big.Int).Mul(o.ExecutedAmount, price)
		value.Quo(value, baseScale)
		if i%2 == 0 {
			net.Sub(net, value)
		} else {
			net.Add(net, value)
		}
	}
	return net
}
