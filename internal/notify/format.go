package notify

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// ResultEvent picks the event kind for an arbitrage result.
func ResultEvent(r domain.ArbitrageResult) string {
	switch {
	case !r.Success:
		return EventArbFailed
	case r.LocalOnly:
		return EventArbLocalOnly
	default:
		return EventArbExecuted
	}
}

// FormatResult renders an arbitrage result as a title and message body.
func FormatResult(r domain.ArbitrageResult) (title, message string) {
	s := r.Strategy
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s at %s bps\n", s.BuyChain, s.SellChain, s.SpreadBps.StringFixed(1))
	fmt.Fprintf(&b, "buy %s / sell %s\n", s.BuyPrice.StringFixed(6), s.SellPrice.StringFixed(6))
	fmt.Fprintf(&b, "expected profit %s\n", Units(s.ExpectedProfitQuote, s.QuoteDecimals))
	if r.SessionID != "" {
		fmt.Fprintf(&b, "session %s (%s)\n", r.SessionID, r.Backend)
	}

	switch ResultEvent(r) {
	case EventArbFailed:
		fmt.Fprintf(&b, "error: %s", r.Error)
		return "Arbitrage failed", b.String()
	case EventArbLocalOnly:
		fmt.Fprintf(&b, "profit %s, tracked locally only", Units(r.ActualProfitQuote, s.QuoteDecimals))
		return "Arbitrage executed (local only)", b.String()
	default:
		fmt.Fprintf(&b, "profit %s over %d orders", Units(r.ActualProfitQuote, s.QuoteDecimals), r.OrdersExecuted)
		return "Arbitrage executed", b.String()
	}
}

// FormatOracleFailure renders a failed oracle cycle.
func FormatOracleFailure(chain string, err error) (title, message string) {
	return "Oracle update failed", fmt.Sprintf("chain %s: %v", chain, err)
}

// Units formats base units of an asset with dec decimals, e.g. 97900 with 6
// decimals is "0.0979".
func Units(v *big.Int, dec int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -dec).String()
}
