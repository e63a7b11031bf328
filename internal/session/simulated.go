package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// Simulated executes sessions entirely in memory.
type Simulated struct {
	*ledger
}

var _ Session = (*Simulated)(nil)

// NewSimulated creates a simulated session backend valuing orders with the
// given asset decimals.
func NewSimulated(baseDecimals, quoteDecimals int32) *Simulated {
	return &Simulated{ledger: newLedger("sim-order", baseDecimals, quoteDecimals)}
}

func (s *Simulated) Kind() Kind { return KindSimulated }

func (s *Simulated) CreateSession(context.Context) (domain.SessionInfo, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	id := fmt.Sprintf("sim-session-%d-%s", s.now().UnixMilli(), suffix)
	return s.open(id, "", false), nil
}

func (s *Simulated) PlaceOrder(_ context.Context, sessionID string, order domain.TradeOrder) (domain.TradeResult, error) {
	return s.place(sessionID, order)
}

func (s *Simulated) CloseSession(_ context.Context, sessionID string) (domain.SessionResult, error) {
	res, _, err := s.close(sessionID)
	return res, err
}

func (s *Simulated) Session(sessionID string) (domain.SessionInfo, bool) {
	return s.get(sessionID)
}

func (s *Simulated) Sessions() []domain.SessionInfo {
	return s.list()
}
