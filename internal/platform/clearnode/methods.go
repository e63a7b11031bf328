package clearnode

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// AppProtocol is the app definition protocol used for arbitrage sessions.
const AppProtocol = "payment-app-v1"

// invoke performs a call and decodes its result into T.
func invoke[T any](ctx context.Context, c *Client, method string, params any, timeout time.Duration, accept ...string) (T, error) {
	var out T
	f, err := c.call(ctx, method, params, timeout, accept...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(f.Params, &out); err != nil {
		return out, fmt.Errorf("clearnode: decode %s: %w", method, err)
	}
	return out, nil
}

// GetChannels lists the wallet's funding channels.
func (c *Client) GetChannels(ctx context.Context) ([]domain.ChannelInfo, error) {
	f, err := c.call(ctx, MethodGetChannels, participantParams{Participant: c.Address().Hex()}, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.ChannelInfo](f.Params, "channels")
}

// GetLedgerBalances returns the ledger balances of participant, or of the
// wallet when participant is the zero address.
func (c *Client) GetLedgerBalances(ctx context.Context, participant common.Address) ([]domain.LedgerBalance, error) {
	if participant == (common.Address{}) {
		participant = c.Address()
	}
	f, err := c.call(ctx, MethodGetLedgerBalances, participantParams{Participant: participant.Hex()}, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.LedgerBalance](f.Params, "ledger_balances")
}

// CreateChannel asks the counterparty to prepare a channel for token on
// chainID. The returned state still has to be submitted on chain.
func (c *Client) CreateChannel(ctx context.Context, chainID int64, token common.Address) (ChannelOperation, error) {
	return invoke[ChannelOperation](ctx, c, MethodCreateChannel,
		createChannelParams{ChainID: chainID, Token: token.Hex()}, c.cfg.ChannelTimeout)
}

// ResizeChannel asks the counterparty to move amount into a channel.
func (c *Client) ResizeChannel(ctx context.Context, channelID common.Hash, amount *big.Int, fundsDestination common.Address) (ChannelOperation, error) {
	if amount == nil {
		return ChannelOperation{}, fmt.Errorf("clearnode: resize_channel: nil amount")
	}
	return invoke[ChannelOperation](ctx, c, MethodResizeChannel, resizeChannelParams{
		ChannelID:        channelID.Hex(),
		AllocateAmount:   amount.String(),
		FundsDestination: fundsDestination.Hex(),
	}, c.cfg.ChannelTimeout)
}

// CreateAppSession opens a two-party app session funded with amount of asset
// from the wallet.
func (c *Client) CreateAppSession(ctx context.Context, counterparty common.Address, asset, amount string) (domain.AppSession, error) {
	self := c.Address().Hex()
	other := counterparty.Hex()
	params := []createAppSessionParams{{
		Definition: AppDefinition{
			Protocol:     AppProtocol,
			Participants: []string{self, other},
			Weights:      []int{50, 50},
			Quorum:       100,
			Challenge:    0,
			Nonce:        c.now().UnixMilli(),
		},
		Allocations: []Allocation{
			{Participant: self, Asset: asset, Amount: amount},
			{Participant: other, Asset: asset, Amount: "0"},
		},
	}}

	f, err := c.call(ctx, MethodCreateAppSession, params, c.cfg.RequestTimeout,
		MethodCreateAppSession, "app_session")
	if err != nil {
		return domain.AppSession{}, err
	}
	s, err := decodeAppSession(f.Params)
	if err != nil {
		return domain.AppSession{}, err
	}
	if s.AppSessionID == "" {
		return domain.AppSession{}, fmt.Errorf("clearnode: create_app_session: empty app_session_id")
	}
	return s, nil
}

// CloseAppSession closes an app session with the given final allocations.
func (c *Client) CloseAppSession(ctx context.Context, appSessionID string, allocations []Allocation) error {
	if allocations == nil {
		allocations = []Allocation{}
	}
	params := []closeAppSessionParams{{AppSessionID: appSessionID, Allocations: allocations}}
	_, err := c.call(ctx, MethodCloseAppSession, params, c.cfg.RequestTimeout)
	return err
}

// Ping checks that the authenticated connection is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodPing, nil, c.cfg.RequestTimeout, MethodPong, MethodPing)
	return err
}
