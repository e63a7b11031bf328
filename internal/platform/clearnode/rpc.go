package clearnode

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// Method names used on the wire.
const (
	MethodAuthRequest       = "auth_request"
	MethodAuthChallenge     = "auth_challenge"
	MethodAuthVerify        = "auth_verify"
	MethodError             = "error"
	MethodPing              = "ping"
	MethodPong              = "pong"
	MethodGetChannels       = "get_channels"
	MethodGetLedgerBalances = "get_ledger_balances"
	MethodCreateChannel     = "create_channel"
	MethodResizeChannel     = "resize_channel"
	MethodCreateAppSession  = "create_app_session"
	MethodCloseAppSession   = "close_app_session"
	MethodBalanceUpdate     = "bu"
	MethodChannelUpdate     = "cu"
)

// outbound is a request envelope. Req is the exact JSON array
// [id, method, params, timestamp] that Sig covers.
type outbound struct {
	Req json.RawMessage `json:"req"`
	Sig []string        `json:"sig"`
}

// inbound is a response or server push envelope.
type inbound struct {
	Res []json.RawMessage `json:"res"`
	Sig []string          `json:"sig,omitempty"`
}

// frame is a decoded inbound message. Params stay raw only until the typed
// method that awaited the frame decodes them.
type frame struct {
	ID        uint64
	Method    string
	Params    json.RawMessage
	Timestamp int64
}

func encodeRequest(id uint64, method string, params any, ts int64) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal([]any{id, method, params, ts})
	if err != nil {
		return nil, fmt.Errorf("clearnode: encode %s: %w", method, err)
	}
	return b, nil
}

func decodeFrame(raw []byte) (frame, error) {
	var env inbound
	if err := json.Unmarshal(raw, &env); err != nil {
		return frame{}, fmt.Errorf("clearnode: decode envelope: %w", err)
	}
	if len(env.Res) < 3 {
		return frame{}, fmt.Errorf("clearnode: malformed envelope with %d elements", len(env.Res))
	}

	var f frame
	if err := json.Unmarshal(env.Res[0], &f.ID); err != nil {
		return frame{}, fmt.Errorf("clearnode: decode request id: %w", err)
	}
	if err := json.Unmarshal(env.Res[1], &f.Method); err != nil {
		return frame{}, fmt.Errorf("clearnode: decode method: %w", err)
	}
	f.Params = env.Res[2]
	if len(env.Res) > 3 {
		_ = json.Unmarshal(env.Res[3], &f.Timestamp)
	}
	return f, nil
}

// RPCError is an error message returned by the counterparty.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("clearnode: %s: %s", e.Method, e.Message)
}

func decodeRPCError(method string, params json.RawMessage) *RPCError {
	var p struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Error == "" {
		return &RPCError{Method: method, Message: strings.TrimSpace(string(params))}
	}
	return &RPCError{Method: method, Message: p.Error}
}

// decodeList accepts either a bare JSON array or an object holding the array
// under key; the counterparty has used both shapes.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("clearnode: decode %s: %w", key, err)
	}
	inner, ok := wrapped[key]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, fmt.Errorf("clearnode: decode %s: %w", key, err)
	}
	return list, nil
}

// --------------------------------------------------------------------------
// Typed payloads
// --------------------------------------------------------------------------

type authRequestParams struct {
	Address     string             `json:"address"`
	SessionKey  string             `json:"session_key"`
	Application string             `json:"application"`
	Allowances  []crypto.Allowance `json:"allowances"`
	ExpiresAt   uint64             `json:"expires_at"`
	Scope       string             `json:"scope"`
}

type authChallengeResult struct {
	ChallengeMessage string `json:"challenge_message"`
}

type authVerifyParams struct {
	Challenge string `json:"challenge"`
}

type authVerifyResult struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
	Success    bool   `json:"success"`
	JWTToken   string `json:"jwt_token,omitempty"`
}

type participantParams struct {
	Participant string `json:"participant"`
}

type createChannelParams struct {
	ChainID int64  `json:"chain_id"`
	Token   string `json:"token"`
}

type resizeChannelParams struct {
	ChannelID        string `json:"channel_id"`
	AllocateAmount   string `json:"allocate_amount"`
	FundsDestination string `json:"funds_destination"`
}

// ChannelOperation is the counterparty's reply to create or resize: the
// channel state it expects to be submitted on chain.
type ChannelOperation struct {
	ChannelID string          `json:"channel_id"`
	State     ChannelState    `json:"state"`
	ServerSig string          `json:"server_signature,omitempty"`
	Channel   *ChannelParties `json:"channel,omitempty"`
}

// ChannelState is an off-chain channel state proposed by the counterparty.
type ChannelState struct {
	Intent      int                 `json:"intent"`
	Version     int64               `json:"version"`
	StateData   string              `json:"state_data"`
	Allocations []ChannelAllocation `json:"allocations"`
}

// ChannelAllocation is one destination's share of a channel state.
type ChannelAllocation struct {
	Destination string `json:"destination"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
}

// ChannelParties identifies a newly created channel.
type ChannelParties struct {
	Participants []string `json:"participants"`
	Adjudicator  string   `json:"adjudicator"`
	Challenge    int64    `json:"challenge"`
	Nonce        int64    `json:"nonce"`
}

// AppDefinition describes a counterparty-hosted app session.
type AppDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int    `json:"weights"`
	Quorum       int      `json:"quorum"`
	Challenge    int      `json:"challenge"`
	Nonce        int64    `json:"nonce"`
}

// Allocation assigns an amount of an asset to a participant.
type Allocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type createAppSessionParams struct {
	Definition  AppDefinition `json:"definition"`
	Allocations []Allocation  `json:"allocations"`
}

type closeAppSessionParams struct {
	AppSessionID string       `json:"app_session_id"`
	Allocations  []Allocation `json:"allocations"`
}

// decodeAppSession accepts a single object or a one-element array.
func decodeAppSession(raw json.RawMessage) (domain.AppSession, error) {
	list, err := decodeList[domain.AppSession](raw, "app_session")
	if err == nil && len(list) > 0 {
		return list[0], nil
	}
	var s domain.AppSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.AppSession{}, fmt.Errorf("clearnode: decode app session: %w", err)
	}
	return s, nil
}

// Notification is a server push that does not answer a request.
type Notification struct {
	Method   string
	Balances []domain.LedgerBalance
	Channel  *domain.ChannelInfo
}

func decodeNotification(f frame) (Notification, bool) {
	n := Notification{Method: f.Method}
	switch f.Method {
	case MethodBalanceUpdate:
		list, err := decodeList[domain.LedgerBalance](f.Params, "balance_updates")
		if err != nil {
			return n, false
		}
		n.Balances = list
	case MethodChannelUpdate:
		var ch domain.ChannelInfo
		if err := json.Unmarshal(f.Params, &ch); err != nil {
			return n, false
		}
		n.Channel = &ch
	default:
		return n, false
	}
	return n, true
}
