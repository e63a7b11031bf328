// Package clearnode is a websocket client for a ClearNode settlement
// counterparty. It authenticates a wallet with an EIP-712 challenge, then
// signs every request with an ephemeral session key and matches responses to
// requests by id.
package clearnode

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// State is the handshake state of the client.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Config holds the connection and authentication parameters.
type Config struct {
	URL            string
	Application    string
	Scope          string
	Allowances     []crypto.Allowance
	SessionTTL     time.Duration
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	ChannelTimeout time.Duration
}

// DefaultConfig returns the sandbox endpoint and the timeouts the
// counterparty expects.
func DefaultConfig() Config {
	return Config{
		URL:            "wss://clearnet-sandbox.yellow.com/ws",
		Application:    "ghost-yield",
		Scope:          "console",
		Allowances:     []crypto.Allowance{{Asset: "ytest.usd", Amount: "1000000000"}},
		SessionTTL:     time.Hour,
		ConnectTimeout: 15 * time.Second,
		RequestTimeout: 15 * time.Second,
		ChannelTimeout: 30 * time.Second,
	}
}

// Client owns one websocket connection and the session key bound to it.
type Client struct {
	cfg    Config
	wallet *crypto.Signer
	logger *slog.Logger

	connectMu sync.Mutex // serializes Connect

	mu         sync.Mutex
	conn       *websocket.Conn
	connDone   chan struct{} // closed when the current connection ends
	sessionKey *crypto.Signer
	state      State
	closed     bool

	writeMu sync.Mutex

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan frame
	authCh    chan frame // unsolicited handshake frames

	handlerMu sync.RWMutex
	handlers  []func(Notification)

	now func() time.Time
}

// NewClient creates a disconnected client for the given wallet key.
func NewClient(cfg Config, wallet *ecdsa.PrivateKey, logger *slog.Logger) (*Client, error) {
	if wallet == nil {
		return nil, fmt.Errorf("clearnode: %w", domain.ErrMissingKey)
	}
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Application == "" {
		cfg.Application = def.Application
	}
	if cfg.Scope == "" {
		cfg.Scope = def.Scope
	}
	if cfg.Allowances == nil {
		cfg.Allowances = def.Allowances
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = def.ChannelTimeout
	}

	c := &Client{
		cfg:     cfg,
		wallet:  crypto.NewSigner(wallet),
		logger:  logger.With(slog.String("component", "clearnode")),
		pending: make(map[uint64]chan frame),
		authCh:  make(chan frame, 4),
		now:     time.Now,
	}
	c.nextID.Store(uint64(time.Now().UnixMilli()))
	return c, nil
}

// Address returns the wallet address the client authenticates as.
func (c *Client) Address() common.Address {
	return c.wallet.Address()
}

// SessionKeyAddress returns the current ephemeral session key address, or
// the zero address before the first connect.
func (c *Client) SessionKeyAddress() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionKey == nil {
		return common.Address{}
	}
	return c.sessionKey.Address()
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the client is authenticated.
func (c *Client) Ready() bool {
	return c.State() == StateAuthenticated
}

// OnNotification registers a handler for server pushes such as balance and
// channel updates. Handlers run on the read goroutine.
func (c *Client) OnNotification(h func(Notification)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Connect dials the counterparty and runs the authentication handshake. It
// returns nil immediately when already authenticated. The whole handshake is
// bounded by the configured connect timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("clearnode: %w", domain.ErrClientClosed)
	}
	if c.state == StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	sessionKey, err := crypto.GenerateSigner()
	if err != nil {
		return fmt.Errorf("clearnode: session key: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("clearnode: connect: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connDone = done
	c.sessionKey = sessionKey
	c.state = StateConnected
	c.mu.Unlock()
	c.drainAuth()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	c.logger.InfoContext(ctx, "connected, authenticating",
		slog.String("url", c.cfg.URL),
		slog.String("wallet", c.wallet.Address().Hex()),
		slog.String("session_key", sessionKey.Address().Hex()),
	)

	if err := c.authenticate(ctx, sessionKey, done); err != nil {
		c.teardown(conn, websocket.CloseNormalClosure, "authentication failed")
		return err
	}

	c.mu.Lock()
	if c.conn == conn {
		c.state = StateAuthenticated
	}
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "authenticated", slog.String("wallet", c.wallet.Address().Hex()))
	return nil
}

func (c *Client) authenticate(ctx context.Context, sessionKey *crypto.Signer, done <-chan struct{}) error {
	expiresAt := uint64(c.now().Add(c.cfg.SessionTTL).Unix())
	req := authRequestParams{
		Address:     c.wallet.Address().Hex(),
		SessionKey:  sessionKey.Address().Hex(),
		Application: c.cfg.Application,
		Allowances:  c.cfg.Allowances,
		ExpiresAt:   expiresAt,
		Scope:       c.cfg.Scope,
	}

	f, err := c.handshakeStep(ctx, done, MethodAuthRequest, req, nil)
	if err != nil {
		return err
	}
	if f.Method != MethodAuthChallenge {
		return fmt.Errorf("clearnode: auth: unexpected %q while waiting for challenge", f.Method)
	}
	var challenge authChallengeResult
	if err := json.Unmarshal(f.Params, &challenge); err != nil {
		return fmt.Errorf("clearnode: auth: decode challenge: %w", err)
	}

	sig, err := c.wallet.SignPolicy(c.cfg.Application, crypto.Policy{
		Challenge:  challenge.ChallengeMessage,
		Scope:      c.cfg.Scope,
		Wallet:     c.wallet.Address(),
		SessionKey: sessionKey.Address(),
		ExpiresAt:  expiresAt,
		Allowances: c.cfg.Allowances,
	})
	if err != nil {
		return fmt.Errorf("clearnode: auth: %w", err)
	}

	f, err = c.handshakeStep(ctx, done, MethodAuthVerify, authVerifyParams{Challenge: challenge.ChallengeMessage}, []string{sig})
	if err != nil {
		return err
	}
	if f.Method != MethodAuthVerify {
		return fmt.Errorf("clearnode: auth: unexpected %q while waiting for verification", f.Method)
	}
	var verified authVerifyResult
	if err := json.Unmarshal(f.Params, &verified); err != nil {
		return fmt.Errorf("clearnode: auth: decode verification: %w", err)
	}
	if !verified.Success {
		return fmt.Errorf("clearnode: auth: verification rejected")
	}
	return nil
}

// handshakeStep sends one handshake message and waits for either the
// response to it or any unsolicited handshake frame. Error frames fail the
// step.
func (c *Client) handshakeStep(ctx context.Context, done <-chan struct{}, method string, params any, sig []string) (frame, error) {
	id, ch, err := c.send(method, params, sig)
	if err != nil {
		return frame{}, err
	}
	defer c.forget(id)

	var f frame
	select {
	case f = <-ch:
	case f = <-c.authCh:
	case <-done:
		return frame{}, fmt.Errorf("clearnode: auth: %w", domain.ErrNotConnected)
	case <-ctx.Done():
		return frame{}, fmt.Errorf("clearnode: auth: %w", domain.ErrTimeout)
	}
	if f.Method == MethodError {
		return frame{}, fmt.Errorf("clearnode: auth failed: %w", decodeRPCError(method, f.Params))
	}
	return f, nil
}

// call sends a session-key-signed request and waits for the response with
// the same id.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration, accept ...string) (frame, error) {
	c.mu.Lock()
	state, key, done := c.state, c.sessionKey, c.connDone
	c.mu.Unlock()
	if state != StateAuthenticated {
		return frame{}, fmt.Errorf("clearnode: %s: %w", method, domain.ErrNotAuthenticated)
	}

	id, ch, err := c.sendSigned(method, params, key)
	if err != nil {
		return frame{}, err
	}
	defer c.forget(id)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case f := <-ch:
		if f.Method == MethodError {
			return frame{}, decodeRPCError(method, f.Params)
		}
		if len(accept) == 0 {
			accept = []string{method}
		}
		for _, m := range accept {
			if f.Method == m {
				return f, nil
			}
		}
		return frame{}, fmt.Errorf("clearnode: %s: unexpected response %q", method, f.Method)
	case <-done:
		return frame{}, fmt.Errorf("clearnode: %s: %w", method, domain.ErrNotConnected)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return frame{}, fmt.Errorf("clearnode: %s: %w", method, domain.ErrTimeout)
		}
		return frame{}, fmt.Errorf("clearnode: %s: %w", method, ctx.Err())
	}
}

func (c *Client) send(method string, params any, sig []string) (uint64, chan frame, error) {
	id := c.nextID.Add(1)
	payload, err := encodeRequest(id, method, params, c.now().UnixMilli())
	if err != nil {
		return 0, nil, err
	}
	if sig == nil {
		sig = []string{}
	}
	ch := c.register(id)
	if err := c.write(outbound{Req: payload, Sig: sig}); err != nil {
		c.forget(id)
		return 0, nil, fmt.Errorf("clearnode: send %s: %w", method, err)
	}
	return id, ch, nil
}

func (c *Client) sendSigned(method string, params any, key *crypto.Signer) (uint64, chan frame, error) {
	id := c.nextID.Add(1)
	payload, err := encodeRequest(id, method, params, c.now().UnixMilli())
	if err != nil {
		return 0, nil, err
	}
	sig, err := key.SignPayload(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("clearnode: sign %s: %w", method, err)
	}
	ch := c.register(id)
	if err := c.write(outbound{Req: payload, Sig: []string{sig}}); err != nil {
		c.forget(id)
		return 0, nil, fmt.Errorf("clearnode: send %s: %w", method, err)
	}
	return id, ch, nil
}

func (c *Client) register(id uint64) chan frame {
	ch := make(chan frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) forget(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) write(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close disconnects with a normal closure. It is safe to call repeatedly and
// on a client that never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.teardown(conn, websocket.CloseNormalClosure, "client disconnect")
	}
	c.logger.Info("disconnected")
	return nil
}

// teardown closes conn if it is still the current connection and resets the
// handshake state.
func (c *Client) teardown(conn *websocket.Conn, code int, reason string) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	done := c.connDone
	c.connDone = nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()
	_ = conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.logger.Warn("connection lost", slog.String("error", err.Error()))
			}
			c.teardown(conn, websocket.CloseGoingAway, "read error")
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// dispatch routes an inbound frame to the waiting call, the handshake, or
// the notification handlers.
func (c *Client) dispatch(raw []byte) {
	f, err := decodeFrame(raw)
	if err != nil {
		c.logger.Debug("dropping undecodable message", slog.String("error", err.Error()))
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- f
		return
	}

	if c.State() == StateConnected {
		switch f.Method {
		case MethodAuthChallenge, MethodAuthVerify, MethodError:
			select {
			case c.authCh <- f:
			default:
			}
			return
		}
	}

	if f.Method == MethodError {
		c.logger.Warn("unsolicited error", slog.String("error", decodeRPCError("", f.Params).Message))
		return
	}

	n, ok := decodeNotification(f)
	if !ok {
		c.logger.Debug("unhandled message", slog.String("method", f.Method), slog.Uint64("id", f.ID))
		return
	}
	c.handlerMu.RLock()
	handlers := c.handlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

func (c *Client) drainAuth() {
	for {
		select {
		case <-c.authCh:
		default:
			return
		}
	}
}
