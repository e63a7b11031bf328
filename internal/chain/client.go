// Package chain reads pool prices and block gas data from EVM chains and
// submits signed contract calls.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Client is a rate-limited ethclient for one RPC endpoint.
type Client struct {
	url     string
	eth     *ethclient.Client
	limiter *rate.Limiter
}

// Dial connects to rpcURL. rps <= 0 disables rate limiting.
func Dial(ctx context.Context, rpcURL string, rps float64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		url:     rpcURL,
		eth:     eth,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Eth waits for a rate-limit token and returns the underlying client.
func (c *Client) Eth(ctx context.Context) (*ethclient.Client, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chain: rate limit %s: %w", c.url, err)
	}
	return c.eth, nil
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string {
	return c.url
}

// Close releases the connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Pool lazily dials and caches one Client per RPC URL.
type Pool struct {
	rps float64

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates an empty Pool whose clients share the same per-endpoint
// request rate.
func NewPool(rps float64) *Pool {
	return &Pool{rps: rps, clients: make(map[string]*Client)}
}

// Get returns the cached client for rpcURL, dialing it on first use.
func (p *Pool) Get(ctx context.Context, rpcURL string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[rpcURL]; ok {
		return c, nil
	}
	c, err := Dial(ctx, rpcURL, p.rps)
	if err != nil {
		return nil, err
	}
	p.clients[rpcURL] = c
	return c, nil
}

// Close closes every cached client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, c := range p.clients {
		c.Close()
		delete(p.clients, url)
	}
}
