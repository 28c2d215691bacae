package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// ErrEmptyHandle is returned for calls addressed to an empty handle.
var ErrEmptyHandle = errors.New("empty replica handle")

// Pool reaches replicas by handle. A handle is the replica's RPC address;
// clients are dialed on first use and reused after that.
type Pool struct {
	factory SocketFactory
	timeout time.Duration

	mu      sync.Mutex
	clients map[cluster.Handle]*Client
	closed  bool
}

// NewPool creates an empty pool.
func NewPool(factory SocketFactory, timeout time.Duration) *Pool {
	return &Pool{
		factory: factory,
		timeout: timeout,
		clients: make(map[cluster.Handle]*Client),
	}
}

// Register shares an existing client, so replica calls to a peer reuse the
// sockets its coordination client already opened.
func (p *Pool) Register(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[cluster.Handle(c.Address())] = c
}

func (p *Pool) client(h cluster.Handle) (*Client, error) {
	if h == "" {
		return nil, ErrEmptyHandle
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if c, ok := p.clients[h]; ok {
		return c, nil
	}
	c, err := NewClient(ClientConfig{RPCAddress: string(h), Timeout: p.timeout}, p.factory)
	if err != nil {
		return nil, err
	}
	p.clients[h] = c
	return c, nil
}

// Close closes every client in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, c := range p.clients {
		c.Close()
	}
	return nil
}

func (p *Pool) Forward(ctx context.Context, to cluster.Handle, u replica.Update) error {
	c, err := p.client(to)
	if err != nil {
		return err
	}
	return c.Forward(ctx, u)
}

func (p *Pool) Apply(ctx context.Context, to cluster.Handle, generation int64, llu cluster.LogUpdate, u replica.Update) error {
	c, err := p.client(to)
	if err != nil {
		return err
	}
	return c.Apply(ctx, generation, llu, u)
}

func (p *Pool) Init(ctx context.Context, to cluster.Handle, from int, generation int64, llu cluster.LogUpdate, snapshot []byte) error {
	c, err := p.client(to)
	if err != nil {
		return err
	}
	return c.Init(ctx, from, generation, llu, snapshot)
}

func (p *Pool) Snapshot(ctx context.Context, from cluster.Handle) ([]byte, error) {
	c, err := p.client(from)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(ctx)
}

var _ replica.Remote = (*Pool)(nil)
