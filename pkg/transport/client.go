package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	RPCAddress    string
	OneWayAddress string // optional; Invitation fails with ErrNoOneWay when empty
	Timeout       time.Duration
}

// Client talks to one remote node. It implements cluster.Peer for the
// coordination protocol and carries the replica calls as well.
type Client struct {
	cfg     ClientConfig
	factory SocketFactory

	mu     sync.Mutex // guards req and closed
	req    DialSocket
	closed bool

	pushMu sync.Mutex
	push   DialSocket
}

// NewClient creates the sockets and starts connecting in the background.
// It succeeds whether or not the remote is up.
func NewClient(cfg ClientConfig, factory SocketFactory) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	req, err := dial(factory.NewReqSocket, cfg.RPCAddress)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCAddress, err)
	}

	c := &Client{cfg: cfg, factory: factory, req: req}
	if cfg.OneWayAddress != "" {
		push, err := dial(factory.NewPushSocket, cfg.OneWayAddress)
		if err != nil {
			req.Close()
			return nil, fmt.Errorf("dial %s: %w", cfg.OneWayAddress, err)
		}
		c.push = push
	}
	return c, nil
}

func dial(newSocket func() (DialSocket, error), addr string) (DialSocket, error) {
	sock, err := newSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return sock, nil
}

// Address is the remote RPC address.
func (c *Client) Address() string { return c.cfg.RPCAddress }

// Close releases the sockets. Calls after Close fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.req.Close()
	}
	c.mu.Unlock()

	c.pushMu.Lock()
	if c.push != nil {
		c.push.Close()
		c.push = nil
	}
	c.pushMu.Unlock()
	return nil
}

// deadline is the per-call socket deadline: the client timeout, shortened
// by ctx's deadline.
func (c *Client) deadline(ctx context.Context) time.Duration {
	d := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < d {
			d = rem
		}
	}
	return d
}

func encodeRequest(method string, in any) ([]byte, error) {
	req := Request{Method: method}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	return json.Marshal(req)
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := c.deadline(ctx)
	if d <= 0 {
		return context.DeadlineExceeded
	}

	payload, err := encodeRequest(method, in)
	if err != nil {
		return err
	}
	raw, err := c.exchange(payload, d)
	if err != nil {
		return fmt.Errorf("%s to %s: %w", method, c.cfg.RPCAddress, err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s to %s: decode response: %w", method, c.cfg.RPCAddress, err)
	}
	if resp.Code != "" {
		return errorFor(resp.Code, resp.Error)
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("%s to %s: decode body: %w", method, c.cfg.RPCAddress, err)
		}
	}
	return nil
}

func (c *Client) exchange(payload []byte, d time.Duration) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	if cx, ok := c.req.(Contexter); ok {
		sc, err := cx.OpenContext()
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		defer sc.Close()
		return roundTrip(sc, payload, d)
	}

	defer c.mu.Unlock()
	data, err := roundTrip(c.req, payload, d)
	if err != nil {
		// A REQ socket that missed its reply cannot send again.
		c.resetLocked()
	}
	return data, err
}

func (c *Client) resetLocked() {
	c.req.Close()
	req, err := dial(c.factory.NewReqSocket, c.cfg.RPCAddress)
	if err != nil {
		c.closed = true
		return
	}
	c.req = req
}

func roundTrip(sock Socket, payload []byte, d time.Duration) ([]byte, error) {
	if err := sock.SetSendDeadline(d); err != nil {
		return nil, err
	}
	if err := sock.SetRecvDeadline(d); err != nil {
		return nil, err
	}
	if err := sock.Send(payload); err != nil {
		return nil, err
	}
	return sock.Recv()
}

// send delivers a one-way call. A nil error only means the message left.
func (c *Client) send(ctx context.Context, method string, in any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := c.deadline(ctx)
	if d <= 0 {
		return context.DeadlineExceeded
	}
	payload, err := encodeRequest(method, in)
	if err != nil {
		return err
	}

	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.push == nil {
		return ErrNoOneWay
	}
	if err := c.push.SetSendDeadline(d); err != nil {
		return err
	}
	if err := c.push.Send(payload); err != nil {
		return fmt.Errorf("%s to %s: %w", method, c.cfg.OneWayAddress, err)
	}
	return nil
}

// cluster.Peer

func (c *Client) AreYouCoordinator(ctx context.Context) (bool, error) {
	var r boolReply
	err := c.call(ctx, MethodAreYouCoordinator, nil, &r)
	return r.Value, err
}

func (c *Client) AreYouThere(ctx context.Context, group string, id int) (bool, error) {
	var r boolReply
	err := c.call(ctx, MethodAreYouThere, areYouThereBody{Group: group, ID: id}, &r)
	return r.Value, err
}

func (c *Client) Accept(ctx context.Context, from int, group string, forwarded []int, observer cluster.Handle, llu cluster.LogUpdate, max int) error {
	return c.call(ctx, MethodAccept, acceptBody{
		From:      from,
		Group:     group,
		Forwarded: forwarded,
		Observer:  observer,
		LLU:       llu,
		Max:       max,
	}, nil)
}

func (c *Client) Ready(ctx context.Context, from int, group string, coordinator cluster.Handle, max int, generation int64) error {
	return c.call(ctx, MethodReady, readyBody{
		From:        from,
		Group:       group,
		Coordinator: coordinator,
		Max:         max,
		Generation:  generation,
	}, nil)
}

func (c *Client) Sync(ctx context.Context) (cluster.Handle, error) {
	var r handleReply
	err := c.call(ctx, MethodSync, nil, &r)
	return r.Handle, err
}

func (c *Client) Query(ctx context.Context) (cluster.QueryInfo, error) {
	var info cluster.QueryInfo
	err := c.call(ctx, MethodQuery, nil, &info)
	return info, err
}

func (c *Client) OneWay() cluster.OneWayPeer { return c }

// Invitation is sent over the PUSH socket and does not wait for the
// remote node to act on it.
func (c *Client) Invitation(ctx context.Context, from int, group string) error {
	return c.send(ctx, MethodInvitation, invitationBody{From: from, Group: group})
}

// Replica calls

func (c *Client) Forward(ctx context.Context, u replica.Update) error {
	return c.call(ctx, MethodForward, forwardBody{Update: u}, nil)
}

func (c *Client) Apply(ctx context.Context, generation int64, llu cluster.LogUpdate, u replica.Update) error {
	return c.call(ctx, MethodApply, applyBody{Generation: generation, LLU: llu, Update: u}, nil)
}

func (c *Client) Init(ctx context.Context, from int, generation int64, llu cluster.LogUpdate, snapshot []byte) error {
	return c.call(ctx, MethodInit, initBody{From: from, Generation: generation, LLU: llu, Snapshot: snapshot}, nil)
}

func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	var r snapshotReply
	if err := c.call(ctx, MethodSnapshot, nil, &r); err != nil {
		return nil, err
	}
	return r.Snapshot, nil
}

var (
	_ cluster.Peer       = (*Client)(nil)
	_ cluster.OneWayPeer = (*Client)(nil)
)
