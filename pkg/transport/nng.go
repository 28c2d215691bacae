package transport

import (
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// nngSocket wraps a mangos.Socket to implement our Socket interface.
type nngSocket struct {
	sock mangos.Socket
}

func (s *nngSocket) Send(data []byte) error {
	return s.sock.Send(data)
}

func (s *nngSocket) Recv() ([]byte, error) {
	return s.sock.Recv()
}

func (s *nngSocket) Close() error {
	return s.sock.Close()
}

func (s *nngSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (s *nngSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (s *nngSocket) Listen(addr string) error {
	return s.sock.Listen(addr)
}

func (s *nngSocket) Dial(addr string) error {
	return s.sock.DialOptions(addr, map[string]any{mangos.OptionDialAsynch: true})
}

func (s *nngSocket) OpenContext() (Socket, error) {
	ctx, err := s.sock.OpenContext()
	if err != nil {
		return nil, err
	}
	return &nngContext{ctx: ctx}, nil
}

// nngContext is one concurrent exchange on a REQ or REP socket.
type nngContext struct {
	ctx mangos.Context
}

func (c *nngContext) Send(data []byte) error {
	return c.ctx.Send(data)
}

func (c *nngContext) Recv() ([]byte, error) {
	return c.ctx.Recv()
}

func (c *nngContext) Close() error {
	return c.ctx.Close()
}

func (c *nngContext) SetRecvDeadline(d time.Duration) error {
	return c.ctx.SetOption(mangos.OptionRecvDeadline, d)
}

func (c *nngContext) SetSendDeadline(d time.Duration) error {
	return c.ctx.SetOption(mangos.OptionSendDeadline, d)
}

// NNGSocketFactory creates mangos sockets. It is the default factory.
type NNGSocketFactory struct{}

// NewNNGSocketFactory creates a new NNG socket factory.
func NewNNGSocketFactory() *NNGSocketFactory {
	return &NNGSocketFactory{}
}

func (f *NNGSocketFactory) NewRepSocket() (ListenSocket, error) {
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewReqSocket() (DialSocket, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewPushSocket() (DialSocket, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewPullSocket() (ListenSocket, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

var (
	_ SocketFactory = (*NNGSocketFactory)(nil)
	_ Contexter     = (*nngSocket)(nil)
)
