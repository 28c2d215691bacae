//go:build zmq

package transport

import (
	"time"

	zmq "github.com/pebbe/zmq4"
)

// zmqSocket adapts a zmq4 socket. zmq4 sockets are not safe for concurrent
// use; the server and client serialize access to them.
type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Recv() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetSndtimeo(d)
}

// Listen binds the socket. "tcp://host:port" and "ipc://" work; zmq has no
// inproc sharing across contexts, so tests use the NNG factory.
func (s *zmqSocket) Listen(addr string) error {
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	return s.sock.Connect(addr)
}

func init() {
	factories["zmq"] = func() SocketFactory { return NewZMQSocketFactory() }
}

// ZMQSocketFactory creates ZeroMQ sockets. Build with -tags zmq.
type ZMQSocketFactory struct{}

func NewZMQSocketFactory() *ZMQSocketFactory {
	return &ZMQSocketFactory{}
}

func (f *ZMQSocketFactory) newSocket(t zmq.Type) (*zmqSocket, error) {
	sock, err := zmq.NewSocket(t)
	if err != nil {
		return nil, err
	}
	// Do not hold pending messages to dead peers at close.
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQSocketFactory) NewRepSocket() (ListenSocket, error) {
	s, err := f.newSocket(zmq.REP)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewReqSocket() (DialSocket, error) {
	s, err := f.newSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewPushSocket() (DialSocket, error) {
	s, err := f.newSocket(zmq.PUSH)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewPullSocket() (ListenSocket, error) {
	s, err := f.newSocket(zmq.PULL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ SocketFactory = (*ZMQSocketFactory)(nil)
