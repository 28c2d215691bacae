// Package transport carries coordination and replica RPCs between nodes.
// Synchronous calls use REQ/REP sockets and one-way calls PUSH/PULL; the
// socket implementation is pluggable behind SocketFactory.
package transport

import (
	"io"
	"time"
)

// Socket represents a messaging socket that can send and receive messages.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that can bind to an address and accept connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that can connect to a remote address. Dial does
// not wait for the remote end to exist.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// Contexter is implemented by sockets that can run several request/reply
// exchanges at once, each on its own context.
type Contexter interface {
	OpenContext() (Socket, error)
}

// SocketFactory creates sockets for the patterns the transport uses.
type SocketFactory interface {
	NewRepSocket() (ListenSocket, error)
	NewReqSocket() (DialSocket, error)
	NewPushSocket() (DialSocket, error)
	NewPullSocket() (ListenSocket, error)
}
