// Package tunnel implements the UDP tunnel transport: a bidirectional,
// connection-oriented, framed message channel built on top of one shared
// UDP socket. See SPEC_FULL.md for the full design; this file declares the
// contract every concrete tunnel, listener, and connector satisfies.
package tunnel

import "context"

// Tunnel is the uniform upward abstraction: a labelled pair of asynchronous
// byte-message stream and sink endpoints. Recv and Send both
// respect ctx cancellation. Recv returns mesherr.ErrClosed once the tunnel's
// underlying stream has terminally ended.
type Tunnel interface {
	Info() Info
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, b []byte) error
	Close() error
}

// Listener accepts inbound logical tunnels multiplexed over one bound UDP
// socket.
type Listener interface {
	Accept(ctx context.Context) (Tunnel, error)
	Close() error
	LocalAddr() string
	ConnCounter() ConnCounter
}

// Connector dials a single logical tunnel to a remote listener.
type Connector interface {
	Connect(ctx context.Context) (Tunnel, error)
	SetBindAddrs(addrs []string)
	RemoteAddr() string
}

// ConnCounter is a cheap, eventually-consistent observer of how many
// server-side logical tunnels are currently live.
type ConnCounter interface {
	Count() uint32
}
