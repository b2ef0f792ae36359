// Package mesherr defines the error taxonomy shared across the tunnel
// transport: config errors, I/O errors, decode and protocol errors, connect
// timeouts, and the closed-queue/closed-stream error.
package mesherr

import "errors"

// ErrClosed is returned by Accept and tunnel reads once their underlying
// queue or stream has been terminally closed.
var ErrClosed = errors.New("meshtun: closed")

// ErrConnectTimeout is returned by Connect when the handshake deadline
// elapses without a matching SACK.
var ErrConnectTimeout = errors.New("meshtun: connect timed out waiting for sack")

// ErrNoBindAddrs is returned when every bind address in a fan-out connect
// attempt failed; the returned error wraps each attempt's own error.
var ErrNoBindAddrs = errors.New("meshtun: no bind address produced a connection")

// ConfigError wraps a configuration problem, such as a remote address that
// does not resolve.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return "meshtun: config: " + e.Op + ": " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// IoError wraps a failure of the underlying socket (bind, send, or recv).
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return "meshtun: io: " + e.Op + ": " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// DecodeError reports that a byte slice failed envelope validation. Decode
// returns it; every receive path (the listener's receive loop, the client
// tunnel's read loop, and the connector's handshake wait) logs and drops the
// datagram instead of passing it up.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "meshtun: decode: " + e.Reason }

// ProtocolError reports a handshake reply that came from the wrong address,
// carried the wrong conn id, or was not the expected payload variant.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "meshtun: protocol: " + e.Reason }
