// Package kcp is the reliable sibling to internal/tunnel's best-effort UDP
// tunnel: an ARQ session (xtaci/kcp-go) carrying one multiplexed stream
// (xtaci/smux) per logical connection, for callers that need ordered,
// lossless delivery and are willing to pay the reliability and
// re-transmission cost the core transport explicitly does not offer.
package kcp

import (
	"context"
	"net"
	"time"

	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"

	"meshtun/internal/conf"
	"meshtun/internal/mesherr"
	"meshtun/internal/pkg/buffer"
	"meshtun/internal/tunnel"
)

func smuxConfig(cfg conf.Kcp) *smux.Config {
	c := smux.DefaultConfig()
	c.Version = 2
	c.KeepAliveInterval = 1 * time.Second
	c.KeepAliveTimeout = 5 * time.Second
	c.MaxFrameSize = 65535
	c.MaxReceiveBuffer = cfg.Smuxbuf
	c.MaxStreamBuffer = cfg.Streambuf
	return c
}

// streamTunnel adapts one smux.Stream (a byte stream) to the message-oriented
// tunnel.Tunnel contract using the length-prefixed framing in
// internal/pkg/buffer (WriteUDPFrame / ReadUDPFrame).
type streamTunnel struct {
	info   tunnel.Info
	stream *smux.Stream
}

func newStreamTunnel(info tunnel.Info, s *smux.Stream) *streamTunnel {
	return &streamTunnel{info: info, stream: s}
}

func (t *streamTunnel) Info() tunnel.Info { return t.info }

func (t *streamTunnel) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		t.stream.SetReadDeadline(dl)
	} else {
		t.stream.SetReadDeadline(time.Time{})
	}
	bufp := buffer.UPool.Get().(*[]byte)
	defer buffer.UPool.Put(bufp)
	n, err := buffer.ReadUDPFrame(t.stream, *bufp)
	if err != nil {
		if isClosed(err) {
			return nil, mesherr.ErrClosed
		}
		return nil, &mesherr.IoError{Op: "kcp recv", Err: err}
	}
	return append([]byte(nil), (*bufp)[:n]...), nil
}

func (t *streamTunnel) Send(ctx context.Context, b []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		t.stream.SetWriteDeadline(dl)
	} else {
		t.stream.SetWriteDeadline(time.Time{})
	}
	if err := buffer.WriteUDPFrame(t.stream, b); err != nil {
		if isClosed(err) {
			return mesherr.ErrClosed
		}
		return &mesherr.IoError{Op: "kcp send", Err: err}
	}
	return nil
}

func (t *streamTunnel) Close() error { return t.stream.Close() }

func isClosed(err error) bool {
	if err == nil {
		return false
	}
	switch err.Error() {
	case "EOF", "broken pipe", "use of closed network connection":
		return true
	default:
		return false
	}
}

// Listener accepts one smux stream per incoming KCP session and exposes it
// as a single logical Tunnel; session-level behavior beyond that first
// stream is the caller's responsibility.
type Listener struct {
	ln  *kcpgo.Listener
	cfg conf.Kcp
}

// Listen binds a KCP listener on addr (host:port, no scheme).
func Listen(addr string, cfg conf.Kcp) (tunnel.Listener, error) {
	ln, err := kcpgo.ListenWithOptions(addr, nil, cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, &mesherr.IoError{Op: "kcp listen", Err: err}
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

func (l *Listener) LocalAddr() string { return "udp://" + l.ln.Addr().String() }

func (l *Listener) ConnCounter() tunnel.ConnCounter { return noopCounter{} }

func (l *Listener) Accept(ctx context.Context) (tunnel.Tunnel, error) {
	type result struct {
		sess *kcpgo.UDPSession
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		sess, err := l.ln.AcceptKCP()
		accepted <- result{sess, err}
	}()

	var r result
	select {
	case r = <-accepted:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, &mesherr.IoError{Op: "kcp accept", Err: r.err}
	}

	sess := r.sess
	session, err := smux.Server(sess, smuxConfig(l.cfg))
	if err != nil {
		sess.Close()
		return nil, &mesherr.IoError{Op: "smux server", Err: err}
	}
	stream, err := session.AcceptStream()
	if err != nil {
		session.Close()
		return nil, &mesherr.IoError{Op: "smux accept stream", Err: err}
	}

	info := tunnel.Info{TunnelType: "kcp", LocalAddr: l.LocalAddr(), RemoteAddr: "udp://" + sess.RemoteAddr().String()}
	return newStreamTunnel(info, stream), nil
}

func (l *Listener) Close() error {
	if err := l.ln.Close(); err != nil {
		return &mesherr.IoError{Op: "kcp listener close", Err: err}
	}
	return nil
}

// Connector dials a KCP session to a fixed remote address and opens one
// smux stream on it (the core transport's multi-bind configuration surface is mirrored here
// for parity with the core transport, minus device-level binding, which is
// specific to raw-socket egress selection and not meaningful for KCP's own
// session bootstrap).
type Connector struct {
	remote    string
	cfg       conf.Kcp
	bindAddrs []string
}

// NewConnector builds a Connector that dials remote (host:port, no scheme).
func NewConnector(remote string, cfg conf.Kcp) *Connector {
	return &Connector{remote: remote, cfg: cfg}
}

func (c *Connector) RemoteAddr() string { return "udp://" + c.remote }

func (c *Connector) SetBindAddrs(addrs []string) { c.bindAddrs = append([]string(nil), addrs...) }

func (c *Connector) Connect(ctx context.Context) (tunnel.Tunnel, error) {
	if len(c.bindAddrs) == 0 {
		return c.connectOne(ctx, "")
	}

	type result struct {
		tun tunnel.Tunnel
		err error
	}
	results := make(chan result, len(c.bindAddrs))
	for _, bind := range c.bindAddrs {
		go func(bind string) {
			tun, err := c.connectOne(ctx, bind)
			results <- result{tun, err}
		}(bind)
	}

	var firstErr error
	for range c.bindAddrs {
		r := <-results
		if r.err == nil {
			return r.tun, nil
		}
		if firstErr == nil {
			firstErr = r.err
		}
	}
	return nil, firstErr
}

func (c *Connector) connectOne(ctx context.Context, bindAddr string) (tunnel.Tunnel, error) {
	var localConn net.PacketConn
	if bindAddr != "" {
		conn, err := net.ListenPacket("udp", bindAddr)
		if err != nil {
			return nil, &mesherr.IoError{Op: "kcp bind", Err: err}
		}
		localConn = conn
	}

	raddr, err := net.ResolveUDPAddr("udp", c.remote)
	if err != nil {
		return nil, &mesherr.ConfigError{Op: "resolve remote", Err: err}
	}

	var sess *kcpgo.UDPSession
	if localConn != nil {
		sess, err = kcpgo.NewConn3(0, raddr, nil, c.cfg.DataShards, c.cfg.ParityShards, localConn)
	} else {
		sess, err = kcpgo.DialWithOptions(c.remote, nil, c.cfg.DataShards, c.cfg.ParityShards)
	}
	if err != nil {
		if localConn != nil {
			localConn.Close()
		}
		return nil, &mesherr.IoError{Op: "kcp dial", Err: err}
	}

	session, err := smux.Client(sess, smuxConfig(c.cfg))
	if err != nil {
		sess.Close()
		return nil, &mesherr.IoError{Op: "smux client", Err: err}
	}
	stream, err := session.OpenStream()
	if err != nil {
		session.Close()
		return nil, &mesherr.IoError{Op: "smux open stream", Err: err}
	}

	info := tunnel.Info{
		TunnelType: "kcp",
		LocalAddr:  "udp://" + sess.LocalAddr().String(),
		RemoteAddr: "udp://" + c.remote,
	}
	return newStreamTunnel(info, stream), nil
}

type noopCounter struct{}

func (noopCounter) Count() uint32 { return 0 }
