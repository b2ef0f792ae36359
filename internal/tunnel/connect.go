package tunnel

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"syscall"
	"time"

	"meshtun/internal/flog"
	"meshtun/internal/mesherr"
)

// handshakeDeadline is the default overall SACK wait used when NewConnector
// is given a zero timeout; there is no SYN retransmission inside it, by
// design.
const handshakeDeadline = 3 * time.Second

// connector is the concrete Connector.
type connector struct {
	remoteURL        *url.URL
	handshakeTimeout time.Duration

	mu        sync.Mutex
	bindAddrs []string
}

// NewConnector builds a Connector that dials remote, a "udp://host:port"
// URL. handshakeTimeout overrides the default SACK wait (handshakeDeadline);
// a zero or negative value keeps the default.
func NewConnector(remote *url.URL, handshakeTimeout time.Duration) Connector {
	if handshakeTimeout <= 0 {
		handshakeTimeout = handshakeDeadline
	}
	return &connector{remoteURL: remote, handshakeTimeout: handshakeTimeout}
}

func (c *connector) RemoteAddr() string { return c.remoteURL.String() }

// SetBindAddrs implements the connector's configuration surface. An
// empty list restores the default unspecified-bind behavior.
func (c *connector) SetBindAddrs(addrs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindAddrs = append([]string(nil), addrs...)
}

func (c *connector) Connect(ctx context.Context) (Tunnel, error) {
	remoteAddr, err := net.ResolveUDPAddr("udp", c.remoteURL.Host)
	if err != nil {
		return nil, &mesherr.ConfigError{Op: "resolve remote", Err: err}
	}

	c.mu.Lock()
	binds := append([]string(nil), c.bindAddrs...)
	c.mu.Unlock()

	if len(binds) == 0 {
		return c.connectOne(ctx, "", remoteAddr)
	}
	return c.connectFanOut(ctx, binds, remoteAddr)
}

// connectFanOut runs the handshake concurrently on every bind address and
// returns the first tunnel to succeed, cancelling the rest. If every attempt
// fails it returns mesherr.ErrNoBindAddrs wrapping each attempt's error.
func (c *connector) connectFanOut(ctx context.Context, binds []string, remoteAddr *net.UDPAddr) (Tunnel, error) {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		tun Tunnel
		err error
	}
	results := make(chan result, len(binds))

	var wg sync.WaitGroup
	for _, bind := range binds {
		wg.Add(1)
		go func(bind string) {
			defer wg.Done()
			tun, err := c.connectOne(fanCtx, bind, remoteAddr)
			results <- result{tun: tun, err: err}
		}(bind)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for r := range results {
		if r.err == nil {
			cancel()
			go func() {
				for extra := range results {
					if extra.tun != nil {
						extra.tun.Close()
					}
				}
			}()
			return r.tun, nil
		}
		errs = append(errs, r.err)
	}
	return nil, fmt.Errorf("%w: %w", mesherr.ErrNoBindAddrs, errors.Join(errs...))
}

// connectOne binds one socket (optionally to bindAddr) and runs the
// handshake to completion.
func (c *connector) connectOne(ctx context.Context, bindAddr string, remoteAddr *net.UDPAddr) (Tunnel, error) {
	conn, err := c.bindSocket(bindAddr)
	if err != nil {
		return nil, &mesherr.IoError{Op: "bind", Err: err}
	}

	sock := newFramedSocket(conn)
	connID, err := randomConnID()
	if err != nil {
		sock.close()
		return nil, &mesherr.ConfigError{Op: "conn_id", Err: err}
	}

	if err := sock.writePacket(NewSyn(connID), remoteAddr); err != nil {
		sock.close()
		return nil, err
	}

	if err := c.waitSack(ctx, sock, remoteAddr, connID); err != nil {
		sock.close()
		return nil, err
	}
	sock.conn.SetReadDeadline(time.Time{})

	info := newInfo(sock.localAddr(), remoteAddr)
	return newClientTunnel(sock, info, remoteAddr, connID), nil
}

// waitSack implements the handshake wait: noise (wrong source, wrong conn
// id, wrong variant, undecodable bytes) is logged and discarded; the wait
// continues until c.handshakeTimeout fires. It drives the wait
// with the socket's own read deadline rather than a background goroutine,
// so there is nothing left running once this returns.
func (c *connector) waitSack(ctx context.Context, sock *framedSocket, remoteAddr net.Addr, connID uint32) error {
	deadline := time.Now().Add(c.handshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return mesherr.ErrConnectTimeout
		}
		sock.conn.SetReadDeadline(deadline)

		pkt, addr, pb, err := sock.readPacket()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return mesherr.ErrConnectTimeout
			}
			var decodeErr *mesherr.DecodeError
			if errors.As(err, &decodeErr) {
				flog.Debugf("tunnel: handshake wait discarding undecodable datagram from %s: %v", addr, decodeErr)
				continue
			}
			return err
		}

		ok := pkt.Kind == KindSack && pkt.ConnID == connID && addrKey(addr) == addrKey(remoteAddr)
		pb.release()
		if ok {
			return nil
		}
		flog.Debugf("tunnel: handshake wait discarding noise from %s: %s conn=%d", addr, pkt.Kind, pkt.ConnID)
	}
}

// bindSocket binds a UDP socket to bindAddr. On platforms where bind-address
// alone doesn't steer UDP egress (Linux/Android/Fuchsia), it additionally
// pins the socket to the network device owning the bind IP when one can be
// resolved; resolution failures are non-fatal, matching
// bindToDeviceOwning's contract.
func (c *connector) bindSocket(bindAddr string) (net.PacketConn, error) {
	if bindAddr == "" {
		return net.ListenPacket("udp", ":0")
	}

	host, _, err := net.SplitHostPort(bindAddr)
	if err != nil {
		host = bindAddr
	}
	ip := net.ParseIP(host)

	lc := net.ListenConfig{}
	if ip != nil {
		lc.Control = func(_, _ string, rc syscall.RawConn) error {
			return bindToDeviceOwning(rc, ip)
		}
	}
	return lc.ListenPacket(context.Background(), "udp", bindAddr)
}

func randomConnID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("meshtun: failed to generate conn id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
