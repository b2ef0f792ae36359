package tunnel

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"meshtun/internal/flog"
	"meshtun/internal/mesherr"
)

// acceptQueueCapacity bounds the listener's single-producer/single-consumer
// accept channel. A full queue means the upper layer is not keeping
// up with new connections; the receive task logs and drops rather than
// blocking, since blocking here would stall the one shared socket reader.
const acceptQueueCapacity = 64

// synRateLimit and synBurst bound how many new (non-live) SYNs the listener
// will answer with a SACK per second, across all remote addresses combined.
// A peer flooding SYNs from spoofed or rotating source addresses can't make
// the single receive task do more than this much handshake work; SYNs over
// the limit are dropped silently, the same outcome as any other unanswered
// SYN (the connector sends one SYN per attempt, so its handshake wait runs
// out and Connect returns mesherr.ErrConnectTimeout).
const (
	synRateLimit = 200
	synBurst     = 50
)

// mapEntry is what the server socket map stores per live remote address:
// the conn id it's bound to and the client half of its ring bridge.
type mapEntry struct {
	connID uint32
	bridge *ringBridge
}

// listener is the concrete Listener: one bound UDP socket, one receive
// task, a socket map keyed by remote address, a bounded accept queue, and a
// live connection counter.
type listener struct {
	sock *framedSocket

	mu      sync.Mutex
	byAddr  map[string]*mapEntry
	counter connCounter

	accept chan Tunnel

	synLimiter *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// Listen binds addr (host:port) as a UDP socket with address reuse enabled
// and starts the listener's single receive task.
func Listen(addr string) (Listener, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		cancel()
		return nil, &mesherr.IoError{Op: "listen", Err: err}
	}

	l := &listener{
		sock:       newFramedSocket(conn),
		byAddr:     make(map[string]*mapEntry),
		accept:     make(chan Tunnel, acceptQueueCapacity),
		synLimiter: rate.NewLimiter(rate.Limit(synRateLimit), synBurst),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go l.receiveLoop(ctx)
	return l, nil
}

func (l *listener) LocalAddr() string { return buildURL(l.sock.localAddr()) }

func (l *listener) ConnCounter() ConnCounter { return &l.counter }

func (l *listener) Accept(ctx context.Context) (Tunnel, error) {
	select {
	case t, ok := <-l.accept:
		if !ok {
			return nil, mesherr.ErrClosed
		}
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, mesherr.ErrClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.sock.close()
		close(l.done)
	})
	return nil
}

// receiveLoop is the listener's single receive task: it is the only reader
// of the shared socket. It classifies every datagram and either starts
// a new logical connection or forwards a Data payload to an existing one.
func (l *listener) receiveLoop(ctx context.Context) {
	defer close(l.accept)
	for {
		pkt, addr, pb, err := l.sock.readPacket()
		if err != nil {
			var decodeErr *mesherr.DecodeError
			if errors.As(err, &decodeErr) {
				flog.Debugf("tunnel: listener dropping undecodable datagram from %s: %v", addr, decodeErr)
				continue
			}
			if werr := flog.WErr(err); werr != nil {
				flog.Errorf("tunnel: listener receive loop terminated: %v", werr)
			}
			return
		}

		switch pkt.Kind {
		case KindSyn:
			l.handleSyn(ctx, addr, pkt.ConnID)
		case KindData:
			l.forward(addr, pkt)
		default:
			// Sack (unexpected server-side) and HolePunch are tolerated
			// pass-through noise at this layer; nothing to do with them.
			flog.Debugf("tunnel: listener dropping %s from %s", pkt.Kind, addr)
		}
		pb.release()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleSyn runs the server side of the handshake: re-SACK is skipped for a
// remote address already mapped (Live state), preserving map exclusivity.
func (l *listener) handleSyn(ctx context.Context, remote net.Addr, connID uint32) {
	key := addrKey(remote)

	l.mu.Lock()
	_, live := l.byAddr[key]
	l.mu.Unlock()
	if live {
		flog.Debugf("tunnel: dropping duplicate syn from live peer %s", remote)
		return
	}

	if !l.synLimiter.Allow() {
		flog.Debugf("tunnel: syn rate limit exceeded, dropping syn from %s", remote)
		return
	}

	if err := l.sock.writePacket(NewSack(connID), remote); err != nil {
		flog.Warnf("tunnel: failed to send sack to %s: %v", remote, err)
		return
	}

	bridge := newRingBridge()
	entry := &mapEntry{connID: connID, bridge: bridge}

	l.mu.Lock()
	if _, already := l.byAddr[key]; already {
		l.mu.Unlock()
		bridge.close()
		return
	}
	l.byAddr[key] = entry
	l.mu.Unlock()
	l.counter.inc()

	info := newInfo(l.sock.localAddr(), remote)
	onClose := func() {
		l.mu.Lock()
		if cur, ok := l.byAddr[key]; ok && cur == entry {
			delete(l.byAddr, key)
			l.counter.dec()
		}
		l.mu.Unlock()
		bridge.close()
	}
	tun := newServerTunnel(info, bridge, onClose)

	go l.forwarderTask(ctx, remote, connID, bridge, onClose)

	select {
	case l.accept <- tun:
	default:
		flog.Warnf("tunnel: accept queue full, dropping new connection from %s", remote)
		tun.Close()
	}
}

// forward implements the Data branch of receiveLoop's dispatch: if
// remote is mapped, re-validate the payload against the bound conn id and
// push Data payloads into the mapped ring; otherwise drop with a warning.
func (l *listener) forward(remote net.Addr, pkt Packet) {
	key := addrKey(remote)

	l.mu.Lock()
	entry, ok := l.byAddr[key]
	l.mu.Unlock()
	if !ok {
		flog.Warnf("tunnel: dropping datagram from unmapped peer %s", remote)
		return
	}
	if pkt.Kind != KindData {
		flog.Debugf("tunnel: dropping non-data %s from live peer %s", pkt.Kind, remote)
		return
	}
	if pkt.ConnID != entry.connID {
		flog.Debugf("tunnel: dropping data for conn %d, peer %s bound to conn %d", pkt.ConnID, remote, entry.connID)
		return
	}
	payload := append([]byte(nil), pkt.Data...)
	entry.bridge.pushInbound(entry.connID, payload)
}

// forwarderTask drains the ring's outbound queue and writes each buffer out
// the shared socket as a Data envelope; it is the exclusive writer for this
// conn id. It exits, and removes the map entry, when the bridge closes
// or a write fails terminally.
func (l *listener) forwarderTask(ctx context.Context, remote net.Addr, connID uint32, bridge *ringBridge, onClose func()) {
	defer onClose()
	outbound, closed := bridge.popOutbound()
	for {
		select {
		case b := <-outbound:
			if err := l.sock.writePacket(NewData(connID, b), remote); err != nil {
				if werr := flog.WErr(err); werr != nil {
					flog.Warnf("tunnel: forwarder write to %s failed: %v", remote, werr)
				}
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
