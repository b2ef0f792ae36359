package tunnel

import (
	"context"
	"errors"
	"net"
	"sync"

	"meshtun/internal/flog"
	"meshtun/internal/mesherr"
)

// serverTunnel is the Tunnel handed out by Listener.Accept. It never touches
// the shared socket directly: the listener's single receive task and
// per-connection forwarder task are the only things that do, and this type
// only ever sees payload bytes already stripped of their envelope. Closing
// it detaches it from the listener's socket map via onClose without
// affecting the shared socket or any other connection.
type serverTunnel struct {
	info    Info
	bridge  *ringBridge
	onClose func()

	closeOnce sync.Once
}

func newServerTunnel(info Info, bridge *ringBridge, onClose func()) *serverTunnel {
	return &serverTunnel{info: info, bridge: bridge, onClose: onClose}
}

func (t *serverTunnel) Info() Info { return t.info }

func (t *serverTunnel) Recv(ctx context.Context) ([]byte, error) {
	return t.bridge.recv(ctx)
}

func (t *serverTunnel) Send(ctx context.Context, b []byte) error {
	return t.bridge.send(ctx, b)
}

func (t *serverTunnel) Close() error {
	t.closeOnce.Do(func() {
		t.bridge.close()
		if t.onClose != nil {
			t.onClose()
		}
	})
	return nil
}

// clientRecvCapacity bounds the connector-side tunnel's inbound queue; a
// connector owns its socket exclusively so this only guards against a slow
// consumer, not a noisy neighbor.
const clientRecvCapacity = 256

// clientTunnel is the Tunnel handed back by Connector.Connect. Unlike the
// server side it owns its socket outright (one UDP socket per outbound
// connection), so it runs its own read loop that demultiplexes on conn_id
// and remote address and silently discards anything that doesn't match:
// stray datagrams and conn_id mismatches are tolerated, never fatal.
type clientTunnel struct {
	info   Info
	sock   *framedSocket
	connID uint32
	remote net.Addr

	recvCh chan []byte
	closed chan struct{}

	closeOnce sync.Once
}

func newClientTunnel(sock *framedSocket, info Info, remote net.Addr, connID uint32) *clientTunnel {
	t := &clientTunnel{
		info:   info,
		sock:   sock,
		connID: connID,
		remote: remote,
		recvCh: make(chan []byte, clientRecvCapacity),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *clientTunnel) readLoop() {
	remoteKey := addrKey(t.remote)
	for {
		pkt, addr, pb, err := t.sock.readPacket()
		if err != nil {
			var decodeErr *mesherr.DecodeError
			if errors.As(err, &decodeErr) {
				flog.Debugf("tunnel: conn %d dropping undecodable datagram from %s: %v", t.connID, addr, decodeErr)
				continue
			}
			if werr := flog.WErr(err); werr != nil {
				flog.Warnf("tunnel: conn %d read loop ended: %v", t.connID, werr)
			}
			t.Close()
			return
		}
		if addrKey(addr) != remoteKey {
			pb.release()
			continue
		}
		if pkt.Kind != KindData {
			pb.release()
			continue
		}
		if pkt.ConnID != t.connID {
			flog.Debugf("tunnel: conn %d ignoring data tagged with conn %d", t.connID, pkt.ConnID)
			pb.release()
			continue
		}
		payload := append([]byte(nil), pkt.Data...)
		pb.release()
		t.deliver(payload)
	}
}

func (t *clientTunnel) deliver(b []byte) {
	select {
	case t.recvCh <- b:
		return
	case <-t.closed:
		return
	default:
	}
	select {
	case <-t.recvCh:
	default:
	}
	select {
	case t.recvCh <- b:
	case <-t.closed:
	default:
	}
}

func (t *clientTunnel) Info() Info { return t.info }

func (t *clientTunnel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b := <-t.recvCh:
		return b, nil
	case <-t.closed:
		return nil, mesherr.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *clientTunnel) Send(ctx context.Context, b []byte) error {
	select {
	case <-t.closed:
		return mesherr.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.sock.writePacket(NewData(t.connID, b), t.remote)
}

func (t *clientTunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.sock.close()
	})
	return err
}
