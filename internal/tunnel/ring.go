package tunnel

import (
	"context"
	"sync"

	"meshtun/internal/flog"
	"meshtun/internal/mesherr"
)

// ringCapacity bounds how many undelivered payloads the bridge holds in
// each direction. A full inbound queue drops its oldest payload; a full
// outbound queue makes send wait.
const ringCapacity = 256

// ringBridge decouples the listener's single receive task from the
// consumer-facing Tunnel it hands out via Accept: the receive
// task pushes decoded payloads into inbound, and the connection's forwarder
// task drains outbound payloads the consumer wants written back to the remote
// peer. Neither side blocks the other beyond the channel capacity.
type ringBridge struct {
	inbound  chan []byte
	outbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newRingBridge() *ringBridge {
	return &ringBridge{
		inbound:  make(chan []byte, ringCapacity),
		outbound: make(chan []byte, ringCapacity),
		closed:   make(chan struct{}),
	}
}

// pushInbound is called by the listener's receive task. It never blocks: if
// the consumer has fallen behind, the oldest undelivered payload is dropped
// to make room rather than stall the shared read loop.
func (r *ringBridge) pushInbound(connID uint32, b []byte) {
	select {
	case r.inbound <- b:
		return
	case <-r.closed:
		return
	default:
	}
	select {
	case <-r.inbound:
		r.logDrop(connID)
	default:
	}
	select {
	case r.inbound <- b:
	case <-r.closed:
	default:
	}
}

// recv is the consumer-facing read half.
func (r *ringBridge) recv(ctx context.Context) ([]byte, error) {
	select {
	case b := <-r.inbound:
		return b, nil
	case <-r.closed:
		return nil, mesherr.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send is the consumer-facing write half; popOutbound is how the forwarder
// task drains it back onto the wire.
func (r *ringBridge) send(ctx context.Context, b []byte) error {
	select {
	case r.outbound <- b:
		return nil
	case <-r.closed:
		return mesherr.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ringBridge) popOutbound() (<-chan []byte, <-chan struct{}) {
	return r.outbound, r.closed
}

func (r *ringBridge) close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

func (r *ringBridge) logDrop(connID uint32) {
	flog.Debugf("tunnel: conn %d inbound ring full, dropped oldest payload", connID)
}
