package tunnel

import (
	"context"
	"testing"
	"time"

	"meshtun/internal/mesherr"
)

func TestRingBridgeRecvSend(t *testing.T) {
	r := newRingBridge()
	ctx := context.Background()

	if err := r.send(ctx, []byte("out")); err != nil {
		t.Fatalf("send: %v", err)
	}
	out, _ := r.popOutbound()
	select {
	case b := <-out:
		if string(b) != "out" {
			t.Fatalf("expected %q, got %q", "out", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound payload")
	}

	r.pushInbound(1, []byte("in"))
	got, err := r.recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "in" {
		t.Fatalf("expected %q, got %q", "in", got)
	}
}

func TestRingBridgeDropsOldestWhenFull(t *testing.T) {
	r := newRingBridge()
	for i := 0; i < ringCapacity; i++ {
		r.pushInbound(1, []byte{byte(i)})
	}
	// one more push should evict the oldest entry rather than block
	r.pushInbound(1, []byte{0xff})

	ctx := context.Background()
	first, err := r.recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if first[0] == 0 {
		t.Fatal("expected the oldest entry to have been dropped")
	}
}

func TestRingBridgeCloseUnblocksRecv(t *testing.T) {
	r := newRingBridge()
	r.close()
	if _, err := r.recv(context.Background()); err != mesherr.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := r.send(context.Background(), []byte("x")); err != mesherr.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRingBridgeRecvRespectsContext(t *testing.T) {
	r := newRingBridge()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.recv(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
