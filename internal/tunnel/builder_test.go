package tunnel

import (
	"context"
	"net"
	"testing"
	"time"

	"meshtun/internal/mesherr"
)

func TestServerTunnelRecvSendClose(t *testing.T) {
	bridge := newRingBridge()
	closed := false
	tun := newServerTunnel(Info{TunnelType: "udp"}, bridge, func() { closed = true })

	bridge.pushInbound(1, []byte("hello"))
	got, err := tun.Recv(context.Background())
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	if err := tun.Send(context.Background(), []byte("world")); err != nil {
		t.Fatalf("send: %v", err)
	}
	out, _ := bridge.popOutbound()
	select {
	case b := <-out:
		if string(b) != "world" {
			t.Fatalf("expected %q, got %q", "world", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound payload")
	}

	if err := tun.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatal("expected onClose callback to run")
	}
	if _, err := tun.Recv(context.Background()); err != mesherr.ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestClientTunnelRoundTrip(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	clientSock := newFramedSocket(clientConn)
	client := newClientTunnel(clientSock, Info{TunnelType: "udp"}, serverConn.LocalAddr(), 99)
	defer client.Close()

	if err := client.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, MTU)
	n, clientAddr, err := serverConn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	pkt, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.Kind != KindData || pkt.ConnID != 99 || string(pkt.Data) != "ping" {
		t.Fatalf("unexpected packet: %+v", pkt)
	}

	serverSock := newFramedSocket(serverConn)
	if err := serverSock.writePacket(NewData(99, []byte("pong")), clientAddr); err != nil {
		t.Fatalf("server write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := client.Recv(ctx)
	if err != nil {
		t.Fatalf("client recv: %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("expected %q, got %q", "pong", got)
	}
}

func TestClientTunnelIgnoresMismatchedConnID(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	clientSock := newFramedSocket(clientConn)
	client := newClientTunnel(clientSock, Info{TunnelType: "udp"}, serverConn.LocalAddr(), 1)
	defer client.Close()

	serverSock := newFramedSocket(serverConn)
	if err := serverSock.writePacket(NewData(2, []byte("not for you")), clientConn.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := serverSock.writePacket(NewData(1, []byte("for you")), clientConn.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := client.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "for you" {
		t.Fatalf("expected the mismatched conn_id datagram to be skipped, got %q", got)
	}
}

func TestClientTunnelSurvivesMalformedDatagram(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	clientSock := newFramedSocket(clientConn)
	client := newClientTunnel(clientSock, Info{TunnelType: "udp"}, serverConn.LocalAddr(), 1)
	defer client.Close()

	// A handful of bytes too short to even hold a header: must decode-fail,
	// not end the read loop.
	if _, err := serverConn.WriteTo([]byte{0xff, 0x01}, clientConn.LocalAddr()); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	serverSock := newFramedSocket(serverConn)
	if err := serverSock.writePacket(NewData(1, []byte("still alive")), clientConn.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := client.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "still alive" {
		t.Fatalf("expected the tunnel to survive the malformed datagram, got %q", got)
	}
}
