package tunnel

import (
	"fmt"
	"net"

	"meshtun/internal/mesherr"
)

// framedSocket wraps a net.PacketConn with this transport's fixed-MTU
// envelope codec: readPacket borrows a pooled buffer, reads one datagram,
// and decodes it; writePacket encodes into a pooled buffer and writes
// exactly one datagram. Both the listener's receive task and the
// connector's handshake use it directly.
type framedSocket struct {
	conn net.PacketConn
}

func newFramedSocket(conn net.PacketConn) *framedSocket {
	return &framedSocket{conn: conn}
}

// readPacket blocks until one datagram arrives, decodes it, and returns the
// decoded Packet along with the sender's address and the pooled buffer that
// backs Packet.Data. Callers must call release() once they are done reading
// Packet.Data (they must copy it out first if they need to retain it).
func (s *framedSocket) readPacket() (Packet, net.Addr, pooledBuf, error) {
	pb := getBuf(MTU)
	n, addr, err := s.conn.ReadFrom(pb.buf)
	if err != nil {
		pb.release()
		return Packet{}, nil, pooledBuf{}, &mesherr.IoError{Op: "read", Err: err}
	}
	pkt, err := Decode(pb.buf[:n])
	if err != nil {
		pb.release()
		return Packet{}, addr, pooledBuf{}, err
	}
	return pkt, addr, pb, nil
}

// writePacket encodes p and sends it to addr in a single datagram.
func (s *framedSocket) writePacket(p Packet, addr net.Addr) error {
	pb := getBuf(MTU)
	defer pb.release()

	n, err := Encode(pb.buf, p)
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteTo(pb.buf[:n], addr); err != nil {
		return &mesherr.IoError{Op: "write", Err: err}
	}
	return nil
}

func (s *framedSocket) localAddr() net.Addr { return s.conn.LocalAddr() }

func (s *framedSocket) close() error {
	if err := s.conn.Close(); err != nil {
		return &mesherr.IoError{Op: "close", Err: err}
	}
	return nil
}

func addrKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return fmt.Sprintf("%s|%s", addr.Network(), addr.String())
}
