package tunnel

import (
	"encoding/binary"
	"fmt"

	"meshtun/internal/mesherr"
)

// PayloadKind tags the four variants an envelope's payload can hold.
type PayloadKind byte

const (
	KindSyn PayloadKind = iota + 1
	KindSack
	KindHolePunch
	KindData
)

func (k PayloadKind) String() string {
	switch k {
	case KindSyn:
		return "Syn"
	case KindSack:
		return "Sack"
	case KindHolePunch:
		return "HolePunch"
	case KindData:
		return "Data"
	default:
		return fmt.Sprintf("PayloadKind(%d)", byte(k))
	}
}

// headerSize is tag(1) + conn_id(4).
const headerSize = 5

// lenPrefixSize is the 2-byte big-endian length prefix carried by the two
// variable-length variants (HolePunch and Data).
const lenPrefixSize = 2

// MaxDataLen is the largest payload that fits a Data or HolePunch envelope
// once the header and length prefix are accounted for.
const MaxDataLen = MTU - headerSize - lenPrefixSize

// Packet is the decoded form of one UDP datagram's envelope: a conn id and
// exactly one of the four payload variants. Data and HolePunch carry a
// byte slice that, after Decode, is a sub-slice of the buffer passed in —
// callers that need to retain it past the buffer's lifetime must copy it.
type Packet struct {
	ConnID uint32
	Kind   PayloadKind
	Data   []byte // valid only when Kind is KindHolePunch or KindData
}

// NewSyn builds a client-to-server connection request.
func NewSyn(connID uint32) Packet { return Packet{ConnID: connID, Kind: KindSyn} }

// NewSack builds a server-to-client handshake acknowledgement.
func NewSack(connID uint32) Packet { return Packet{ConnID: connID, Kind: KindSack} }

// NewData builds a user-payload envelope bound to connID.
func NewData(connID uint32, data []byte) Packet {
	return Packet{ConnID: connID, Kind: KindData, Data: data}
}

// NewHolePunch builds the NAT-traversal pass-through variant. conn_id is
// always 0 for this variant; the transport never generates or consumes
// it beyond tolerating it on the wire.
func NewHolePunch(data []byte) Packet {
	return Packet{ConnID: 0, Kind: KindHolePunch, Data: data}
}

// EncodedLen returns the number of bytes Encode will write for p, without
// allocating or encoding.
func (p Packet) EncodedLen() int {
	switch p.Kind {
	case KindSyn, KindSack:
		return headerSize
	case KindHolePunch, KindData:
		return headerSize + lenPrefixSize + len(p.Data)
	default:
		return -1
	}
}

// Encode writes p's wire form into dst and returns the number of bytes
// written. dst must be at least p.EncodedLen() long; Encode never writes
// past MTU bytes and fails before doing so if the encoded form would exceed
// it.
func Encode(dst []byte, p Packet) (int, error) {
	n := p.EncodedLen()
	if n < 0 {
		return 0, &mesherr.ConfigError{Op: "encode", Err: fmt.Errorf("unknown payload kind %v", p.Kind)}
	}
	if n > MTU {
		return 0, fmt.Errorf("meshtun: encoded packet %d bytes exceeds MTU %d", n, MTU)
	}
	if len(dst) < n {
		return 0, fmt.Errorf("meshtun: destination buffer too small: have %d, need %d", len(dst), n)
	}

	dst[0] = byte(p.Kind)
	binary.BigEndian.PutUint32(dst[1:5], p.ConnID)

	switch p.Kind {
	case KindSyn, KindSack:
		return headerSize, nil
	case KindHolePunch, KindData:
		binary.BigEndian.PutUint16(dst[5:7], uint16(len(p.Data)))
		copy(dst[7:n], p.Data)
		return n, nil
	default:
		// unreachable: EncodedLen already rejected unknown kinds
		return 0, fmt.Errorf("unknown payload kind %v", p.Kind)
	}
}

// Decode validates and parses src into a Packet. It is checked: the tag,
// length prefix, and inner slice bounds are all verified before any field is
// read, so a malformed input never causes an out-of-bounds read. The Data
// field of the result, when present, aliases src — it is not copied.
func Decode(src []byte) (Packet, error) {
	if len(src) < headerSize {
		return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("short header: got %d bytes, want at least %d", len(src), headerSize)}
	}

	kind := PayloadKind(src[0])
	connID := binary.BigEndian.Uint32(src[1:5])

	switch kind {
	case KindSyn, KindSack:
		if len(src) != headerSize {
			return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("%s: expected exactly %d bytes, got %d", kind, headerSize, len(src))}
		}
		return Packet{ConnID: connID, Kind: kind}, nil

	case KindHolePunch, KindData:
		if len(src) < headerSize+lenPrefixSize {
			return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("%s: short length prefix", kind)}
		}
		dataLen := int(binary.BigEndian.Uint16(src[headerSize : headerSize+lenPrefixSize]))
		start := headerSize + lenPrefixSize
		end := start + dataLen
		if end > len(src) {
			return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("%s: declared length %d overruns buffer of %d bytes", kind, dataLen, len(src))}
		}
		if end != len(src) {
			return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("%s: declared length %d leaves %d trailing bytes", kind, dataLen, len(src)-end)}
		}
		return Packet{ConnID: connID, Kind: kind, Data: src[start:end]}, nil

	default:
		return Packet{}, &mesherr.DecodeError{Reason: fmt.Sprintf("unknown payload tag 0x%02x", byte(kind))}
	}
}
