package tunnel

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	buf := make([]byte, MTU)
	n, err := Encode(buf, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestSynRoundTrip(t *testing.T) {
	got := roundTrip(t, NewSyn(0xdeadbeef))
	if got.Kind != KindSyn || got.ConnID != 0xdeadbeef {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSackRoundTrip(t *testing.T) {
	got := roundTrip(t, NewSack(42))
	if got.Kind != KindSack || got.ConnID != 42 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDataRoundTrip(t *testing.T) {
	payload := []byte("PING")
	got := roundTrip(t, NewData(7, payload))
	if got.Kind != KindData || got.ConnID != 7 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Fatalf("expected %q, got %q", payload, got.Data)
	}
}

func TestHolePunchRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	got := roundTrip(t, NewHolePunch(payload))
	if got.Kind != KindHolePunch || got.ConnID != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Fatalf("expected %v, got %v", payload, got.Data)
	}
}

func TestDataZeroCopy(t *testing.T) {
	buf := make([]byte, MTU)
	payload := []byte("hello")
	n, err := Encode(buf, NewData(1, payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Mutating the original buffer through the decoded slice should be
	// visible in buf: Decode must not have copied the payload out.
	got.Data[0] = 'H'
	if buf[headerSize+lenPrefixSize] != 'H' {
		t.Fatalf("expected zero-copy aliasing into the source buffer")
	}
}

func TestEncodeOversizedPayloadFails(t *testing.T) {
	buf := make([]byte, MTU)
	oversized := make([]byte, MaxDataLen+1)
	if _, err := Encode(buf, NewData(1, oversized)); err == nil {
		t.Fatal("expected encode to fail for an oversized payload")
	}
}

func TestEncodeMaxDataLenSucceeds(t *testing.T) {
	buf := make([]byte, MTU)
	payload := make([]byte, MaxDataLen)
	n, err := Encode(buf, NewData(1, payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if n != MTU {
		t.Fatalf("expected exactly MTU bytes, got %d", n)
	}
}

func TestDecodeShortHeaderFails(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected decode error for short header")
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	buf := []byte{0xff, 0, 0, 0, 1}
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected decode error for unknown tag")
	}
}

func TestDecodeTruncatedDataFails(t *testing.T) {
	buf := make([]byte, MTU)
	n, err := Encode(buf, NewData(1, []byte("hello world")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(buf[:n-3]); err == nil {
		t.Fatal("expected decode error for truncated data")
	}
}

func TestDecodeTrailingGarbageFails(t *testing.T) {
	buf := make([]byte, MTU)
	n, err := Encode(buf, NewData(1, []byte("hi")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(buf[:n+1]); err == nil {
		t.Fatal("expected decode error for trailing bytes")
	}
}

func TestDecodeSynWithTrailingBytesFails(t *testing.T) {
	buf := make([]byte, MTU)
	n, err := Encode(buf, NewSyn(5))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(buf[:n+1]); err == nil {
		t.Fatal("expected decode error for oversized syn")
	}
}
