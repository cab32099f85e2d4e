package coap

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewPacket()
	p.SetType(Confirmable)
	p.SetCode(GET)
	p.SetID(0x1234)
	if err := p.SetToken([]byte{0xAB, 0xCD}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := p.SetPath([]string{"oc", "core"}); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	if err := p.SetOption(ContentFormat, []byte{40}); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	p.AppendPayload([]byte("hello"))

	wire, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer decoded.Release()

	if decoded.Type() != Confirmable {
		t.Errorf("type = %v, want Confirmable", decoded.Type())
	}
	if decoded.Code() != GET {
		t.Errorf("code = %v, want GET", decoded.Code())
	}
	if decoded.ID() != 0x1234 {
		t.Errorf("id = %x, want 1234", decoded.ID())
	}
	if !bytes.Equal(decoded.Token(), []byte{0xAB, 0xCD}) {
		t.Errorf("token = %x, want abcd", decoded.Token())
	}
	if got := decoded.PathString(); got != "oc/core" {
		t.Errorf("path = %q, want oc/core", got)
	}
	if !bytes.Equal(decoded.Payload(), []byte("hello")) {
		t.Errorf("payload = %q, want hello", decoded.Payload())
	}
}

func TestDecodeEmptyPDU(t *testing.T) {
	wire := []byte{0x40, 0x00, 0x00, 0x00}
	p, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer p.Release()
	if p.Type() != Confirmable || p.Code() != Empty {
		t.Errorf("got type=%v code=%v, want CON/Empty", p.Type(), p.Code())
	}
}

func TestDecodeRejectsIllegalTokenLength(t *testing.T) {
	wire := []byte{0x49, 0x01, 0x00, 0x01} // token length nibble = 9 (> 8)
	if _, err := Decode(wire); err != ErrInvalidArgument {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestDecodeRejectsTruncatedOptions(t *testing.T) {
	// Header claims an option with a 5-byte value but supplies none.
	wire := []byte{0x40, 0x01, 0x00, 0x01, 0x15}
	if _, err := Decode(wire); err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeRejectsEmptyPayloadAfterMarker(t *testing.T) {
	wire := []byte{0x40, 0x01, 0x00, 0x01, 0xff}
	if _, err := Decode(wire); err != ErrInvalidArgument {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestDecodeSkipsReservedOptionZero(t *testing.T) {
	// Build the wire form directly: option 0 (skipped by Decode) followed
	// by a URI-Path option, which must still be decoded after the skip.
	wire := []byte{0x40, 0x01, 0x00, 0x01,
		0x00,       // option 0, zero-length value
		0xb1, 0x37, // delta 11 (option 11 = URI-Path), length 1, value "7"
	}
	p, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer p.Release()
	if got := p.PathString(); got != "7" {
		t.Errorf("path = %q, want 7", got)
	}
}
