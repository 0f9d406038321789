package codec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %s", s, err)
	}
	return b
}

// TestScenarioAPingPong matches spec.md §8 Scenario A.
func TestScenarioAPingPong(t *testing.T) {
	in := mustHex(t, "40001234")
	m, err := Decode(in)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if m.Type != message.Confirmable || m.Code != codes.Empty || m.ID != 0x1234 || len(m.Token) != 0 {
		t.Fatalf("unexpected decode: %+v", m)
	}
	rst := &message.Message{Type: message.Reset, Code: codes.Empty, ID: m.ID}
	out, err := Encode(rst)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	want := mustHex(t, "70001234")
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x want % x", out, want)
	}
}

// TestScenarioBSimpleGET matches spec.md §8 Scenario B.
func TestScenarioBSimpleGET(t *testing.T) {
	m, err := Decode(mustHex(t, "41010001FFB474657374"))
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if m.Code != codes.GET || m.ID != 1 || !m.Token.Equal(message.Token{0xFF}) {
		t.Fatalf("unexpected decode: %+v", m)
	}
	path, err := m.Options.Path()
	if err != nil || path != "/test" {
		t.Fatalf("path = %q, err = %v", path, err)
	}

	ack := &message.Message{
		Type:    message.Acknowledgement,
		Code:    codes.Content,
		ID:      m.ID,
		Token:   m.Token,
		Payload: []byte("hello"),
	}
	out, err := Encode(ack)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	want := mustHex(t, "61450001FFFF68656C6C6F")
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x want % x", out, want)
	}
}

func TestRoundTripWellFormed(t *testing.T) {
	cases := []*message.Message{
		{Type: message.Confirmable, Code: codes.GET, ID: 7, Token: message.Token{1, 2, 3}},
		{Type: message.NonConfirmable, Code: codes.Content, ID: 99, Token: message.Token{}, Payload: []byte("x")},
		{Type: message.Acknowledgement, Code: codes.Empty, ID: 5},
	}
	for _, m := range cases {
		m.Options = m.Options.SetPath("a/b/c").SetContentFormat(message.TextPlain)
		b, err := Encode(m)
		if err != nil {
			t.Fatalf("encode %v: %s", m, err)
		}
		back, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %x: %s", b, err)
		}
		b2, err := Encode(back)
		if err != nil {
			t.Fatalf("re-encode: %s", err)
		}
		if !bytes.Equal(b, b2) {
			t.Fatalf("round trip mismatch: % x vs % x", b, b2)
		}
	}
}

func TestDecodeRejectsUnknownCriticalOption(t *testing.T) {
	// option number 9 (odd = critical, unknown to this module), 0-length value
	in := mustHex(t, "4001424290")
	_, err := Decode(in)
	if err == nil {
		t.Fatalf("expected format error for unknown critical option")
	}
	if !errors.Is(err, message.ErrFormat) {
		t.Fatalf("expected errors.Is(err, message.ErrFormat), got %v", err)
	}
	var fe *message.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a *message.FormatError, got %T", err)
	}
	if !fe.HeaderKnown || fe.Type != message.Confirmable || fe.ID != 0x4242 {
		t.Fatalf("expected FormatError to carry the parsed header, got %+v", fe)
	}
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	if _, err := Decode([]byte{0x40, 0x00}); err == nil {
		t.Fatalf("expected format error for short header")
	}
}

func TestDecodeRejectsPayloadMarkerWithNoPayload(t *testing.T) {
	in := mustHex(t, "40004242FF")
	if _, err := Decode(in); err == nil {
		t.Fatalf("expected format error for empty payload after marker")
	}
}
