// Package message is the in-memory representation of a CoAP message (RFC
// 7252 §3): request, response, empty, or signal, with options, token, ID and
// payload. It mirrors the role of the teacher's vendored
// udp/message/pool.Message, generalized to the full spec.
package message

import (
	"fmt"

	"github.com/cloudbridge/coap/message/codes"
)

// Type is the 2-bit message type.
type Type uint8

const (
	Confirmable Type = iota
	NonConfirmable
	Acknowledgement
	Reset
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "???"
	}
}

// Version is the only wire version this module speaks.
const Version = 1

// MaxTokenLength is the RFC 7252 §3 limit on Token length.
const MaxTokenLength = 8

// Token is an opaque 0-8 byte exchange identifier.
type Token []byte

func (t Token) String() string {
	return fmt.Sprintf("%x", []byte(t))
}

// Clone returns an independent copy of the token bytes.
func (t Token) Clone() Token {
	if t == nil {
		return nil
	}
	c := make(Token, len(t))
	copy(c, t)
	return c
}

// Equal reports whether two tokens have the same bytes.
func (t Token) Equal(o Token) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// Message is the base entity shared by requests, responses, empty messages
// and signals.
type Message struct {
	Type    Type
	Code    codes.Code
	ID      uint16
	Token   Token
	Options Options
	Payload []byte

	// Duplicate is set by the Matcher when this message was recognized as a
	// retransmission of one already seen within the deduplication window.
	Duplicate bool
}

// Validate checks the invariants from spec.md §3: token length, ACK/RST
// payload, empty-message shape.
func (m *Message) Validate() error {
	if len(m.Token) > MaxTokenLength {
		return fmt.Errorf("%w: token length %d exceeds %d", ErrInvariantViolation, len(m.Token), MaxTokenLength)
	}
	if m.Code == codes.Empty && len(m.Payload) > 0 {
		return fmt.Errorf("%w: empty message carries payload", ErrInvariantViolation)
	}
	return nil
}

// IsEmpty reports whether m is code 0 (bare ACK/RST or ping).
func (m *Message) IsEmpty() bool {
	return m.Code == codes.Empty
}

// IsRequest reports whether m's code is a request method.
func (m *Message) IsRequest() bool {
	return m.Code.IsRequest()
}

// IsResponse reports whether m's code is a response class.
func (m *Message) IsResponse() bool {
	return m.Code.IsResponse()
}

// IsSignal reports whether m's code is a 7.xx signal code.
func (m *Message) IsSignal() bool {
	return m.Code.IsSignal()
}

// Clone makes a deep copy of m suitable for independent mutation (used when
// cloning an Exchange for a multicast reply, or retransmitting an
// already-sent message).
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{
		Type:      m.Type,
		Code:      m.Code,
		ID:        m.ID,
		Token:     m.Token.Clone(),
		Payload:   append([]byte(nil), m.Payload...),
		Duplicate: m.Duplicate,
	}
	c.Options = m.Options.Clone()
	return c
}

func (m *Message) String() string {
	return fmt.Sprintf("%s %s MID=%d Token=%s len(payload)=%d", m.Type, m.Code, m.ID, m.Token, len(m.Payload))
}
