// Package codec implements the pure bidirectional mapping between CoAP wire
// bytes and message.Message (RFC 7252 §3), treated by the engine as a
// pluggable collaborator per spec.md §1.
package codec

import (
	"fmt"

	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

const (
	headerLen     = 4
	payloadMarker = 0xFF
)

// Encode serializes m to wire bytes. It fails when m does not pass Validate
// or when its options are not in non-decreasing option-number order.
func Encode(m *message.Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	tkl := len(m.Token)
	buf := make([]byte, headerLen, headerLen+tkl+16+len(m.Payload))
	buf[0] = byte(message.Version<<6) | byte(uint8(m.Type)<<4) | byte(tkl)
	buf[1] = byte(m.Code)
	buf[2] = byte(m.ID >> 8)
	buf[3] = byte(m.ID)
	buf = append(buf, m.Token...)

	opts := append(message.Options(nil), m.Options...)
	if err := opts.ValidateOrder(); err != nil {
		return nil, fmt.Errorf("%w: %s", message.ErrFormat, err)
	}
	var prev message.OptionID
	for _, opt := range opts {
		delta := int(opt.ID) - int(prev)
		buf = appendOption(buf, delta, opt.Value)
		prev = opt.ID
	}

	if len(m.Payload) > 0 {
		buf = append(buf, payloadMarker)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

func appendOption(buf []byte, delta int, value []byte) []byte {
	dn, dext := splitNibble(delta)
	ln, lext := splitNibble(len(value))
	buf = append(buf, byte(dn<<4)|byte(ln))
	buf = append(buf, dext...)
	buf = append(buf, lext...)
	buf = append(buf, value...)
	return buf
}

// splitNibble encodes a delta/length value into its 4-bit nibble plus
// optional 1/2-byte extension per RFC 7252 §3.1.
func splitNibble(v int) (nibble int, ext []byte) {
	switch {
	case v < 13:
		return v, nil
	case v < 13+256:
		return 13, []byte{byte(v - 13)}
	default:
		v -= 269
		return 14, []byte{byte(v >> 8), byte(v)}
	}
}

// Kind discriminates the decoded result the way the engine's receive path
// needs to classify before routing.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindRequest
	KindResponse
	KindSignal
)

// KindOf classifies a successfully decoded message.
func KindOf(m *message.Message) Kind {
	switch {
	case m.IsEmpty():
		return KindEmpty
	case m.IsSignal():
		return KindSignal
	case m.IsRequest():
		return KindRequest
	default:
		return KindResponse
	}
}

// Decode parses wire bytes into a Message. It returns a *message.FormatError
// (wrapping message.ErrFormat) when header bits are malformed, option deltas
// violate ordering, an unknown critical option is present, or the payload
// marker appears without payload bytes. Once enough of the header has been
// parsed to know the message's Type and ID, every FormatError from that
// point on carries them (FormatError.HeaderKnown) so the caller can answer
// with an RST echoing the peer's own MID per RFC 7252 §5.4.1, instead of
// only ever logging and dropping.
func Decode(data []byte) (*message.Message, error) {
	if len(data) < headerLen {
		return nil, &message.FormatError{Detail: fmt.Sprintf("short header (%d bytes)", len(data))}
	}
	ver := data[0] >> 6
	if ver != message.Version {
		return nil, &message.FormatError{Detail: fmt.Sprintf("unsupported version %d", ver)}
	}
	typ := message.Type((data[0] >> 4) & 0x3)
	tkl := int(data[0] & 0xf)
	code := codes.Code(data[1])
	id := uint16(data[2])<<8 | uint16(data[3])

	// header() builds a FormatError bearing the Type/ID now that they're
	// known, for every error from here on.
	header := func(detail string) error {
		return &message.FormatError{Detail: detail, HeaderKnown: true, Type: typ, ID: id}
	}

	if tkl > message.MaxTokenLength {
		return nil, header(fmt.Sprintf("token length %d exceeds %d", tkl, message.MaxTokenLength))
	}

	off := headerLen
	if off+tkl > len(data) {
		return nil, header("token truncated")
	}
	token := message.Token(append([]byte(nil), data[off:off+tkl]...))
	off += tkl

	var opts message.Options
	var prevID message.OptionID
	sawMarker := false
	for off < len(data) {
		if data[off] == payloadMarker {
			off++
			sawMarker = true
			break
		}
		deltaNibble := int(data[off] >> 4)
		lenNibble := int(data[off] & 0xf)
		off++
		delta, newOff, err := readExt(data, off, deltaNibble, header)
		if err != nil {
			return nil, err
		}
		off = newOff
		length, newOff, err := readExt(data, off, lenNibble, header)
		if err != nil {
			return nil, err
		}
		off = newOff
		if off+length > len(data) {
			return nil, header("option value truncated")
		}
		id := prevID + message.OptionID(delta)
		value := append([]byte(nil), data[off:off+length]...)
		opts = append(opts, message.Option{ID: id, Value: value})
		prevID = id
		off += length
	}
	if sawMarker && off >= len(data) {
		return nil, header("payload marker with no payload")
	}
	payload := append([]byte(nil), data[off:]...)

	if badID, bad := message.Options(opts).UnknownCritical(); bad {
		return nil, header(fmt.Sprintf("unknown critical option %s", badID))
	}

	m := &message.Message{
		Type:    typ,
		Code:    code,
		ID:      id,
		Token:   token,
		Options: opts,
		Payload: payload,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// readExt decodes a 4-bit nibble plus its 13/14-reserved extension bytes,
// returning the resolved value and the new read offset. header builds a
// FormatError carrying the header already parsed by the caller.
func readExt(data []byte, off, nibble int, header func(string) error) (value, newOff int, err error) {
	switch nibble {
	case 13:
		if off+1 > len(data) {
			return 0, off, header("truncated option extension")
		}
		return int(data[off]) + 13, off + 1, nil
	case 14:
		if off+2 > len(data) {
			return 0, off, header("truncated option extension")
		}
		return (int(data[off])<<8 | int(data[off+1])) + 269, off + 2, nil
	case 15:
		return 0, off, header("reserved nibble 15 used outside payload marker")
	default:
		return nibble, off, nil
	}
}
