package message

import "errors"

// Sentinel errors wrapped per spec.md §7. Callers use errors.Is to classify.
var (
	// ErrFormat marks a malformed wire message or unknown critical option.
	ErrFormat = errors.New("coap: format error")
	// ErrInvariantViolation marks a message that violates a data-model
	// invariant (e.g. oversized token, non-null-token violation).
	ErrInvariantViolation = errors.New("coap: invariant violation")
	// ErrOptionNotFound is returned by option accessors when absent.
	ErrOptionNotFound = errors.New("coap: option not found")
	// ErrTooSmall names a destination buffer too small for an encoded
	// option, mirroring the teacher's message.ErrTooSmall. The encoders in
	// this module grow their output instead and never return it.
	ErrTooSmall = errors.New("coap: buffer too small")
)

// FormatError wraps ErrFormat with the header fields the decoder managed to
// parse before rejecting the rest of the datagram, when any were. RFC 7252
// §4.2/§4.3 and §5.4.1 require an RST bearing the peer's own Message ID for
// a rejected CON/NON carrying e.g. an unknown critical option; HeaderKnown
// tells the caller whether ID/Type are trustworthy enough to do that, since
// a header this short or malformed to not even yield a MID can only be
// logged and dropped.
type FormatError struct {
	Detail      string
	HeaderKnown bool
	Type        Type
	ID          uint16
}

func (e *FormatError) Error() string {
	return "coap: format error: " + e.Detail
}

func (e *FormatError) Unwrap() error { return ErrFormat }
