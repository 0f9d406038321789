package exchange

import (
	"net"
	"time"

	"github.com/cloudbridge/coap/message"
)

// ObserveRelation is the edge between a remote endpoint and a resource
//. The resource tree (C8) owns the collection of these; the
// Exchange merely holds the one relevant to its own request/response cycle.
type ObserveRelation struct {
	Source             net.Addr
	Token              message.Token
	Sequence           uint32
	LastFreshnessCheck time.Time
	Path               string

	canceled bool
}

// NextSequence increments and returns the 24-bit notification sequence
// number (RFC 7641 §3.2, spec.md §4.4 layer 1).
func (r *ObserveRelation) NextSequence() uint32 {
	r.Sequence = (r.Sequence + 1) & 0xFFFFFF
	return r.Sequence
}

// Cancel marks the relation canceled: by a deregister GET (Observe=1), an
// RST, or delivery failure of a CON notification.
func (r *ObserveRelation) Cancel() {
	r.canceled = true
}

// IsCanceled reports whether the relation has been torn down.
func (r *ObserveRelation) IsCanceled() bool {
	return r.canceled
}
