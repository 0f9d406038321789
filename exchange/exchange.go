// Package exchange defines the per-conversation state object and the three key-indexed spaces the Matcher uses to associate wire
// identifiers with exchanges.
package exchange

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cloudbridge/coap/message"
)

// Origin distinguishes exchanges created by an inbound request (Remote)
// from those created by a local Send call (Local).
type Origin uint8

const (
	Remote Origin = iota
	Local
)

// BlockState tracks a partial blockwise body assembly/transmission for
// either the request or response side of an Exchange. It is reused as-is by the stack's Blockwise layer.
type BlockState struct {
	Body       []byte
	SZX        uint8
	Num        uint32
	LastActive time.Time
}

// FailureCause classifies why an Exchange failed, surfaced to the
// application via the Exchange's failure callback.
type FailureCause uint8

const (
	CauseNone FailureCause = iota
	CauseTransmissionTimeout
	CauseRejected
	CauseCanceled
)

// Exchange is the per-conversation state object. Ownership is
// flattened per DESIGN NOTES §9: exchanges are owned by the endpoint's
// Matcher, everything else (layers, resources) holds a *Exchange handle
// without a back-reference cycle to the endpoint.
type Exchange struct {
	mu sync.Mutex

	Origin Origin

	// Request is the first request of this exchange; CurrentRequest is the
	// most recent block if blockwise fragmented.
	Request        *message.Message
	CurrentRequest *message.Message

	// CurrentResponse is the most recent response block sent or received.
	CurrentResponse *message.Message

	RequestBlock  *BlockState
	ResponseBlock *BlockState

	Observe *ObserveRelation

	Timestamp time.Time
	complete  bool

	RemoteAddr net.Addr
	Session    interface{}

	// Multicast marks an exchange whose request was sent to a multicast
	// group address: the Matcher clones this exchange per distinct
	// responder instead of treating the first reply as the only one.
	Multicast bool

	// isCancelled is checked by the stack at each layer boundary.
	isCancelled bool

	onComplete []func(*Exchange)
	onFailure  []func(*Exchange, FailureCause, error)

	retransmitCancel func()
}

// New creates a fresh Exchange for the given origin and initial request.
func New(origin Origin, request *message.Message, remote net.Addr) *Exchange {
	return &Exchange{
		Origin:         origin,
		Request:        request,
		CurrentRequest: request,
		Timestamp:      time.Now(),
		RemoteAddr:     remote,
	}
}

// Clone produces an independent Exchange sharing the same originating
// request, used when a multicast reply arrives: spec.md §9 Open Question
// notes the lifetime relationship between the original and its clones is
// not explicit upstream, so this module makes it explicit — the clone is
// an entirely independent Exchange (its own completion/failure hooks, its
// own complete flag) that merely starts from the same immutable Request;
// completing or failing a clone has no effect on the original or on
// sibling clones.
func (e *Exchange) Clone(remote net.Addr) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := &Exchange{
		Origin:         e.Origin,
		Request:        e.Request,
		CurrentRequest: e.Request,
		Timestamp:      time.Now(),
		RemoteAddr:     remote,
		Session:        e.Session,
	}
	return c
}

// OnComplete registers a hook invoked exactly once when the exchange
// transitions to complete.
func (e *Exchange) OnComplete(fn func(*Exchange)) {
	e.mu.Lock()
	already := e.complete
	if !already {
		e.onComplete = append(e.onComplete, fn)
	}
	e.mu.Unlock()
	if already {
		fn(e)
	}
}

// OnFailure registers a hook invoked when the exchange fails.
func (e *Exchange) OnFailure(fn func(*Exchange, FailureCause, error)) {
	e.mu.Lock()
	e.onFailure = append(e.onFailure, fn)
	e.mu.Unlock()
}

// Complete marks the exchange done and fires completion hooks at most
// once. Safe to call more than once; only the first call has effect.
func (e *Exchange) Complete() {
	e.mu.Lock()
	if e.complete {
		e.mu.Unlock()
		return
	}
	e.complete = true
	hooks := e.onComplete
	e.onComplete = nil
	if cancel := e.retransmitCancel; cancel != nil {
		e.retransmitCancel = nil
		e.mu.Unlock()
		cancel()
	} else {
		e.mu.Unlock()
	}
	for _, h := range hooks {
		h(e)
	}
}

// Fail marks the exchange complete (if not already) and fires failure
// hooks, e.g. TransmissionTimeout after MaxRetransmit attempts, or
// Rejected on RST.
func (e *Exchange) Fail(cause FailureCause, err error) {
	e.mu.Lock()
	wasComplete := e.complete
	e.complete = true
	hooks := e.onFailure
	e.onFailure = nil
	onComplete := e.onComplete
	e.onComplete = nil
	e.mu.Unlock()
	for _, h := range hooks {
		h(e, cause, err)
	}
	if !wasComplete {
		for _, h := range onComplete {
			h(e)
		}
	}
}

// IsComplete reports whether the exchange has reached a terminal state.
func (e *Exchange) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// Cancel marks the exchange cancelled by the client; the stack checks this
// at each layer boundary and stops propagation.
func (e *Exchange) Cancel() {
	e.mu.Lock()
	e.isCancelled = true
	e.mu.Unlock()
}

// IsCancelled reports the cancellation flag.
func (e *Exchange) IsCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isCancelled
}

// SetRetransmitCancel stashes the reliability layer's timer-cancel func so
// Complete can stop a pending retransmit immediately.
func (e *Exchange) SetRetransmitCancel(cancel func()) {
	e.mu.Lock()
	e.retransmitCancel = cancel
	e.mu.Unlock()
}

// SetCurrentResponse records the most recently sent/received response
// under the exchange's lock.
func (e *Exchange) SetCurrentResponse(m *message.Message) {
	e.mu.Lock()
	e.CurrentResponse = m
	e.mu.Unlock()
}

// GetCurrentResponse returns the most recently sent/received response.
func (e *Exchange) GetCurrentResponse() *message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CurrentResponse
}

// SetCurrentRequest records the most recent request block.
func (e *Exchange) SetCurrentRequest(m *message.Message) {
	e.mu.Lock()
	e.CurrentRequest = m
	e.mu.Unlock()
}

func (e *Exchange) String() string {
	return fmt.Sprintf("Exchange{origin=%d request=%v complete=%v}", e.Origin, e.Request, e.IsComplete())
}
