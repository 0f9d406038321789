// Package stack implements the ordered chain of protocol layers: Observe -> Blockwise -> Token -> Reliability, top to bottom
// (closest to the application first). Each layer transforms send/receive
// events and forwards to its neighbor, generalizing the "NextLayer handle"
// idea from DESIGN NOTES §9 into two narrow directional interfaces instead
// of a single bidirectional back-reference, which keeps the layer graph
// acyclic.
package stack

import (
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// Downstream is the top-down send path: Resource.respond / Client.send ->
// Stack.Send -> Matcher.Send -> Endpoint.Outbox.
type Downstream interface {
	SendRequest(ex *exchange.Exchange, req *message.Message) error
	SendResponse(ex *exchange.Exchange, resp *message.Message) error
	SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error
}

// Retransmitter is implemented by the bottom sink (the Endpoint) so the
// Reliability layer can re-send already-encoded bytes without re-running
// Matcher registration.
type Retransmitter interface {
	Retransmit(ex *exchange.Exchange, msg *message.Message) error
}

// Upstream is the bottom-up receive path: Channel -> ... -> Matcher.Receive
// -> Stack.Receive -> MessageDeliverer -> Resource.
type Upstream interface {
	ReceiveRequest(ex *exchange.Exchange, req *message.Message)
	ReceiveResponse(ex *exchange.Exchange, resp *message.Message)
	ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message)
}

// Layer is the capability set every stack layer implements.
type Layer interface {
	Downstream
	Upstream
}
