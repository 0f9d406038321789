package resource

import (
	"sync"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/log"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
	"github.com/cloudbridge/coap/stack"
)

// ServerMessageDeliverer is the C8 "ServerMessageDeliverer" of spec.md §4.6:
// given a request's ordered path segments, it walks the resource tree and
// either responds 4.04 Not Found or invokes the matching resource/method
// handler. It also implements stack.ObserveRegistrar so the stack's Observe
// layer can attach/cancel relations through it
// without the layer importing this package.
type ServerMessageDeliverer struct {
	root   *Resource
	sender stack.Downstream
	log    log.Logger

	mu        sync.Mutex
	endpoints map[string]*ObservingEndpoint // source address string -> endpoint
}

// NewServerMessageDeliverer builds a deliverer rooted at root. Call
// SetSender once the owning endpoint.Endpoint exists, since
// endpoint.New(...) takes this deliverer as its Upstream before the
// Endpoint (and therefore its Downstream send path) is constructed.
func NewServerMessageDeliverer(root *Resource, logger log.Logger) *ServerMessageDeliverer {
	if logger == nil {
		logger = log.Nop{}
	}
	return &ServerMessageDeliverer{
		root:      root,
		log:       logger,
		endpoints: make(map[string]*ObservingEndpoint),
	}
}

// SetSender wires the Downstream (normally endpoint.Endpoint.Stack()) a
// handler uses to send its response back down through the stack.
func (d *ServerMessageDeliverer) SetSender(s stack.Downstream) {
	d.sender = s
}

// RequestContext is handed to a resource HandlerFunc: the request, its
// Exchange, and a Respond helper that sends a response down through the
// full stack (Observe assigns a sequence number if this exchange holds a
// relation, Blockwise fragments an oversized body, Token/Reliability do
// their usual bookkeeping).
type RequestContext struct {
	Exchange *exchange.Exchange
	Request  *message.Message
	Resource *Resource

	deliverer *ServerMessageDeliverer
}

// Respond sends a response with the given code and payload, defaulting to
// the request's ID (when not Confirmable/piggyback, the matcher assigns a
// fresh one) and the request's token.
func (c *RequestContext) Respond(code codes.Code, payload []byte, contentFormat message.MediaType) {
	resp := &message.Message{
		Type:    ackType(c.Request),
		Code:    code,
		Token:   c.Request.Token,
		Payload: payload,
	}
	if resp.Type == message.Acknowledgement {
		resp.ID = c.Request.ID
	}
	if payload != nil {
		resp.Options = resp.Options.SetContentFormat(contentFormat)
	}
	if err := c.deliverer.sender.SendResponse(c.Exchange, resp); err != nil {
		c.deliverer.log.Warnf("resource: respond failed: %s", err)
	}
}

func ackType(req *message.Message) message.Type {
	if req.Type == message.Confirmable {
		return message.Acknowledgement
	}
	return message.NonConfirmable
}

// ReceiveRequest implements stack.Upstream. It is invoked after the Observe
// layer has already attached/canceled any relation for this request
//.
func (d *ServerMessageDeliverer) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	path, _ := req.Options.Path()
	res := d.root.Lookup(path)
	if res == nil {
		d.respondError(ex, req, codes.NotFound)
		return
	}
	handler, ok := res.handlerFor(req.Code)
	if !ok {
		d.respondError(ex, req, codes.MethodNotAllowed)
		return
	}
	handler(&RequestContext{Exchange: ex, Request: req, Resource: res, deliverer: d})
}

func (d *ServerMessageDeliverer) respondError(ex *exchange.Exchange, req *message.Message, code codes.Code) {
	if d.sender == nil {
		return
	}
	resp := &message.Message{Type: ackType(req), Code: code, ID: req.ID, Token: req.Token}
	if err := d.sender.SendResponse(ex, resp); err != nil {
		d.log.Warnf("resource: error response failed: %s", err)
	}
}

// ReceiveResponse implements stack.Upstream. A server deliverer never
// originates requests, so it has nothing to correlate an inbound response
// against; this exists only to satisfy the interface.
func (d *ServerMessageDeliverer) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	d.log.Warnf("resource: unexpected response delivered to server deliverer")
}

// ReceiveEmptyMessage implements stack.Upstream.
func (d *ServerMessageDeliverer) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {}

// Root returns the resource tree's root node, e.g. for advertising
// /.well-known/core.
func (d *ServerMessageDeliverer) Root() *Resource { return d.root }
