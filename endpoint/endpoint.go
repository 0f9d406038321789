// Package endpoint implements the façade that composes
// a Channel, a Codec, a Matcher, a Stack, and an Executor, and pumps bytes
// in and out.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/cloudbridge/coap/codec"
	"github.com/cloudbridge/coap/dedup"
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/log"
	"github.com/cloudbridge/coap/matcher"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
	"github.com/cloudbridge/coap/netcoap"
	"github.com/cloudbridge/coap/stack"
)

// Endpoint is the engine's façade. It is its own stack.Downstream (the
// bottom sink the stack sends through) and stack.Retransmitter (the bottom
// sink the Reliability layer re-sends through): the endpoint is its own
// outbox.
type Endpoint struct {
	cfg     Config
	channel netcoap.Channel
	matcher *matcher.Matcher
	dedup   dedup.Deduplicator
	stack   *stack.Stack
	live    *stack.Transmission
	exec    Executor
	log     log.Logger

	running atomic.Bool

	eventBus
}

type matcherLogAdapter struct{ l log.Logger }

func (a matcherLogAdapter) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a matcherLogAdapter) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }

// New builds an Endpoint. up is the application's receive path: a
// resource.ServerMessageDeliverer on a server, or the client's response
// dispatcher on a client. registrar may be nil for a pure client endpoint.
func New(channel netcoap.Channel, up stack.Upstream, registrar stack.ObserveRegistrar, cfg Config, logger log.Logger) *Endpoint {
	if logger == nil {
		logger = log.Nop{}
	}
	d := dedup.New(cfg.Deduplicator, cfg.ExchangeLifetime, cfg.MarkAndSweepInterval)
	m := matcher.New(d, matcher.Config{TokenLength: cfg.TokenLength, UseRandomIDStart: cfg.UseRandomIDStart}, matcherLogAdapter{logger})

	exec := cfg.Executor
	if exec == nil {
		exec = NewWorkerPool(4, 256)
	}

	ep := &Endpoint{cfg: cfg, channel: channel, matcher: m, dedup: d, exec: exec, log: logger}

	live := stack.NewTransmission(stack.Config{
		AckTimeout:      cfg.AckTimeout,
		AckRandomFactor: cfg.AckRandomFactor,
		MaxRetransmit:   cfg.MaxRetransmit,
	})
	ep.live = live

	opts := stack.Options{
		BlockwiseSZX:            cfg.BlockwiseSZX,
		BlockwiseStatusLifetime: cfg.BlockwiseStatusLifetime,
		Reliability:             live.Snapshot(),
		Live:                    live,
	}
	ep.stack = stack.New(opts, ep, ep, registrar, up)

	channel.OnDataReceived(ep.onDataReceived)
	return ep
}

// Transmission exposes the live-tunable retransmission knobs.
func (e *Endpoint) Transmission() *stack.Transmission { return e.live }

// Stack exposes the top of the layer chain (Observe, the closest layer to
// the application) as a stack.Downstream, the entry point resource handlers
// and client callers use to send a response or a new request down through
// Blockwise/Token/Reliability to the wire.
func (e *Endpoint) Stack() stack.Downstream { return e.stack.Send }

// Config returns the endpoint's configuration, e.g. for a client to validate
// an outgoing request's URI scheme against EndpointSchemas.
func (e *Endpoint) Config() Config { return e.cfg }

// NewExchange starts a Local-origin exchange for an outgoing client request
//.
func (e *Endpoint) NewExchange(req *message.Message, remote net.Addr) *exchange.Exchange {
	ex := exchange.New(exchange.Local, req, remote)
	if remote != nil {
		ex.Session = sessionID(e.channel.GetSession(remote))
	}
	return ex
}

// Start binds the channel, starts the deduplicator sweep, and activates the
// executor. Idempotent, guarded by an atomic CAS.
func (e *Endpoint) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	e.dedup.Start()
	e.exec.Start()
	if err := e.channel.Start(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("endpoint: start channel: %w", err)
	}
	return nil
}

// Stop reverses Start. Idempotent.
func (e *Endpoint) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	err := e.channel.Stop()
	e.exec.Stop()
	e.dedup.Stop()
	return err
}

func (e *Endpoint) onDataReceived(evt netcoap.DataReceived) {
	e.exec.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Errorf("endpoint: %s: panic handling datagram from %v: %v", message.ErrInvariantViolation, evt.Remote, r)
			}
		}()
		e.handleDatagram(evt)
	})
}

func (e *Endpoint) handleDatagram(evt netcoap.DataReceived) {
	session := sessionID(evt.Session)
	m, err := codec.Decode(evt.Data)
	if err != nil {
		e.handleDecodeFailure(evt, err)
		return
	}

	switch codec.KindOf(m) {
	case codec.KindEmpty:
		e.handleEmpty(m, evt, session)
	case codec.KindSignal:
		e.handleSignal(m, evt, session)
	case codec.KindRequest:
		e.handleRequest(m, evt, session)
	case codec.KindResponse:
		e.handleResponse(m, evt, session)
	}
}

func (e *Endpoint) handleDecodeFailure(evt netcoap.DataReceived, err error) {
	e.log.Warnf("endpoint: decode failure from %v: %s", evt.Remote, err)

	var fe *message.FormatError
	if !errors.As(err, &fe) || !fe.HeaderKnown {
		// Too little of the header parsed to trust a MID (e.g. a short or
		// version-mismatched datagram): nothing to echo, so just drop.
		return
	}
	if fe.Type == message.Acknowledgement || fe.Type == message.Reset {
		// The malformed datagram was itself a reply; RFC 7252 gives no
		// reply-to-a-reply mechanism, so log and drop.
		return
	}
	rst := &message.Message{Type: message.Reset, Code: codes.Empty, ID: fe.ID}
	e.writeEmpty(rst, evt.Remote, evt.Session)
}

func (e *Endpoint) handleRequest(req *message.Message, evt netcoap.DataReceived, session exchange.SessionID) {
	e.fire(ReceivingRequest, nil, req)
	ex := e.matcher.ReceiveRequest(req, evt.Remote, session)
	if req.Duplicate {
		if resp := ex.GetCurrentResponse(); resp != nil {
			e.writeMessage(resp, ex, evt.Remote)
		}
		return
	}
	e.stack.Receive.ReceiveRequest(ex, req)
}

func (e *Endpoint) handleResponse(resp *message.Message, evt netcoap.DataReceived, session exchange.SessionID) {
	e.fire(ReceivingResponse, nil, resp)
	ex, ok := e.matcher.ReceiveResponse(resp, evt.Remote, session)
	if !ok {
		e.writeEmpty(&message.Message{Type: message.Reset, Code: codes.Empty, ID: resp.ID}, evt.Remote, evt.Session)
		return
	}
	if resp.Duplicate {
		return
	}
	ex.SetCurrentResponse(resp)
	e.stack.Receive.ReceiveResponse(ex, resp)
}

func (e *Endpoint) handleEmpty(msg *message.Message, evt netcoap.DataReceived, session exchange.SessionID) {
	e.fire(ReceivingEmptyMessage, nil, msg)
	if msg.Type == message.Confirmable || msg.Type == message.NonConfirmable {
		// CoAP ping: RST is the required response.
		e.writeEmpty(&message.Message{Type: message.Reset, Code: codes.Empty, ID: msg.ID}, evt.Remote, evt.Session)
		return
	}
	ex := e.matcher.ReceiveEmptyMessage(msg, session)
	e.stack.Receive.ReceiveEmptyMessage(ex, msg)
}

func (e *Endpoint) handleSignal(msg *message.Message, evt netcoap.DataReceived, session exchange.SessionID) {
	switch msg.Code {
	case codes.SignalCSM, codes.SignalPing, codes.SignalRelease:
		if msg.Code == codes.SignalPing {
			pong := &message.Message{Type: message.Confirmable, Code: codes.SignalPong, Token: msg.Token, ID: msg.ID}
			e.writeMessage(pong, nil, evt.Remote)
		}
		// CSM capability negotiation and Release are accepted and otherwise
		// have no observable effect in this UDP-oriented engine; they are
		// meaningful on reliable transports (RFC 8323) this module doesn't
		// implement.
	case codes.SignalPong:
		// nothing to do: a liveness probe answered.
	default:
		abort := &message.Message{Type: message.Confirmable, Code: codes.SignalAbort, Payload: []byte("Bad-CSM-Option")}
		e.writeMessage(abort, nil, evt.Remote)
	}
}

// SendRequest implements stack.Downstream: the bottom sink the stack sends
// a request through.
func (e *Endpoint) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	if err := e.matcher.SendRequest(ex, req); err != nil {
		return err
	}
	e.fire(SendingRequest, ex, req)
	return e.writeMessage(req, ex, ex.RemoteAddr)
}

// SendResponse implements stack.Downstream.
func (e *Endpoint) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	if err := e.matcher.SendResponse(ex, resp); err != nil {
		return err
	}
	e.fire(SendingResponse, ex, resp)
	ex.SetCurrentResponse(resp)
	return e.writeMessage(resp, ex, ex.RemoteAddr)
}

// SendEmptyMessage implements stack.Downstream.
func (e *Endpoint) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	if err := e.matcher.SendEmptyMessage(ex, msg); err != nil {
		return err
	}
	e.fire(SendingEmptyMessage, ex, msg)
	remote := evtRemote(ex)
	return e.writeEmpty(msg, remote, nil)
}

// Retransmit implements stack.Retransmitter: re-sends already-encoded
// bytes without re-running matcher registration.
func (e *Endpoint) Retransmit(ex *exchange.Exchange, msg *message.Message) error {
	return e.writeMessage(msg, ex, evtRemote(ex))
}

func evtRemote(ex *exchange.Exchange) net.Addr {
	if ex == nil {
		return nil
	}
	return ex.RemoteAddr
}

func (e *Endpoint) writeMessage(m *message.Message, ex *exchange.Exchange, remote net.Addr) error {
	data, err := codec.Encode(m)
	if err != nil {
		e.log.Warnf("endpoint: encode failure: %s", err)
		return err
	}
	var session netcoap.Session
	if remote != nil {
		session = e.channel.GetSession(remote)
	}
	return e.channel.Send(data, session, remote)
}

func (e *Endpoint) writeEmpty(m *message.Message, remote net.Addr, s netcoap.Session) error {
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	if s == nil && remote != nil {
		s = e.channel.GetSession(remote)
	}
	return e.channel.Send(data, s, remote)
}

func sessionID(s netcoap.Session) exchange.SessionID {
	if s == nil {
		return ""
	}
	return exchange.SessionID(s.RemoteAddr().String())
}
