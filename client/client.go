// Package client implements the "Client.send" side of the message-exchange
// engine's data flow: turning a logical request into a
// Local-origin Exchange, sending it down through the stack, and
// correlating the eventual response back to the caller by token. It plays
// the Upstream role on a client-configured endpoint.Endpoint the same way
// resource.ServerMessageDeliverer plays it on a server-configured one.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/cloudbridge/coap/endpoint"
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// ErrSchema marks an outgoing request whose URI scheme the endpoint wasn't
// configured to serve.
var ErrSchema = errors.New("coap: client: unsupported URI scheme")

// Client drives one endpoint.Endpoint's outbound requests and dispatches
// each inbound response to whichever caller is waiting on its token.
type Client struct {
	ep *endpoint.Endpoint

	mu       sync.Mutex
	pending  map[string]chan response // token string -> one-shot waiter
	notifies map[string]chan *message.Message // token string -> observe stream
}

type response struct {
	msg *message.Message
	err error
}

// New wraps ep, which may be nil when the Client itself must be passed as
// endpoint.New's Upstream argument before the Endpoint exists yet; call
// Attach with the constructed Endpoint once it returns.
func New(ep *endpoint.Endpoint) *Client {
	return &Client{
		ep:       ep,
		pending:  make(map[string]chan response),
		notifies: make(map[string]chan *message.Message),
	}
}

// Attach wires ep as the Endpoint this Client drives, resolving the
// construction cycle the same way resource.ServerMessageDeliverer.SetSender
// does on the server side: build the Client, pass it to endpoint.New as the
// Upstream, then Attach the returned Endpoint.
func (c *Client) Attach(ep *endpoint.Endpoint) {
	c.ep = ep
}

// isMulticast reports whether remote names a multicast group address, so
// Do can mark the Exchange for the Matcher's multicast response-cloning
// path (spec.md §9 Open Question): every reply from a distinct group
// member is then treated as its own independent Exchange instead of the
// first reply claiming the only one.
func isMulticast(remote net.Addr) bool {
	udpAddr, ok := remote.(*net.UDPAddr)
	return ok && udpAddr.IP != nil && udpAddr.IP.IsMulticast()
}

// schemeOf extracts the scheme prefix of a coap(s) URI without pulling in a
// full net/url parse, since CoAP URIs are only ever host/port/path/query.
func schemeOf(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i]
	}
	return ""
}

// validateScheme enforces the endpoint's configured set of accepted URI
// schemes: a mismatch fails the send with a schema error before anything
// touches the wire.
func (c *Client) validateScheme(uri string) error {
	scheme := schemeOf(uri)
	if scheme == "" {
		return nil
	}
	if !c.ep.Config().EndpointSchemas[scheme] {
		return fmt.Errorf("%w: %q not in endpoint's accepted schemes", ErrSchema, scheme)
	}
	return nil
}

// Do sends req to remote and blocks for its response, or until ctx is
// canceled, an RST rejects the exchange, or retransmission is exhausted.
func (c *Client) Do(ctx context.Context, uri string, req *message.Message, remote net.Addr) (*message.Message, error) {
	if err := c.validateScheme(uri); err != nil {
		return nil, err
	}

	ex := c.ep.NewExchange(req, remote)
	ex.Multicast = isMulticast(remote)
	ch := make(chan response, 1)

	ex.OnFailure(func(_ *exchange.Exchange, cause exchange.FailureCause, err error) {
		c.deliverFailure(req.Token, cause, err)
	})

	if err := c.ep.Stack().SendRequest(ex, req); err != nil {
		return nil, err
	}

	tok := req.Token.String()
	c.mu.Lock()
	c.pending[tok] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, tok)
		c.mu.Unlock()
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		ex.Cancel()
		return nil, ctx.Err()
	}
}

// Observe sends a GET with Observe=0 and returns a channel fed with every
// subsequent notification sharing the request's token. Call the returned cancel
// func to send a deregistering GET (Observe=1) and stop the stream.
func (c *Client) Observe(ctx context.Context, uri string, req *message.Message, remote net.Addr) (<-chan *message.Message, func(), error) {
	if err := c.validateScheme(uri); err != nil {
		return nil, nil, err
	}
	req.Options = req.Options.SetObserve(0)

	ex := c.ep.NewExchange(req, remote)
	notifyCh := make(chan *message.Message, 16)

	if err := c.ep.Stack().SendRequest(ex, req); err != nil {
		return nil, nil, err
	}
	tok := req.Token.String()

	c.mu.Lock()
	c.notifies[tok] = notifyCh
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.notifies, tok)
		c.mu.Unlock()
		deregister := req.Clone()
		deregister.ID = 0
		deregister.Options = deregister.Options.SetObserve(1)
		dex := c.ep.NewExchange(deregister, remote)
		_ = c.ep.Stack().SendRequest(dex, deregister)
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return notifyCh, cancel, nil
}

func (c *Client) deliverFailure(token message.Token, cause exchange.FailureCause, err error) {
	tok := token.String()
	c.mu.Lock()
	ch, ok := c.pending[tok]
	c.mu.Unlock()
	if ok {
		select {
		case ch <- response{err: fmt.Errorf("coap: exchange failed (%d): %w", cause, err)}:
		default:
		}
	}
}

// ReceiveRequest implements stack.Upstream; a client never serves inbound
// requests (no resource tree to dispatch into).
func (c *Client) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {}

// ReceiveResponse implements stack.Upstream: delivers resp to whichever
// Do/Observe caller registered this token, then completes the exchange
// unless it belongs to a live observe relation.
func (c *Client) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	tok := resp.Token.String()

	c.mu.Lock()
	notifyCh, isNotify := c.notifies[tok]
	waitCh, isWait := c.pending[tok]
	c.mu.Unlock()

	switch {
	case isNotify:
		select {
		case notifyCh <- resp:
		default:
		}
	case isWait:
		select {
		case waitCh <- response{msg: resp}:
		default:
		}
	}

	if ex.Observe == nil {
		ex.Complete()
	}
}

// ReceiveEmptyMessage implements stack.Upstream.
func (c *Client) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {}
