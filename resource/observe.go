package resource

import (
	"net"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// relationEntry pairs an ObserveRelation with the resource it watches, so
// Notify can walk a resource's observers without a back-reference from
// exchange.ObserveRelation into this package.
type relationEntry struct {
	relation *exchange.ObserveRelation
	resource *Resource
}

// ObservingEndpoint groups every relation a single remote address holds
// across all resources.
type ObservingEndpoint struct {
	Addr      net.Addr
	relations map[string]*relationEntry // token string -> relation entry
}

func (d *ServerMessageDeliverer) endpointFor(addr net.Addr) *ObservingEndpoint {
	key := addr.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	oe, ok := d.endpoints[key]
	if !ok {
		oe = &ObservingEndpoint{Addr: addr, relations: make(map[string]*relationEntry)}
		d.endpoints[key] = oe
	}
	return oe
}

// Register implements stack.ObserveRegistrar. Called by the Observe layer
// when a GET/FETCH carries Observe=0.
func (d *ServerMessageDeliverer) Register(ex *exchange.Exchange, req *message.Message) *exchange.ObserveRelation {
	path, _ := req.Options.Path()
	res := d.root.Lookup(path)
	if res == nil || !res.Observable {
		return nil
	}

	rel := &exchange.ObserveRelation{
		Source: ex.RemoteAddr,
		Token:  req.Token.Clone(),
		Path:   path,
	}
	entry := &relationEntry{relation: rel, resource: res}

	oe := d.endpointFor(ex.RemoteAddr)
	tok := rel.Token.String()

	d.mu.Lock()
	oe.relations[tok] = entry
	d.mu.Unlock()

	res.mu.Lock()
	if res.observers == nil {
		res.observers = make(map[string]*relationEntry)
	}
	res.observers[tok] = entry
	res.mu.Unlock()

	return rel
}

// Deregister implements stack.ObserveRegistrar. Called when a GET/FETCH
// carries Observe=1, canceling a relation for the same token.
func (d *ServerMessageDeliverer) Deregister(ex *exchange.Exchange, req *message.Message) {
	if ex.RemoteAddr == nil {
		return
	}
	oe := d.endpointFor(ex.RemoteAddr)
	tok := req.Token.String()

	d.mu.Lock()
	entry, ok := oe.relations[tok]
	if ok {
		delete(oe.relations, tok)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	entry.relation.Cancel()
	entry.resource.mu.Lock()
	delete(entry.resource.observers, tok)
	entry.resource.mu.Unlock()
}

// Notify pushes a new representation of the resource at path to every
// observer, assigning a fresh Exchange per notification — spec.md §3: "the
// token is stable across all notifications; the ID changes per
// notification." confirmable selects CON (a reliable notification the
// client must ACK) vs NON.
func (d *ServerMessageDeliverer) Notify(path string, payload []byte, contentFormat message.MediaType, confirmable bool) {
	res := d.root.Lookup(path)
	if res == nil {
		return
	}
	res.mu.Lock()
	entries := make([]*relationEntry, 0, len(res.observers))
	for _, e := range res.observers {
		entries = append(entries, e)
	}
	res.mu.Unlock()

	typ := message.NonConfirmable
	if confirmable {
		typ = message.Confirmable
	}
	for _, entry := range entries {
		entry := entry
		if entry.relation.IsCanceled() {
			continue
		}
		ex := exchange.New(exchange.Remote, nil, entry.relation.Source)
		ex.Observe = entry.relation
		ex.OnFailure(func(_ *exchange.Exchange, cause exchange.FailureCause, _ error) {
			if cause == exchange.CauseRejected {
				d.Deregister(ex, &message.Message{Token: entry.relation.Token})
			}
		})
		resp := &message.Message{
			Type:    typ,
			Code:    codes.Content,
			Token:   entry.relation.Token,
			Payload: payload,
		}
		resp.Options = resp.Options.SetContentFormat(contentFormat)
		if d.sender != nil {
			_ = d.sender.SendResponse(ex, resp)
		}
	}
}
