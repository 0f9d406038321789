package resource

import (
	"net"
	"testing"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// fakeSender records every message sent through it, standing in for
// endpoint.Endpoint.Stack() in these package-local tests.
type fakeSender struct {
	responses []*message.Message
}

func (f *fakeSender) SendRequest(ex *exchange.Exchange, req *message.Message) error { return nil }
func (f *fakeSender) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	f.responses = append(f.responses, resp)
	return nil
}
func (f *fakeSender) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error { return nil }

var testRemote net.Addr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}

// TestDeliverUnknownPathNotFound covers spec.md §4.6: "on no match, respond
// 4.04 Not Found."
func TestDeliverUnknownPathNotFound(t *testing.T) {
	root := New("")
	sender := &fakeSender{}
	d := NewServerMessageDeliverer(root, nil)
	d.SetSender(sender)

	req := &message.Message{Type: message.Confirmable, Code: codes.GET, ID: 1, Token: message.Token{0x01}}
	req.Options = req.Options.SetPath("missing")
	ex := exchange.New(exchange.Remote, req, testRemote)

	d.ReceiveRequest(ex, req)

	if len(sender.responses) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(sender.responses))
	}
	if sender.responses[0].Code != codes.NotFound {
		t.Fatalf("expected 4.04 Not Found, got %s", sender.responses[0].Code)
	}
}

// TestDeliverInvokesHandler covers Scenario B's resource side.
func TestDeliverInvokesHandler(t *testing.T) {
	root := New("")
	root.Add("test").Get(func(ctx *RequestContext) {
		ctx.Respond(codes.Content, []byte("hello"), message.TextPlain)
	})
	sender := &fakeSender{}
	d := NewServerMessageDeliverer(root, nil)
	d.SetSender(sender)

	req := &message.Message{Type: message.Confirmable, Code: codes.GET, ID: 1, Token: message.Token{0xFF}}
	req.Options = req.Options.SetPath("test")
	ex := exchange.New(exchange.Remote, req, testRemote)

	d.ReceiveRequest(ex, req)

	if len(sender.responses) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(sender.responses))
	}
	resp := sender.responses[0]
	if resp.Code != codes.Content || string(resp.Payload) != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Type != message.Acknowledgement {
		t.Fatalf("a CON GET must be answered with a piggybacked ACK, got %s", resp.Type)
	}
}

// TestDeliverMethodNotAllowed covers a resource that exists but has no
// handler for the requested method.
func TestDeliverMethodNotAllowed(t *testing.T) {
	root := New("")
	root.Add("test").Get(func(ctx *RequestContext) {})
	sender := &fakeSender{}
	d := NewServerMessageDeliverer(root, nil)
	d.SetSender(sender)

	req := &message.Message{Type: message.Confirmable, Code: codes.DELETE, ID: 1, Token: message.Token{0x02}}
	req.Options = req.Options.SetPath("test")
	ex := exchange.New(exchange.Remote, req, testRemote)

	d.ReceiveRequest(ex, req)

	if len(sender.responses) != 1 || sender.responses[0].Code != codes.MethodNotAllowed {
		t.Fatalf("expected 4.05 Method Not Allowed, got %+v", sender.responses)
	}
}

// TestObserveRegisterThenDeregister covers spec.md §8 property 8.
func TestObserveRegisterThenDeregister(t *testing.T) {
	root := New("")
	res := root.Add("sensors/temp")
	res.Observable = true
	sender := &fakeSender{}
	d := NewServerMessageDeliverer(root, nil)
	d.SetSender(sender)

	req := &message.Message{Type: message.Confirmable, Code: codes.GET, ID: 1, Token: message.Token{0xAB}}
	req.Options = req.Options.SetPath("sensors/temp")
	ex := exchange.New(exchange.Remote, req, testRemote)

	rel := d.Register(ex, req)
	if rel == nil {
		t.Fatalf("expected a relation for an observable resource")
	}
	if len(res.observers) != 1 {
		t.Fatalf("expected the resource to track one observer")
	}

	d.Notify("/sensors/temp", []byte("21C"), message.TextPlain, false)
	if len(sender.responses) != 1 {
		t.Fatalf("expected one notification sent, got %d", len(sender.responses))
	}

	deregReq := &message.Message{Type: message.Confirmable, Code: codes.GET, ID: 2, Token: message.Token{0xAB}}
	d.Deregister(ex, deregReq)
	if !rel.IsCanceled() {
		t.Fatalf("deregister must cancel the relation")
	}
	if len(res.observers) != 0 {
		t.Fatalf("deregister must remove the resource's observer entry")
	}

	d.Notify("/sensors/temp", []byte("22C"), message.TextPlain, false)
	if len(sender.responses) != 1 {
		t.Fatalf("a canceled relation must not receive further notifications")
	}
}

// TestRegisterIgnoresNonObservableResource covers the "observable flag"
// invariant from spec.md §3.
func TestRegisterIgnoresNonObservableResource(t *testing.T) {
	root := New("")
	root.Add("static")
	d := NewServerMessageDeliverer(root, nil)
	d.SetSender(&fakeSender{})

	req := &message.Message{Code: codes.GET, Token: message.Token{0x01}}
	req.Options = req.Options.SetPath("static")
	ex := exchange.New(exchange.Remote, req, testRemote)

	if rel := d.Register(ex, req); rel != nil {
		t.Fatalf("a non-observable resource must not yield a relation")
	}
}
