package stack

import (
	"testing"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

type fakeRegistrar struct {
	registered   []*message.Message
	deregistered []*message.Message
	relation     *exchange.ObserveRelation
}

func (r *fakeRegistrar) Register(ex *exchange.Exchange, req *message.Message) *exchange.ObserveRelation {
	r.registered = append(r.registered, req)
	if r.relation == nil {
		r.relation = &exchange.ObserveRelation{Source: testRemote, Token: req.Token, Path: "watch"}
	}
	return r.relation
}

func (r *fakeRegistrar) Deregister(ex *exchange.Exchange, req *message.Message) {
	r.deregistered = append(r.deregistered, req)
}

func TestObserveLayerRegistersOnObserveZero(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	reg := &fakeRegistrar{}
	l := &ObserveLayer{Down: down, Up: up, Registrar: reg}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable, Token: message.Token{1}}
	req.Options = req.Options.SetObserve(0)
	ex := exchange.New(exchange.Remote, req, testRemote)

	l.ReceiveRequest(ex, req)

	if len(reg.registered) != 1 {
		t.Fatalf("expected registration, got %d", len(reg.registered))
	}
	if ex.Observe == nil {
		t.Fatalf("exchange must carry the new observe relation")
	}
	if len(up.requests) != 1 {
		t.Fatalf("request must still reach the application handler")
	}
}

func TestObserveLayerAssignsIncreasingSequence(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &ObserveLayer{Down: down, Up: up}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable}
	ex := exchange.New(exchange.Remote, req, testRemote)
	ex.Observe = &exchange.ObserveRelation{Source: testRemote, Token: message.Token{1}}

	for i := 0; i < 3; i++ {
		resp := &message.Message{Code: codes.Content, Type: message.NonConfirmable}
		if err := l.SendResponse(ex, resp); err != nil {
			t.Fatalf("SendResponse: %s", err)
		}
	}
	if len(down.responses) != 3 {
		t.Fatalf("expected 3 notifications sent")
	}
	var last uint32
	for i, resp := range down.responses {
		seq, err := resp.Options.GetObserve()
		if err != nil {
			t.Fatalf("notification %d missing Observe option", i)
		}
		if i > 0 && seq <= last {
			t.Fatalf("sequence must strictly increase: %d then %d", last, seq)
		}
		last = seq
	}
}

func TestObserveLayerDeregistersOnObserveOne(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	reg := &fakeRegistrar{}
	l := &ObserveLayer{Down: down, Up: up, Registrar: reg}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable}
	req.Options = req.Options.SetObserve(1)
	ex := exchange.New(exchange.Remote, req, testRemote)
	ex.Observe = &exchange.ObserveRelation{Source: testRemote}

	l.ReceiveRequest(ex, req)

	if len(reg.deregistered) != 1 {
		t.Fatalf("expected deregistration, got %d", len(reg.deregistered))
	}
	if !ex.Observe.IsCanceled() {
		t.Fatalf("relation must be canceled after Observe=1")
	}
}

func TestObserveLayerCancelsOnReset(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &ObserveLayer{Down: down, Up: up}

	ex := exchange.New(exchange.Local, &message.Message{}, testRemote)
	ex.Observe = &exchange.ObserveRelation{Source: testRemote}

	l.ReceiveEmptyMessage(ex, &message.Message{Type: message.Reset})
	if !ex.Observe.IsCanceled() {
		t.Fatalf("RST in place of ACK must cancel the observe relation (RFC 7641 §3.6)")
	}
}
