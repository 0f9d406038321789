package stack

import (
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

type fakeDown struct {
	requests  []*message.Message
	responses []*message.Message
	empties   []*message.Message
}

func (f *fakeDown) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeDown) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeDown) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	f.empties = append(f.empties, msg)
	return nil
}

type fakeUp struct {
	requests  []*message.Message
	responses []*message.Message
	empties   []*message.Message
}

func (f *fakeUp) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	f.requests = append(f.requests, req)
}

func (f *fakeUp) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	f.responses = append(f.responses, resp)
}

func (f *fakeUp) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
	f.empties = append(f.empties, msg)
}

type fakeRetransmitter struct {
	calls int
}

func (f *fakeRetransmitter) Retransmit(ex *exchange.Exchange, msg *message.Message) error {
	f.calls++
	return nil
}
