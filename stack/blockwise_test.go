package stack

import (
	"bytes"
	"net"
	"testing"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

var testRemote net.Addr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}

func makeBody(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// TestBlockwiseFragmentsLargeResponse covers spec.md §8 property 9.
func TestBlockwiseFragmentsLargeResponse(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &BlockwiseLayer{Down: down, Up: up, SZX: 0} // 16-byte blocks

	body := makeBody(40)
	req := &message.Message{Code: codes.GET, Type: message.Confirmable, Token: message.Token{1}}
	ex := exchange.New(exchange.Remote, req, testRemote)

	resp := &message.Message{Code: codes.Content, Type: message.Acknowledgement, Token: message.Token{1}, Payload: body}
	if err := l.SendResponse(ex, resp); err != nil {
		t.Fatalf("SendResponse: %s", err)
	}
	if len(down.responses) != 1 {
		t.Fatalf("expected 1 sent block, got %d", len(down.responses))
	}
	b0, ok := down.responses[0].Options.GetBlock2()
	if !ok || b0.Num != 0 || !b0.More {
		t.Fatalf("first block wrong: %+v ok=%v", b0, ok)
	}

	for _, num := range []uint32{1, 2} {
		followUp := &message.Message{Code: codes.GET, Type: message.Confirmable, Token: message.Token{1}}
		followUp.Options = followUp.Options.SetBlock2(message.BlockValue{Num: num, SZX: 0})
		l.ReceiveRequest(ex, followUp)
	}
	if len(down.responses) != 3 {
		t.Fatalf("expected 3 sent blocks total, got %d", len(down.responses))
	}
	last, ok := down.responses[2].Options.GetBlock2()
	if !ok || last.More {
		t.Fatalf("final block must have more=false, got %+v", last)
	}

	var reassembled []byte
	for _, r := range down.responses {
		reassembled = append(reassembled, r.Payload...)
	}
	if !bytes.Equal(reassembled, body) {
		t.Fatalf("reassembled body mismatch")
	}
}

// TestBlockwiseReassemblesRequestBody covers the Block1 half of property 9.
func TestBlockwiseReassemblesRequestBody(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &BlockwiseLayer{Down: down, Up: up, SZX: 0}

	body := makeBody(40)
	req := &message.Message{Code: codes.PUT, Type: message.Confirmable, Token: message.Token{2}}
	ex := exchange.New(exchange.Remote, req, testRemote)

	chunks := [][]byte{body[0:16], body[16:32], body[32:40]}
	for i, chunk := range chunks {
		more := i < len(chunks)-1
		frag := &message.Message{Code: codes.PUT, Type: message.Confirmable, Token: message.Token{2}, Payload: chunk}
		frag.Options = frag.Options.SetBlock1(message.BlockValue{Num: uint32(i), More: more, SZX: 0})
		l.ReceiveRequest(ex, frag)
	}

	if len(down.responses) != 2 {
		t.Fatalf("expected 2 Continue acks, got %d", len(down.responses))
	}
	for _, ack := range down.responses {
		if ack.Code != codes.Continue {
			t.Fatalf("expected 2.31 Continue, got %v", ack.Code)
		}
	}
	if len(up.requests) != 1 {
		t.Fatalf("expected exactly 1 reassembled request forwarded up, got %d", len(up.requests))
	}
	if !bytes.Equal(up.requests[0].Payload, body) {
		t.Fatalf("reassembled request body mismatch")
	}
	if _, ok := up.requests[0].Options.GetBlock1(); ok {
		t.Fatalf("Block1 option should be stripped before forwarding up")
	}
}

// TestBlockwiseClientReassemblesResponse drives ReceiveResponse as a client
// would see it: each Block2 response either triggers a follow-up GET or, on
// the final block, forwards the reassembled body upward exactly once.
func TestBlockwiseClientReassemblesResponse(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &BlockwiseLayer{Down: down, Up: up, SZX: 0}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable, Token: message.Token{3}}
	ex := exchange.New(exchange.Local, req, testRemote)

	body := makeBody(40)
	resp0 := &message.Message{Code: codes.Content, Type: message.Acknowledgement, Token: message.Token{3}, Payload: body[0:16]}
	resp0.Options = resp0.Options.SetBlock2(message.BlockValue{Num: 0, More: true, SZX: 0})
	l.ReceiveResponse(ex, resp0)

	if len(down.requests) != 1 {
		t.Fatalf("expected a follow-up GET, got %d", len(down.requests))
	}
	next, ok := down.requests[0].Options.GetBlock2()
	if !ok || next.Num != 1 {
		t.Fatalf("follow-up GET should request block 1, got %+v", next)
	}

	resp1 := &message.Message{Code: codes.Content, Type: message.Acknowledgement, Token: message.Token{3}, Payload: body[16:32]}
	resp1.Options = resp1.Options.SetBlock2(message.BlockValue{Num: 1, More: true, SZX: 0})
	l.ReceiveResponse(ex, resp1)

	resp2 := &message.Message{Code: codes.Content, Type: message.Acknowledgement, Token: message.Token{3}, Payload: body[32:40]}
	resp2.Options = resp2.Options.SetBlock2(message.BlockValue{Num: 2, More: false, SZX: 0})
	l.ReceiveResponse(ex, resp2)

	if len(up.responses) != 1 {
		t.Fatalf("expected exactly 1 reassembled response forwarded up, got %d", len(up.responses))
	}
	if !bytes.Equal(up.responses[0].Payload, body) {
		t.Fatalf("client-side reassembled body mismatch")
	}
}

func TestBlockwisePassesThroughSmallMessages(t *testing.T) {
	down := &fakeDown{}
	up := &fakeUp{}
	l := &BlockwiseLayer{Down: down, Up: up, SZX: 6}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable, Token: message.Token{9}}
	ex := exchange.New(exchange.Remote, req, testRemote)
	resp := &message.Message{Code: codes.Content, Type: message.Acknowledgement, Payload: []byte("hello")}
	if err := l.SendResponse(ex, resp); err != nil {
		t.Fatalf("SendResponse: %s", err)
	}
	if len(down.responses) != 1 {
		t.Fatalf("expected pass-through, got %d sends", len(down.responses))
	}
	if _, ok := down.responses[0].Options.GetBlock2(); ok {
		t.Fatalf("small response must not gain a Block2 option")
	}
}
