package endpoint

import (
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/cloudbridge/coap/codec"
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/netcoap"
)

// fakeChannel is an in-memory netcoap.Channel: Send records the encoded
// datagram, and deliver injects an inbound one straight into the endpoint's
// handler as if it arrived from remote.
type fakeChannel struct {
	handler netcoap.Handler
	sent    [][]byte
	remote  net.Addr
}

func (f *fakeChannel) Start() error { return nil }
func (f *fakeChannel) Stop() error  { return nil }
func (f *fakeChannel) Send(data []byte, session netcoap.Session, remote net.Addr) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeChannel) GetSession(remote net.Addr) netcoap.Session { return fakeSession{remote} }
func (f *fakeChannel) AddMulticastAddress(group string) error     { return nil }
func (f *fakeChannel) OnDataReceived(h netcoap.Handler)           { f.handler = h }

type fakeSession struct{ addr net.Addr }

func (s fakeSession) RemoteAddr() net.Addr { return s.addr }
func (s fakeSession) IsReliable() bool     { return false }

// nopUpstream never receives anything in these tests; the decode failures
// they exercise never reach the stack.
type nopUpstream struct{}

func (nopUpstream) ReceiveRequest(ex *exchange.Exchange, req *message.Message)   {}
func (nopUpstream) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {}
func (nopUpstream) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
}

func waitForSent(t *testing.T, ch *fakeChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(ch.sent) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sent datagram(s), got %d", n, len(ch.sent))
		}
		time.Sleep(time.Millisecond)
	}
}

// TestDecodeFailureUnknownCriticalOptionSendsRST covers spec.md §4.5/§7: a
// CON carrying an unknown critical option fails to decode but still yields
// a parsed MID, so the endpoint must answer with an RST bearing it
// (RFC 7252 §5.4.1) rather than silently dropping the datagram.
func TestDecodeFailureUnknownCriticalOptionSendsRST(t *testing.T) {
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
	ch := &fakeChannel{remote: remote}
	cfg := DefaultConfig()
	cfg.Executor = InlineExecutor{}
	New(ch, nopUpstream{}, nil, cfg, nil)

	// CON, TKL=0, code 0x01 (GET), MID=0x4242, then option number 9
	// (odd = critical, unknown to this module), 0-length value.
	in, err := hex.DecodeString("4001424290")
	if err != nil {
		t.Fatalf("bad hex fixture: %s", err)
	}
	ch.handler(netcoap.DataReceived{Data: in, Remote: remote, Session: fakeSession{remote}})

	waitForSent(t, ch, 1)
	got, err := codec.Decode(ch.sent[0])
	if err != nil {
		t.Fatalf("decode RST: %s", err)
	}
	if got.Type != message.Reset || got.ID != 0x4242 {
		t.Fatalf("expected RST echoing MID 0x4242, got %+v", got)
	}
}

// TestDecodeFailureShortHeaderDropsSilently covers spec.md §7: a datagram
// too short to parse a MID from can only be logged and dropped, never RST.
func TestDecodeFailureShortHeaderDropsSilently(t *testing.T) {
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
	ch := &fakeChannel{remote: remote}
	cfg := DefaultConfig()
	cfg.Executor = InlineExecutor{}
	New(ch, nopUpstream{}, nil, cfg, nil)

	ch.handler(netcoap.DataReceived{Data: []byte{0x40, 0x00}, Remote: remote, Session: fakeSession{remote}})

	time.Sleep(20 * time.Millisecond)
	if len(ch.sent) != 0 {
		t.Fatalf("expected no RST for an undecodable short header, got %d datagrams", len(ch.sent))
	}
}

// TestDecodeFailureMalformedReplyDropsSilently covers spec.md §4.5: a
// malformed ACK/RST is itself a reply, so RFC 7252 gives no reply-to-a-reply
// mechanism and the endpoint must just log and drop it.
func TestDecodeFailureMalformedReplyDropsSilently(t *testing.T) {
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
	ch := &fakeChannel{remote: remote}
	cfg := DefaultConfig()
	cfg.Executor = InlineExecutor{}
	New(ch, nopUpstream{}, nil, cfg, nil)

	// ACK, TKL=0, code 0x01, MID=0x4242, unknown critical option 9.
	in, err := hex.DecodeString("6001424290")
	if err != nil {
		t.Fatalf("bad hex fixture: %s", err)
	}
	ch.handler(netcoap.DataReceived{Data: in, Remote: remote, Session: fakeSession{remote}})

	time.Sleep(20 * time.Millisecond)
	if len(ch.sent) != 0 {
		t.Fatalf("expected no RST for a malformed reply, got %d datagrams", len(ch.sent))
	}
}
