package matcher

import (
	"net"
	"testing"
	"time"

	"github.com/cloudbridge/coap/dedup"
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

func newTestMatcher() *Matcher {
	d := dedup.NewMarkAndSweep(time.Second, 100*time.Millisecond)
	return New(d, DefaultConfig(), nil)
}

var remote net.Addr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}

// TestSendRequestAssignsUniqueTokens covers spec.md §8 property 5.
func TestSendRequestAssignsUniqueTokens(t *testing.T) {
	m := newTestMatcher()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		req := &message.Message{Code: codes.GET, Type: message.Confirmable}
		ex := exchange.New(exchange.Local, req, remote)
		if err := m.SendRequest(ex, req); err != nil {
			t.Fatalf("SendRequest: %s", err)
		}
		key := string(req.Token)
		if seen[key] {
			t.Fatalf("token %x reused across live exchanges", req.Token)
		}
		seen[key] = true
	}
}

// TestDuplicateRequestReturnsSameExchange covers spec.md §8 property 4 /
// Scenario D.
func TestDuplicateRequestReturnsSameExchange(t *testing.T) {
	m := newTestMatcher()
	req := &message.Message{Code: codes.GET, Type: message.Confirmable, ID: 1, Token: message.Token{0xFF}}
	ex1 := m.ReceiveRequest(req, remote, "")
	if req.Duplicate {
		t.Fatalf("first arrival must not be marked duplicate")
	}

	req2 := &message.Message{Code: codes.GET, Type: message.Confirmable, ID: 1, Token: message.Token{0xFF}}
	ex2 := m.ReceiveRequest(req2, remote, "")
	if !req2.Duplicate {
		t.Fatalf("second arrival within lifetime must be marked duplicate")
	}
	if ex1 != ex2 {
		t.Fatalf("duplicate request must resolve to the same Exchange")
	}
}

// TestAckThenResponseSameExchange covers spec.md §8 property 3.
func TestAckThenResponseSameExchange(t *testing.T) {
	m := newTestMatcher()
	req := &message.Message{Code: codes.GET, Type: message.Confirmable}
	ex := exchange.New(exchange.Local, req, remote)
	ex.Session = exchange.SessionID("")
	if err := m.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %s", err)
	}

	ack := &message.Message{Type: message.Acknowledgement, Code: codes.Empty, ID: req.ID}
	gotEx := m.ReceiveEmptyMessage(ack, "")
	if gotEx != ex {
		t.Fatalf("ACK should resolve back to the sent exchange")
	}

	idKey := exchange.NewKeyIDLocal(req.ID, "")
	m.mu.Lock()
	_, stillThere := m.byID[idKey]
	m.mu.Unlock()
	if stillThere {
		t.Fatalf("byId entry must be removed after the ACK")
	}

	resp := &message.Message{Type: message.Acknowledgement, Code: codes.Content, ID: req.ID, Token: req.Token}
	gotEx2, ok := m.ReceiveResponse(resp, remote, "")
	if !ok || gotEx2 != ex {
		t.Fatalf("response with matching token should resolve to same exchange")
	}
}

// TestReceiveResponseNoTokenMatchRejected covers Scenario C.
func TestReceiveResponseNoTokenMatchRejected(t *testing.T) {
	m := newTestMatcher()
	resp := &message.Message{Type: message.NonConfirmable, Code: codes.Content, ID: 0xABCD, Token: message.Token{0x07}}
	_, ok := m.ReceiveResponse(resp, remote, "")
	if ok {
		t.Fatalf("unmatchable response must report not found so the endpoint can RST")
	}
}

// TestCompletionRemovesTokenAndIDEntries covers the completion-hook
// behavior relied on by property 5.
func TestCompletionRemovesTokenAndIDEntries(t *testing.T) {
	m := newTestMatcher()
	req := &message.Message{Code: codes.GET, Type: message.Confirmable}
	ex := exchange.New(exchange.Local, req, remote)
	if err := m.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %s", err)
	}
	ex.Complete()

	m.mu.Lock()
	_, idThere := m.byID[exchange.NewKeyIDLocal(req.ID, "")]
	_, tokThere := m.byToken[exchange.NewKeyToken(req.Token)]
	m.mu.Unlock()
	if idThere || tokThere {
		t.Fatalf("completion hook should have removed byId and byToken entries")
	}
}
