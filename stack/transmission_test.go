package stack

import (
	"testing"
	"time"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

func TestTransmissionSnapshotReflectsRetuning(t *testing.T) {
	tr := NewTransmission(Config{AckTimeout: time.Second, AckRandomFactor: 1.5, MaxRetransmit: 4})
	tr.SetAckTimeout(3 * time.Second)
	tr.SetMaxRetransmit(2)

	snap := tr.Snapshot()
	if snap.AckTimeout != 3*time.Second {
		t.Fatalf("AckTimeout not retuned: %v", snap.AckTimeout)
	}
	if snap.MaxRetransmit != 2 {
		t.Fatalf("MaxRetransmit not retuned: %v", snap.MaxRetransmit)
	}
}

func TestReliabilityUsesLiveTransmission(t *testing.T) {
	retransmitter := &fakeRetransmitter{}
	down := &fakeDown{}
	tr := NewTransmission(Config{AckTimeout: 5 * time.Millisecond, AckRandomFactor: 1, MaxRetransmit: 1})
	l := &ReliabilityLayer{Down: down, Retransmit: retransmitter, Live: tr, randFloat: zeroRand}

	req := &message.Message{Code: codes.GET, Type: message.Confirmable}
	ex := exchange.New(exchange.Local, req, testRemote)

	done := make(chan struct{})
	ex.OnFailure(func(*exchange.Exchange, exchange.FailureCause, error) { close(done) })

	if err := l.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %s", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for failure driven by Live transmission settings")
	}
	if retransmitter.calls != 1 {
		t.Fatalf("expected Live.MaxRetransmit=1 retransmit, got %d", retransmitter.calls)
	}
}
