package stack

import (
	"errors"
	mrand "math/rand"
	"time"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// ErrTransmissionTimeout is the failure cause reported through
// exchange.Exchange.Fail when a Confirmable message exhausts MaxRetransmit
// without being acknowledged.
var ErrTransmissionTimeout = errors.New("stack: transmission timeout")

// ErrRejected is the failure cause reported through exchange.Exchange.Fail
// when the peer answers with RST instead of ACK or a piggybacked response.
var ErrRejected = errors.New("stack: rejected by peer")

// Config controls the retransmission backoff.
type Config struct {
	AckTimeout      time.Duration
	AckRandomFactor float64
	MaxRetransmit   int
}

// DefaultConfig mirrors RFC 7252 §4.8's suggested transmission parameters.
func DefaultConfig() Config {
	return Config{AckTimeout: 2 * time.Second, AckRandomFactor: 1.5, MaxRetransmit: 4}
}

// ReliabilityLayer is the bottom layer: it schedules randomized exponential
// backoff retransmission for Confirmable messages and reports
// TransmissionTimeout once MaxRetransmit is exhausted.
type ReliabilityLayer struct {
	Down       Downstream
	Up         Upstream
	Retransmit Retransmitter
	Cfg        Config

	// Live, when set, overrides Cfg with values that can be retuned while
	// the endpoint is running.
	Live *Transmission

	// randFloat returns a uniform value in [0,1); overridable by tests.
	randFloat func() float64
}

func (l *ReliabilityLayer) effectiveCfg() Config {
	if l.Live != nil {
		return l.Live.Snapshot()
	}
	return l.Cfg
}

func (l *ReliabilityLayer) rnd() float64 {
	if l.randFloat != nil {
		return l.randFloat()
	}
	return mrand.Float64()
}

func (l *ReliabilityLayer) initialTimeout(cfg Config) time.Duration {
	factor := 1.0 + l.rnd()*(cfg.AckRandomFactor-1.0)
	return time.Duration(float64(cfg.AckTimeout) * factor)
}

func (l *ReliabilityLayer) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	if req.Type == message.Confirmable {
		l.scheduleRetransmit(ex, req)
	}
	return l.Down.SendRequest(ex, req)
}

func (l *ReliabilityLayer) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	if resp.Type == message.Confirmable {
		l.scheduleRetransmit(ex, resp)
	}
	return l.Down.SendResponse(ex, resp)
}

func (l *ReliabilityLayer) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	return l.Down.SendEmptyMessage(ex, msg)
}

func (l *ReliabilityLayer) scheduleRetransmit(ex *exchange.Exchange, msg *message.Message) {
	cfg := l.effectiveCfg()
	timeout := l.initialTimeout(cfg)
	attempt := 0

	var timer *time.Timer
	var fire func()
	fire = func() {
		if ex.IsComplete() || ex.IsCancelled() {
			return
		}
		attempt++
		if attempt > cfg.MaxRetransmit {
			ex.Fail(exchange.CauseTransmissionTimeout, ErrTransmissionTimeout)
			return
		}
		if l.Retransmit != nil {
			_ = l.Retransmit.Retransmit(ex, msg)
		}
		timeout *= 2
		timer = time.AfterFunc(timeout, fire)
		ex.SetRetransmitCancel(timer.Stop)
	}
	timer = time.AfterFunc(timeout, fire)
	ex.SetRetransmitCancel(timer.Stop)
}

// ReceiveRequest forwards upward; an inbound request never cancels a
// retransmission on its own (only Exchange.Complete/Fail does: this layer's
// ReceiveEmptyMessage calls them for a bare ACK/RST, and the application
// completes the exchange once its response arrives).
func (l *ReliabilityLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	l.Up.ReceiveRequest(ex, req)
}

func (l *ReliabilityLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	l.Up.ReceiveResponse(ex, resp)
}

// ReceiveEmptyMessage cancels the pending retransmit for the matched
// exchange: a bare ACK completes it (ReceiveResponse only forwards a
// piggybacked response upward, where the application completes the
// exchange; this is the "ACK now, response later" separate-response
// pattern), and an RST fails it with
// CauseRejected so a blocked caller unblocks immediately instead of
// waiting out MaxRetransmit.
func (l *ReliabilityLayer) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
	if ex != nil {
		switch msg.Type {
		case message.Acknowledgement:
			ex.Complete()
		case message.Reset:
			ex.Fail(exchange.CauseRejected, ErrRejected)
		}
	}
	l.Up.ReceiveEmptyMessage(ex, msg)
}
