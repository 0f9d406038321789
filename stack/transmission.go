package stack

import (
	"time"

	"go.uber.org/atomic"
)

// Transmission holds the retransmission knobs in atomics so they can be
// retuned while the endpoint is running, the same pattern the vendored
// ClientConn uses for its Transmission field (AckTimeout/MaxRetransmit as
// atomicTypes.Duration/Int32) rather than requiring a restart to pick up a
// new value.
type Transmission struct {
	ackTimeout      atomic.Duration
	ackRandomFactor atomic.Float64
	maxRetransmit   atomic.Int32
}

// NewTransmission seeds a Transmission from a static Config.
func NewTransmission(cfg Config) *Transmission {
	t := &Transmission{}
	t.ackTimeout.Store(cfg.AckTimeout)
	t.ackRandomFactor.Store(cfg.AckRandomFactor)
	t.maxRetransmit.Store(int32(cfg.MaxRetransmit))
	return t
}

// Snapshot reads the current values into a plain Config.
func (t *Transmission) Snapshot() Config {
	return Config{
		AckTimeout:      t.ackTimeout.Load(),
		AckRandomFactor: t.ackRandomFactor.Load(),
		MaxRetransmit:   int(t.maxRetransmit.Load()),
	}
}

// SetAckTimeout retunes the base retransmission timeout for exchanges
// scheduled from this point forward.
func (t *Transmission) SetAckTimeout(d time.Duration) {
	t.ackTimeout.Store(d)
}

// SetMaxRetransmit retunes the retry budget for exchanges scheduled from
// this point forward.
func (t *Transmission) SetMaxRetransmit(n int) {
	t.maxRetransmit.Store(int32(n))
}
