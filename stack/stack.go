package stack

import (
	"time"
)

// Options configures every layer's tunables in one place.
type Options struct {
	BlockwiseSZX            uint8
	BlockwiseStatusLifetime time.Duration
	Reliability             Config
	// Live, when set, overrides Reliability with retunable atomics (see
	// Transmission). Optional; a nil Live falls back to the static
	// Reliability config.
	Live *Transmission
}

// DefaultOptions mirrors RFC 7252/7959 suggested defaults.
func DefaultOptions() Options {
	return Options{
		BlockwiseSZX:            6, // 1024-byte blocks
		BlockwiseStatusLifetime: 247 * time.Second,
		Reliability:             DefaultConfig(),
	}
}

// Stack wires the four layers between the application (top) and the endpoint (bottom).
// Send calls enter at the top (Observe) and flow down to the endpoint;
// Receive calls enter at the bottom (Reliability) and flow up to the
// application.
type Stack struct {
	Send    Downstream
	Receive Upstream
}

// New builds a Stack. bottom is the Endpoint's send path, retransmit is the
// Endpoint's raw re-send capability, registrar attaches the resource tree's
// observe relations, and up is the application's receive path
// (MessageDeliverer for a server, the Client's response dispatcher for a
// client).
func New(opts Options, bottom Downstream, retransmit Retransmitter, registrar ObserveRegistrar, up Upstream) *Stack {
	reliability := &ReliabilityLayer{Down: bottom, Retransmit: retransmit, Cfg: opts.Reliability, Live: opts.Live}
	token := &TokenLayer{Down: reliability}
	blockwise := &BlockwiseLayer{Down: token, SZX: opts.BlockwiseSZX, StatusLifetime: opts.BlockwiseStatusLifetime}
	observe := &ObserveLayer{Down: blockwise, Registrar: registrar}

	reliability.Up = token
	token.Up = blockwise
	blockwise.Up = observe
	observe.Up = up

	return &Stack{Send: observe, Receive: reliability}
}
