// Package dedup implements the short-term KeyID -> Exchange cache used to
// detect retransmitted confirmables. Three strategies share
// one interface, mirroring DESIGN NOTES §9 "Dynamic dispatch": the
// Deduplicator is a tagged variant of three concrete strategies, not open
// inheritance.
package dedup

import "time"

// Entry is anything the deduplicator can store and return; the matcher
// passes its *exchange.Exchange values through this interface so dedup does
// not need to import the exchange package (kept acyclic per DESIGN NOTES
// §9 "Cyclic references").
type Entry interface{}

// Deduplicator is the capability set all three strategies implement.
type Deduplicator interface {
	// FindPrevious is the atomic insert-or-return primitive: it inserts key
	// -> value if key is absent and returns (nil, false); otherwise it
	// returns the existing value unchanged as (existing, true).
	FindPrevious(key string, value Entry) (existing Entry, found bool)

	// Remove evicts key unconditionally (used on exchange completion).
	Remove(key string)

	// Start/Stop run and stop any background sweep/rotation goroutine.
	Start()
	Stop()
}

// Kind names the configured deduplicator strategy.
type Kind string

const (
	KindNoop         Kind = "Noop"
	KindMarkAndSweep Kind = "MarkAndSweep"
	KindCropRotation Kind = "CropRotation"
	// kindCropRotationMisspelled accepts the misspelled constant key the
	// spec's Open Question (§9) calls out: "DEDUPLICATOR_CROP_ROTATIO" is
	// missing its final N in the source this was distilled from. Both
	// spellings select the same strategy rather than silently guessing one
	// was a typo to be discarded.
	kindCropRotationMisspelled Kind = "CropRotatio"
)

// New constructs a Deduplicator for the named strategy. lifetime is the
// ExchangeLifetime / dedup-window config knob; sweepInterval only matters
// for MarkAndSweep (its sweep period) and CropRotation (its rotation
// period, which is lifetime/3 when zero).
func New(kind Kind, lifetime, sweepInterval time.Duration) Deduplicator {
	switch kind {
	case KindNoop:
		return NewNoop()
	case KindCropRotation, kindCropRotationMisspelled:
		return NewCropRotation(lifetime, sweepInterval)
	case KindMarkAndSweep, "":
		fallthrough
	default:
		return NewMarkAndSweep(lifetime, sweepInterval)
	}
}
