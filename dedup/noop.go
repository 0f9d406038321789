package dedup

// Noop always reports "not seen"; useful for transports that already
// deduplicate (or tests that want every message to reach the handler).
type Noop struct{}

// NewNoop returns a Deduplicator that never remembers anything.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) FindPrevious(string, Entry) (Entry, bool) { return nil, false }
func (*Noop) Remove(string)                            {}
func (*Noop) Start()                                   {}
func (*Noop) Stop()                                    {}
