package message

import (
	"sync"

	"github.com/cloudbridge/coap/message/codes"
)

// pool recycles Message values the way the teacher's vendored
// udp/message/pool.Message wraps a sync.Pool around Reset/Acquire/Release,
// avoiding an allocation per datagram on the hot receive path.
var pool = sync.Pool{
	New: func() interface{} { return new(Message) },
}

// Acquire returns a zeroed Message from the pool.
func Acquire() *Message {
	m := pool.Get().(*Message)
	m.Reset()
	return m
}

// Release returns m to the pool. Callers must not retain m afterwards.
func Release(m *Message) {
	if m == nil {
		return
	}
	pool.Put(m)
}

// Reset clears m back to its zero value in place, reusing the underlying
// slices' capacity where possible.
func (m *Message) Reset() {
	m.Type = Confirmable
	m.Code = codes.Empty
	m.ID = 0
	m.Token = m.Token[:0]
	m.Options = m.Options[:0]
	m.Payload = m.Payload[:0]
	m.Duplicate = false
}
