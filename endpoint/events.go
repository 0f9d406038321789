package endpoint

import (
	"sync"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// EventKind names one of the Sending*/Receiving* events the endpoint fires
// around every message crossing the channel boundary.
type EventKind string

const (
	SendingRequest        EventKind = "SendingRequest"
	SendingResponse       EventKind = "SendingResponse"
	SendingEmptyMessage   EventKind = "SendingEmptyMessage"
	ReceivingRequest      EventKind = "ReceivingRequest"
	ReceivingResponse     EventKind = "ReceivingResponse"
	ReceivingEmptyMessage EventKind = "ReceivingEmptyMessage"
)

// EventHandler observes one endpoint event.
type EventHandler func(kind EventKind, ex *exchange.Exchange, msg *message.Message)

type eventBus struct {
	mu        sync.Mutex
	observers []EventHandler
}

func (b *eventBus) AddObserver(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, h)
}

func (b *eventBus) fire(kind EventKind, ex *exchange.Exchange, msg *message.Message) {
	b.mu.Lock()
	observers := b.observers
	b.mu.Unlock()
	for _, h := range observers {
		h(kind, ex, msg)
	}
}
