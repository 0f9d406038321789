// Package matcher owns the three concurrent key-indexed tables that
// associate wire identifiers with logical Exchanges: the
// hard part of the message-exchange engine. It is deliberately the largest
// package in this module, mirroring the 14% share spec.md's component table
// assigns it.
package matcher

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cloudbridge/coap/dedup"
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// Config controls ID/token generation.
type Config struct {
	// TokenLength is the default token length in bytes (0-8). -1 means a
	// random length per request (not implemented as "fully random length"
	// here; negative values fall back to 8, the max, matching the spirit
	// of "as large as needed to avoid collision").
	TokenLength int
	// UseRandomIDStart seeds the message-ID counter with a random value at
	// Matcher construction instead of starting from zero.
	UseRandomIDStart bool
}

// DefaultConfig mirrors the teacher's vendored ClientConn defaults.
func DefaultConfig() Config {
	return Config{TokenLength: 8, UseRandomIDStart: true}
}

// Matcher implements spec.md §4.3 in full: sendRequest/sendResponse/
// sendEmptyMessage (top-down, called by the bottom of the stack) and
// receiveRequest/receiveResponse/receiveEmptyMessage (bottom-up, called by
// the endpoint before handing off to the stack).
type Matcher struct {
	dedup dedup.Deduplicator
	cfg   Config

	mu               sync.Mutex
	byID             map[exchange.KeyID]*exchange.Exchange
	byToken          map[exchange.KeyToken]*exchange.Exchange
	ongoingBlockwise map[exchange.KeyURI]*exchange.Exchange

	currentID uint32

	log Logger
}

// Logger is the minimal logging capability the matcher needs; satisfied by
// the adapter in the log package.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// New constructs a Matcher bound to the given Deduplicator.
func New(d dedup.Deduplicator, cfg Config, log Logger) *Matcher {
	if log == nil {
		log = nopLogger{}
	}
	m := &Matcher{
		dedup:            d,
		cfg:              cfg,
		byID:             make(map[exchange.KeyID]*exchange.Exchange),
		byToken:          make(map[exchange.KeyToken]*exchange.Exchange),
		ongoingBlockwise: make(map[exchange.KeyURI]*exchange.Exchange),
		log:              log,
	}
	if cfg.UseRandomIDStart {
		var b [4]byte
		_, _ = rand.Read(b[:])
		m.currentID = uint32(b[0])<<8 | uint32(b[1])
	}
	return m
}

func (m *Matcher) nextID() uint16 {
	return uint16(atomic.AddUint32(&m.currentID, 1) % 0x10000)
}

func (m *Matcher) randomToken(length int) message.Token {
	if length < 0 || length > message.MaxTokenLength {
		length = message.MaxTokenLength
	}
	tok := make(message.Token, length)
	_, _ = rand.Read(tok)
	return tok
}

func sessionOf(ex *exchange.Exchange) exchange.SessionID {
	if s, ok := ex.Session.(exchange.SessionID); ok {
		return s
	}
	return ""
}

// SendRequest implements spec.md §4.3 sendRequest.
func (m *Matcher) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	if req.ID == 0 {
		req.ID = m.nextID()
	}
	session := sessionOf(ex)

	if req.Token == nil {
		length := m.cfg.TokenLength
		if length < 0 {
			length = message.MaxTokenLength
		}
		var tok message.Token
		for attempt := 0; ; attempt++ {
			tok = m.randomToken(length)
			m.mu.Lock()
			_, collide := m.byToken[exchange.NewKeyToken(tok)]
			m.mu.Unlock()
			if !collide {
				break
			}
			if attempt >= 7 && length < message.MaxTokenLength {
				length++
				attempt = 0
			} else if attempt >= 7 {
				return fmt.Errorf("matcher: exhausted token space at max length")
			}
		}
		req.Token = tok
	}

	idKey := exchange.NewKeyIDLocal(req.ID, session)
	tokenKey := exchange.NewKeyToken(req.Token)

	m.mu.Lock()
	if other, exists := m.byToken[tokenKey]; exists && other != ex {
		m.mu.Unlock()
		return fmt.Errorf("matcher: token %s already in use by an outstanding exchange", req.Token)
	}
	m.byID[idKey] = ex
	m.byToken[tokenKey] = ex
	m.mu.Unlock()

	ex.OnComplete(func(e *exchange.Exchange) {
		m.mu.Lock()
		delete(m.byID, idKey)
		delete(m.byToken, tokenKey)
		m.mu.Unlock()
	})
	return nil
}

// SendResponse implements spec.md §4.3 sendResponse.
func (m *Matcher) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	if resp.ID == 0 {
		resp.ID = m.nextID()
	}
	session := sessionOf(ex)

	isObserveNotification := ex.Observe != nil && ex.Observe.Sequence > 0
	if b, ok := resp.Options.GetBlock2(); ok && !isObserveNotification {
		if path, err := ex.Request.Options.Path(); err == nil {
			key := exchange.NewKeyURI(path, ex.RemoteAddr)
			m.mu.Lock()
			m.ongoingBlockwise[key] = ex
			m.mu.Unlock()
			ex.OnComplete(func(*exchange.Exchange) {
				m.mu.Lock()
				delete(m.ongoingBlockwise, key)
				m.mu.Unlock()
			})
		}
		_ = b
	}

	switch resp.Type {
	case message.Confirmable, message.NonConfirmable:
		idKey := exchange.NewKeyIDRemote(resp.ID, ex.RemoteAddr, session)
		m.mu.Lock()
		m.byID[idKey] = ex
		m.mu.Unlock()
		ex.OnComplete(func(*exchange.Exchange) {
			m.mu.Lock()
			delete(m.byID, idKey)
			m.mu.Unlock()
		})
		if resp.Type == message.NonConfirmable && !hasMoreBlocks(resp) {
			// a final NON response needs no ACK/RST to complete.
			ex.Complete()
		}
	case message.Acknowledgement, message.Reset:
		ex.Complete()
	}
	return nil
}

func hasMoreBlocks(m *message.Message) bool {
	if b, ok := m.Options.GetBlock2(); ok {
		return b.More
	}
	return false
}

// SendEmptyMessage implements spec.md §4.3 sendEmptyMessage.
func (m *Matcher) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	if msg.Type == message.Reset && ex != nil {
		ex.Complete()
	}
	return nil
}

// ReceiveRequest implements spec.md §4.3 receiveRequest.
func (m *Matcher) ReceiveRequest(req *message.Message, remote net.Addr, session exchange.SessionID) *exchange.Exchange {
	idKey := exchange.NewKeyIDRemote(req.ID, remote, session)

	if !req.Options.HasBlockOption() {
		newEx := exchange.New(exchange.Remote, req, remote)
		newEx.Session = session
		existing, found := m.dedup.FindPrevious(idKey.String(), newEx)
		if !found {
			m.registerRemoteCompletion(newEx, idKey)
			return newEx
		}
		req.Duplicate = true
		return existing.(*exchange.Exchange)
	}

	path, _ := req.Options.Path()
	uriKey := exchange.NewKeyURI(path, remote)

	m.mu.Lock()
	ongoing, ok := m.ongoingBlockwise[uriKey]
	m.mu.Unlock()

	if ok {
		existing, found := m.dedup.FindPrevious(idKey.String(), ongoing)
		if found {
			req.Duplicate = true
			return existing.(*exchange.Exchange)
		}
		// a new request block ends the previous response cycle: drop its
		// stored KeyID since the peer has moved on to requesting the next
		// block.
		if resp := ongoing.GetCurrentResponse(); resp != nil {
			m.mu.Lock()
			delete(m.byID, exchange.NewKeyIDRemote(resp.ID, remote, session))
			m.mu.Unlock()
		}
		return ongoing
	}

	newEx := exchange.New(exchange.Remote, req, remote)
	newEx.Session = session
	existing, found := m.dedup.FindPrevious(idKey.String(), newEx)
	if found {
		req.Duplicate = true
		return existing.(*exchange.Exchange)
	}
	m.registerRemoteCompletion(newEx, idKey)
	m.mu.Lock()
	m.ongoingBlockwise[uriKey] = newEx
	m.mu.Unlock()
	newEx.OnComplete(func(*exchange.Exchange) {
		m.mu.Lock()
		delete(m.ongoingBlockwise, uriKey)
		m.mu.Unlock()
	})
	return newEx
}

func (m *Matcher) registerRemoteCompletion(ex *exchange.Exchange, idKey exchange.KeyID) {
	ex.OnComplete(func(*exchange.Exchange) {
		m.dedup.Remove(idKey.String())
		if resp := ex.GetCurrentResponse(); resp != nil {
			m.mu.Lock()
			delete(m.byID, exchange.NewKeyIDRemote(resp.ID, ex.RemoteAddr, sessionOf(ex)))
			m.mu.Unlock()
		}
	})
}

// ReceiveResponse implements spec.md §4.3 receiveResponse. ok is false only
// when no token match exists and the deduplicator holds nothing either —
// the caller (Endpoint) then rejects with an RST. Whether the originating
// request was multicast is read off the matched exchange itself
// (exchange.Exchange.Multicast, set by the client when it sent to a group
// address), since the caller doesn't know which exchange matched until
// after this lookup.
func (m *Matcher) ReceiveResponse(resp *message.Message, remote net.Addr, session exchange.SessionID) (*exchange.Exchange, bool) {
	var idKey exchange.KeyID
	if resp.Type == message.Acknowledgement {
		idKey = exchange.NewKeyIDLocal(resp.ID, session)
	} else {
		idKey = exchange.NewKeyIDRemote(resp.ID, remote, session)
	}

	tokenKey := exchange.NewKeyToken(resp.Token)
	m.mu.Lock()
	ex, found := m.byToken[tokenKey]
	m.mu.Unlock()

	if found {
		if ex.Multicast {
			ex = ex.Clone(remote)
		}
		existing, dup := m.dedup.FindPrevious(idKey.String(), ex)
		if dup {
			resp.Duplicate = true
			return existing.(*exchange.Exchange), true
		}
		m.mu.Lock()
		delete(m.byID, idKey)
		m.mu.Unlock()

		if resp.Type == message.Acknowledgement && resp.ID != ex.Request.ID {
			m.log.Warnf("possible MID reuse before lifetime end: response id=%d request id=%d token=%s", resp.ID, ex.Request.ID, resp.Token)
		}
		return ex, true
	}

	if resp.Type != message.Acknowledgement {
		if existing, dup := m.dedup.FindPrevious(idKey.String(), nil); dup && existing != nil {
			resp.Duplicate = true
			return existing.(*exchange.Exchange), true
		}
	}
	return nil, false
}

// ReceiveEmptyMessage implements spec.md §4.3 receiveEmptyMessage.
func (m *Matcher) ReceiveEmptyMessage(msg *message.Message, session exchange.SessionID) *exchange.Exchange {
	idKey := exchange.NewKeyIDLocal(msg.ID, session)
	m.mu.Lock()
	ex, ok := m.byID[idKey]
	if ok {
		delete(m.byID, idKey)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return ex
}
