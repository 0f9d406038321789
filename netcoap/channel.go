// Package netcoap implements the datagram transport the endpoint reads and
// writes through: a plain UDP channel and a DTLS-over-UDP
// channel grounded on the teacher's cmd/proxy/proxy.go, which builds its
// DTLS listener from *piondtls.Config{Certificates, KeyLogWriter} on top of
// github.com/pion/dtls/v2. Named netcoap, not net, to avoid colliding with
// the standard library package of the same name.
package netcoap

import (
	"crypto/x509"
	"net"
)

// Session identifies one peer's transport-level state: a 4-tuple for plain
// UDP, a DTLS association for the secure channel.
type Session interface {
	RemoteAddr() net.Addr
	// IsReliable is always false for a CoAP channel; CoAP's own Reliability
	// layer handles retransmission regardless of the transport.
	IsReliable() bool
}

// SecureSession is additionally satisfied by DTLS sessions, exposing the
// peer's authenticated identity.
type SecureSession interface {
	Session
	AuthenticationKey() []byte
	AuthenticationCertificate() *x509.Certificate
}

// DataReceived is delivered to a Channel's registered handler for every
// inbound datagram.
type DataReceived struct {
	Data    []byte
	Remote  net.Addr
	Local   net.Addr
	Session Session
}

// Handler processes one inbound datagram. Implementations must not block;
// the Channel calls it from its own read loop goroutine.
type Handler func(DataReceived)

// Channel is the abstract datagram transport the Endpoint drives. Both the plain UDP and DTLS implementations in this package
// satisfy it.
type Channel interface {
	Start() error
	Stop() error
	Send(data []byte, session Session, remote net.Addr) error
	GetSession(remote net.Addr) Session
	AddMulticastAddress(group string) error
	OnDataReceived(h Handler)
}
