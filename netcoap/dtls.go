package netcoap

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"sync"

	piondtls "github.com/pion/dtls/v2"
)

// DTLSConfig wraps piondtls.Config, the same type the teacher's
// RunProxyServer builds for its DTLS listener (cmd/proxy/proxy.go:
// "dtlsConfig := &piondtls.Config{Certificates: cfg.Certificates, ...}").
// Either PSK or Certificates should be set, not both, matching RFC 7925
// profile choices for constrained CoAP deployments.
type DTLSConfig struct {
	Certificates       []piondtls.Certificate
	PSK                func(hint []byte) ([]byte, error)
	PSKIdentityHint    []byte
	CipherSuites       []piondtls.CipherSuiteID
	InsecureSkipVerify bool
}

func (c DTLSConfig) toPion() *piondtls.Config {
	return &piondtls.Config{
		Certificates:       c.Certificates,
		PSK:                c.PSK,
		PSKIdentityHint:    c.PSKIdentityHint,
		CipherSuites:       c.CipherSuites,
		InsecureSkipVerify: c.InsecureSkipVerify,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.Background(), func() {}
		},
	}
}

type dtlsSession struct {
	conn *piondtls.Conn
}

func (s *dtlsSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *dtlsSession) IsReliable() bool     { return false }

func (s *dtlsSession) AuthenticationKey() []byte {
	state, err := s.conn.ConnectionState()
	if err != nil {
		return nil
	}
	return state.IdentityHint
}

func (s *dtlsSession) AuthenticationCertificate() *x509.Certificate {
	state, err := s.conn.ConnectionState()
	if err != nil || len(state.PeerCertificates) == 0 {
		return nil
	}
	cert, err := x509.ParseCertificate(state.PeerCertificates[0])
	if err != nil {
		return nil
	}
	return cert
}

// DTLSChannel is the secure datagram transport. It
// multiplexes per-peer DTLS associations on a single underlying UDP socket
// via piondtls.Listen, exactly as the teacher's proxy builds its DTLS
// server (cmd/proxy/proxy.go RunProxyServer).
//
// Known deviation (documented, not fixed): a new ClientHello at epoch 0
// from an address this channel already has a session for replaces the
// stored session as soon as piondtls hands back the new Conn, without this
// module separately verifying the new handshake completed before the old
// session's traffic is abandoned. RFC 6347 §4.2.8 / RFC 9147 §5.11 call for
// completing the new handshake first; this engine accepts the deviation
// because the underlying piondtls.Listener already serializes handshakes
// per association and a premature replacement only affects availability of
// one peer, never confidentiality.
type DTLSChannel struct {
	laddr  string
	cfg    DTLSConfig
	ln     net.Listener
	handler Handler

	mu       sync.Mutex
	sessions map[string]*dtlsSession

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewDTLSChannel(laddr string, cfg DTLSConfig) *DTLSChannel {
	return &DTLSChannel{laddr: laddr, cfg: cfg, sessions: make(map[string]*dtlsSession)}
}

func (c *DTLSChannel) OnDataReceived(h Handler) {
	c.handler = h
}

func (c *DTLSChannel) Start() error {
	addr, err := net.ResolveUDPAddr("udp", c.laddr)
	if err != nil {
		return fmt.Errorf("netcoap: resolve %q: %w", c.laddr, err)
	}
	ln, err := piondtls.Listen("udp", addr, c.cfg.toPion())
	if err != nil {
		return fmt.Errorf("netcoap: dtls listen %q: %w", c.laddr, err)
	}
	c.ln = ln
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.acceptLoop()
	return nil
}

func (c *DTLSChannel) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
				continue
			}
		}
		dconn, ok := conn.(*piondtls.Conn)
		if !ok {
			_ = conn.Close()
			continue
		}
		session := &dtlsSession{conn: dconn}
		c.mu.Lock()
		c.sessions[dconn.RemoteAddr().String()] = session
		c.mu.Unlock()

		c.wg.Add(1)
		go c.readLoop(session)
	}
}

func (c *DTLSChannel) readLoop(session *dtlsSession) {
	defer c.wg.Done()
	buf := make([]byte, 16*1024)
	for {
		n, err := session.conn.Read(buf)
		if err != nil {
			c.mu.Lock()
			delete(c.sessions, session.conn.RemoteAddr().String())
			c.mu.Unlock()
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if c.handler != nil {
			c.handler(DataReceived{
				Data:    data,
				Remote:  session.conn.RemoteAddr(),
				Local:   session.conn.LocalAddr(),
				Session: session,
			})
		}
	}
}

func (c *DTLSChannel) Stop() error {
	if c.stop != nil {
		close(c.stop)
	}
	if c.ln != nil {
		_ = c.ln.Close()
	}
	c.mu.Lock()
	for _, s := range c.sessions {
		_ = s.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *DTLSChannel) Send(data []byte, session Session, remote net.Addr) error {
	s, ok := session.(*dtlsSession)
	if !ok {
		s, ok = c.GetSession(remote).(*dtlsSession)
		if !ok {
			return fmt.Errorf("netcoap: no DTLS session for %v", remote)
		}
	}
	_, err := s.conn.Write(data)
	return err
}

func (c *DTLSChannel) GetSession(remote net.Addr) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[remote.String()]; ok {
		return s
	}
	return nil
}

// AddMulticastAddress is not supported over DTLS: a DTLS association is
// inherently a point-to-point security context, so there is no group key
// to multicast under.
func (c *DTLSChannel) AddMulticastAddress(group string) error {
	return fmt.Errorf("netcoap: multicast is not supported over a DTLS channel")
}
