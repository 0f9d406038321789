package netcoap

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// UDPConfig tunes the buffer sizes spec.md §6 names
// (ChannelReceiveBufferSize/ChannelSendBufferSize/ChannelReceivePacketSize).
type UDPConfig struct {
	ReceiveBufferSize int
	SendBufferSize    int
	ReceivePacketSize int
}

// DefaultUDPConfig mirrors common OS socket buffer defaults.
func DefaultUDPConfig() UDPConfig {
	return UDPConfig{ReceiveBufferSize: 212992, SendBufferSize: 212992, ReceivePacketSize: 1500}
}

type udpSession struct{ remote net.Addr }

func (s udpSession) RemoteAddr() net.Addr { return s.remote }
func (s udpSession) IsReliable() bool     { return false }

// UDPChannel is the plain (non-DTLS) datagram transport.
type UDPChannel struct {
	laddr string
	cfg   UDPConfig

	conn    *net.UDPConn
	handler Handler

	mu       sync.Mutex
	sessions map[string]Session

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewUDPChannel creates a channel bound to laddr ("host:port") once Start
// is called.
func NewUDPChannel(laddr string, cfg UDPConfig) *UDPChannel {
	return &UDPChannel{laddr: laddr, cfg: cfg, sessions: make(map[string]Session)}
}

func (c *UDPChannel) OnDataReceived(h Handler) {
	c.handler = h
}

func (c *UDPChannel) Start() error {
	addr, err := net.ResolveUDPAddr("udp", c.laddr)
	if err != nil {
		return fmt.Errorf("netcoap: resolve %q: %w", c.laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("netcoap: listen %q: %w", c.laddr, err)
	}
	if c.cfg.ReceiveBufferSize > 0 {
		_ = conn.SetReadBuffer(c.cfg.ReceiveBufferSize)
	}
	if c.cfg.SendBufferSize > 0 {
		_ = conn.SetWriteBuffer(c.cfg.SendBufferSize)
	}
	c.conn = conn
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

func (c *UDPChannel) readLoop() {
	defer c.wg.Done()
	packetSize := c.cfg.ReceivePacketSize
	if packetSize <= 0 {
		packetSize = 1500
	}
	buf := make([]byte, packetSize)
	for {
		n, remote, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		session := c.GetSession(remote)
		if c.handler != nil {
			c.handler(DataReceived{Data: data, Remote: remote, Local: c.conn.LocalAddr(), Session: session})
		}
	}
}

func (c *UDPChannel) Stop() error {
	if c.stop != nil {
		close(c.stop)
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *UDPChannel) Send(data []byte, session Session, remote net.Addr) error {
	udpAddr, ok := remote.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("netcoap: remote is not a *net.UDPAddr: %v", remote)
	}
	_, err := c.conn.WriteToUDP(data, udpAddr)
	return err
}

func (c *UDPChannel) GetSession(remote net.Addr) Session {
	key := remote.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[key]; ok {
		return s
	}
	s := udpSession{remote: remote}
	c.sessions[key] = s
	return s
}

// AddMulticastAddress joins the given multicast group on the channel's
// socket, using golang.org/x/net's ipv4/ipv6 control-message helpers (the
// same primitive go-coap's net package wraps for multicast CoAP, per
// SPEC_FULL.md's domain-stack wiring).
func (c *UDPChannel) AddMulticastAddress(group string) error {
	if c.conn == nil {
		return fmt.Errorf("netcoap: AddMulticastAddress called before Start")
	}
	ip := net.ParseIP(group)
	if ip == nil {
		host, _, err := net.SplitHostPort(group)
		if err != nil {
			return fmt.Errorf("netcoap: invalid multicast group %q: %w", group, err)
		}
		ip = net.ParseIP(host)
		if ip == nil {
			return fmt.Errorf("netcoap: invalid multicast group %q", group)
		}
	}
	if ip.To4() != nil {
		pc := ipv4.NewPacketConn(c.conn)
		return pc.JoinGroup(nil, &net.UDPAddr{IP: ip})
	}
	pc := ipv6.NewPacketConn(c.conn)
	return pc.JoinGroup(nil, &net.UDPAddr{IP: ip})
}
