package exchange

import (
	"fmt"
	"net"

	"github.com/cloudbridge/coap/message"
)

// SessionID identifies the (D)TLS session (or plain-UDP "no session") a
// message travels over, so that two peers reusing the same remote address
// across different DTLS epochs don't collide in the key space.
type SessionID string

// KeyID identifies a specific wire message under reliability: ACK/RST are
// matched back to the original by (id, remoteAddr, session). remoteAddr is
// the empty string for IDs minted locally.
type KeyID struct {
	ID         uint16
	RemoteAddr string
	Session    SessionID
}

// NewKeyIDLocal builds a KeyID for a locally minted ID, which is not keyed
// by remote address (it is looked up again only by the reply's own id+
// session once the stack strips the peer address for ACKs).
func NewKeyIDLocal(id uint16, session SessionID) KeyID {
	return KeyID{ID: id, Session: session}
}

// NewKeyIDRemote builds a KeyID for an ID scoped to a specific remote peer.
func NewKeyIDRemote(id uint16, remote net.Addr, session SessionID) KeyID {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	return KeyID{ID: id, RemoteAddr: addr, Session: session}
}

// String renders a stable map key / dedup cache key.
func (k KeyID) String() string {
	return fmt.Sprintf("id:%d/%s/%s", k.ID, k.RemoteAddr, k.Session)
}

// KeyToken identifies the response's logical owner; tokens are namespaced
// per endpoint.
type KeyToken struct {
	Token string
}

// NewKeyToken builds a KeyToken from raw token bytes.
func NewKeyToken(t message.Token) KeyToken {
	return KeyToken{Token: string(t)}
}

func (k KeyToken) String() string {
	return "token:" + k.Token
}

// KeyURI identifies a blockwise-in-progress exchange across multiple
// request blocks.
type KeyURI struct {
	URI        string
	RemoteAddr string
}

// NewKeyURI builds a KeyURI from a request path/query and the remote peer.
func NewKeyURI(uri string, remote net.Addr) KeyURI {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	return KeyURI{URI: uri, RemoteAddr: addr}
}

func (k KeyURI) String() string {
	return "uri:" + k.URI + "/" + k.RemoteAddr
}
