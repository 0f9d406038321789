package stack

import (
	"crypto/rand"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// TokenLayer fills a nil request token with MaxTokenLength random bytes.
// It sits above the Matcher in the send path, so requests sent through the
// stack reach matcher.Matcher.SendRequest already carrying a token, and the
// Matcher's own token minting (TokenLength, collision retry) applies only to
// callers that use the Matcher directly. Nothing below this point in the
// stack ever sees a request with a nil token, regardless of which caller
// built it.
type TokenLayer struct {
	Down Downstream
	Up   Upstream
}

func (l *TokenLayer) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	if req.Token == nil {
		tok := make(message.Token, message.MaxTokenLength)
		_, _ = rand.Read(tok)
		req.Token = tok
	}
	return l.Down.SendRequest(ex, req)
}

func (l *TokenLayer) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	return l.Down.SendResponse(ex, resp)
}

func (l *TokenLayer) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	return l.Down.SendEmptyMessage(ex, msg)
}

func (l *TokenLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	l.Up.ReceiveRequest(ex, req)
}

func (l *TokenLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	l.Up.ReceiveResponse(ex, resp)
}

func (l *TokenLayer) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
	l.Up.ReceiveEmptyMessage(ex, msg)
}
