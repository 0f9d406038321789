package stack

import (
	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
)

// ObserveRegistrar is implemented by the resource tree (C8) so the Observe
// layer can attach/cancel relations without importing the resource package
//.
type ObserveRegistrar interface {
	Register(ex *exchange.Exchange, req *message.Message) *exchange.ObserveRelation
	Deregister(ex *exchange.Exchange, req *message.Message)
}

// ObserveLayer is the topmost layer (closest to the application). On
// receive of a request carrying Observe, it attaches/cancels observe
// relations. On send of a response belonging to a relation, it assigns an
// increasing sequence number (RFC 7641 §3.2).
type ObserveLayer struct {
	Down      Downstream
	Up        Upstream
	Registrar ObserveRegistrar
}

func (l *ObserveLayer) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	return l.Down.SendRequest(ex, req)
}

func (l *ObserveLayer) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	if ex.Observe != nil && !ex.Observe.IsCanceled() && resp.Code.IsResponse() && resp.Code.Class() == 2 {
		resp.Options = resp.Options.SetObserve(ex.Observe.NextSequence())
	}
	return l.Down.SendResponse(ex, resp)
}

func (l *ObserveLayer) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	return l.Down.SendEmptyMessage(ex, msg)
}

func (l *ObserveLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	if val, err := req.Options.GetObserve(); err == nil && l.Registrar != nil {
		switch val {
		case 0:
			ex.Observe = l.Registrar.Register(ex, req)
		case 1:
			l.Registrar.Deregister(ex, req)
			if ex.Observe != nil {
				ex.Observe.Cancel()
			}
		}
	}
	l.Up.ReceiveRequest(ex, req)
}

func (l *ObserveLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	l.Up.ReceiveResponse(ex, resp)
}

func (l *ObserveLayer) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
	if msg.Type == message.Reset && ex != nil && ex.Observe != nil {
		// RFC 7641 §3.6: an RST in place of the expected ACK tells the
		// server the client has forgotten the observation.
		ex.Observe.Cancel()
	}
	l.Up.ReceiveEmptyMessage(ex, msg)
}
