package stack

import (
	"time"

	"github.com/cloudbridge/coap/exchange"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// BlockwiseLayer fragments requests/responses larger than the preferred
// block size into Block1/Block2 sequences and reassembles inbound
// sequences before passing the full body upward. A partial body older than StatusLifetime is dropped rather
// than reassembled.
type BlockwiseLayer struct {
	Down           Downstream
	Up             Upstream
	SZX            uint8
	StatusLifetime time.Duration
}

func (l *BlockwiseLayer) blockSize() int {
	return message.BlockValue{SZX: l.SZX}.Size()
}

func (l *BlockwiseLayer) stale(b *exchange.BlockState) bool {
	if l.StatusLifetime <= 0 || b == nil {
		return false
	}
	return time.Since(b.LastActive) > l.StatusLifetime
}

// SendRequest fragments an outgoing request body that exceeds the block
// size using Block1, the same way SendResponse fragments via Block2.
func (l *BlockwiseLayer) SendRequest(ex *exchange.Exchange, req *message.Message) error {
	if _, already := req.Options.GetBlock1(); already {
		return l.Down.SendRequest(ex, req)
	}
	blockSize := l.blockSize()
	if len(req.Payload) <= blockSize {
		return l.Down.SendRequest(ex, req)
	}
	if ex.RequestBlock == nil {
		ex.RequestBlock = &exchange.BlockState{Body: req.Payload, SZX: l.SZX}
	}
	return l.sendRequestBlock(ex, req)
}

func (l *BlockwiseLayer) sendRequestBlock(ex *exchange.Exchange, base *message.Message) error {
	blockSize := l.blockSize()
	body := ex.RequestBlock.Body
	num := ex.RequestBlock.Num
	start := int(num) * blockSize
	if start > len(body) {
		start = len(body)
	}
	end := start + blockSize
	more := true
	if end >= len(body) {
		end = len(body)
		more = false
	}
	frag := base.Clone()
	frag.ID = 0
	frag.Payload = append([]byte(nil), body[start:end]...)
	frag.Options = frag.Options.SetBlock1(message.BlockValue{Num: num, More: more, SZX: l.SZX})
	ex.RequestBlock.LastActive = time.Now()
	ex.SetCurrentRequest(frag)
	return l.Down.SendRequest(ex, frag)
}

// SendResponse fragments an outgoing response body that exceeds the block
// size using Block2, sending only the block currently requested.
func (l *BlockwiseLayer) SendResponse(ex *exchange.Exchange, resp *message.Message) error {
	if _, already := resp.Options.GetBlock2(); already {
		return l.Down.SendResponse(ex, resp)
	}
	blockSize := l.blockSize()
	if len(resp.Payload) <= blockSize {
		return l.Down.SendResponse(ex, resp)
	}
	if ex.ResponseBlock == nil || l.stale(ex.ResponseBlock) {
		ex.ResponseBlock = &exchange.BlockState{Body: resp.Payload, SZX: l.SZX}
	}
	return l.sendResponseBlock(ex, resp)
}

func (l *BlockwiseLayer) sendResponseBlock(ex *exchange.Exchange, base *message.Message) error {
	blockSize := l.blockSize()
	body := ex.ResponseBlock.Body
	num := ex.ResponseBlock.Num
	start := int(num) * blockSize
	if start > len(body) {
		start = len(body)
	}
	end := start + blockSize
	more := true
	if end >= len(body) {
		end = len(body)
		more = false
	}
	frag := base.Clone()
	frag.Payload = append([]byte(nil), body[start:end]...)
	frag.Options = frag.Options.SetBlock2(message.BlockValue{Num: num, More: more, SZX: l.SZX})
	ex.ResponseBlock.LastActive = time.Now()
	ex.SetCurrentResponse(frag)
	return l.Down.SendResponse(ex, frag)
}

func (l *BlockwiseLayer) SendEmptyMessage(ex *exchange.Exchange, msg *message.Message) error {
	return l.Down.SendEmptyMessage(ex, msg)
}

// ReceiveRequest reassembles an inbound Block1 sequence and answers
// follow-up Block2 requests for an already-computed response directly,
// without re-invoking the handler.
func (l *BlockwiseLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Message) {
	if b2, ok := req.Options.GetBlock2(); ok && ex.ResponseBlock != nil && !l.stale(ex.ResponseBlock) {
		ex.ResponseBlock.Num = b2.Num
		ackType := message.NonConfirmable
		if req.Type == message.Confirmable {
			ackType = message.Acknowledgement
		}
		base := &message.Message{Type: ackType, Code: codes.Content, Token: req.Token, ID: req.ID}
		_ = l.sendResponseBlock(ex, base)
		return
	}

	if b1, ok := req.Options.GetBlock1(); ok {
		if ex.RequestBlock == nil || l.stale(ex.RequestBlock) {
			ex.RequestBlock = &exchange.BlockState{SZX: b1.SZX}
		}
		ex.RequestBlock.Body = append(ex.RequestBlock.Body, req.Payload...)
		ex.RequestBlock.Num = b1.Num + 1
		ex.RequestBlock.LastActive = time.Now()
		if b1.More {
			ackType := message.NonConfirmable
			if req.Type == message.Confirmable {
				ackType = message.Acknowledgement
			}
			ack := &message.Message{Type: ackType, Code: codes.Continue, Token: req.Token, ID: req.ID}
			ack.Options = ack.Options.SetBlock1(b1)
			_ = l.Down.SendResponse(ex, ack)
			return
		}
		req.Payload = ex.RequestBlock.Body
		req.Options = req.Options.Remove(message.Block1)
	}
	l.Up.ReceiveRequest(ex, req)
}

// ReceiveResponse reassembles an inbound Block2 sequence, issuing the
// follow-up GET for the next block itself before anything reaches the
// application.
func (l *BlockwiseLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Message) {
	if b1, ok := resp.Options.GetBlock1(); ok && resp.Code == codes.Continue && ex.RequestBlock != nil {
		ex.RequestBlock.Num = b1.Num + 1
		_ = l.sendRequestBlock(ex, ex.CurrentRequest)
		return
	}
	b2, ok := resp.Options.GetBlock2()
	if !ok {
		l.Up.ReceiveResponse(ex, resp)
		return
	}
	if ex.ResponseBlock == nil {
		ex.ResponseBlock = &exchange.BlockState{SZX: b2.SZX}
	}
	ex.ResponseBlock.Body = append(ex.ResponseBlock.Body, resp.Payload...)
	ex.ResponseBlock.LastActive = time.Now()
	if b2.More {
		nextReq := ex.CurrentRequest.Clone()
		nextReq.ID = 0
		nextReq.Options = nextReq.Options.SetBlock2(message.BlockValue{Num: b2.Num + 1, More: false, SZX: b2.SZX})
		ex.SetCurrentRequest(nextReq)
		_ = l.Down.SendRequest(ex, nextReq)
		return
	}
	full := resp.Clone()
	full.Payload = ex.ResponseBlock.Body
	full.Options = full.Options.Remove(message.Block2)
	l.Up.ReceiveResponse(ex, full)
}

func (l *BlockwiseLayer) ReceiveEmptyMessage(ex *exchange.Exchange, msg *message.Message) {
	l.Up.ReceiveEmptyMessage(ex, msg)
}
