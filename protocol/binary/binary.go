/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package binary is the length-prefixed binary-stream Processor (spec §1
// "a length-prefixed binary protocol", §4.5 table "binary-stream"):
// 4-byte big-endian length prefix followed by that many payload bytes,
// one handler.Level2.OnBinaryMessage call per complete message, response
// framed the same way.
package binary

import (
	"encoding/binary"

	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/handler"
	libproto "github.com/nabbar/reactord/protocol"
	libsck "github.com/nabbar/reactord/socket"
)

// DefaultMaxMessage bounds a single message's payload so a bogus or
// malicious length prefix cannot make the processor allocate without
// bound before the connection's own recv-buffer cap would have caught it.
const DefaultMaxMessage = 1 << 20

type connInfo struct {
	remote string
	thread uint32
	local  uint32
}

func (c connInfo) Protocol() string    { return "binary" }
func (c connInfo) RemoteAddr() string  { return c.remote }
func (c connInfo) ThreadIndex() uint32 { return c.thread }
func (c connInfo) LocalID() uint32     { return c.local }

// Processor implements protocol.Processor for the length-prefixed binary
// protocol: any number of request/response messages in sequence, no
// upgrade, no close-after semantics beyond what the peer/transport does.
type Processor struct {
	h         handler.Level2
	maxLen    uint32
	pendingOut []byte
}

// New builds a binary-stream Processor. maxLen<=0 uses DefaultMaxMessage.
func New(h handler.Level2, maxLen uint32) *Processor {
	if maxLen == 0 {
		maxLen = DefaultMaxMessage
	}
	return &Processor{h: h, maxLen: maxLen}
}

func (p *Processor) Name() string  { return "binary" }
func (p *Processor) WantPeek() int { return 0 }

func (p *Processor) OnTimeout(ctx libsck.Context) error { return nil }

// OnRecv consumes as many complete (length-prefix + payload) messages as
// are available, invoking the handler once per message and queuing the
// framed reply for ProduceSend. It returns the number of bytes consumed
// from the front of data, leaving a partial trailing message buffered by
// the caller for the next call (spec §4.3 "returns ... consumed").
func (p *Processor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	consumed := 0
	for {
		rest := data[consumed:]
		if len(rest) < 4 {
			return consumed, nil
		}
		n := binary.BigEndian.Uint32(rest[:4])
		if n > p.maxLen {
			return consumed, errs.New(errs.KindResource, errs.CodeRecvOverflow, "binary message exceeds configured maximum length")
		}
		if uint32(len(rest)-4) < n {
			return consumed, nil
		}

		payload := append([]byte(nil), rest[4:4+n]...)
		consumed += 4 + int(n)

		info := connInfo{remote: ctx.RemoteAddr().String()}
		info.thread, info.local = ctx.ConnID()

		resp := p.h.OnBinaryMessage(info, handler.BinaryRequest{Payload: payload})
		p.queue(resp.Payload)
	}
}

func (p *Processor) queue(payload []byte) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	p.pendingOut = append(p.pendingOut, hdr[:]...)
	p.pendingOut = append(p.pendingOut, payload...)
}

// ProduceSend hands the framed reply buffer to the connection in one
// shot; the connection pipeline's own outbound buffer takes it from here.
func (p *Processor) ProduceSend(ctx libsck.Context) (bool, error) {
	if len(p.pendingOut) == 0 {
		return false, nil
	}
	out := p.pendingOut
	p.pendingOut = nil
	if _, err := ctx.Write(out); err != nil {
		return false, err
	}
	return true, nil
}

var _ libproto.Processor = (*Processor)(nil)
