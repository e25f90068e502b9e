/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package ws

import (
	"bytes"
	"strings"

	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/handler"
	libproto "github.com/nabbar/reactord/protocol"
	libsck "github.com/nabbar/reactord/socket"
)

type connInfo struct {
	remote string
	thread uint32
	local  uint32
}

func (c connInfo) Protocol() string    { return "ws" }
func (c connInfo) RemoteAddr() string  { return c.remote }
func (c connInfo) ThreadIndex() uint32 { return c.thread }
func (c connInfo) LocalID() uint32     { return c.local }

// Processor is the WebSocket protocol handler: it completes the HTTP/1.1
// upgrade handshake, then shifts into RFC 6455 frame mode, reassembling
// fragmented messages and invoking handler.Level2.OnWSFrame per complete
// message (spec §4.6).
type Processor struct {
	h handler.Level2

	handshakeDone bool
	username      string

	in  []byte
	out []byte

	fragOpcode Opcode
	fragBuf    bytes.Buffer
	fragging   bool

	closeSent bool
}

func New(h handler.Level2) *Processor {
	return &Processor{h: h}
}

func (p *Processor) Name() string  { return "ws" }
func (p *Processor) WantPeek() int { return 0 }

func (p *Processor) OnTimeout(ctx libsck.Context) error { return nil }

func (p *Processor) connInfo(ctx libsck.Context) connInfo {
	ti, li := ctx.ConnID()
	return connInfo{remote: ctx.RemoteAddr().String(), thread: ti, local: li}
}

func (p *Processor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	p.in = append(p.in, data...)
	consumed := 0

	if !p.handshakeDone {
		n, err := p.tryHandshake(ctx)
		consumed += n
		p.in = p.in[n:]
		if err != nil || !p.handshakeDone {
			return consumed, err
		}
	}

	for {
		f, n, err := ParseFrame(p.in)
		if err != nil {
			return consumed, errs.Wrap(errs.KindProtocol, errs.CodeProtocolViolation, "malformed websocket frame", err)
		}
		if n == 0 {
			break
		}
		p.in = p.in[n:]
		consumed += n

		if err := p.handleFrame(ctx, f); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

func (p *Processor) tryHandshake(ctx libsck.Context) (int, error) {
	end := bytes.Index(p.in, []byte("\r\n\r\n"))
	if end < 0 {
		return 0, nil
	}
	head := string(p.in[:end])
	lines := strings.Split(head, "\r\n")

	var key, cookie string
	for _, line := range lines[1:] {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch name {
		case "sec-websocket-key":
			key = val
		case "cookie":
			cookie = val
		}
	}
	if key == "" {
		return end + 4, errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "missing Sec-WebSocket-Key")
	}

	p.username = ParseCookieUsername(cookie)
	p.out = append(p.out, BuildUpgradeResponse(key)...)
	p.handshakeDone = true
	return end + 4, nil
}

func (p *Processor) handleFrame(ctx libsck.Context, f Frame) error {
	switch f.Opcode {
	case OpPing:
		p.out = WriteFrame(p.out, OpPong, f.Payload, true)
		return nil
	case OpPong:
		return nil
	case OpClose:
		if !p.closeSent {
			p.out = WriteFrame(p.out, OpClose, f.Payload, true)
			p.closeSent = true
		}
		return ctx.Close()
	case OpContinuation:
		p.fragBuf.Write(f.Payload)
		if f.Final {
			return p.dispatchMessage(ctx, p.fragOpcode, p.fragBuf.Bytes())
		}
		return nil
	case OpText, OpBinary:
		if !f.Final {
			p.fragging = true
			p.fragOpcode = f.Opcode
			p.fragBuf.Reset()
			p.fragBuf.Write(f.Payload)
			return nil
		}
		return p.dispatchMessage(ctx, f.Opcode, f.Payload)
	}
	return nil
}

func (p *Processor) dispatchMessage(ctx libsck.Context, opcode Opcode, payload []byte) error {
	p.fragging = false
	p.fragBuf.Reset()

	in := handler.Frame{Opcode: byte(opcode), Payload: payload, Final: true}
	var reply *handler.Frame
	if p.h.OnWSFrame != nil {
		reply = p.h.OnWSFrame(p.connInfo(ctx), in)
	}
	if reply != nil {
		p.out = WriteFrame(p.out, Opcode(reply.Opcode), reply.Payload, true)
	}
	return nil
}

func (p *Processor) ProduceSend(ctx libsck.Context) (bool, error) {
	if len(p.out) == 0 {
		return false, nil
	}
	_, _ = ctx.Write(p.out)
	p.out = nil
	return true, nil
}

// Entry builds the protocol.Entry for registering WebSocket with a Detector.
func Entry(priority int, h handler.Level2) libproto.Entry {
	return libproto.Entry{
		Name:     "ws",
		Priority: priority,
		Detect:   libproto.WebSocketProbe,
		Create:   func() libproto.Processor { return New(h) },
	}
}
