/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package h2

import (
	"encoding/binary"
	"strconv"

	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/handler"
	libproto "github.com/nabbar/reactord/protocol"
	"github.com/nabbar/reactord/protocol/hpack"
	libsck "github.com/nabbar/reactord/socket"
)

// defaultInitialWindow is RFC 9113 §6.5.2's default INITIAL_WINDOW_SIZE.
const defaultInitialWindow = 65535

// maxFramesPerPump bounds how many DATA frames one stream gets per
// pumpAllStreams sweep, so a single large response cannot starve its
// siblings (spec §4.5 "8 frames/stream before yielding").
const maxFramesPerPump = 8

type connInfo struct {
	remote string
	thread uint32
	local  uint32
}

func (c connInfo) Protocol() string    { return "h2" }
func (c connInfo) RemoteAddr() string  { return c.remote }
func (c connInfo) ThreadIndex() uint32 { return c.thread }
func (c connInfo) LocalID() uint32     { return c.local }

// Processor is the HTTP/2 server state machine for a single connection:
// preface validation, frame parsing, HPACK, flow control and the
// round-robin fair response pump (spec §4.5).
type Processor struct {
	h handler.Level2

	prefaceOK bool
	in        []byte

	enc *hpack.Encoder
	dec *hpack.Decoder

	streams map[uint32]*stream
	sendRR  int

	connSendWindow int32
	peerInitWindow int32
	peerMaxFrame   uint32

	sentSettings bool

	assembling    bool
	assemblingSID uint32
	assemblingBlk []byte

	out []byte
}

func New(h handler.Level2) *Processor {
	return &Processor{
		h:              h,
		enc:            hpack.NewEncoder(4096),
		dec:            hpack.NewDecoder(4096),
		streams:        map[uint32]*stream{},
		connSendWindow: defaultInitialWindow,
		peerInitWindow: defaultInitialWindow,
		peerMaxFrame:   16384,
	}
}

func (p *Processor) Name() string     { return "h2" }
func (p *Processor) WantPeek() int    { return len(Preface) }
func (p *Processor) OnTimeout(ctx libsck.Context) error { return nil }

func (p *Processor) connInfo(ctx libsck.Context) connInfo {
	ti, li := ctx.ConnID()
	return connInfo{remote: ctx.RemoteAddr().String(), thread: ti, local: li}
}

// OnRecv feeds newly-arrived bytes through preface validation and the
// frame loop, consuming everything it can make progress on.
func (p *Processor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	if !p.sentSettings {
		p.out = WriteSettings(p.out, false)
		p.sentSettings = true
	}

	p.in = append(p.in, data...)
	consumedTotal := 0

	if !p.prefaceOK {
		if len(p.in) < len(Preface) {
			return 0, nil
		}
		if string(p.in[:len(Preface)]) != Preface {
			return 0, errs.New(errs.KindProtocol, errs.CodeBadPreface, "bad HTTP/2 connection preface")
		}
		p.prefaceOK = true
		p.in = p.in[len(Preface):]
		consumedTotal += len(Preface)
	}

	n, err := p.parseFrames(ctx)
	consumedTotal += n
	p.in = p.in[n:]
	return consumedTotal, err
}

func (p *Processor) parseFrames(ctx libsck.Context) (int, error) {
	off := 0
	for len(p.in)-off >= HeaderLen {
		hdr := ParseFrameHeader(p.in[off:])
		if len(p.in)-off < HeaderLen+int(hdr.Length) {
			break
		}
		payload := p.in[off+HeaderLen : off+HeaderLen+int(hdr.Length)]
		if err := p.handleFrame(ctx, hdr, payload); err != nil {
			return off, err
		}
		off += HeaderLen + int(hdr.Length)
	}
	return off, nil
}

func (p *Processor) handleFrame(ctx libsck.Context, hdr FrameHeader, payload []byte) error {
	// Spec §4.5: once a HEADERS block is left open (no END_HEADERS yet),
	// only a CONTINUATION on that same stream may follow; any other frame
	// interleaved in between is a connection PROTOCOL_ERROR.
	if p.assembling && !(hdr.Type == FrameContinuation && hdr.StreamID == p.assemblingSID) {
		p.out = WriteGoAway(p.out, p.lastStreamID(), ErrProtocol, "frame interleaved within a HEADERS block")
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "frame interleaved within a HEADERS block")
	}

	switch hdr.Type {
	case FrameSettings:
		return p.onSettings(hdr, payload)
	case FramePing:
		if hdr.Flags&FlagAck == 0 && len(payload) == 8 {
			p.out = WritePingAck(p.out, payload)
		}
	case FramePriority:
		if hdr.StreamID == 0 || len(payload) < 5 {
			return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "PRIORITY invalid")
		}
	case FrameWindowUpdate:
		return p.onWindowUpdate(hdr, payload)
	case FrameRSTStream:
		delete(p.streams, hdr.StreamID)
	case FrameHeaders, FrameContinuation:
		return p.onHeadersOrContinuation(ctx, hdr, payload)
	case FrameData:
		return p.onData(hdr, payload)
	case FramePushPromise:
		p.out = WriteGoAway(p.out, p.lastStreamID(), ErrProtocol, "PUSH_PROMISE not accepted")
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "PUSH_PROMISE received")
	}
	return nil
}

// lastStreamID reports the highest stream-id this connection has seen, for
// the GOAWAY frames emitted on a connection-level protocol error.
func (p *Processor) lastStreamID() uint32 {
	var max uint32
	for id := range p.streams {
		if id > max {
			max = id
		}
	}
	return max
}

func (p *Processor) onSettings(hdr FrameHeader, payload []byte) error {
	if hdr.Flags&FlagAck != 0 {
		return nil
	}
	if len(payload)%6 != 0 {
		p.out = WriteGoAway(p.out, 0, ErrFrameSize, "bad settings len")
		return errs.New(errs.KindProtocol, errs.CodeFrameSize, "invalid SETTINGS length")
	}
	for off := 0; off+6 <= len(payload); off += 6 {
		id := SettingID(binary.BigEndian.Uint16(payload[off : off+2]))
		val := binary.BigEndian.Uint32(payload[off+2 : off+6])
		switch id {
		case SettingInitialWindowSize:
			delta := int32(val) - p.peerInitWindow
			p.peerInitWindow = int32(val)
			for _, st := range p.streams {
				st.sendWindow += delta
			}
		case SettingMaxFrameSize:
			if val < 16384 {
				val = 16384
			}
			if val > 16777215 {
				val = 16777215
			}
			p.peerMaxFrame = val
		}
	}
	p.pumpAllStreams()
	p.out = WriteSettings(p.out, true)
	return nil
}

func (p *Processor) onWindowUpdate(hdr FrameHeader, payload []byte) error {
	if len(payload) != 4 {
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "WINDOW_UPDATE length")
	}
	inc := binary.BigEndian.Uint32(payload) & 0x7fffffff
	if inc == 0 {
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "WINDOW_UPDATE zero increment")
	}
	if hdr.StreamID == 0 {
		p.connSendWindow += int32(inc)
		p.pumpAllStreams()
		return nil
	}
	st, ok := p.streams[hdr.StreamID]
	if !ok {
		p.out = WriteGoAway(p.out, p.lastStreamID(), ErrProtocol, "WINDOW_UPDATE on closed-idle stream")
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "WINDOW_UPDATE on non-existent stream")
	}
	st.sendWindow += int32(inc)
	p.trySendData(st)
	return nil
}

func (p *Processor) onHeadersOrContinuation(ctx libsck.Context, hdr FrameHeader, payload []byte) error {
	if hdr.Type == FrameHeaders && hdr.StreamID == 0 {
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "HEADERS on stream 0")
	}
	if hdr.Type == FrameHeaders {
		remain := payload
		if hdr.Flags&FlagPadded != 0 {
			if len(remain) < 1 {
				return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "PADDED short")
			}
			pad := int(remain[0])
			remain = remain[1:]
			if pad > len(remain) {
				return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "invalid pad length")
			}
			remain = remain[:len(remain)-pad]
		}
		if hdr.Flags&FlagPriority != 0 {
			if len(remain) < 5 {
				return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "PRIORITY short")
			}
			remain = remain[5:]
		}
		p.assembling = true
		p.assemblingSID = hdr.StreamID
		p.assemblingBlk = append([]byte(nil), remain...)
	} else {
		if !p.assembling || p.assemblingSID != hdr.StreamID {
			return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "CONTINUATION without HEADERS")
		}
		p.assemblingBlk = append(p.assemblingBlk, payload...)
	}

	if hdr.Flags&FlagEndHeaders != 0 {
		endStream := hdr.Type == FrameHeaders && hdr.Flags&FlagEndStream != 0
		blk := p.assemblingBlk
		sid := p.assemblingSID
		p.assembling = false
		p.assemblingBlk = nil
		return p.finishHeadersBlock(ctx, sid, blk, endStream)
	}
	return nil
}

func (p *Processor) finishHeadersBlock(ctx libsck.Context, sid uint32, blk []byte, endStream bool) error {
	fields, err := p.dec.DecodeBlock(blk)
	if err != nil {
		return errs.Wrap(errs.KindProtocol, errs.CodeProtocolViolation, "HPACK decode failed", err)
	}

	st, ok := p.streams[sid]
	if !ok {
		st = newStream(sid, p.peerInitWindow)
		p.streams[sid] = st
	}
	st.state = StreamOpen

	if reset, ec := st.applyHeaders(fields); reset {
		p.out = WriteRSTStream(p.out, sid, ec)
		delete(p.streams, sid)
		return nil
	}

	if endStream {
		p.finishStream(ctx, sid)
	}
	return nil
}

func (p *Processor) onData(hdr FrameHeader, payload []byte) error {
	if hdr.StreamID == 0 {
		return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "DATA on stream 0")
	}
	remain := payload
	if hdr.Flags&FlagPadded != 0 {
		if len(remain) < 1 {
			return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "DATA padded short")
		}
		pad := int(remain[0])
		remain = remain[1:]
		if pad > len(remain) {
			return errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "DATA pad too long")
		}
		remain = remain[:len(remain)-pad]
	}
	if st, ok := p.streams[hdr.StreamID]; ok {
		st.body.Write(remain)
		if hdr.Flags&FlagEndStream != 0 {
			st.state = StreamHalfClosedRemote
		}
	}
	if len(remain) > 0 {
		p.out = WriteWindowUpdate(p.out, 0, uint32(len(remain)))
		p.out = WriteWindowUpdate(p.out, hdr.StreamID, uint32(len(remain)))
	}
	return nil
}

func (p *Processor) finishStream(ctx libsck.Context, sid uint32) {
	st, ok := p.streams[sid]
	if !ok {
		return
	}

	req := handler.Request{
		Method:   orDefault(st.method, "GET"),
		Path:     orDefault(st.path, "/"),
		Proto:    "HTTP/2",
		Headers:  map[string][]string{},
		Body:     st.body.Bytes(),
		StreamID: sid,
	}
	if st.authority != "" {
		req.Headers["host"] = []string{st.authority}
	}
	for k, v := range st.headers {
		req.Headers[k] = []string{v}
	}

	var resp handler.Response
	if p.h.OnHTTPRequest != nil {
		resp = p.h.OnHTTPRequest(p.connInfo(ctx), req)
	} else {
		resp = handler.Response{Status: 404}
	}
	p.sendResponse(sid, resp)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (p *Processor) sendResponse(sid uint32, resp handler.Response) {
	if resp.Status == 0 {
		resp.Status = 200
	}
	var block []byte
	block = p.enc.WriteField(block, hpack.HeaderField{Name: ":status", Value: strconv.Itoa(resp.Status)}, false)

	ct := "text/plain"
	for k, vs := range resp.Headers {
		if equalFoldASCII(k, "content-type") && len(vs) > 0 {
			ct = vs[0]
		}
	}
	block = p.enc.WriteField(block, hpack.HeaderField{Name: "content-type", Value: ct}, false)
	block = p.enc.WriteField(block, hpack.HeaderField{Name: "content-length", Value: strconv.Itoa(len(resp.Body))}, false)

	p.out = WriteFrameHeader(p.out, uint32(len(block)), FrameHeaders, FlagEndHeaders, sid)
	p.out = append(p.out, block...)

	st, ok := p.streams[sid]
	if !ok {
		st = newStream(sid, p.peerInitWindow)
		p.streams[sid] = st
	}
	if len(resp.Body) == 0 {
		p.out = WriteFrameHeader(p.out, 0, FrameData, FlagEndStream, sid)
		delete(p.streams, sid)
		return
	}
	st.outBody = resp.Body
	st.outOff = 0
	p.trySendData(st)
}

// trySendData emits up to maxFramesPerPump DATA frames for st, respecting
// both flow-control windows and the peer's MAX_FRAME_SIZE.
func (p *Processor) trySendData(st *stream) {
	if st.outOff >= len(st.outBody) {
		return
	}
	frames := 0
	for st.outOff < len(st.outBody) && p.connSendWindow > 0 && st.sendWindow > 0 && frames < maxFramesPerPump {
		remaining := len(st.outBody) - st.outOff
		allowance := p.connSendWindow
		if st.sendWindow < allowance {
			allowance = st.sendWindow
		}
		if int32(p.peerMaxFrame) < allowance {
			allowance = int32(p.peerMaxFrame)
		}
		if allowance <= 0 {
			break
		}
		chunk := int(allowance)
		if chunk > remaining {
			chunk = remaining
		}
		data := st.outBody[st.outOff : st.outOff+chunk]
		st.outOff += chunk
		p.connSendWindow -= int32(chunk)
		st.sendWindow -= int32(chunk)

		flags := uint8(0)
		if st.outOff >= len(st.outBody) {
			flags = FlagEndStream
		}
		p.out = WriteFrameHeader(p.out, uint32(chunk), FrameData, flags, st.id)
		p.out = append(p.out, data...)
		frames++
	}
	if st.outOff >= len(st.outBody) && len(st.outBody) > 0 {
		delete(p.streams, st.id)
	}
}

// pumpAllStreams drains pending response data fairly: a rotating start
// pointer means the same stream never monopolizes the connection's send
// window across pumps (spec §4.5 round-robin fairness).
func (p *Processor) pumpAllStreams() {
	if len(p.streams) == 0 {
		return
	}
	ids := make([]uint32, 0, len(p.streams))
	for id := range p.streams {
		ids = append(ids, id)
	}
	n := len(ids)
	start := p.sendRR % n
	p.sendRR++
	for i := 0; i < n; i++ {
		id := ids[(start+i)%n]
		if st, ok := p.streams[id]; ok {
			p.trySendData(st)
		}
	}
}

func (p *Processor) ProduceSend(ctx libsck.Context) (bool, error) {
	p.pumpAllStreams()
	if len(p.out) == 0 {
		return false, nil
	}
	_, _ = ctx.Write(p.out)
	p.out = nil
	return true, nil
}

// Entry builds the protocol.Entry for registering HTTP/2 with a Detector.
func Entry(priority int, h handler.Level2) libproto.Entry {
	return libproto.Entry{
		Name:     "h2",
		Priority: priority,
		Detect:   libproto.HTTP2Probe,
		Create:   func() libproto.Processor { return New(h) },
	}
}
