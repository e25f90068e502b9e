/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package httpsclient is the hybrid HTTPS client Processor (spec §4.7):
// it waits for the TLS handshake to finish, inspects the negotiated
// ALPN, and only then commits to an HTTP/1.1 or HTTP/2 wire format for
// the single request it was built to send. Either path surfaces its
// final status/body through WaitDone, the way the source's
// `wait_done(timeout_ms)` does.
package httpsclient

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nabbar/reactord/errs"
	libproto "github.com/nabbar/reactord/protocol"
	"github.com/nabbar/reactord/protocol/h2"
	"github.com/nabbar/reactord/protocol/hpack"
	libsck "github.com/nabbar/reactord/socket"
)

// tlsContext is the capability this processor needs beyond socket.Context:
// a connection whose codec can report handshake/ALPN state. conn.Connection
// satisfies this; it is asserted at runtime rather than added to
// socket.Context because no other Processor needs it (spec §9 "explicit
// method on the processor trait if truly needed").
type tlsContext interface {
	HandshakeComplete() bool
	NegotiatedProtocol() string
}

// Request describes the single request this client connection sends.
type Request struct {
	Method  string
	Path    string
	Host    string
	Headers map[string]string
	Body    []byte

	AcceptEncoding string
	UserAgent      string
}

// Result is what WaitDone returns once the response (or a fatal error)
// is observed.
type Result struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Err     error
}

// Processor implements protocol.Processor for a single outbound request
// over a connection whose Codec may or may not already be TLS (spec
// §4.7 "hybrid": it works the same whether the negotiated protocol turns
// out to be h2 or http/1.1, deciding only once ALPN is known).
type Processor struct {
	req Request

	mu   sync.Mutex
	done bool
	res  Result
	sig  chan struct{}

	sentReq bool
	chosen  string // "h2" or "http/1.1", set once ALPN resolves

	h1 h1ClientState
	h2 h2ClientState
}

// New builds a Processor that will send req once the handshake (if any)
// completes, or immediately over plaintext if the connection never
// negotiates an ALPN (NegotiatedProtocol()=="").
func New(req Request) *Processor {
	return &Processor{req: req, sig: make(chan struct{})}
}

func (p *Processor) Name() string  { return "https-client" }
func (p *Processor) WantPeek() int { return 0 }

func (p *Processor) OnTimeout(ctx libsck.Context) error {
	return p.finish(Result{Err: errs.New(errs.KindResource, "client-total-timeout", "client request exceeded its total timeout")})
}

// WaitDone blocks until the response (or a fatal error) is available, or
// timeout elapses first (spec §4.7 "wait_done(timeout_ms)").
func (p *Processor) WaitDone(timeout time.Duration) (Result, bool) {
	select {
	case <-p.sig:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.res, true
	case <-time.After(timeout):
		return Result{}, false
	}
}

func (p *Processor) finish(r Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil
	}
	p.done = true
	p.res = r
	close(p.sig)
	return r.Err
}

// ProduceSend commits to a wire format on the first call once the
// handshake (if any) is complete, then drives whichever sub-state
// machine owns the rest of the exchange.
func (p *Processor) ProduceSend(ctx libsck.Context) (bool, error) {
	if p.sentReq {
		return false, nil
	}
	if tc, ok := ctx.(tlsContext); ok && !tc.HandshakeComplete() {
		return false, nil
	}

	p.chosen = "http/1.1"
	if tc, ok := ctx.(tlsContext); ok && tc.NegotiatedProtocol() == "h2" {
		p.chosen = "h2"
	}

	p.sentReq = true
	if p.chosen == "h2" {
		return true, p.h2.send(ctx, p.req)
	}
	return true, p.h1.send(ctx, p.req)
}

// OnRecv forwards to whichever sub-state machine is active, completing
// WaitDone once a full response has been parsed.
func (p *Processor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	if !p.sentReq {
		return 0, nil
	}
	var (
		consumed int
		res      *Result
		err      error
	)
	if p.chosen == "h2" {
		consumed, res, err = p.h2.onRecv(data)
	} else {
		consumed, res, err = p.h1.onRecv(data)
	}
	if err != nil {
		_ = p.finish(Result{Err: err})
		return consumed, err
	}
	if res != nil {
		_ = p.finish(*res)
	}
	return consumed, nil
}

var _ libproto.Processor = (*Processor)(nil)

// --- HTTP/1.1 client path ---

type h1ClientState struct {
	headBuf    bytes.Buffer
	headerDone bool
	status     int
	headers    map[string]string
	chunked    bool
	bodyWanted int
	body       bytes.Buffer
}

func (s *h1ClientState) send(ctx libsck.Context, r Request) error {
	var b bytes.Buffer
	method := r.Method
	if method == "" {
		method = "GET"
	}
	path := r.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", r.Host)
	b.WriteString("Connection: close\r\n")
	ua := r.UserAgent
	if ua == "" {
		ua = "reactord-httpsclient"
	}
	fmt.Fprintf(&b, "User-Agent: %s\r\n", ua)
	if r.AcceptEncoding != "" {
		fmt.Fprintf(&b, "Accept-Encoding: %s\r\n", r.AcceptEncoding)
	}
	for k, v := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	if len(r.Body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}
	b.WriteString("\r\n")
	b.Write(r.Body)

	_, err := ctx.Write(b.Bytes())
	return err
}

func (s *h1ClientState) onRecv(data []byte) (int, *Result, error) {
	if !s.headerDone {
		s.headBuf.Write(data)
		raw := s.headBuf.Bytes()
		idx := bytes.Index(raw, []byte("\r\n\r\n"))
		if idx < 0 {
			return len(data), nil, nil
		}
		head := raw[:idx]
		lines := strings.Split(string(head), "\r\n")
		if len(lines) == 0 {
			return 0, nil, errs.New(errs.KindProtocol, "bad-response", "empty status line")
		}
		parts := strings.SplitN(lines[0], " ", 3)
		if len(parts) < 2 {
			return 0, nil, errs.New(errs.KindProtocol, "bad-response", "malformed status line")
		}
		status, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, nil, errs.New(errs.KindProtocol, "bad-response", "non-numeric status code")
		}
		s.status = status
		s.headers = map[string]string{}
		for _, line := range lines[1:] {
			kv := strings.SplitN(line, ":", 2)
			if len(kv) != 2 {
				continue
			}
			s.headers[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
		}
		s.chunked = strings.EqualFold(s.headers["transfer-encoding"], "chunked")
		if cl, ok := s.headers["content-length"]; ok {
			s.bodyWanted, _ = strconv.Atoi(cl)
		}
		s.headerDone = true
		rest := raw[idx+4:]
		s.body.Reset()
		s.body.Write(rest)
		s.headBuf.Reset()
		consumed := len(data)
		if s.bodyComplete() {
			return consumed, s.result(), nil
		}
		return consumed, nil, nil
	}

	s.body.Write(data)
	if s.bodyComplete() {
		return len(data), s.result(), nil
	}
	return len(data), nil, nil
}

func (s *h1ClientState) bodyComplete() bool {
	if s.chunked {
		return bytes.HasSuffix(s.body.Bytes(), []byte("0\r\n\r\n"))
	}
	return s.body.Len() >= s.bodyWanted
}

func (s *h1ClientState) result() *Result {
	body := s.body.Bytes()
	if s.chunked {
		body = dechunk(body)
	} else if len(body) > s.bodyWanted {
		body = body[:s.bodyWanted]
	}
	return &Result{Status: s.status, Headers: s.headers, Body: append([]byte(nil), body...)}
}

func dechunk(b []byte) []byte {
	var out bytes.Buffer
	for len(b) > 0 {
		nl := bytes.Index(b, []byte("\r\n"))
		if nl < 0 {
			break
		}
		sizeLine := string(b[:nl])
		if i := strings.IndexByte(sizeLine, ';'); i >= 0 {
			sizeLine = sizeLine[:i]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil || size == 0 {
			break
		}
		b = b[nl+2:]
		if int64(len(b)) < size {
			break
		}
		out.Write(b[:size])
		b = b[size:]
		if bytes.HasPrefix(b, []byte("\r\n")) {
			b = b[2:]
		}
	}
	return out.Bytes()
}

// --- HTTP/2 client path ---

// h2ClientState is a minimal single-stream HTTP/2 client: it sends the
// preface, a SETTINGS frame carrying ENABLE_PUSH=0, and one HEADERS frame
// with END_HEADERS (plus END_STREAM when the request has no body; otherwise
// one DATA frame with END_STREAM follows), then parses frames on stream 1
// until END_STREAM (spec scenario
// (b)). It does not multiplex additional streams: one Processor serves
// exactly one request, matching what httpsclient.Request models.
type h2ClientState struct {
	enc *hpack.Encoder
	dec *hpack.Decoder
	in  []byte

	status  int
	headers map[string]string
	body    bytes.Buffer
	ended   bool
}

func (s *h2ClientState) send(ctx libsck.Context, r Request) error {
	s.enc = hpack.NewEncoder(4096)
	s.dec = hpack.NewDecoder(4096)

	var out []byte
	out = append(out, []byte(h2.Preface)...)
	out = h2.WriteSettings(out, false)

	method := r.Method
	if method == "" {
		method = "GET"
	}
	path := r.Path
	if path == "" {
		path = "/"
	}

	var block []byte
	block = s.enc.WriteField(block, hpack.HeaderField{Name: ":method", Value: method}, false)
	block = s.enc.WriteField(block, hpack.HeaderField{Name: ":scheme", Value: "https"}, false)
	block = s.enc.WriteField(block, hpack.HeaderField{Name: ":path", Value: path}, false)
	block = s.enc.WriteField(block, hpack.HeaderField{Name: ":authority", Value: r.Host}, false)
	for k, v := range r.Headers {
		block = s.enc.WriteField(block, hpack.HeaderField{Name: strings.ToLower(k), Value: v}, false)
	}

	flags := uint8(h2.FlagEndHeaders)
	if len(r.Body) == 0 {
		flags |= h2.FlagEndStream
	}
	out = h2.WriteFrameHeader(out, uint32(len(block)), h2.FrameHeaders, flags, 1)
	out = append(out, block...)

	if len(r.Body) > 0 {
		out = h2.WriteFrameHeader(out, uint32(len(r.Body)), h2.FrameData, h2.FlagEndStream, 1)
		out = append(out, r.Body...)
	}

	_, err := ctx.Write(out)
	return err
}

func (s *h2ClientState) onRecv(data []byte) (int, *Result, error) {
	s.in = append(s.in, data...)
	consumed := 0

	for {
		if len(s.in) < h2.HeaderLen {
			break
		}
		fh := h2.ParseFrameHeader(s.in)
		total := h2.HeaderLen + int(fh.Length)
		if len(s.in) < total {
			break
		}
		payload := s.in[h2.HeaderLen:total]
		s.in = s.in[total:]
		consumed += total

		switch fh.Type {
		case h2.FrameSettings:
			// server SETTINGS are skipped: the client neither applies
			// their values nor sends a SETTINGS ACK.
		case h2.FrameHeaders:
			if fh.StreamID != 1 {
				continue
			}
			fields, err := s.dec.DecodeBlock(payload)
			if err != nil {
				return consumed, nil, errs.Wrap(errs.KindProtocol, "bad-response", "invalid HPACK block", err)
			}
			s.headers = map[string]string{}
			for _, f := range fields {
				if f.Name == ":status" {
					s.status, _ = strconv.Atoi(f.Value)
					continue
				}
				s.headers[f.Name] = f.Value
			}
			if fh.Flags&h2.FlagEndStream != 0 {
				s.ended = true
			}
		case h2.FrameData:
			if fh.StreamID != 1 {
				continue
			}
			s.body.Write(payload)
			if fh.Flags&h2.FlagEndStream != 0 {
				s.ended = true
			}
		case h2.FrameGoAway:
			return consumed, nil, errs.New(errs.KindProtocol, "goaway", "server sent GOAWAY before response completed")
		}

		if s.ended {
			return consumed, &Result{Status: s.status, Headers: s.headers, Body: append([]byte(nil), s.body.Bytes()...)}, nil
		}
	}
	return consumed, nil, nil
}
