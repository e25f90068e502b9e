/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package http1 is the HTTP/1.1 server Processor: request-line/header
// parsing, Content-Length and chunked body framing, and
// Connection:close handling (spec §4.7, §6).
package http1

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/handler"
	libproto "github.com/nabbar/reactord/protocol"
	libsck "github.com/nabbar/reactord/socket"
)

type connInfo struct {
	proto  string
	remote string
	thread uint32
	local  uint32
}

func (c connInfo) Protocol() string     { return c.proto }
func (c connInfo) RemoteAddr() string   { return c.remote }
func (c connInfo) ThreadIndex() uint32  { return c.thread }
func (c connInfo) LocalID() uint32      { return c.local }

// Processor implements protocol.Processor for a single HTTP/1.1
// connection: it may serve any number of requests in sequence unless a
// request sets Connection: close.
type Processor struct {
	h handler.Level2

	reqLine    string
	headers    map[string][]string
	bodyWanted int
	chunked    bool
	body       bytes.Buffer
	closeAfter bool
	pendingOut []byte
}

func New(h handler.Level2) *Processor {
	return &Processor{h: h, bodyWanted: -1}
}

func (p *Processor) Name() string     { return "http/1.1" }
func (p *Processor) WantPeek() int    { return 0 }
func (p *Processor) OnTimeout(ctx libsck.Context) error { return nil }

// OnRecv scans data for a full request (headers + body) one at a time;
// everything before the terminating CRLFCRLF and any declared body is
// consumed once a full request is assembled.
func (p *Processor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	if p.reqLine == "" {
		idx := bytes.Index(data, []byte("\r\n\r\n"))
		if idx < 0 {
			if len(data) > 64*1024 {
				return 0, errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "request headers exceeded limit before terminator")
			}
			return 0, nil
		}
		head := data[:idx]
		lines := strings.Split(string(head), "\r\n")
		if len(lines) == 0 {
			return 0, errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "empty request")
		}
		p.reqLine = lines[0]
		p.headers = map[string][]string{}
		for _, line := range lines[1:] {
			k, v, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			k = strings.ToLower(strings.TrimSpace(k))
			p.headers[k] = append(p.headers[k], strings.TrimSpace(v))
		}
		if cl := p.headers["content-length"]; len(cl) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(cl[0]))
			if err != nil || n < 0 {
				return 0, errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "invalid content-length")
			}
			p.bodyWanted = n
		} else if te := p.headers["transfer-encoding"]; len(te) > 0 && strings.Contains(strings.ToLower(te[0]), "chunked") {
			p.chunked = true
		} else {
			p.bodyWanted = 0
		}
		for _, c := range p.headers["connection"] {
			if strings.EqualFold(c, "close") {
				p.closeAfter = true
			}
		}
		consumed := idx + 4
		if p.bodyWanted == 0 && !p.chunked {
			p.dispatch(ctx)
			return consumed, nil
		}
		rest := data[consumed:]
		n := p.feedBody(rest)
		if p.bodyWanted >= 0 && p.body.Len() >= p.bodyWanted {
			p.dispatch(ctx)
		}
		return consumed + n, nil
	}

	n := p.feedBody(data)
	if p.bodyWanted >= 0 && p.body.Len() >= p.bodyWanted {
		p.dispatch(ctx)
	}
	return n, nil
}

func (p *Processor) feedBody(data []byte) int {
	if p.chunked {
		return p.feedChunked(data)
	}
	need := p.bodyWanted - p.body.Len()
	if need <= 0 {
		return 0
	}
	n := len(data)
	if n > need {
		n = need
	}
	p.body.Write(data[:n])
	if p.body.Len() >= p.bodyWanted {
		return n
	}
	return n
}

func (p *Processor) feedChunked(data []byte) int {
	total := 0
	for len(data) > 0 {
		idx := bytes.Index(data, []byte("\r\n"))
		if idx < 0 {
			return total
		}
		sizeLine := string(data[:idx])
		if i := strings.IndexByte(sizeLine, ';'); i >= 0 {
			sizeLine = sizeLine[:i]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return total
		}
		need := int(idx) + 2 + int(size) + 2
		if len(data) < need {
			return total
		}
		if size == 0 {
			total += need
			p.bodyWanted = p.body.Len()
			return total
		}
		p.body.Write(data[idx+2 : idx+2+int(size)])
		data = data[need:]
		total += need
	}
	return total
}

func (p *Processor) dispatch(ctx libsck.Context) {
	parts := strings.SplitN(p.reqLine, " ", 3)
	if len(parts) < 3 {
		p.writeError(500, "malformed request line")
		p.reset()
		return
	}
	method, target, proto := parts[0], parts[1], parts[2]
	path, query, _ := strings.Cut(target, "?")

	req := handler.Request{Method: method, Path: path, Query: query, Proto: proto, Headers: p.headers, Body: p.body.Bytes()}
	ti, li := ctx.ConnID()
	info := connInfo{proto: "http/1.1", remote: ctx.RemoteAddr().String(), thread: ti, local: li}

	var resp handler.Response
	if p.h.OnHTTPRequest != nil {
		resp = p.h.OnHTTPRequest(info, req)
	} else {
		resp = handler.Response{Status: 404}
	}
	p.writeResponse(ctx, resp)
	p.reset()
}

func (p *Processor) writeResponse(ctx libsck.Context, resp handler.Response) {
	if resp.Status == 0 {
		resp.Status = 200
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", resp.Status, statusText(resp.Status))
	for k, vs := range resp.Headers {
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(resp.Body))
	if p.closeAfter {
		buf.WriteString("Connection: close\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(resp.Body)
	_, _ = ctx.Write(buf.Bytes())
	if p.closeAfter {
		_ = ctx.Close()
	}
}

func (p *Processor) writeError(status int, msg string) {
	p.pendingOut = append(p.pendingOut, []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", status, statusText(status), len(msg), msg))...)
}

func (p *Processor) reset() {
	p.reqLine = ""
	p.headers = nil
	p.bodyWanted = -1
	p.chunked = false
	p.body.Reset()
}

func (p *Processor) ProduceSend(ctx libsck.Context) (bool, error) {
	if len(p.pendingOut) == 0 {
		return false, nil
	}
	_, _ = ctx.Write(p.pendingOut)
	p.pendingOut = nil
	return true, nil
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Status"
	}
}

// Entry builds the protocol.Entry for registering HTTP/1.1 with a Detector.
func Entry(priority int, h handler.Level2) libproto.Entry {
	return libproto.Entry{
		Name:     "http/1.1",
		Priority: priority,
		Detect:   libproto.HTTP1Probe,
		Create:   func() libproto.Processor { return New(h) },
	}
}
