/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package http1_test

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/nabbar/reactord/handler"
	libhttp1 "github.com/nabbar/reactord/protocol/http1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHTTP1(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "http1 suite")
}

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.s }

type fakeCtx struct {
	out bytes.Buffer
	ctx context.Context
	cl  bool
}

func newFakeCtx() *fakeCtx { return &fakeCtx{ctx: context.Background()} }

func (f *fakeCtx) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeCtx) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeCtx) Context() context.Context    { return f.ctx }
func (f *fakeCtx) RemoteAddr() net.Addr        { return fakeAddr{"127.0.0.1:5555"} }
func (f *fakeCtx) LocalAddr() net.Addr         { return fakeAddr{"127.0.0.1:80"} }
func (f *fakeCtx) ConnID() (uint32, uint32)    { return 2, 9 }
func (f *fakeCtx) Close() error                { f.cl = true; return nil }

var _ = Describe("Processor", func() {
	It("serves scenario (a): sync GET with a small fixed body", func() {
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				Expect(req.Method).To(Equal("GET"))
				Expect(req.Path).To(Equal("/hello"))
				return handler.Response{Status: 200, Body: []byte("OK")}
			},
		}
		p := libhttp1.New(h)
		ctx := newFakeCtx()

		req := "GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"
		n, err := p.OnRecv(ctx, []byte(req))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(req)))

		resp := ctx.out.String()
		Expect(resp).To(HavePrefix("HTTP/1.1 200 OK\r\n"))
		Expect(resp).To(ContainSubstring("Content-Length: 2\r\n"))
		Expect(resp).To(HaveSuffix("\r\n\r\nOK"))
	})

	It("delivers exactly Content-Length body bytes regardless of chunking into multiple OnRecv calls", func() {
		var gotBody []byte
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				gotBody = append([]byte(nil), req.Body...)
				return handler.Response{Status: 204}
			},
		}
		p := libhttp1.New(h)
		ctx := newFakeCtx()

		head := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 11\r\n\r\n"
		n1, err := p.OnRecv(ctx, []byte(head+"hello "))
		Expect(err).ToNot(HaveOccurred())
		Expect(n1).To(Equal(len(head) + len("hello ")))

		n2, err := p.OnRecv(ctx, []byte("world"))
		Expect(err).ToNot(HaveOccurred())
		Expect(n2).To(Equal(len("world")))
		Expect(gotBody).To(Equal([]byte("hello world")))
	})

	It("decodes chunked request bodies", func() {
		var gotBody []byte
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				gotBody = append([]byte(nil), req.Body...)
				return handler.Response{Status: 200}
			},
		}
		p := libhttp1.New(h)
		ctx := newFakeCtx()

		req := "POST /c HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
		n, err := p.OnRecv(ctx, []byte(req))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(req)))
		Expect(gotBody).To(Equal([]byte("hello world")))
	})

	It("closes the connection after responding when Connection: close is set", func() {
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				return handler.Response{Status: 200, Body: []byte("bye")}
			},
		}
		p := libhttp1.New(h)
		ctx := newFakeCtx()

		req := "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
		_, err := p.OnRecv(ctx, []byte(req))
		Expect(err).ToNot(HaveOccurred())
		Expect(ctx.out.String()).To(ContainSubstring("Connection: close\r\n"))
		Expect(ctx.cl).To(BeTrue())
	})

	It("serves a second request on the same connection when keep-alive applies", func() {
		calls := 0
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				calls++
				return handler.Response{Status: 200, Body: []byte("x")}
			},
		}
		p := libhttp1.New(h)
		ctx := newFakeCtx()

		req := "GET /one HTTP/1.1\r\nHost: x\r\n\r\n"
		n, err := p.OnRecv(ctx, []byte(req))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(req)))

		req2 := "GET /two HTTP/1.1\r\nHost: x\r\n\r\n"
		n2, err := p.OnRecv(ctx, []byte(req2))
		Expect(err).ToNot(HaveOccurred())
		Expect(n2).To(Equal(len(req2)))
		Expect(calls).To(Equal(2))
	})
})
