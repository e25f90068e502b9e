/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package httpsclient_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	libhc "github.com/nabbar/reactord/httpsclient"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHTTPSClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "httpsclient suite")
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:443" }

type fakeCtx struct {
	out bytes.Buffer
}

func (f *fakeCtx) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeCtx) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeCtx) Context() context.Context    { return context.Background() }
func (f *fakeCtx) RemoteAddr() net.Addr        { return fakeAddr{} }
func (f *fakeCtx) LocalAddr() net.Addr         { return fakeAddr{} }
func (f *fakeCtx) ConnID() (uint32, uint32)    { return 0, 1 }
func (f *fakeCtx) Close() error                { return nil }

var _ = Describe("httpsclient Processor", func() {
	It("sends a plaintext HTTP/1.1 request and parses a fixed-length response", func() {
		p := libhc.New(libhc.Request{Method: "GET", Path: "/", Host: "example.test"})
		ctx := &fakeCtx{}

		wrote, err := p.ProduceSend(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(wrote).To(BeTrue())
		Expect(ctx.out.String()).To(ContainSubstring("GET / HTTP/1.1\r\n"))
		Expect(ctx.out.String()).To(ContainSubstring("Host: example.test\r\n"))

		resp := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK")
		_, err = p.OnRecv(ctx, resp)
		Expect(err).ToNot(HaveOccurred())

		res, ok := p.WaitDone(time.Second)
		Expect(ok).To(BeTrue())
		Expect(res.Status).To(Equal(200))
		Expect(string(res.Body)).To(Equal("OK"))
	})

	It("decodes a chunked response body", func() {
		p := libhc.New(libhc.Request{Method: "GET", Path: "/", Host: "example.test"})
		ctx := &fakeCtx{}
		_, _ = p.ProduceSend(ctx)

		resp := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nOK\r\n0\r\n\r\n")
		_, err := p.OnRecv(ctx, resp)
		Expect(err).ToNot(HaveOccurred())

		res, ok := p.WaitDone(time.Second)
		Expect(ok).To(BeTrue())
		Expect(string(res.Body)).To(Equal("OK"))
	})
})
