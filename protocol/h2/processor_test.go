/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package h2_test

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/nabbar/reactord/handler"
	libh2 "github.com/nabbar/reactord/protocol/h2"
	"github.com/nabbar/reactord/protocol/hpack"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestH2(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "h2 suite")
}

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.s }

type fakeCtx struct {
	out bytes.Buffer
	ctx context.Context
}

func newFakeCtx() *fakeCtx { return &fakeCtx{ctx: context.Background()} }

func (f *fakeCtx) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeCtx) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeCtx) Context() context.Context    { return f.ctx }
func (f *fakeCtx) RemoteAddr() net.Addr        { return fakeAddr{"10.0.0.1:1234"} }
func (f *fakeCtx) LocalAddr() net.Addr         { return fakeAddr{"10.0.0.2:443"} }
func (f *fakeCtx) ConnID() (uint32, uint32)    { return 0, 1 }
func (f *fakeCtx) Close() error                { return nil }

func encodeHeadersBlock(fields []hpack.HeaderField) []byte {
	enc := hpack.NewEncoder(4096)
	var block []byte
	for _, f := range fields {
		block = enc.WriteField(block, f, false)
	}
	return block
}

func headersFrame(streamID uint32, block []byte, endStream bool) []byte {
	flags := uint8(libh2.FlagEndHeaders)
	if endStream {
		flags |= libh2.FlagEndStream
	}
	return libh2.WriteFrameHeader(nil, uint32(len(block)), libh2.FrameHeaders, flags, streamID)
}

var _ = Describe("Processor", func() {
	It("rejects a connection that does not start with the preface", func() {
		h := handler.Level2{}
		p := libh2.New(h)
		ctx := newFakeCtx()
		_, err := p.OnRecv(ctx, []byte("GET / HTTP/1.1\r\n\r\n"))
		Expect(err).To(HaveOccurred())
	})

	It("dispatches a GET request end-to-end and emits a HEADERS+DATA response", func() {
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				Expect(req.Method).To(Equal("GET"))
				Expect(req.Path).To(Equal("/"))
				return handler.Response{Status: 200, Body: []byte("hello")}
			},
		}
		p := libh2.New(h)
		ctx := newFakeCtx()

		block := encodeHeadersBlock([]hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: "/"},
			{Name: ":authority", Value: "example.com"},
		})
		frame := append(headersFrame(1, block, true), block...)

		input := append([]byte(libh2.Preface), frame...)
		n, err := p.OnRecv(ctx, input)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(input)))

		wrote, err := p.ProduceSend(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(wrote).To(BeTrue())
		Expect(ctx.out.Len()).To(BeNumerically(">", 0))
	})

	It("acks SETTINGS frames", func() {
		h := handler.Level2{}
		p := libh2.New(h)
		ctx := newFakeCtx()

		settings := libh2.WriteFrameHeader(nil, 0, 4 /*FrameSettings*/, 0, 0)
		input := append([]byte(libh2.Preface), settings...)
		_, err := p.OnRecv(ctx, input)
		Expect(err).ToNot(HaveOccurred())

		_, _ = p.ProduceSend(ctx)
		Expect(ctx.out.Len()).To(BeNumerically(">", 0))
	})

	It("emits the HEADERS+DATA reply from one OnRecv followed by a single ProduceSend call", func() {
		// Regression: a Connection once called ProduceSend only from
		// OnWritable, which is armed by WantsWrite; a processor that merely
		// buffers its reply in-process (as this one does) must be pumped by
		// whatever drives OnRecv, or the reply is stranded. This test exercises
		// Processor.ProduceSend exactly once, immediately after OnRecv,
		// the same sequencing conn.Connection.OnReadable now performs.
		h := handler.Level2{
			OnHTTPRequest: func(info handler.ConnectionInfo, req handler.Request) handler.Response {
				return handler.Response{Status: 200, Body: []byte("OK")}
			},
		}
		p := libh2.New(h)
		ctx := newFakeCtx()

		block := encodeHeadersBlock([]hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: "/"},
			{Name: ":authority", Value: "example.com"},
		})
		frame := append(headersFrame(1, block, true), block...)
		input := append([]byte(libh2.Preface), frame...)

		_, err := p.OnRecv(ctx, input)
		Expect(err).ToNot(HaveOccurred())

		wrote, err := p.ProduceSend(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(wrote).To(BeTrue())
		Expect(ctx.out.String()).To(ContainSubstring("OK"))
	})

	It("rejects PUSH_PROMISE with a connection PROTOCOL_ERROR", func() {
		h := handler.Level2{}
		p := libh2.New(h)
		ctx := newFakeCtx()

		pushPromise := libh2.WriteFrameHeader(nil, 4, 5 /*FramePushPromise*/, 0, 1)
		pushPromise = append(pushPromise, 0, 0, 0, 3)
		input := append([]byte(libh2.Preface), pushPromise...)

		_, err := p.OnRecv(ctx, input)
		Expect(err).To(HaveOccurred())
	})

	It("rejects WINDOW_UPDATE on a non-existent stream with a connection PROTOCOL_ERROR", func() {
		h := handler.Level2{}
		p := libh2.New(h)
		ctx := newFakeCtx()

		wu := libh2.WriteWindowUpdate(nil, 42, 100)
		input := append([]byte(libh2.Preface), wu...)

		_, err := p.OnRecv(ctx, input)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a DATA frame on another stream interleaved inside an open HEADERS block", func() {
		h := handler.Level2{}
		p := libh2.New(h)
		ctx := newFakeCtx()

		block := encodeHeadersBlock([]hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: "/"},
			{Name: ":authority", Value: "example.com"},
		})
		// HEADERS without END_HEADERS leaves the block open for stream 1.
		headers := libh2.WriteFrameHeader(nil, uint32(len(block)), libh2.FrameHeaders, 0, 1)
		headers = append(headers, block...)

		data := libh2.WriteFrameHeader(nil, 2, libh2.FrameData, 0, 3)
		data = append(data, 'h', 'i')

		input := append([]byte(libh2.Preface), headers...)
		input = append(input, data...)

		_, err := p.OnRecv(ctx, input)
		Expect(err).To(HaveOccurred())
	})
})
