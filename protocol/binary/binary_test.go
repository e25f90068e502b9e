/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package binary_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"

	"github.com/nabbar/reactord/handler"
	libbin "github.com/nabbar/reactord/protocol/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBinary(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "binary suite")
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:1234" }

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

func frame(payload []byte) []byte {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	return append(hdr[:], payload...)
}

var _ = Describe("binary Processor", func() {
	It("consumes one complete message and echoes it back framed", func() {
		h := handler.Level2{
			OnBinaryMessage: func(info handler.ConnectionInfo, req handler.BinaryRequest) handler.BinaryResponse {
				return handler.BinaryResponse{Payload: req.Payload}
			},
		}
		p := libbin.New(h, 0)
		ctx := &fakeCtx{}

		in := frame([]byte("hello"))
		consumed, err := p.OnRecv(ctx, in)
		Expect(err).ToNot(HaveOccurred())
		Expect(consumed).To(Equal(len(in)))

		wrote, err := p.ProduceSend(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(wrote).To(BeTrue())
		Expect(ctx.out.Bytes()).To(Equal(frame([]byte("hello"))))
	})

	It("leaves a partial trailing message unconsumed", func() {
		p := libbin.New(handler.Level2{
			OnBinaryMessage: func(handler.ConnectionInfo, handler.BinaryRequest) handler.BinaryResponse {
				return handler.BinaryResponse{}
			},
		}, 0)
		in := frame([]byte("hello"))
		partial := in[:len(in)-2]
		consumed, err := p.OnRecv(&fakeCtx{}, partial)
		Expect(err).ToNot(HaveOccurred())
		Expect(consumed).To(Equal(0))
	})

	It("rejects a length prefix over the configured maximum", func() {
		p := libbin.New(handler.Level2{}, 4)
		_, err := p.OnRecv(&fakeCtx{}, frame([]byte("hello")))
		Expect(err).To(HaveOccurred())
	})
})
