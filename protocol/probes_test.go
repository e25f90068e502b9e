/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package protocol_test

import (
	"testing"

	libproto "github.com/nabbar/reactord/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestProtocol(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "protocol suite")
}

var _ = Describe("built-in probes", func() {
	It("matches a TLS client hello first byte", func() {
		m, more := libproto.TLSProbe([]byte{0x16, 0x03, 0x01, 0x00, 0x10})
		Expect(m).To(BeTrue())
		Expect(more).To(BeFalse())
	})

	It("asks for more data on a short TLS prefix", func() {
		_, more := libproto.TLSProbe([]byte{0x16})
		Expect(more).To(BeTrue())
	})

	It("matches the HTTP/2 preface exactly", func() {
		m, _ := libproto.HTTP2Probe([]byte(libproto.H2Preface))
		Expect(m).To(BeTrue())
	})

	It("asks for more data on a partial HTTP/2 preface", func() {
		_, more := libproto.HTTP2Probe([]byte("PRI * HTTP/2"))
		Expect(more).To(BeTrue())
	})

	It("matches a websocket upgrade request", func() {
		req := "GET /chat HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"
		m, _ := libproto.WebSocketProbe([]byte(req))
		Expect(m).To(BeTrue())
	})

	It("does not match a plain GET as websocket", func() {
		req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
		m, _ := libproto.WebSocketProbe([]byte(req))
		Expect(m).To(BeFalse())
	})

	It("matches ordinary HTTP/1.x methods", func() {
		for _, line := range []string{"GET / HTTP/1.1\r\n", "POST / HTTP/1.1\r\n", "DELETE / HTTP/1.1\r\n"} {
			m, _ := libproto.HTTP1Probe([]byte(line))
			Expect(m).To(BeTrue())
		}
	})

	It("matches configured binary magic", func() {
		probe := libproto.BinaryMagicProbe([]byte{0xCA, 0xFE, 0xBA, 0xBE})
		m, _ := probe([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0x01})
		Expect(m).To(BeTrue())
	})
})
