/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package protocol_test

import (
	"time"

	libproto "github.com/nabbar/reactord/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func entries() []libproto.Entry {
	return []libproto.Entry{
		{Name: "tls", Priority: 0, Detect: libproto.TLSProbe},
		{Name: "websocket", Priority: 1, Detect: libproto.WebSocketProbe},
		{Name: "h2", Priority: 2, Detect: libproto.HTTP2Probe},
		{Name: "http1", Priority: 3, Detect: libproto.HTTP1Probe},
	}
}

var _ = Describe("Detector", func() {
	It("picks the highest-priority matching probe, never a lower one", func() {
		now := time.Unix(0, 0)
		d := libproto.NewDetector(entries(), 0, 0, now)
		e, err := d.Feed(now, []byte("GET /chat HTTP/1.1\r\nUpgrade: websocket\r\n\r\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(e).ToNot(BeNil())
		Expect(e.Name).To(Equal("websocket"))
	})

	It("falls through to http1 when nothing more specific matches", func() {
		now := time.Unix(0, 0)
		d := libproto.NewDetector(entries(), 0, 0, now)
		e, err := d.Feed(now, []byte("GET / HTTP/1.1\r\n\r\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(e.Name).To(Equal("http1"))
	})

	It("accumulates across short feeds until a probe matches", func() {
		now := time.Unix(0, 0)
		d := libproto.NewDetector(entries(), 0, 0, now)
		e, err := d.Feed(now, []byte{0x16})
		Expect(err).ToNot(HaveOccurred())
		Expect(e).To(BeNil())
		e, err = d.Feed(now, []byte{0x03, 0x01})
		Expect(err).ToNot(HaveOccurred())
		Expect(e.Name).To(Equal("tls"))
	})

	It("rejects bytes matching no registered protocol", func() {
		now := time.Unix(0, 0)
		d := libproto.NewDetector(entries(), 0, 0, now)
		_, err := d.Feed(now, []byte("\x00\x01\x02\x03not a known preface at all"))
		Expect(err).To(HaveOccurred())
	})

	It("times out past its deadline", func() {
		now := time.Unix(0, 0)
		d := libproto.NewDetector(entries(), 0, time.Millisecond, now)
		_, err := d.Feed(now.Add(time.Second), []byte{0x16})
		Expect(err).To(HaveOccurred())
	})

	It("overflows once the sniff buffer cap is reached without a match", func() {
		now := time.Unix(0, 0)
		alwaysWantsMore := func(sniff []byte) (bool, bool) { return false, true }
		d := libproto.NewDetector([]libproto.Entry{
			{Name: "slow", Priority: 0, Detect: alwaysWantsMore},
		}, 4, 0, now)
		_, err := d.Feed(now, []byte{0x01, 0x02})
		Expect(err).ToNot(HaveOccurred())
		_, err = d.Feed(now, []byte{0x03, 0x04})
		Expect(err).To(HaveOccurred())
	})
})
