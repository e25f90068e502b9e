/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package socket_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	libsck "github.com/nabbar/reactord/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSocket(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "socket suite")
}

var _ = Describe("ConnState", func() {
	It("has the stable numeric ordering every caller relies on", func() {
		Expect(libsck.ConnectionDial).To(Equal(libsck.ConnState(0)))
		Expect(libsck.ConnectionNew).To(Equal(libsck.ConnState(1)))
		Expect(libsck.ConnectionRead).To(Equal(libsck.ConnState(2)))
		Expect(libsck.ConnectionCloseRead).To(Equal(libsck.ConnState(3)))
		Expect(libsck.ConnectionHandler).To(Equal(libsck.ConnState(4)))
		Expect(libsck.ConnectionWrite).To(Equal(libsck.ConnState(5)))
		Expect(libsck.ConnectionCloseWrite).To(Equal(libsck.ConnState(6)))
		Expect(libsck.ConnectionClose).To(Equal(libsck.ConnState(7)))
	})

	It("stringifies every known state distinctly", func() {
		seen := map[string]bool{}
		for s := libsck.ConnectionDial; s <= libsck.ConnectionClose; s++ {
			str := s.String()
			Expect(str).ToNot(Equal("unknown"))
			Expect(seen[str]).To(BeFalse())
			seen[str] = true
		}
	})

	It("reports unknown for out-of-range values", func() {
		Expect(libsck.ConnState(255).String()).To(Equal("unknown"))
	})
})

var _ = Describe("ErrorFilter", func() {
	It("passes nil through", func() {
		Expect(libsck.ErrorFilter(nil)).To(BeNil())
	})

	It("silences io.EOF, net.ErrClosed and context.Canceled", func() {
		Expect(libsck.ErrorFilter(io.EOF)).To(BeNil())
		Expect(libsck.ErrorFilter(net.ErrClosed)).To(BeNil())
		Expect(libsck.ErrorFilter(context.Canceled)).To(BeNil())
	})

	It("passes other errors through unchanged", func() {
		err := errors.New("boom")
		Expect(libsck.ErrorFilter(err)).To(Equal(err))
	})
})
