/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor_test

import (
	"github.com/nabbar/reactord/reactor"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BufferPool", func() {
	It("recycles a buffer across Get/Put instead of allocating a new one", func() {
		p := reactor.NewBufferPool(2, 64)
		b := p.Get()
		Expect(len(b)).To(Equal(64))
		b[0] = 0xab
		p.Put(b)

		b2 := p.Get()
		Expect(len(b2)).To(Equal(64))
		Expect(b2[0]).To(Equal(byte(0xab)))
	})

	It("drops buffers once the pool is at capacity", func() {
		p := reactor.NewBufferPool(1, 32)
		p.Put(make([]byte, 32))
		p.Put(make([]byte, 32))

		first := p.Get()
		Expect(len(first)).To(Equal(32))
		second := p.Get()
		Expect(len(second)).To(Equal(32))
		third := p.Get()
		Expect(len(third)).To(Equal(32))
	})

	It("tolerates a nil pool by always allocating fresh", func() {
		var p *reactor.BufferPool
		b := p.Get()
		Expect(b).ToNot(BeNil())
		p.Put(b)
	})
})
