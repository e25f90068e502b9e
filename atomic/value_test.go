/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 */

package atomic_test

import (
	"sync"
	"testing"

	libatm "github.com/nabbar/reactord/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAtomic(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "atomic suite")
}

var _ = Describe("Value[T]", func() {
	It("loads the zero value before any store", func() {
		v := libatm.NewValue[int]()
		Expect(v.Load()).To(Equal(0))
	})

	It("stores and loads a value", func() {
		v := libatm.NewValueOf("processor-a")
		Expect(v.Load()).To(Equal("processor-a"))
		v.Store("processor-b")
		Expect(v.Load()).To(Equal("processor-b"))
	})

	It("swap returns the previous value", func() {
		v := libatm.NewValueOf(1)
		old := v.Swap(2)
		Expect(old).To(Equal(1))
		Expect(v.Load()).To(Equal(2))
	})

	It("is safe for concurrent swap (no torn reads)", func() {
		v := libatm.NewValueOf(0)
		wg := sync.WaitGroup{}
		for i := 1; i <= 100; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				v.Swap(n)
			}(i)
		}
		wg.Wait()
		Expect(v.Load()).To(BeNumerically(">=", 1))
	})
})
