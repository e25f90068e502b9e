/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor_test

import (
	"testing"
	"time"

	"github.com/nabbar/reactord/reactor"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestReactor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "reactor suite")
}

var _ = Describe("TimerWheel", func() {
	It("fires only timers whose deadline has passed, in deadline order", func() {
		w := reactor.NewTimerWheel()
		base := time.Unix(1000, 0)
		var fired []string

		w.Schedule(base, 3*time.Second, func() { fired = append(fired, "late") })
		w.Schedule(base, 1*time.Second, func() { fired = append(fired, "early") })

		n := w.FireDue(base.Add(2 * time.Second))
		Expect(n).To(Equal(1))
		Expect(fired).To(Equal([]string{"early"}))

		n = w.FireDue(base.Add(4 * time.Second))
		Expect(n).To(Equal(1))
		Expect(fired).To(Equal([]string{"early", "late"}))
	})

	It("does not run a cancelled timer", func() {
		w := reactor.NewTimerWheel()
		base := time.Unix(2000, 0)
		ran := false

		id := w.Schedule(base, time.Second, func() { ran = true })
		w.Cancel(id)

		n := w.FireDue(base.Add(time.Hour))
		Expect(n).To(Equal(0))
		Expect(ran).To(BeFalse())
	})

	It("reports the next deadline of the earliest live timer", func() {
		w := reactor.NewTimerWheel()
		base := time.Unix(3000, 0)

		_, ok := w.NextDeadline()
		Expect(ok).To(BeFalse())

		w.Schedule(base, 5*time.Second, func() {})
		d, ok := w.NextDeadline()
		Expect(ok).To(BeTrue())
		Expect(d).To(Equal(base.Add(5 * time.Second)))
	})
})

var _ = Describe("Registry", func() {
	It("issues stable, unique local ids tagged with the owning thread index", func() {
		r := reactor.NewRegistry[string](7)

		id1 := r.Add("a")
		id2 := r.Add("b")

		Expect(id1.ThreadIndex).To(Equal(uint32(7)))
		Expect(id2.ThreadIndex).To(Equal(uint32(7)))
		Expect(id1.LocalID).ToNot(Equal(id2.LocalID))

		v, ok := r.Get(id1.LocalID)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("a"))

		Expect(r.Len()).To(Equal(2))
		r.Remove(id1.LocalID)
		Expect(r.Len()).To(Equal(1))

		_, ok = r.Get(id1.LocalID)
		Expect(ok).To(BeFalse())
	})
})
