/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package runner_test

import (
	"context"
	"testing"
	"time"

	. "github.com/nabbar/reactord/runner"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRunner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "runner suite")
}

var _ = Describe("Runner", func() {
	It("is not running before Start", func() {
		r := New(func(ctx context.Context) error { <-ctx.Done(); return nil }, nil)
		Expect(r.IsRunning()).To(BeFalse())
		Expect(r.Uptime()).To(BeZero())
	})

	It("reports running after Start and stopped after Stop", func() {
		r := New(func(ctx context.Context) error { <-ctx.Done(); return nil }, nil)
		Expect(r.Start(context.Background())).To(Succeed())
		Eventually(r.IsRunning).Should(BeTrue())
		Expect(r.Uptime()).To(BeNumerically(">=", 0))

		Expect(r.Stop(context.Background())).To(Succeed())
		Expect(r.IsRunning()).To(BeFalse())
	})

	It("tolerates nil start/stop functions", func() {
		r := New(nil, nil)
		Expect(r.Start(context.Background())).To(Succeed())
		Eventually(r.IsRunning).Should(BeTrue())
		Expect(r.Stop(context.Background())).To(Succeed())
	})

	It("Restart stops then starts again", func() {
		calls := 0
		r := New(func(ctx context.Context) error {
			calls++
			<-ctx.Done()
			return nil
		}, nil)
		Expect(r.Start(context.Background())).To(Succeed())
		Eventually(r.IsRunning).Should(BeTrue())
		Expect(r.Restart(context.Background())).To(Succeed())
		Eventually(r.IsRunning).Should(BeTrue())
		Expect(calls).To(Equal(2))
		_ = r.Stop(context.Background())
	})

	It("Stop respects context cancellation while waiting for join", func() {
		block := make(chan struct{})
		r := New(func(ctx context.Context) error { <-block; return nil }, nil)
		Expect(r.Start(context.Background())).To(Succeed())
		Eventually(r.IsRunning).Should(BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := r.Stop(ctx)
		Expect(err).To(HaveOccurred())
		close(block)
	})
})
