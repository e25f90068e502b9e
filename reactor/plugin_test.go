/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor_test

import (
	"time"

	"github.com/nabbar/reactord/reactor"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingPlugin struct {
	inited  chan uint32
	ticked  chan struct{}
	stopped chan struct{}
}

func newRecordingPlugin() *recordingPlugin {
	return &recordingPlugin{
		inited:  make(chan uint32, 1),
		ticked:  make(chan struct{}, 16),
		stopped: make(chan struct{}, 1),
	}
}

func (p *recordingPlugin) OnInit(workerIndex uint32) { p.inited <- workerIndex }
func (p *recordingPlugin) OnTick() {
	select {
	case p.ticked <- struct{}{}:
	default:
	}
}
func (p *recordingPlugin) OnStop() { p.stopped <- struct{}{} }

var _ = Describe("Plugin", func() {
	It("runs OnInit before the loop, OnTick every iteration, and OnStop on shutdown", func() {
		w, err := reactor.NewWorker(0, 16, 5, 0, nil, nil)
		Expect(err).ToNot(HaveOccurred())

		p := newRecordingPlugin()
		w.AddPlugin(p)

		go w.Run()

		Eventually(p.inited, time.Second).Should(Receive(Equal(uint32(0))))
		Eventually(p.ticked, time.Second).Should(Receive())

		w.Stop()

		Eventually(p.stopped, time.Second).Should(Receive())
	})
})
