/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package runner is a start/stop lifecycle wrapper around one long-lived
// goroutine. app.Server is built on it; reactor workers and the listener
// manage their own goroutines with stop/done channels.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FuncStart is invoked once by Start; it should run until ctx is cancelled
// or the work is naturally finished, and return when it has stopped looping.
type FuncStart func(ctx context.Context) error

// FuncStop is invoked once by Stop, after the start context has been
// cancelled, to release any resource the start function does not own
// (close a listening socket, join a helper goroutine, ...).
type FuncStop func(ctx context.Context) error

// Runner is the lifecycle contract of the server facade: Start is a no-op
// while already running, Stop is idempotent and blocks until the start
// function has returned (or ctx is done).
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	IsRunning() bool
	Uptime() time.Duration
}

type runner struct {
	mu      sync.Mutex
	start   FuncStart
	stop    FuncStop
	running atomic.Bool
	since   atomic.Int64 // unix nano, 0 when not running
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Runner around a start/stop function pair. Either may be nil;
// Start/Stop then become no-ops for that phase rather than erroring, so a
// listener with no explicit teardown can still be wired into the same
// lifecycle as a worker that has one.
func New(start FuncStart, stop FuncStop) Runner {
	return &runner{start: start, stop: stop}
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running.Load() {
		r.mu.Unlock()
		return nil
	}
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)
	r.since.Store(time.Now().UnixNano())
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		defer r.running.Store(false)
		if r.start != nil {
			_ = r.start(cctx)
		} else {
			<-cctx.Done()
		}
	}()
	return nil
}

func (r *runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.since.Store(0)

	if r.stop != nil {
		return r.stop(ctx)
	}
	return nil
}

func (r *runner) Restart(ctx context.Context) error {
	if err := r.Stop(ctx); err != nil {
		return err
	}
	return r.Start(ctx)
}

func (r *runner) IsRunning() bool {
	return r.running.Load()
}

func (r *runner) Uptime() time.Duration {
	since := r.since.Load()
	if since == 0 {
		return 0
	}
	return time.Since(time.Unix(0, since))
}
