/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

import (
	"time"

	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/log"
)

// ConnHandle is the minimal surface a Worker needs from whatever owns an
// fd's application-level state; reactor stays agnostic of the connection
// pipeline's concrete type so conn.Connection can live in its own package
// without an import cycle.
type ConnHandle interface {
	Fd() int
	OnReadable() error
	OnWritable() error
	WantsWrite() bool
	// Teardown releases the fd/codec; called exactly once, from the
	// worker's destruction path (spec §7 "destroy_and_erase").
	Teardown() error
}

// Worker runs one epoll instance on its own goroutine: wait for events,
// dispatch them, fire due timers, drain its message channel, repeat (spec
// §4.1 "net thread", §5 "reactor loop").
type Worker struct {
	index  uint32
	ep     *Epoll
	timers *TimerWheel
	ch     *Channel
	waitMS int

	conns map[int]ConnHandle
	reg   *Registry[ConnHandle]
	byFd  map[int]uint32
	pool  *BufferPool

	plugins []Plugin

	onAccepted func(fd int)
	onMessage  func(Message)

	stop chan struct{}
	done chan struct{}
}

// NewWorker builds a worker around its own epoll instance, message channel
// and buffer pool (poolCapacity<=0 uses DefaultBufferPoolCapacity, spec §6
// "string pool capacity"). onAccepted is invoked when the listen thread
// hands off a fresh fd (MsgAcceptedConn); onMessage handles every other
// message kind.
func NewWorker(index uint32, epollSize, waitMS, poolCapacity int, onAccepted func(fd int), onMessage func(Message)) (*Worker, error) {
	ep, err := NewEpoll(epollSize)
	if err != nil {
		return nil, err
	}
	ch, err := NewChannel()
	if err != nil {
		_ = ep.Close()
		return nil, err
	}
	if err := ep.Add(ch.ReadFd(), EventReadable); err != nil {
		_ = ep.Close()
		_ = ch.Close()
		return nil, err
	}
	return &Worker{
		index:      index,
		ep:         ep,
		timers:     NewTimerWheel(),
		ch:         ch,
		waitMS:     waitMS,
		conns:      make(map[int]ConnHandle),
		reg:        NewRegistry[ConnHandle](index),
		byFd:       make(map[int]uint32),
		pool:       NewBufferPool(poolCapacity, 0),
		onAccepted: onAccepted,
		onMessage:  onMessage,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (w *Worker) Timers() *TimerWheel { return w.timers }
func (w *Worker) Channel() *Channel   { return w.ch }
func (w *Worker) Index() uint32       { return w.index }
func (w *Worker) Pool() *BufferPool   { return w.pool }

// SetOnAccepted wires the accepted-fd callback after construction, since
// the callback itself typically closes over the Worker it will run on.
func (w *Worker) SetOnAccepted(fn func(fd int)) { w.onAccepted = fn }

// Track registers a connection handle so the worker dispatches its
// readiness events and includes it in ProduceSend polling. The handle is
// also added to the worker's Registry, which is the "object container" of
// spec §2/§4.8: it is the source of truth for which connections this
// thread owns, keyed by the stable (thread_index, local_id) pair, while
// the fd-keyed conns map exists only because epoll readiness reports by
// fd.
func (w *Worker) Track(h ConnHandle, interest EventMask) (ConnID, error) {
	if err := w.ep.Add(h.Fd(), interest); err != nil {
		return ConnID{}, err
	}
	id := w.reg.Add(h)
	w.conns[h.Fd()] = h
	w.byFd[h.Fd()] = id.LocalID
	return id, nil
}

func (w *Worker) Retrack(h ConnHandle, interest EventMask) error {
	return w.ep.Modify(h.Fd(), interest)
}

// Lookup finds a tracked connection by its stable local id (spec §3
// "Connection id"), for cross-thread message delivery addressed by id
// rather than by fd.
func (w *Worker) Lookup(localID uint32) (ConnHandle, bool) {
	return w.reg.Get(localID)
}

// Len reports how many connections this worker currently owns.
func (w *Worker) Len() int { return w.reg.Len() }

func (w *Worker) Untrack(fd int) {
	if localID, ok := w.byFd[fd]; ok {
		w.reg.Remove(localID)
		delete(w.byFd, fd)
	}
	_ = w.ep.Remove(fd)
	delete(w.conns, fd)
}

// Run is the worker's goroutine body: it returns only once Stop is called.
func (w *Worker) Run() {
	defer close(w.done)
	l := log.ForWorker(int(w.index))
	for _, p := range w.plugins {
		p.OnInit(w.index)
	}
	defer func() {
		for _, p := range w.plugins {
			p.OnStop()
		}
	}()
	events := make([]Event, 0, 128)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		var err error
		events, err = w.ep.Wait(w.waitMS, events)
		if err != nil {
			l.Error("epoll wait failed", "error", err)
			continue
		}

		for _, ev := range events {
			if ev.Fd == w.ch.ReadFd() {
				w.drainMessages()
				continue
			}
			h, ok := w.conns[ev.Fd]
			if !ok {
				continue
			}

			var fatal error
			if ev.Mask.Hangup() {
				fatal = errs.New(errs.KindPeerClose, "hangup", "epoll reported error/hangup")
			}
			if fatal == nil && ev.Mask.Readable() {
				if err := h.OnReadable(); err != nil {
					fatal = err
				}
			}
			if fatal == nil && ev.Mask.Writable() {
				if err := h.OnWritable(); err != nil {
					fatal = err
				}
			}

			if fatal != nil {
				if errs.Fatal(fatal) {
					l.Debug("connection destroyed", "fd", ev.Fd, "error", fatal)
					w.Untrack(ev.Fd)
					_ = h.Teardown()
				}
				continue
			}

			if h.WantsWrite() {
				_ = w.Retrack(h, EventReadable|EventWritable)
			} else {
				_ = w.Retrack(h, EventReadable)
			}
		}

		w.timers.FireDue(time.Now())

		for _, p := range w.plugins {
			p.OnTick()
		}
	}
}

func (w *Worker) drainMessages() {
	for _, m := range w.ch.Drain() {
		if m.Kind == MsgAcceptedConn && w.onAccepted != nil {
			w.onAccepted(m.Fd)
			continue
		}
		if w.onMessage != nil {
			w.onMessage(m)
		}
	}
}

// Stop signals Run to exit on its next loop iteration and waits for it.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
	_ = w.ep.Close()
	_ = w.ch.Close()
}
