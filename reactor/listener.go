/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/nabbar/reactord/log"
)

// maxAcceptPerEvent bounds how many connections the listen thread drains
// in one epoll-readable event before yielding back to the loop, so a
// connection storm on one listener cannot starve its workers' wakeups
// (spec §4.1 "accept up to 128/event").
const maxAcceptPerEvent = 128

// Listener runs the single accept loop for one bound, listening,
// non-blocking fd: level-triggered readiness (the fd is registered without
// EPOLLET, so accepts left after the per-event cap are reported again on
// the next wait), drain-to-EAGAIN, round-robin fanout of accepted fds to
// workers (spec §4.1 "listen thread").
type Listener struct {
	fd      int
	ep      *Epoll
	workers []*Worker
	next    int

	stop chan struct{}
	done chan struct{}
}

// NewListener takes an already bound, listening, non-blocking fd (see
// Bind), registers it with its own epoll instance and wires it to fan
// accepted connections out to workers round-robin.
func NewListener(fd int, epollSize int, workers []*Worker) (*Listener, error) {
	ep, err := NewEpoll(epollSize)
	if err != nil {
		return nil, err
	}
	if err := ep.Add(fd, EventReadable); err != nil {
		_ = ep.Close()
		return nil, err
	}
	return &Listener{
		fd:      fd,
		ep:      ep,
		workers: workers,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func (l *Listener) Run() {
	defer close(l.done)
	log := log.Root().Named("listener")
	events := make([]Event, 0, 8)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		var err error
		events, err = l.ep.Wait(200, events)
		if err != nil {
			log.Error("epoll wait failed", "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}

		l.drainAccepts(log)
	}
}

func (l *Listener) drainAccepts(logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}) {
	for i := 0; i < maxAcceptPerEvent; i++ {
		connFd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			logger.Warn("accept failed", "error", err)
			return
		}

		w := l.workers[l.next]
		l.next = (l.next + 1) % len(l.workers)

		if err := w.Channel().Post(Message{Kind: MsgAcceptedConn, Fd: connFd}); err != nil {
			logger.Debug("failed to hand off accepted connection", "error", err)
			_ = unix.Close(connFd)
		}
	}
}

func (l *Listener) Stop() {
	close(l.stop)
	<-l.done
	_ = l.ep.Close()
	_ = unix.Close(l.fd)
}
