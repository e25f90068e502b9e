/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package reactor is the event-loop core: one epoll instance per worker
// thread, a timer wheel for per-connection deadlines, a dual-queue bus for
// cross-thread messages, and the listen/worker goroutines that tie them
// together (spec §4.1, §4.2, §4.8, §5).
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epoll size bounds (spec §4.1).
const (
	minEpollSize = 256
	maxEpollSize = 65536
	minWaitMS    = 0
	maxWaitMS    = 1000
)

// EventMask is the subset of epoll readiness bits this package surfaces to
// callers; it collapses EPOLLIN/EPOLLOUT/EPOLLRDHUP/EPOLLHUP/EPOLLERR into
// one value per fd per wait.
type EventMask uint32

const (
	EventReadable EventMask = 1 << iota
	EventWritable
	EventHangup
	EventError
)

func (m EventMask) Readable() bool { return m&EventReadable != 0 }
func (m EventMask) Writable() bool { return m&EventWritable != 0 }
func (m EventMask) Hangup() bool   { return m&(EventHangup|EventError) != 0 }

// Event is one fd's readiness report from a single EpollWait call.
type Event struct {
	Fd   int
	Mask EventMask
}

// Epoll wraps one epoll(7) instance: a single thread owns it and is the
// only goroutine ever allowed to call Wait on it.
type Epoll struct {
	fd   int
	size int
}

// ClampSize enforces the [256, 65536] bound spec §4.1 requires.
func ClampSize(size int) int {
	if size < minEpollSize {
		return minEpollSize
	}
	if size > maxEpollSize {
		return maxEpollSize
	}
	return size
}

// ClampWaitMS enforces the [0, 1000] bound spec §4.1 requires.
func ClampWaitMS(ms int) int {
	if ms < minWaitMS {
		return minWaitMS
	}
	if ms > maxWaitMS {
		return maxWaitMS
	}
	return ms
}

// NewEpoll creates an epoll instance sized for at most size concurrently
// interesting fds (size is clamped, not validated-and-rejected: a
// misconfigured size degrades rather than fails startup).
func NewEpoll(size int) (*Epoll, error) {
	size = ClampSize(size)
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Epoll{fd: fd, size: size}, nil
}

func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}

// Add registers fd for the given interest set. Idempotent in the sense
// that callers never need to special-case "already added": a second Add
// for the same fd is a programmer error by construction of this package's
// callers (one registration per accepted connection), not a runtime state
// this method tolerates silently.
func (e *Epoll) Add(fd int, interest EventMask) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, eventsFor(fd, interest))
}

// Modify changes the interest set for an already-registered fd (used when
// a connection gains or drops interest in writability).
func (e *Epoll) Modify(fd int, interest EventMask) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, eventsFor(fd, interest))
}

// Remove drops fd from this epoll instance. ENOENT is swallowed: removing
// an fd that is already gone (closed out from under us) is not an error
// the caller needs to react to.
func (e *Epoll) Remove(fd int) error {
	err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func eventsFor(fd int, interest EventMask) *unix.EpollEvent {
	var bits uint32 = unix.EPOLLRDHUP
	if interest.Readable() {
		bits |= unix.EPOLLIN
	}
	if interest.Writable() {
		bits |= unix.EPOLLOUT
	}
	return &unix.EpollEvent{Events: bits, Fd: int32(fd)}
}

// Wait blocks for at most waitMS milliseconds (clamped) and appends ready
// events into out, reusing its backing array across calls.
func (e *Epoll) Wait(waitMS int, out []Event) ([]Event, error) {
	raw := make([]unix.EpollEvent, e.size)
	n, err := unix.EpollWait(e.fd, raw, ClampWaitMS(waitMS))
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return out, fmt.Errorf("epoll_wait: %w", err)
	}
	out = out[:0]
	for i := 0; i < n; i++ {
		var m EventMask
		if raw[i].Events&unix.EPOLLIN != 0 {
			m |= EventReadable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			m |= EventWritable
		}
		if raw[i].Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
			m |= EventHangup
		}
		if raw[i].Events&unix.EPOLLERR != 0 {
			m |= EventError
		}
		out = append(out, Event{Fd: int(raw[i].Fd), Mask: m})
	}
	return out, nil
}
