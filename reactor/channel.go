/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Message is a cross-thread notification: the listen thread hands off
// accepted fds to a worker, and workers can post to each other, through
// exactly this shape (spec §4.8 "inter-thread message bus").
type Message struct {
	// Kind distinguishes the payload a worker's dispatch loop switches on.
	Kind int
	// Fd is populated for accept-handoff messages.
	Fd int
	// Data carries any other payload (protocol entries, shutdown signals).
	Data any
}

const (
	MsgAcceptedConn = iota
	MsgShutdown
	MsgUser
)

// Channel is a dual-queue message bus: producers append to the "idle"
// queue under a mutex; the single consuming worker swaps idle and active
// under the same mutex and then drains active lock-free. A byte written to
// a socketpair wakes the consumer's EpollWait out of a blocking wait (spec
// §4.8 "socketpair wakeup").
type Channel struct {
	mu     sync.Mutex
	idle   []Message
	active []Message
	r, w   int
}

// NewChannel creates a channel whose wakeup fd pair is r (readable by the
// worker, registered with its epoll instance) and w (written to by
// producers).
func NewChannel() (*Channel, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &Channel{r: fds[0], w: fds[1]}, nil
}

// ReadFd is the fd the owning worker registers with its Epoll for
// readability.
func (c *Channel) ReadFd() int { return c.r }

// Close releases both ends of the wakeup socketpair.
func (c *Channel) Close() error {
	_ = unix.Close(c.r)
	return unix.Close(c.w)
}

// Post appends msg to the idle queue and wakes the consumer. Safe to call
// from any goroutine.
func (c *Channel) Post(msg Message) error {
	c.mu.Lock()
	c.idle = append(c.idle, msg)
	c.mu.Unlock()
	_, err := unix.Write(c.w, []byte{0})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Drain must only be called from the owning worker goroutine. It drains
// the wakeup byte(s), swaps the idle queue into active, and returns the
// pending messages in FIFO order.
func (c *Channel) Drain() []Message {
	buf := make([]byte, 64)
	for {
		_, err := unix.Read(c.r, buf)
		if err != nil {
			break
		}
	}

	c.mu.Lock()
	c.idle, c.active = c.active[:0], c.idle
	c.mu.Unlock()

	return c.active
}
