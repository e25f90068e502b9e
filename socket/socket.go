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

// Package socket is the raw connection-facing contract every protocol
// processor and the binary-stream handler are built against: a Context
// that reads and writes bytes for exactly one connection's lifetime, the
// ConnState lifecycle it moves through, and a filter for the handful of
// errors that are not really errors (peer close, context cancellation).
package socket

import (
	"context"
	"errors"
	"io"
	"net"
)

// DefaultBufferSize is the size of the pooled scratch buffer PullRecv
// issues a single recv syscall into before appending to a connection's
// inbound buffer (spec §4.3).
const DefaultBufferSize = 32 * 1024

// EOL is the line terminator the binary-stream and HTTP/1.x line scanners
// split on.
const EOL = byte('\n')

// DefaultRecvCap is the inbound-buffer cap a connection enforces before
// failing with a resource error (spec §3, default 2 MiB).
const DefaultRecvCap = 2 * 1024 * 1024

// ConnState tags where in its lifecycle a connection currently is. The
// numeric order matches the sequence a single request/response traversal
// observes and is part of the stable public contract (tests assert on the
// literal values).
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

func (s ConnState) String() string {
	switch s {
	case ConnectionDial:
		return "dial"
	case ConnectionNew:
		return "new"
	case ConnectionRead:
		return "read"
	case ConnectionCloseRead:
		return "close-read"
	case ConnectionHandler:
		return "handler"
	case ConnectionWrite:
		return "write"
	case ConnectionCloseWrite:
		return "close-write"
	case ConnectionClose:
		return "close"
	default:
		return "unknown"
	}
}

// Reader is the read half of a connection's byte stream.
type Reader interface {
	io.Reader
}

// Writer is the write half of a connection's byte stream.
type Writer interface {
	io.Writer
}

// Context is handed to Level 1 handlers for the duration of one callback;
// it is a borrowed, non-owning view (spec §3 "Ownership") and must not be
// retained past the call that received it.
type Context interface {
	Reader
	Writer

	// Context carries the per-connection deadline/cancellation signal.
	Context() context.Context
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	ConnID() (threadIndex, localID uint32)

	// Close begins an orderly close of the connection; it schedules a
	// delay-close timer rather than tearing down the socket inline from
	// within the handler (spec §5 "Cancellation & timeouts").
	Close() error
}

// HandlerFunc is the Level 1 raw-socket handler: it receives a borrowed
// Context and may read/write freely, returning only once it is done with
// this message (it must never block on further network I/O itself).
type HandlerFunc func(c Context)

// ErrorFilter maps the handful of "not really an error" conditions a
// connection can observe (peer close, context cancellation, use of an
// already-closed socket) to nil so callers can treat them as orderly EOF
// rather than logging them as failures.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
