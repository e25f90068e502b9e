/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package conn is the connection pipeline: a Connection owns its fd, its
// byte-level Codec (plaintext or TLS), its buffers, and the single active
// Processor it hot-swaps without ever touching itself after the swap
// (spec §3, §4.3).
package conn

import (
	"github.com/nabbar/reactord/reactor"
)

// Codec is the byte-level transport underneath a connection's Processor:
// plaintext reads/writes the raw fd, TLS interleaves a non-blocking
// handshake with application data (spec §4.6).
type Codec interface {
	// Recv reads decoded application bytes into p, returning (0, nil) when
	// the underlying transport would block.
	Recv(p []byte) (n int, err error)

	// Send writes encoded application bytes, returning (0, nil) when the
	// underlying transport would block.
	Send(p []byte) (n int, err error)

	// PollEventsHint reports which epoll interest bits this codec
	// currently needs (a mid-handshake TLS codec may need EventWritable
	// even though the caller has nothing of its own queued to send).
	PollEventsHint() reactor.EventMask

	// HandshakeComplete reports whether any transport-level handshake
	// (TLS) has finished; always true for plaintext.
	HandshakeComplete() bool

	// NegotiatedProtocol reports the ALPN value chosen during a TLS
	// handshake, or "" for plaintext / no ALPN.
	NegotiatedProtocol() string

	Close() error
}
