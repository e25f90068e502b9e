/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package protocol is the pluggable processor contract and the sniffing
// detector that picks one for a freshly-accepted connection (spec §4.3,
// §4.4).
package protocol

import (
	libsck "github.com/nabbar/reactord/socket"
)

// Processor is the per-connection behavior a protocol plugs in. Exactly
// one Processor is active for a connection at a time; swapping it (the
// detector's handoff, the TLS handoff) must happen between calls, never
// from inside one (spec §3 "do-not-touch-self").
type Processor interface {
	// Name identifies the protocol for logging/metrics.
	Name() string

	// OnRecv is called with newly-available inbound bytes; it must consume
	// from the front of data and returns the number of bytes it consumed
	// (the rest stays buffered for the next call).
	OnRecv(ctx libsck.Context, data []byte) (consumed int, err error)

	// ProduceSend is called whenever the connection has spare outbound
	// capacity. It returns true if it wrote anything.
	ProduceSend(ctx libsck.Context) (wrote bool, err error)

	// OnTimeout runs when a processor-scheduled timer fires.
	OnTimeout(ctx libsck.Context) error

	// WantPeek reports how many bytes of lookahead, if any, this processor
	// needs before it can make progress (0 means none).
	WantPeek() int
}

// DetectFunc inspects up to len(sniff) bytes (never more than the
// detector's configured cap) and reports whether this protocol matches.
// matched=false,needMore=true means "not yet enough data"; a probe gets re-invoked as
// more bytes arrive up to the detector's byte/time budget.
type DetectFunc func(sniff []byte) (matched bool, needMore bool)

// CreateFunc builds a fresh Processor instance for a connection that
// matched this entry's DetectFunc.
type CreateFunc func() Processor

// Entry registers one protocol with the detector: a name, a priority
// (lower runs first), and the detect/create pair (spec §4.4 "ordered
// probe list").
type Entry struct {
	Name     string
	Priority int
	Detect   DetectFunc
	Create   CreateFunc
}
