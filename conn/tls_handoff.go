/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package conn

import (
	"crypto/tls"
	"time"

	"github.com/nabbar/reactord/protocol"
	libsck "github.com/nabbar/reactord/socket"
)

// TLSSource is the explicit capability a detector-matched Processor can
// advertise instead of the connection pipeline doing an RTTI-style probe
// for "is this the TLS entry" (spec §9 "RTTI-based dynamic_cast ...
// modeled as an explicit method on the processor trait"). Only the
// built-in TLS protocol.Entry's Create returns something satisfying this.
type TLSSource interface {
	protocol.Processor

	// TLSHandoffConfig returns what the connection pipeline needs to
	// install a TLS codec in place of the current one and arm a fresh
	// over-TLS Detector for the decrypted bytes that follow (spec §4.4
	// "after a TLS probe wins ... the detector itself is replaced by a
	// new over-TLS detector").
	TLSHandoffConfig() (cfg *tls.Config, next []protocol.Entry, maxBytes int, timeout time.Duration)
}

// TLSHandoff is a one-shot marker Processor: the detector's matched Entry
// for "tls" constructs one of these instead of a real protocol handler.
// It is never actually driven through OnRecv — the connection pipeline
// recognizes TLSSource at swap time and replaces it immediately with the
// TLS codec plus a new over-TLS DetectorProcessor, so TLSHandoff's own
// OnRecv/ProduceSend/OnTimeout bodies are unreachable in practice.
type TLSHandoff struct {
	cfg      *tls.Config
	next     []protocol.Entry
	maxBytes int
	timeout  time.Duration
}

// NewTLSHandoff builds the TLS entry's Create() result: cfg fronts the
// handshake, next is the protocol.Entry list the post-handshake detector
// re-runs (typically h2/websocket/http1, never "tls" or "binary" again).
func NewTLSHandoff(cfg *tls.Config, next []protocol.Entry, maxBytes int, timeout time.Duration) *TLSHandoff {
	return &TLSHandoff{cfg: cfg, next: next, maxBytes: maxBytes, timeout: timeout}
}

func (t *TLSHandoff) Name() string     { return "tls-handoff" }
func (t *TLSHandoff) WantPeek() int    { return 0 }
func (t *TLSHandoff) OnTimeout(libsck.Context) error { return nil }
func (t *TLSHandoff) ProduceSend(libsck.Context) (bool, error) { return false, nil }
func (t *TLSHandoff) OnRecv(libsck.Context, []byte) (int, error) { return 0, nil }

func (t *TLSHandoff) TLSHandoffConfig() (*tls.Config, []protocol.Entry, int, time.Duration) {
	return t.cfg, t.next, t.maxBytes, t.timeout
}
