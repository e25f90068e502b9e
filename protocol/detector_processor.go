/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package protocol

import (
	"time"

	"github.com/nabbar/reactord/errs"
	libsck "github.com/nabbar/reactord/socket"
)

// DetectorProcessor adapts a Detector to the Processor trait so the
// connection pipeline can treat "still sniffing" exactly like any other
// protocol state, instead of special-casing it with a dynamic_cast the
// way the source does (spec §9 "RTTI-based dynamic_cast during hot
// path"). The one case the pipeline still must special-case explicitly is
// reading TakeSwap after a match, since constructing the replacement
// Processor is the caller's job (the new Processor may need things, like
// a raw Codec to wrap, that this package cannot see).
type DetectorProcessor struct {
	det     *Detector
	pending *Entry
}

// NewDetectorProcessor wraps an already-configured Detector.
func NewDetectorProcessor(d *Detector) *DetectorProcessor {
	return &DetectorProcessor{det: d}
}

func (p *DetectorProcessor) Name() string { return "detector" }

// WantPeek is always 0: this module's detector keeps a private side
// buffer instead of peeking the kernel socket buffer (spec §9 open
// question 1 resolved in favor of "don't peek at all").
func (p *DetectorProcessor) WantPeek() int { return 0 }

func (p *DetectorProcessor) ProduceSend(ctx libsck.Context) (bool, error) { return false, nil }

// OnTimeout fires when the detect-timeout timer elapses before any probe
// has matched (spec §4.4 "Deadline elapsed without match").
func (p *DetectorProcessor) OnTimeout(ctx libsck.Context) error {
	if p.pending != nil {
		return nil
	}
	return errs.New(errs.KindResource, errs.CodeDetectTimeout, "protocol detection timed out")
}

// OnRecv feeds data to the underlying Detector. Once a probe matches, the
// matched Entry is recorded for TakeSwap and every byte handed in is
// reported consumed: the detector owns its own accounting of what it has
// seen via its sniff buffer, so nothing is left for the caller to retry.
func (p *DetectorProcessor) OnRecv(ctx libsck.Context, data []byte) (int, error) {
	e, err := p.det.Feed(time.Now(), data)
	if err != nil {
		return 0, err
	}
	if e != nil {
		p.pending = e
	}
	return len(data), nil
}

// TakeSwap reports whether detection just completed. When ok is true, the
// caller must construct the matched Entry's Processor, install it on the
// connection, and replay sniff into it — and must not call back into this
// DetectorProcessor afterward (spec §3 "do-not-touch-self").
func (p *DetectorProcessor) TakeSwap() (matched *Entry, sniff []byte, ok bool) {
	if p.pending == nil {
		return nil, nil, false
	}
	return p.pending, p.det.Sniff(), true
}

// OverTLS reports whether this detector instance is the post-handshake
// re-detection pass (spec §4.4 "one re-detection pass after TLS
// handshake").
func (p *DetectorProcessor) OverTLS() bool { return p.det.OverTLS() }
