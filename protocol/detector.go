/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package protocol

import (
	"sort"
	"time"

	"github.com/nabbar/reactord/errs"
)

// DefaultMaxBytes bounds the sniff buffer (spec §4.4, default 4 KiB).
const DefaultMaxBytes = 4 * 1024

// DefaultTimeout is the detection deadline (spec §4.4, default 5s).
const DefaultTimeout = 5 * time.Second

// Detector holds an ordered probe list and the accumulating sniff buffer
// for one connection's detection pass. A connection that has already
// picked a protocol over TLS gets exactly one further Detector instance
// for the decrypted bytes (spec §4.4 "over_tls re-detection").
type Detector struct {
	entries  []Entry
	maxBytes int
	deadline time.Time
	sniff    []byte
	overTLS  bool
}

// NewDetector sorts entries by ascending Priority once, up front.
func NewDetector(entries []Entry, maxBytes int, timeout time.Duration, now time.Time) *Detector {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Detector{
		entries:  sorted,
		maxBytes: maxBytes,
		deadline: now.Add(timeout),
	}
}

// OverTLS marks this detector as running over a decrypted TLS stream
// (changes nothing about the algorithm; it's metadata for logging and for
// the caller to tell whether a second pass already happened).
func (d *Detector) OverTLS() bool { return d.overTLS }

func (d *Detector) SetOverTLS(v bool) { d.overTLS = v }

// Feed appends newly-received bytes to the sniff buffer (capped at
// maxBytes) and walks the probe list in priority order. It returns the
// matched Entry once one fires; a Resource error once the deadline has
// passed or the sniff cap is reached; a Protocol error when no probe can
// still match.
func (d *Detector) Feed(now time.Time, data []byte) (*Entry, error) {
	if now.After(d.deadline) {
		return nil, errs.New(errs.KindResource, errs.CodeDetectTimeout, "protocol detection timed out")
	}

	room := d.maxBytes - len(d.sniff)
	if room <= 0 {
		return nil, errs.New(errs.KindResource, errs.CodeDetectOverflow, "protocol detection sniff buffer exceeded")
	}
	if len(data) > room {
		data = data[:room]
	}
	d.sniff = append(d.sniff, data...)

	anyWantsMore := false
	for i := range d.entries {
		matched, needMore := d.entries[i].Detect(d.sniff)
		if matched {
			return &d.entries[i], nil
		}
		if needMore {
			anyWantsMore = true
		}
	}

	if !anyWantsMore && len(d.sniff) > 0 {
		return nil, errs.New(errs.KindProtocol, errs.CodeProtocolViolation, "no registered protocol matched the connection preface")
	}
	if len(d.sniff) >= d.maxBytes {
		return nil, errs.New(errs.KindResource, errs.CodeDetectOverflow, "protocol detection sniff buffer exceeded")
	}
	return nil, nil
}

// Sniff returns the bytes accumulated so far (read-only view; the matched
// processor receives these same bytes via OnRecv on its first call so
// nothing is lost across the detect->process handoff).
func (d *Detector) Sniff() []byte { return d.sniff }
