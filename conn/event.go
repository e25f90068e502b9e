/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package conn

import (
	"time"

	"github.com/nabbar/reactord/protocol"
)

// OnReadable is pull_recv (spec §4.3): drain the transport into the
// inbound buffer, then feed the active Processor until it stops making
// progress, handling the one-shot detector-to-real-protocol swap (and the
// TLS handoff nested inside it) inline so the reactor never has to know
// either special case exists.
func (c *Connection) OnReadable() error {
	for {
		n, err := c.PullRecv()
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	for {
		p := c.Processor()
		if p == nil {
			return nil
		}
		if len(c.recvBuf) == 0 {
			break
		}

		consumed, err := p.OnRecv(c, c.recvBuf)
		if err != nil {
			return err
		}
		c.Consume(consumed)

		if dp, ok := p.(*protocol.DetectorProcessor); ok {
			if matched, sniff, swapped := dp.TakeSwap(); swapped {
				if err := c.handoff(matched, sniff); err != nil {
					return err
				}
				continue
			}
		}

		if consumed == 0 {
			break
		}
	}

	c.Touch(time.Now())
	return c.pumpProcessorAndSend()
}

// handoff installs the Processor a just-completed detection pass matched,
// special-casing the TLS entry (which needs the connection's Codec, not
// just its byte stream, so it cannot be a normal Processor swap) before
// replaying the sniffed bytes into whatever processor ends up active
// (spec §4.4 "hand the sniff buffer to the new processor as if those
// bytes had just arrived").
func (c *Connection) handoff(matched *protocol.Entry, sniff []byte) error {
	created := matched.Create()

	if ts, ok := created.(TLSSource); ok {
		cfg, next, maxBytes, timeout := ts.TLSHandoffConfig()
		tc := NewTLSServerCodec(c.codec, cfg)
		tc.Seed(sniff)
		c.SetCodec(tc)
		det := protocol.NewDetector(next, maxBytes, timeout, time.Now())
		det.SetOverTLS(true)
		c.SetProcessor(protocol.NewDetectorProcessor(det))
		c.SetProtocolName("")
		return nil
	}

	c.SetProcessor(created)
	c.SetProtocolName(matched.Name)
	if len(sniff) == 0 {
		return nil
	}
	_, err := created.OnRecv(c, sniff)
	return err
}

// OnWritable is pump_send (spec §4.3): give the active processor a chance
// to produce more bytes before draining whatever the connection already
// has queued.
func (c *Connection) OnWritable() error {
	return c.pumpProcessorAndSend()
}

// pumpProcessorAndSend drains the active processor's ProduceSend into the
// connection's outbound buffers, then flushes them. It is the one place
// that turns "the processor built a reply" into "bytes went out on the
// wire" — both OnReadable (a request answered synchronously within the
// same readable event, e.g. h2/ws/binary replies) and OnWritable (the
// writable-interest path for whatever didn't fit, or TLS handshake bytes)
// go through it, so a reply is never stranded in p.out waiting for a
// writable event that WantsWrite never arms (spec §4.3 "pump_send").
func (c *Connection) pumpProcessorAndSend() error {
	if p := c.Processor(); p != nil {
		for i := 0; i < maxProduceSendPerPump; i++ {
			wrote, err := p.ProduceSend(c)
			if err != nil {
				return err
			}
			if !wrote {
				break
			}
		}
	}
	return c.PumpSend()
}

// maxProduceSendPerPump bounds how many times pumpProcessorAndSend asks the active
// processor for more bytes before returning to the reactor loop, so one
// connection with an endless backlog cannot starve its siblings.
const maxProduceSendPerPump = 16

// WantsWrite reports whether this connection currently wants writable
// interest armed: either it already has bytes queued, or its codec itself
// needs writability (mid-handshake TLS). The processor is not consulted.
func (c *Connection) WantsWrite() bool {
	if c.HasPendingSend() {
		return true
	}
	if c.codec.PollEventsHint().Writable() {
		return true
	}
	return false
}

// destroyProcessor is Teardown's "destroy processor" step (spec §7
// "destroy_and_erase"). The processor itself carries no explicit Close
// method (spec's variants never hold resources beyond what the connection
// already owns), so destroying it is simply dropping the last reference
// to it here.
func (c *Connection) destroyProcessor() {
	c.processor.Store(nil)
}
