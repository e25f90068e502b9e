/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package app wires the connection pipeline, protocol detector and
// protocol processors into one server facade (spec §4.9): bind, spin up
// the worker/listener threads, hand each accepted fd a Connection seeded
// with a detector, and expose a Runner lifecycle.
package app

import (
	"crypto/tls"
	"time"

	"github.com/nabbar/reactord/conn"
	"github.com/nabbar/reactord/handler"
	"github.com/nabbar/reactord/protocol"
	"github.com/nabbar/reactord/protocol/binary"
	"github.com/nabbar/reactord/protocol/h2"
	"github.com/nabbar/reactord/protocol/http1"
	"github.com/nabbar/reactord/protocol/ws"
)

// Factory builds the protocol.Entry table a listener detects against. It
// is the "ProtocolEntry factory" of spec §6: every built-in protocol gets
// an entry, and callers may register bespoke ones via Extra.
type Factory struct {
	Handler     handler.Level2
	BinaryMagic []byte
	Extra       []protocol.Entry
}

// entries returns the entry table for a plaintext (or post-handshake TLS)
// listener, ordered by priority: websocket probes bytes http1 would also
// accept (a GET request), so it runs first; h2 runs before http1 as well.
func (f Factory) entries() []protocol.Entry {
	out := []protocol.Entry{
		{Name: "websocket", Priority: 1, Detect: protocol.WebSocketProbe, Create: func() protocol.Processor {
			return ws.New(f.Handler)
		}},
		{Name: "h2", Priority: 2, Detect: protocol.HTTP2Probe, Create: func() protocol.Processor {
			return h2.New(f.Handler)
		}},
		{Name: "http1", Priority: 3, Detect: protocol.HTTP1Probe, Create: func() protocol.Processor {
			return http1.New(f.Handler)
		}},
	}
	if len(f.BinaryMagic) > 0 {
		magic := append([]byte(nil), f.BinaryMagic...)
		out = append(out, protocol.Entry{
			Name: "binary", Priority: 4, Detect: protocol.BinaryMagicProbe(magic),
			Create: func() protocol.Processor { return binary.New(f.Handler, 0) },
		})
	}
	out = append(out, f.Extra...)
	return out
}

// withTLS prepends a priority-0 "tls" entry whose Create returns a
// conn.TLSHandoff marker carrying the TLS config and the entry table the
// detector re-arms with once the handshake completes (spec §4.4 "TLS
// re-detection"; that table is base without its "binary" entry), ahead of base so a bare TLS ClientHello never falls
// through to one of the plaintext probes by accident.
func withTLS(cfg *tls.Config, base []protocol.Entry, maxBytes int, timeout time.Duration) []protocol.Entry {
	post := make([]protocol.Entry, 0, len(base))
	for _, e := range base {
		if e.Name != "binary" {
			post = append(post, e)
		}
	}
	return append([]protocol.Entry{
		{Name: "tls", Priority: 0, Detect: protocol.TLSProbe, Create: func() protocol.Processor {
			return conn.NewTLSHandoff(cfg, post, maxBytes, timeout)
		}},
	}, base...)
}
