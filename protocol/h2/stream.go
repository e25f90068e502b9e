/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package h2

import (
	"bytes"

	"github.com/nabbar/reactord/protocol/hpack"
)

// StreamStateKind is the RFC 9113 §5.1 state a stream occupies.
type StreamStateKind uint8

const (
	StreamIdle StreamStateKind = iota
	StreamOpen
	StreamHalfClosedRemote
	StreamClosed
)

// stream holds one HTTP/2 request/response exchange's accumulated state.
type stream struct {
	id    uint32
	state StreamStateKind

	method    string
	path      string
	authority string
	headers   map[string]string

	body bytes.Buffer

	sendWindow int32
	outBody    []byte
	outOff     int

	seenMethod bool
	seenPath   bool
}

func newStream(id uint32, initialWindow int32) *stream {
	return &stream{id: id, state: StreamIdle, sendWindow: initialWindow, headers: map[string]string{}}
}

// forbiddenHeaders are connection-specific fields RFC 9113 §8.2.2 bans
// from an HTTP/2 header block.
var forbiddenHeaders = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
}

func isPseudo(name string) bool { return len(name) > 0 && name[0] == ':' }

// applyHeaders folds decoded HPACK fields into the stream, validating
// pseudo/regular ordering and the forbidden-header set. It returns
// reset=true, with the ErrorCode to send, if the stream must be reset
// (spec §4.5 stream-level protocol errors).
func (s *stream) applyHeaders(fields []hpack.HeaderField) (reset bool, ec ErrorCode) {
	seenRegular := false
	for _, f := range fields {
		pseudo := isPseudo(f.Name)
		if !pseudo {
			seenRegular = true
			if forbiddenHeaders[f.Name] {
				return true, ErrProtocol
			}
			for _, c := range f.Name {
				if c >= 'A' && c <= 'Z' {
					return true, ErrProtocol
				}
			}
		}
		if pseudo && seenRegular {
			return true, ErrProtocol
		}
		switch f.Name {
		case ":method":
			if s.seenMethod {
				return true, ErrProtocol
			}
			s.method, s.seenMethod = f.Value, true
		case ":path":
			if s.seenPath {
				return true, ErrProtocol
			}
			s.path, s.seenPath = f.Value, true
		case ":authority":
			s.authority = f.Value
		default:
			if !pseudo {
				s.headers[f.Name] = f.Value
			}
		}
	}

	if s.method != "" {
		if equalFoldASCII(s.method, "connect") {
			if s.path != "" || s.authority == "" {
				return true, ErrProtocol
			}
		} else if s.path == "" {
			return true, ErrProtocol
		}
	}
	return false, ErrNoError
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
