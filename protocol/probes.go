/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package protocol

import (
	"bytes"
)

// H2Preface is the fixed HTTP/2 connection preface (RFC 9113 §3.4).
const H2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

var http1Methods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("DELETE "),
	[]byte("HEAD "), []byte("OPTIONS "), []byte("PATCH "), []byte("CONNECT "),
	[]byte("TRACE "),
}

// TLSProbe matches a TLS client hello by its first byte (0x16, handshake
// record) and a record-layer version in 0x0301..0x0304 (TLS 1.0 through
// 1.3's wire-compatible legacy version, spec §4.4 priority 0: TLS is
// checked before anything else since a TLS byte can otherwise be mistaken
// for nothing else meaningful).
func TLSProbe(sniff []byte) (matched bool, needMore bool) {
	if len(sniff) < 1 {
		return false, true
	}
	if sniff[0] != 0x16 {
		return false, false
	}
	if len(sniff) < 3 {
		return false, true
	}
	if sniff[1] != 0x03 {
		return false, false
	}
	return sniff[2] >= 0x01 && sniff[2] <= 0x04, false
}

// WebSocketProbe matches an HTTP/1.1 GET request carrying an
// "Upgrade: websocket" header. It is tried before the plain HTTP/1.x
// probe so a WS upgrade request is never swallowed by the generic HTTP
// handler (spec §4.4 priority ordering).
func WebSocketProbe(sniff []byte) (matched bool, needMore bool) {
	if !bytes.HasPrefix(sniff, []byte("GET ")) {
		if len(sniff) < 4 {
			return false, true
		}
		return false, false
	}
	end := bytes.Index(sniff, []byte("\r\n\r\n"))
	if end < 0 {
		return false, true
	}
	head := bytes.ToLower(sniff[:end])
	return bytes.Contains(head, []byte("upgrade: websocket")), false
}

// HTTP2Probe matches the fixed connection preface.
func HTTP2Probe(sniff []byte) (matched bool, needMore bool) {
	n := len(H2Preface)
	if len(sniff) >= n {
		return bytes.Equal(sniff[:n], []byte(H2Preface)), false
	}
	return false, bytes.HasPrefix([]byte(H2Preface), sniff)
}

// HTTP1Probe matches any of the standard HTTP/1.x request methods
// followed by a space.
func HTTP1Probe(sniff []byte) (matched bool, needMore bool) {
	for _, m := range http1Methods {
		if bytes.HasPrefix(sniff, m) {
			return true, false
		}
		if len(sniff) < len(m) && bytes.HasPrefix(m, sniff) {
			needMore = true
		}
	}
	return false, needMore
}

// BinaryMagicProbe builds a probe that matches a connection beginning with
// the configured magic prefix (spec §4.4 "configurable binary magic").
func BinaryMagicProbe(magic []byte) DetectFunc {
	return func(sniff []byte) (matched bool, needMore bool) {
		if len(magic) == 0 {
			return false, false
		}
		if len(sniff) < len(magic) {
			return false, bytes.HasPrefix(magic, sniff)
		}
		return bytes.Equal(sniff[:len(magic)], magic), false
	}
}
