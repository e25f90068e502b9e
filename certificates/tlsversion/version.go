/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package tlsversion wraps crypto/tls's protocol version constants with
// parsing, matching the teacher's certificates/tlsversion package.
package tlsversion

import (
	"crypto/tls"
	"strings"
)

type Version uint16

const (
	Unknown Version = 0
	TLS10   Version = Version(tls.VersionTLS10)
	TLS11   Version = Version(tls.VersionTLS11)
	TLS12   Version = Version(tls.VersionTLS12)
	TLS13   Version = Version(tls.VersionTLS13)
)

func (v Version) String() string {
	switch v {
	case TLS10:
		return "1.0"
	case TLS11:
		return "1.1"
	case TLS12:
		return "1.2"
	case TLS13:
		return "1.3"
	default:
		return "unknown"
	}
}

// Parse accepts "1.0".."1.3", "tls10".."tls13" (case-insensitive).
func Parse(s string) Version {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "1.0", "10":
		return TLS10
	case "1.1", "11":
		return TLS11
	case "1.2", "12":
		return TLS12
	case "1.3", "13":
		return TLS13
	default:
		return Unknown
	}
}
