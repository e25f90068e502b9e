/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package curves wraps crypto/tls's elliptic-curve identifiers, matching
// the teacher's certificates/curves package.
package curves

import (
	"crypto/tls"
	"strings"
)

type Curve uint16

const (
	Unknown Curve = 0
	X25519  Curve = Curve(tls.X25519)
	P256    Curve = Curve(tls.CurveP256)
	P384    Curve = Curve(tls.CurveP384)
	P521    Curve = Curve(tls.CurveP521)
)

func (c Curve) String() string {
	switch c {
	case X25519:
		return "X25519"
	case P256:
		return "P256"
	case P384:
		return "P384"
	case P521:
		return "P521"
	default:
		return "unknown"
	}
}

func Parse(s string) Curve {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X25519":
		return X25519
	case "P256", "SECP256R1":
		return P256
	case "P384", "SECP384R1":
		return P384
	case "P521", "SECP521R1":
		return P521
	default:
		return Unknown
	}
}

// List converts a slice of Curve into tls.Config's CurveID slice, preserving
// caller-supplied preference order.
func List(cs []Curve) []tls.CurveID {
	out := make([]tls.CurveID, 0, len(cs))
	for _, c := range cs {
		if c != Unknown {
			out = append(out, tls.CurveID(c))
		}
	}
	return out
}
