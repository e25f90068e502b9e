/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errs classifies every failure the reactor can observe into the
// six kinds spec'd for error propagation: a protocol violation never gets
// confused with a resource cap, and the event loop's destruction path can
// decide GOAWAY-vs-fatal-close from the kind alone.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags an error with the handling policy the event loop applies to it.
type Kind uint8

const (
	// KindTransient is not an error: would-block, re-arm interest and retry.
	KindTransient Kind = iota
	// KindPeerClose is an orderly close: on_disconnect, then destroy.
	KindPeerClose
	// KindProtocol is a framing/header violation: GOAWAY or RST_STREAM, or
	// fatal-to-connection for protocols with no such control frame.
	KindProtocol
	// KindResource is a cap violation: fatal to the connection.
	KindResource
	// KindHandler is a fatal condition signalled by user code.
	KindHandler
	// KindConfiguration is fatal to the process, startup only.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPeerClose:
		return "peer-close"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindHandler:
		return "handler"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a coded, kind-tagged error with an optional wrapped cause.
type Error struct {
	kind  Kind
	code  string
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.kind, e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.kind, e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the handling-policy tag of this error.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the short machine-readable identifier (e.g. "detect-timeout").
func (e *Error) Code() string { return e.code }

// New builds a kind-tagged error with no wrapped cause.
func New(k Kind, code, msg string) *Error {
	return &Error{kind: k, code: code, msg: msg}
}

// Wrap builds a kind-tagged error wrapping cause. If cause is nil, Wrap
// returns nil so call sites can write `if e := errs.Wrap(...); e != nil`.
func Wrap(k Kind, code, msg string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{kind: k, code: code, msg: msg, cause: cause}
}

// Is reports whether the first *Error in err's chain carries the given
// Kind; a deeper *Error in the chain is not consulted.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == k
	}
	return false
}

// Fatal reports whether err's kind tears down the connection (everything
// except the non-error transient case).
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind != KindTransient
	}
	// an untagged error reaching the event loop boundary is treated as
	// a protocol-level fatal: the source of truth must always classify.
	return true
}

// Named detect/protocol error codes shared across packages.
const (
	CodeRecvOverflow       = "recv-overflow"
	CodeDetectOverflow     = "detect-overflow"
	CodeDetectTimeout      = "detect-timeout"
	CodeDetectHandoffFail  = "detect-handoff-failed"
	CodeProtocolViolation  = "protocol-violation"
	CodeStreamReset        = "stream-reset"
	CodeBadPreface         = "bad-preface"
	CodeFrameSize          = "frame-size"
	CodeHandlerPanic       = "handler-panic"
	CodeInvalidConfig      = "invalid-config"
)
