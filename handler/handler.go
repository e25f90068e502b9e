/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package handler is the application-facing contract (spec §4.7's Level 1
// raw callbacks and Level 2 structured request/response/frame views).
package handler

import (
	libsck "github.com/nabbar/reactord/socket"
)

// ConnectionInfo is the read-only view of a connection handed to Level 2
// callbacks.
type ConnectionInfo interface {
	Protocol() string
	RemoteAddr() string
	ThreadIndex() uint32
	LocalID() uint32
}

// Level1 is the raw-socket handler set: each callback receives a borrowed
// socket.Context and is free to read/write directly. No processor or
// server component in this module invokes these callbacks; the built-in
// processors call Level2 handlers only.
type Level1 struct {
	// OnConnect is the callback for a connection whose protocol has been
	// detected, before the first byte reaches the chosen processor.
	OnConnect func(c libsck.Context)
	// OnDisconnect is the callback for a connection that is fully torn down.
	OnDisconnect func(c libsck.Context)
	// OnHTTP handles a framed HTTP/1.1 or HTTP/2 request at the raw level.
	OnHTTP func(c libsck.Context)
	// OnWS handles a single WebSocket frame at the raw level.
	OnWS func(c libsck.Context)
	// OnBinary handles a single length-prefixed binary message at the raw level.
	OnBinary func(c libsck.Context)
	// HandleMsg handles an application-posted cross-thread Message.
	HandleMsg func(c libsck.Context, msg any)
	// HandleTimeout handles a processor-scheduled timer firing.
	HandleTimeout func(c libsck.Context)
}

// Request is the structured view of one HTTP request (spec §4.7 Level 2).
type Request struct {
	Method  string
	Path    string
	Query   string
	Proto   string
	Headers map[string][]string
	Body    []byte
	StreamID uint32
}

// Response is what an HTTP handler produces. The processor that invoked the
// handler encodes and queues it as soon as the handler returns; there is
// no deferred or asynchronous completion of a response.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// Frame is a single WebSocket message (spec §4.7).
type Frame struct {
	Opcode  byte
	Payload []byte
	Final   bool
}

// BinaryRequest/BinaryResponse are the length-prefixed binary protocol's
// structured views.
type BinaryRequest struct {
	Payload []byte
}

type BinaryResponse struct {
	Payload []byte
}

// Level2 is the structured handler set, independent of Level1: handlers return
// values instead of writing to the wire directly, and the processor that
// invokes them takes care of framing/encoding the reply.
type Level2 struct {
	OnHTTPRequest   func(info ConnectionInfo, req Request) Response
	OnWSFrame       func(info ConnectionInfo, f Frame) *Frame
	OnBinaryMessage func(info ConnectionInfo, req BinaryRequest) BinaryResponse
}
