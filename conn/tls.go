/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package conn

import (
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nabbar/reactord/reactor"
)

// TLSCodec fronts a plaintext Codec with a TLS handshake and record
// layer. crypto/tls's public API is synchronous, so TLSCodec bridges it
// to the reactor's non-blocking fd with an in-memory ciphertext buffer
// pair plus two small dedicated goroutines (handshake, then a read pump);
// Recv/Send themselves never block the worker thread, they only drain or
// fill buffers (spec §4.6 "non-blocking handshake interleaved with I/O").
type TLSCodec struct {
	raw Codec

	mu       sync.Mutex
	cipherIn bytes.Buffer
	cipherOut bytes.Buffer
	closed   bool

	appMu  sync.Mutex
	appIn  bytes.Buffer
	appErr error

	tc       *tls.Conn
	alpn     string
	handErr  error
	handDone chan struct{}
}

// NewTLSServerCodec starts a server-side TLS handshake bridge over raw.
func NewTLSServerCodec(raw Codec, cfg *tls.Config) *TLSCodec {
	c := newTLSCodec(raw)
	c.tc = tls.Server(shimConn{c}, cfg)
	go c.runHandshake()
	return c
}

// NewTLSClientCodec starts a client-side TLS handshake bridge over raw.
func NewTLSClientCodec(raw Codec, cfg *tls.Config) *TLSCodec {
	c := newTLSCodec(raw)
	c.tc = tls.Client(shimConn{c}, cfg)
	go c.runHandshake()
	return c
}

func newTLSCodec(raw Codec) *TLSCodec {
	return &TLSCodec{raw: raw, handDone: make(chan struct{})}
}

func (c *TLSCodec) runHandshake() {
	err := c.tc.Handshake()
	c.mu.Lock()
	c.handErr = err
	if err == nil {
		c.alpn = c.tc.ConnectionState().NegotiatedProtocol
	}
	c.mu.Unlock()
	close(c.handDone)
	if err == nil {
		go c.readLoop()
	}
}

// readLoop continuously decrypts application data into appIn; it is the
// only goroutine that ever calls tc.Read, so Recv itself never blocks.
func (c *TLSCodec) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		n, err := c.tc.Read(buf)
		if n > 0 {
			c.appMu.Lock()
			c.appIn.Write(buf[:n])
			c.appMu.Unlock()
		}
		if err != nil {
			c.appMu.Lock()
			c.appErr = err
			c.appMu.Unlock()
			return
		}
	}
}

// PumpRaw moves ciphertext between the underlying non-blocking transport
// and this codec's buffers. Connection.PullRecv calls this before Recv,
// and Connection.PumpSend after Send.
func (c *TLSCodec) PumpRaw() error {
	buf := make([]byte, 16*1024)
	for {
		n, err := c.raw.Recv(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		c.mu.Lock()
		c.cipherIn.Write(buf[:n])
		c.mu.Unlock()
	}

	c.mu.Lock()
	pending := append([]byte(nil), c.cipherOut.Bytes()...)
	c.mu.Unlock()
	if len(pending) > 0 {
		n, err := c.raw.Send(pending)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.cipherOut.Next(n)
		c.mu.Unlock()
	}
	return nil
}

// Seed injects raw bytes that were already pulled off the fd before this
// codec existed (the detector's sniff buffer) directly into the
// ciphertext-in buffer, as if they had just arrived over the wire. This
// is how the TLS handoff avoids peeking: the plaintext codec really does
// consume those bytes from the kernel, so the new TLS codec must be
// given them back explicitly rather than re-reading them from the fd
// (spec §9 open question 1).
func (c *TLSCodec) Seed(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	c.cipherIn.Write(b)
	c.mu.Unlock()
}

func (c *TLSCodec) HandshakeComplete() bool {
	select {
	case <-c.handDone:
		return c.handErr == nil
	default:
		return false
	}
}

func (c *TLSCodec) NegotiatedProtocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alpn
}

func (c *TLSCodec) Recv(p []byte) (int, error) {
	if !c.HandshakeComplete() {
		return 0, c.handErr
	}
	c.appMu.Lock()
	defer c.appMu.Unlock()
	if c.appIn.Len() == 0 {
		if c.appErr != nil && c.appErr != io.EOF {
			return 0, c.appErr
		}
		if c.appErr == io.EOF {
			return 0, io.EOF
		}
		return 0, nil
	}
	return c.appIn.Read(p)
}

func (c *TLSCodec) Send(p []byte) (int, error) {
	if !c.HandshakeComplete() {
		return 0, c.handErr
	}
	return c.tc.Write(p)
}

func (c *TLSCodec) PollEventsHint() reactor.EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := reactor.EventReadable
	if c.cipherOut.Len() > 0 {
		m |= reactor.EventWritable
	}
	return m
}

func (c *TLSCodec) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.tc != nil {
		_ = c.tc.Close()
	}
	return c.raw.Close()
}

// shimConn adapts TLSCodec's ciphertext buffers to net.Conn for the
// tls.Conn running in its dedicated goroutines. Write never blocks;
// Read blocks until ciphertext has arrived from the real transport or the
// codec is closed, which is why tls.Conn's handshake and read-pump always
// run off the worker thread.
type shimConn struct{ c *TLSCodec }

func (s shimConn) Read(p []byte) (int, error) {
	c := s.c
	for {
		c.mu.Lock()
		if c.cipherIn.Len() > 0 {
			n, err := c.cipherIn.Read(p)
			c.mu.Unlock()
			return n, err
		}
		if c.closed {
			c.mu.Unlock()
			return 0, io.EOF
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (s shimConn) Write(p []byte) (int, error) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.cipherOut.Write(p)
}

func (s shimConn) Close() error                       { return nil }
func (s shimConn) LocalAddr() net.Addr                { return nil }
func (s shimConn) RemoteAddr() net.Addr               { return nil }
func (s shimConn) SetDeadline(t time.Time) error      { return nil }
func (s shimConn) SetReadDeadline(t time.Time) error  { return nil }
func (s shimConn) SetWriteDeadline(t time.Time) error { return nil }
