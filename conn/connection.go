/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package conn

import (
	"context"
	"net"
	"time"

	libatm "github.com/nabbar/reactord/atomic"
	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/protocol"
	"github.com/nabbar/reactord/reactor"
	libsck "github.com/nabbar/reactord/socket"
)

// Connection is the single owner of one accepted fd for its lifetime: its
// Codec, its in/out byte buffers, and its hot-swappable Processor (spec
// §3, §4.3). It implements socket.Context so handlers and processors
// share one borrowed-view contract.
type Connection struct {
	id         reactor.ConnID
	fd         int
	remote     net.Addr
	local      net.Addr
	codec      Codec
	processor  libatm.Value[protocol.Processor]
	recvBuf    []byte
	recvCap    int
	sendBuf    []byte
	lastActive time.Time
	protoName  string
	pool       *reactor.BufferPool

	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps fd (already accepted, set non-blocking by the caller) with a
// plaintext codec and no processor; the caller assigns one with
// SetProcessor.
func New(id reactor.ConnID, fd int, remote, local net.Addr, recvCap int) *Connection {
	if recvCap <= 0 {
		recvCap = libsck.DefaultRecvCap
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:         id,
		fd:         fd,
		remote:     remote,
		local:      local,
		codec:      NewPlaintextCodec(fd),
		processor:  libatm.NewValue[protocol.Processor](),
		recvCap:    recvCap,
		lastActive: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	return c
}

func (c *Connection) Fd() int { return c.fd }

func (c *Connection) SetCodec(codec Codec) { c.codec = codec }
func (c *Connection) Codec() Codec         { return c.codec }

func (c *Connection) SetProcessor(p protocol.Processor) {
	c.processor.Store(p)
}

func (c *Connection) Processor() protocol.Processor {
	return c.processor.Load()
}

// SetConnID updates the connection's stable id once the owning worker has
// assigned one via Track; New is called before the id is known so fd
// accounting and container registration can happen in one step.
func (c *Connection) SetConnID(id reactor.ConnID) { c.id = id }

func (c *Connection) SetProtocolName(n string) { c.protoName = n }
func (c *Connection) ProtocolName() string     { return c.protoName }

// SetBufferPool wires the owning worker's reusable scratch-buffer pool
// (spec §6 "string pool capacity") into this connection's recv path.
func (c *Connection) SetBufferPool(p *reactor.BufferPool) { c.pool = p }

func (c *Connection) Touch(now time.Time) { c.lastActive = now }
func (c *Connection) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.lastActive)
}

// rawPumper is satisfied by codecs (TLSCodec) whose Recv/Send operate on
// an internal plaintext buffer rather than the fd directly; PullRecv drives
// the raw transport through it before Recv, PumpSend after Send.
type rawPumper interface {
	PumpRaw() error
}

// PullRecv issues one read into a scratch buffer taken from the worker's
// BufferPool and appends
// whatever came back into the inbound buffer, enforcing recvCap (spec §4.3
// "pull_recv", spec §3 resource error on overflow).
func (c *Connection) PullRecv() (n int, err error) {
	if rp, ok := c.codec.(rawPumper); ok {
		if err := rp.PumpRaw(); err != nil {
			return 0, err
		}
	}
	buf := c.pool.Get()
	defer c.pool.Put(buf)
	n, err = c.codec.Recv(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}
	if len(c.recvBuf)+n > c.recvCap {
		return n, errs.New(errs.KindResource, errs.CodeRecvOverflow, "connection inbound buffer exceeded its cap")
	}
	c.recvBuf = append(c.recvBuf, buf[:n]...)
	return n, nil
}

// Inbound returns the bytes accumulated since the last Consume.
func (c *Connection) Inbound() []byte { return c.recvBuf }

// Consume drops the first n bytes of the inbound buffer (a processor
// consumed them).
func (c *Connection) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.recvBuf) {
		c.recvBuf = c.recvBuf[:0]
		return
	}
	c.recvBuf = append(c.recvBuf[:0], c.recvBuf[n:]...)
}

// QueueSend appends p to the outbound buffer for PumpSend to drain.
func (c *Connection) QueueSend(p []byte) {
	c.sendBuf = append(c.sendBuf, p...)
}

// PumpSend writes as much of the outbound buffer as the transport accepts
// (spec §4.3 "pump_send").
func (c *Connection) PumpSend() error {
	for len(c.sendBuf) > 0 {
		n, err := c.codec.Send(c.sendBuf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		c.sendBuf = c.sendBuf[n:]
	}
	if rp, ok := c.codec.(rawPumper); ok {
		return rp.PumpRaw()
	}
	return nil
}

func (c *Connection) HasPendingSend() bool { return len(c.sendBuf) > 0 }

// --- socket.Context ---

func (c *Connection) Read(p []byte) (int, error) {
	n := copy(p, c.recvBuf)
	c.Consume(n)
	return n, nil
}

func (c *Connection) Write(p []byte) (int, error) {
	c.QueueSend(p)
	return len(p), nil
}

// HandshakeComplete and NegotiatedProtocol pass through to the active
// Codec so a Processor that needs TLS/ALPN state (httpsclient's hybrid
// client) can read it without socket.Context itself carrying TLS-specific
// methods every other Processor would have to ignore.
func (c *Connection) HandshakeComplete() bool    { return c.codec.HandshakeComplete() }
func (c *Connection) NegotiatedProtocol() string { return c.codec.NegotiatedProtocol() }

func (c *Connection) Context() context.Context { return c.ctx }
func (c *Connection) RemoteAddr() net.Addr      { return c.remote }
func (c *Connection) LocalAddr() net.Addr       { return c.local }
func (c *Connection) ConnID() (uint32, uint32)  { return c.id.ThreadIndex, c.id.LocalID }

// Close begins an orderly close: it cancels the connection's context so
// any handler/processor can observe cancellation, but the actual socket
// teardown is scheduled by the owning worker (spec §5 "delay-close
// timer"), not performed inline here.
func (c *Connection) Close() error {
	c.cancel()
	return nil
}

// Teardown drops the processor and closes the codec; it does not flush a
// pending send. It runs on the owning worker's goroutine: the worker calls
// it on a fatal error, and app.Server on a failed Track or a detect
// timeout.
func (c *Connection) Teardown() error {
	c.destroyProcessor()
	return c.codec.Close()
}
