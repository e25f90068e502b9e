/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package conn

import (
	"golang.org/x/sys/unix"

	"github.com/nabbar/reactord/reactor"
)

// PlaintextCodec reads and writes the raw fd with no transformation.
type PlaintextCodec struct {
	fd int
}

func NewPlaintextCodec(fd int) *PlaintextCodec {
	return &PlaintextCodec{fd: fd}
}

func (c *PlaintextCodec) Recv(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

func (c *PlaintextCodec) Send(p []byte) (int, error) {
	n, err := unix.Write(c.fd, p)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

func (c *PlaintextCodec) PollEventsHint() reactor.EventMask { return 0 }
func (c *PlaintextCodec) HandshakeComplete() bool           { return true }
func (c *PlaintextCodec) NegotiatedProtocol() string        { return "" }
func (c *PlaintextCodec) Close() error                      { return unix.Close(c.fd) }
