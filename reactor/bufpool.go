/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

import "github.com/nabbar/reactord/socket"

// BufferPool is the per-worker reusable scratch-buffer pool spec §6 calls
// "string pool capacity" (a thread-local pool of recv/send buffers so the
// hot path does not allocate one on every readiness event). Each worker
// owns exactly one, so it never needs its own locking: a worker's event
// loop is single-goroutine by construction (spec §5 "per-worker state kept
// in the worker's own struct").
type BufferPool struct {
	free [][]byte
	cap  int
	size int
}

// DefaultBufferPoolCapacity is applied when a Config leaves the knob unset.
const DefaultBufferPoolCapacity = 128

// NewBufferPool builds a pool that recycles up to capacity buffers of
// bufSize bytes each; capacity<=0 falls back to DefaultBufferPoolCapacity,
// bufSize<=0 falls back to socket.DefaultBufferSize (spec §4.3's 32 KiB
// recv scratch buffer).
func NewBufferPool(capacity, bufSize int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultBufferPoolCapacity
	}
	if bufSize <= 0 {
		bufSize = socket.DefaultBufferSize
	}
	return &BufferPool{free: make([][]byte, 0, capacity), cap: capacity, size: bufSize}
}

// Get returns a buffer of length bufSize: either recycled from the free
// list or freshly allocated.
func (p *BufferPool) Get() []byte {
	if p == nil {
		return make([]byte, socket.DefaultBufferSize)
	}
	n := len(p.free)
	if n == 0 {
		return make([]byte, p.size)
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	return b[:p.size]
}

// Put returns b to the pool for reuse, unless the pool is already at
// capacity, in which case b is dropped for the garbage collector.
func (p *BufferPool) Put(b []byte) {
	if p == nil || cap(b) < p.size || len(p.free) >= p.cap {
		return
	}
	p.free = append(p.free, b[:cap(b)])
}
