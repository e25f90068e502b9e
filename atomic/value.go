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

// Package atomic provides a type-safe, lock-free holder for values that are
// swapped concurrently with reads — the mechanism the connection pipeline
// uses to hot-swap a processor without ever exposing a half-updated pointer
// to the reactor.
package atomic

import (
	"sync/atomic"
)

// Value is a generic, lock-free holder for a single value of type T.
// The reactor uses it for exactly one purpose: so that a connection's
// active processor can be replaced by an entirely new value (on protocol
// detection, or TLS handoff) while every in-flight reader either observes
// the old processor in full or the new one in full, never a partial write.
type Value[T any] interface {
	Load() T
	Store(val T)
	Swap(new T) (old T)
}

type val[T any] struct {
	av atomic.Value
}

// NewValue allocates an empty Value[T].
func NewValue[T any]() Value[T] {
	return &val[T]{}
}

// NewValueOf allocates a Value[T] pre-populated with init.
func NewValueOf[T any](init T) Value[T] {
	v := &val[T]{}
	v.Store(init)
	return v
}

type box[T any] struct {
	v T
}

func (o *val[T]) Load() (out T) {
	if b, ok := o.av.Load().(box[T]); ok {
		return b.v
	}
	return out
}

func (o *val[T]) Store(val T) {
	o.av.Store(box[T]{v: val})
}

func (o *val[T]) Swap(new T) (old T) {
	if b, ok := o.av.Swap(box[T]{v: new}).(box[T]); ok {
		return b.v
	}
	return old
}

