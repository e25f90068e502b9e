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

// Package log is the reactor's structured-logging ambient layer. It wraps
// hashicorp/go-hclog, the backend the teacher's own logger package
// delegates to, without reproducing that package's full multi-hook
// (syslog/gorm/file/stdout) fan-out — a single-process reactor core needs
// one sink, not a pluggable hook chain.
package log

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Logger is the structured logger handed to every reactor component.
type Logger = hclog.Logger

var (
	once sync.Once
	root Logger
)

// Root returns the process-wide root logger, created once on first use.
// Named sub-loggers (With/Named) are cheap and should be derived per
// component instead of reconfiguring the root.
func Root() Logger {
	once.Do(func() {
		root = hclog.New(&hclog.LoggerOptions{
			Name:            "reactord",
			Level:           hclog.Info,
			Output:          os.Stderr,
			IncludeLocation: false,
		})
	})
	return root
}

// SetRoot replaces the process-wide root logger. Intended for tests and for
// the server facade's construction-time wiring; not for use on the hot path.
func SetRoot(l Logger) {
	once.Do(func() {})
	root = l
}

// ForWorker returns a logger scoped to one reactor worker thread.
func ForWorker(idx int) Logger {
	return Root().Named("worker").With("thread", idx)
}

// ForConn returns a logger scoped to one connection.
func ForConn(threadIdx int, localID uint32) Logger {
	return Root().Named("conn").With("thread", threadIdx, "conn_id", localID)
}
