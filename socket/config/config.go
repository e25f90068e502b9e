/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package config is the recognized configuration-knob table of spec §6,
// turned into a validated Go struct the way the teacher's socket/config and
// certificates packages shape their own Config types.
package config

import (
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/reactord/certificates"
)

// Config is the per-listener configuration: epoll sizing, connection
// buffer caps, detector timeout, and the TLS material (if any) fronting
// this listener.
type Config struct {
	// Listen is the "host:port" bind address.
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required"`

	// Threads is the total thread count: app.Server runs Threads-1 worker
	// threads (at least one) plus the listen thread (spec §4.9).
	Threads int `mapstructure:"threads" json:"threads" yaml:"threads" toml:"threads" validate:"min=1"`

	// ThreadAffinity is carried for configuration only: nothing in this
	// module reads it, and no thread is pinned to a core.
	ThreadAffinity bool `mapstructure:"threadAffinity" json:"threadAffinity" yaml:"threadAffinity" toml:"threadAffinity"`

	// SoMaxConn is the listen(2) backlog.
	SoMaxConn int `mapstructure:"soMaxConn" json:"soMaxConn" yaml:"soMaxConn" toml:"soMaxConn"`

	// EpollSize clamps to [256, 65536] (spec §4.1).
	EpollSize int `mapstructure:"epollSize" json:"epollSize" yaml:"epollSize" toml:"epollSize"`

	// EpollWaitMS clamps to [0, 1000] (spec §4.1).
	EpollWaitMS int `mapstructure:"epollWaitMs" json:"epollWaitMs" yaml:"epollWaitMs" toml:"epollWaitMs"`

	// RecvBufferCap bounds a connection's inbound byte buffer (spec §3,
	// default 2 MiB).
	RecvBufferCap int `mapstructure:"recvBufferCap" json:"recvBufferCap" yaml:"recvBufferCap" toml:"recvBufferCap"`

	// ConIdleTimeout is the idle-eviction knob (spec §9 open question 4). It
	// is carried for configuration only: nothing in this module reads it,
	// and no connection is evicted for being idle.
	ConIdleTimeout time.Duration `mapstructure:"conIdleTimeout" json:"conIdleTimeout" yaml:"conIdleTimeout" toml:"conIdleTimeout"`

	// DetectTimeout is the protocol detector's deadline (spec §4.4, default 5s).
	DetectTimeout time.Duration `mapstructure:"detectTimeout" json:"detectTimeout" yaml:"detectTimeout" toml:"detectTimeout"`

	// DetectMaxBytes caps the detector's sniff buffer (spec §4.4, default 4 KiB).
	DetectMaxBytes int `mapstructure:"detectMaxBytes" json:"detectMaxBytes" yaml:"detectMaxBytes" toml:"detectMaxBytes"`

	// H2WindowUpdateThreshold (default 32 KiB, spec §4.5) is carried for
	// configuration only: protocol/h2 does not read it and returns flow
	// control credit with a WINDOW_UPDATE for every DATA frame it receives.
	H2WindowUpdateThreshold int `mapstructure:"h2WindowUpdateThreshold" json:"h2WindowUpdateThreshold" yaml:"h2WindowUpdateThreshold" toml:"h2WindowUpdateThreshold"`

	// BinaryMagic is the 4-byte magic the binary-stream probe matches.
	BinaryMagic [4]byte `mapstructure:"binaryMagic" json:"binaryMagic" yaml:"binaryMagic" toml:"binaryMagic"`

	// StringPoolCapacity is each worker's per-thread reusable scratch-buffer
	// pool size (spec §6 "string pool capacity"); 0 uses
	// reactor.DefaultBufferPoolCapacity.
	StringPoolCapacity int `mapstructure:"stringPoolCapacity" json:"stringPoolCapacity" yaml:"stringPoolCapacity" toml:"stringPoolCapacity"`

	// TLS is nil for a plaintext listener, populated to front it with TLS.
	TLS *libtls.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

// Default returns a Config with every spec §6 default applied.
func Default(listen string) Config {
	return Config{
		Listen:                  listen,
		Threads:                 4,
		SoMaxConn:               128,
		EpollSize:               1024,
		EpollWaitMS:             1,
		RecvBufferCap:           2 * 1024 * 1024,
		DetectTimeout:           5 * time.Second,
		DetectMaxBytes:          4 * 1024,
		H2WindowUpdateThreshold: 32 * 1024,
		StringPoolCapacity:      128,
	}
}

// Clamp applies the bounds spec §4.1/§4.6 require, in place.
func (c *Config) Clamp() {
	if c.EpollSize < 256 {
		c.EpollSize = 256
	} else if c.EpollSize > 65536 {
		c.EpollSize = 65536
	}
	if c.EpollWaitMS < 0 {
		c.EpollWaitMS = 0
	} else if c.EpollWaitMS > 1000 {
		c.EpollWaitMS = 1000
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.RecvBufferCap <= 0 {
		c.RecvBufferCap = 2 * 1024 * 1024
	}
	if c.DetectMaxBytes <= 0 {
		c.DetectMaxBytes = 4 * 1024
	}
	if c.H2WindowUpdateThreshold <= 0 {
		c.H2WindowUpdateThreshold = 32 * 1024
	}
	if c.StringPoolCapacity <= 0 {
		c.StringPoolCapacity = 128
	}
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	v := libval.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.TLS != nil {
		return c.TLS.Validate()
	}
	return nil
}
