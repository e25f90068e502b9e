/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package app

import (
	"context"
	"time"

	"github.com/nabbar/reactord/conn"
	"github.com/nabbar/reactord/errs"
	"github.com/nabbar/reactord/log"
	"github.com/nabbar/reactord/protocol"
	"github.com/nabbar/reactord/reactor"
	libcfg "github.com/nabbar/reactord/socket/config"

	"github.com/nabbar/reactord/runner"
)

// Server ties one listen address's configuration, protocol factory and
// reactor threads together (spec §4.9: "threads-1 workers + 1 listener").
// It implements runner.Runner so a caller manages its lifecycle through
// that interface.
type Server struct {
	cfg     libcfg.Config
	factory Factory
	entries []protocol.Entry

	workers  []*reactor.Worker
	listener *reactor.Listener
	rn       runner.Runner
}

// New validates cfg, builds the protocol entry table (wrapping it with a
// TLS handoff entry first if cfg.TLS is set), and returns a Server ready
// to Start.
func New(cfg libcfg.Config, factory Factory) (*Server, error) {
	cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, errs.CodeInvalidConfig, "invalid server configuration", err)
	}

	base := factory.entries()
	var entries []protocol.Entry
	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.ToTLSConfig()
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, errs.CodeInvalidConfig, "invalid TLS configuration", err)
		}
		entries = withTLS(tlsCfg, base, cfg.DetectMaxBytes, cfg.DetectTimeout)
	} else {
		entries = base
	}

	s := &Server{cfg: cfg, factory: factory, entries: entries}
	s.rn = runner.New(s.start, s.stop)
	return s, nil
}

// Start implements runner.Runner by delegating to the internal runner
// built in New. It returns at once: binding and spinning up cfg.Threads-1
// workers (at least one) and one listener happen on the runner's
// goroutine, and an error there (a failed bind, say) is not returned to
// the caller. The threads keep running until Stop.
func (s *Server) Start(ctx context.Context) error   { return s.rn.Start(ctx) }
func (s *Server) Stop(ctx context.Context) error    { return s.rn.Stop(ctx) }
func (s *Server) Restart(ctx context.Context) error { return s.rn.Restart(ctx) }
func (s *Server) IsRunning() bool                   { return s.rn.IsRunning() }
func (s *Server) Uptime() time.Duration             { return s.rn.Uptime() }

func (s *Server) start(ctx context.Context) error {
	n := s.cfg.Threads - 1
	if n < 1 {
		n = 1
	}
	workers := make([]*reactor.Worker, n)
	for i := range workers {
		idx := uint32(i)
		w, err := reactor.NewWorker(idx, s.cfg.EpollSize, s.cfg.EpollWaitMS, s.cfg.StringPoolCapacity, nil, nil)
		if err != nil {
			for _, done := range workers[:i] {
				if done != nil {
					done.Stop()
				}
			}
			return err
		}
		workers[i] = w
	}
	for _, w := range workers {
		w.SetOnAccepted(s.onAccepted(w))
	}

	fd, err := reactor.Bind(s.cfg.Listen, s.cfg.SoMaxConn)
	if err != nil {
		for _, w := range workers {
			w.Stop()
		}
		return err
	}

	l, err := reactor.NewListener(fd, s.cfg.EpollSize, workers)
	if err != nil {
		for _, w := range workers {
			w.Stop()
		}
		return err
	}

	s.workers = workers
	s.listener = l

	for _, w := range workers {
		go w.Run()
	}
	go l.Run()

	<-ctx.Done()
	return nil
}

func (s *Server) stop(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Stop()
	}
	for _, w := range s.workers {
		w.Stop()
	}
	return nil
}

// onAccepted builds the per-connection onAccepted callback bound to one
// worker: wrap the fd in a Connection, arm the initial detector as its
// processor, register it with the worker's container/epoll, and schedule
// the detect-timeout eviction (spec §4.4 "detect deadline").
func (s *Server) onAccepted(w *reactor.Worker) func(fd int) {
	return func(fd int) {
		remote := reactor.PeerAddr(fd)
		local := reactor.LocalAddr(fd)
		placeholder := reactor.ConnID{ThreadIndex: w.Index()}
		c := conn.New(placeholder, fd, remote, local, s.cfg.RecvBufferCap)
		c.SetBufferPool(w.Pool())

		det := protocol.NewDetector(s.entries, s.cfg.DetectMaxBytes, s.cfg.DetectTimeout, time.Now())
		dp := protocol.NewDetectorProcessor(det)
		c.SetProcessor(dp)

		id, err := w.Track(c, reactor.EventReadable)
		if err != nil {
			log.ForWorker(int(w.Index())).Debug("failed to track accepted connection", "error", err)
			_ = c.Teardown()
			return
		}
		c.SetConnID(id)

		w.Timers().Schedule(time.Now(), s.cfg.DetectTimeout, func() {
			if _, ok := c.Processor().(*protocol.DetectorProcessor); !ok {
				return
			}
			w.Untrack(fd)
			_ = c.Teardown()
		})
	}
}
