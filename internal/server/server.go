package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aprsair/aprsgate/internal/acl"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/registry"
)

var (
	// ErrAlreadyRunning is returned by Start and SetConfig while the
	// server is running.
	ErrAlreadyRunning = errors.New("server: already running")

	// ErrBind wraps listener creation failures.
	ErrBind = errors.New("server: bind failed")
)

// Option configures a Server.
type Option func(*Server)

// WithObserver reports engine events to o.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithACL replaces the access list. The default list has no rules.
func WithACL(l *acl.List) Option {
	return func(s *Server) {
		if l != nil {
			s.acl = l
		}
	}
}

// Server is a TCP listener dispatching each accepted connection to a
// Handler on its own worker goroutine.
type Server struct {
	handler Handler
	obs     Observer
	acl     *acl.List
	conns   *registry.Registry[*Conn]

	mu       sync.Mutex
	cfg      Config
	name     atomic.Pointer[string] // cfg.Name, readable without mu
	running  atomic.Bool
	listener net.Listener
	slots    *semaphore.Weighted

	// acceptCancel ends the accept loop. workCtx is the parent of every
	// connection context and is cancelled only on an aborting stop.
	acceptCancel context.CancelFunc
	workCtx      context.Context
	workCancel   context.CancelFunc
	acceptDone   chan struct{}
	workers      sync.WaitGroup

	nextID  atomic.Uint64
	total   atomic.Uint64
	blocked atomic.Uint64
	errors  atomic.Uint64

	statMu    sync.Mutex
	started   time.Time
	stopped   time.Time
	lastErr   error
	lastErrAt time.Time
}

// New creates a Server for cfg. Zero limits take their defaults.
func New(cfg Config, h Handler, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("server: nil handler")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		handler: h,
		obs:     nopObserver{},
		cfg:     cfg.withDefaults(),
		conns:   registry.New[*Conn](),
	}
	name := s.cfg.Name
	s.name.Store(&name)
	s.acl, _ = acl.New(acl.NoRules, nil, nil)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns a copy of the active configuration.
func (s *Server) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the configuration. It fails with ErrAlreadyRunning
// while the server is running.
func (s *Server) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	s.cfg = cfg.withDefaults()
	name := s.cfg.Name
	s.name.Store(&name)
	return nil
}

// ACL returns the live access list. It may be updated while running.
func (s *Server) ACL() *acl.List { return s.acl }

// Name returns the configured server name.
func (s *Server) Name() string { return *s.name.Load() }

// Running reports whether the accept loop is active.
func (s *Server) Running() bool { return s.running.Load() }

// Addr returns the bound listener address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and starts the accept loop. It returns once the
// socket is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}

	addr := s.cfg.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.recordError(err)
		return fmt.Errorf("%w: %s: %v", ErrBind, addr, err)
	}

	s.listener = ln
	if s.slots == nil {
		s.slots = semaphore.NewWeighted(int64(max(s.cfg.MaxConnections, 1)))
	}

	acceptCtx, acceptCancel := context.WithCancel(context.Background())
	s.acceptCancel = acceptCancel
	s.workCtx, s.workCancel = context.WithCancel(context.Background())
	s.acceptDone = make(chan struct{})

	s.statMu.Lock()
	s.started = time.Now()
	s.stopped = time.Time{}
	s.statMu.Unlock()
	s.running.Store(true)

	logging.Info("Server listening for connections",
		zap.String("server", s.cfg.Name),
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", s.cfg.MaxConnections),
		zap.Bool("threaded", s.cfg.Threaded()),
	)

	go s.acceptConnections(acceptCtx, ln, s.cfg, s.workCtx, s.acceptDone)
	return nil
}

// Stop closes the listener and waits for the accept loop to exit. With
// AbortOnStop every live connection is closed and Stop waits up to the
// grace period for the workers. Stopping a stopped server is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(false)
	cfg := s.cfg
	s.acceptCancel()
	if err := s.listener.Close(); err != nil {
		logging.Warn("Error closing listener", zap.String("server", cfg.Name), zap.Error(err))
	}
	done := s.acceptDone
	workCancel := s.workCancel
	s.mu.Unlock()

	if cfg.AbortOnStop {
		for _, c := range s.Conns() {
			logging.Debug("Closing active connection", zap.String("server", cfg.Name), zap.Uint64("id", c.ID))
			_ = c.Close()
		}
		workCancel()
	}

	<-done

	s.statMu.Lock()
	s.stopped = time.Now()
	s.statMu.Unlock()

	if !cfg.AbortOnStop {
		logging.Info("Server stopped", zap.String("server", cfg.Name), zap.Int("in_flight", s.conns.Len()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
	defer cancel()
	if err := s.wait(ctx); err != nil {
		logging.Warn("Shutdown grace period elapsed with workers still running",
			zap.String("server", cfg.Name),
			zap.Duration("grace_period", cfg.GracePeriod),
			zap.Int("alive", s.conns.Len()),
		)
		return
	}
	logging.Info("Server stopped, all connections closed", zap.String("server", cfg.Name))
}

// Shutdown stops the server and then waits for in-flight workers until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Stop()
	return s.wait(ctx)
}

func (s *Server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acceptConnections accepts and dispatches connections until ln is closed.
func (s *Server) acceptConnections(ctx context.Context, ln net.Listener, cfg Config, workCtx context.Context, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.recordError(err)
			delay = acceptBackoff(delay)
			logging.Error("Failed to accept connection",
				zap.String("server", cfg.Name),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			// Accept errors such as EMFILE persist; wait before retrying.
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		c := newConn(s, raw, s.nextID.Add(1), workCtx)

		if !s.admit(c, cfg) {
			continue
		}

		if !cfg.Threaded() {
			s.serve(c, cfg)
			continue
		}

		if err := s.slots.Acquire(ctx, 1); err != nil {
			_ = c.Close()
			return
		}
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			defer s.slots.Release(1)
			s.serve(c, cfg)
		}()
	}
}

// acceptBackoff doubles the retry delay after a failed Accept, from 5ms up
// to one second.
func acceptBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}

// admit applies the handler pre-filter and the access list. A rejected
// connection is closed here and never takes a slot.
func (s *Server) admit(c *Conn, cfg Config) bool {
	if a, ok := s.handler.(Acceptor); ok && !a.AcceptClient(c.RemoteAddr) {
		logging.LogConnection(cfg.Name, c.ID, c.RemoteAddr, "rejected")
		_ = c.Close()
		return false
	}

	if s.acl.IsAllowed(c.RemoteAddr) {
		return true
	}

	s.blocked.Add(1)
	s.obs.ConnBlocked(cfg.Name)
	logging.LogBlocked(cfg.Name, c.RemoteAddr, s.acl.Mode().String())

	if b, ok := s.handler.(BlockedHandler); ok {
		s.guard(c, cfg, func() { b.OnBlockedClient(c) })
	}
	_ = c.Close()
	return false
}

// serve runs the handler for c. The connection is registered for the
// whole call and is always closed afterwards.
func (s *Server) serve(c *Conn, cfg Config) {
	s.conns.Add(c.ID, c)
	s.total.Add(1)
	s.obs.ConnAccepted(cfg.Name)
	logging.LogConnection(cfg.Name, c.ID, c.RemoteAddr, "connection_accepted")

	defer func() {
		_ = c.Close()
		s.conns.Remove(c.ID)
		lifetime := time.Since(c.Accepted)
		s.obs.ConnClosed(cfg.Name, lifetime)
		logging.LogConnection(cfg.Name, c.ID, c.RemoteAddr, "connection_closed")
	}()

	s.guard(c, cfg, func() { s.handler.ServeConn(c) })
}

// guard runs fn and turns a panic into a counted error.
func (s *Server) guard(c *Conn, cfg Config, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			s.recordError(err)
			logging.Error("Recovered from handler panic",
				zap.String("server", cfg.Name),
				zap.Uint64("id", c.ID),
				zap.String("remote_addr", c.RemoteAddr),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

// ReportError counts err against this server. Handlers use it for failures
// that end a connection without escaping ServeConn.
func (s *Server) ReportError(err error) {
	if err != nil {
		s.recordError(err)
	}
}

func (s *Server) recordError(err error) {
	s.errors.Add(1)
	s.statMu.Lock()
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.statMu.Unlock()
	s.obs.Error(s.Name(), err)
}

// Conns returns a snapshot of the registered connections ordered by id.
func (s *Server) Conns() []*Conn {
	snap := s.conns.Snapshot()
	out := make([]*Conn, len(snap))
	for i, e := range snap {
		out[i] = e.Value
	}
	return out
}

// Broadcast writes p to every registered connection. Write failures are
// ignored and never unregister a connection. It returns the number of
// successful writes.
func (s *Server) Broadcast(p []byte) int {
	sent := 0
	for _, c := range s.Conns() {
		if _, err := c.Write(p); err != nil {
			logging.Debug("Broadcast write failed",
				zap.String("server", s.Name()),
				zap.Uint64("id", c.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// Observer returns the configured observer.
func (s *Server) Observer() Observer { return s.obs }
