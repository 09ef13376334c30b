package server

import (
	"context"
	"net"
	"sync"
	"time"
)

// Conn is an accepted connection owned by one worker.
//
// Reads apply the server read timeout. Writes are serialized so that
// Broadcast can write to a connection while its worker is also writing.
type Conn struct {
	ID         uint64
	RemoteAddr string
	Accepted   time.Time

	raw    net.Conn
	srv    *Server
	ctx    context.Context
	cancel context.CancelFunc

	readTimeout time.Duration
	wmu         sync.Mutex
}

func newConn(srv *Server, raw net.Conn, id uint64, parent context.Context) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		ID:          id,
		RemoteAddr:  raw.RemoteAddr().String(),
		Accepted:    time.Now(),
		raw:         raw,
		srv:         srv,
		ctx:         ctx,
		cancel:      cancel,
		readTimeout: srv.cfg.ReadTimeout,
	}
}

// Context is cancelled when the connection is aborted or the worker ends.
func (c *Conn) Context() context.Context { return c.ctx }

// Server returns the owning server.
func (c *Conn) Server() *Server { return c.srv }

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn { return c.raw }

// Read reads with the configured read timeout.
func (c *Conn) Read(p []byte) (int, error) {
	return c.ReadWithin(p, c.readTimeout)
}

// ReadWithin reads with an explicit deadline. A zero d blocks without one.
func (c *Conn) ReadWithin(p []byte, d time.Duration) (int, error) {
	if d > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(d))
	} else {
		_ = c.raw.SetReadDeadline(time.Time{})
	}
	return c.raw.Read(p)
}

// Write writes p with the read timeout as write deadline.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.readTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.readTimeout))
	}
	return c.raw.Write(p)
}

// Close closes the socket and cancels the connection context.
func (c *Conn) Close() error {
	c.cancel()
	return c.raw.Close()
}

// Alive reports whether the worker should keep serving: the server is
// running and the connection has not been aborted.
func (c *Conn) Alive() bool {
	return c.ctx.Err() == nil && c.srv.Running()
}
