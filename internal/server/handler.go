package server

import "time"

// Handler serves one accepted connection. ServeConn runs on the worker
// that owns c and the connection is closed when it returns.
type Handler interface {
	ServeConn(c *Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Conn)

// ServeConn calls f(c).
func (f HandlerFunc) ServeConn(c *Conn) { f(c) }

// BlockedHandler is implemented by handlers that answer clients rejected
// by the access list. c is not registered and holds no worker slot.
type BlockedHandler interface {
	OnBlockedClient(c *Conn)
}

// Acceptor is implemented by handlers that pre-filter peers before the
// access list. Returning false closes the socket without a response.
type Acceptor interface {
	AcceptClient(remoteAddr string) bool
}

// Observer receives engine events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ConnAccepted(server string)
	ConnBlocked(server string)
	ConnClosed(server string, lifetime time.Duration)
	ResponseSent(server string, code int)
	Error(server string, err error)
}

type nopObserver struct{}

func (nopObserver) ConnAccepted(string) {}
func (nopObserver) ConnBlocked(string) {}
func (nopObserver) ConnClosed(string, time.Duration) {}
func (nopObserver) ResponseSent(string, int) {}
func (nopObserver) Error(string, error) {}
