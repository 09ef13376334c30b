package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aprsair/aprsgate/internal/request"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxConnections = 50
	DefaultReadTimeout    = 10 * time.Second
	DefaultGracePeriod    = 5 * time.Second
)

// Config holds the server configuration. It is copied by New and cannot
// change while the server is running.
type Config struct {
	// Name identifies the server in logs and metrics.
	Name string
	Host string
	// Port 0 picks a free port; see Server.Addr.
	Port int

	MaxConnections int
	ReadTimeout    time.Duration
	MaxHeaderSize  int
	MaxBodySize    int

	// HTTPOnly rejects clients whose first byte is not 'G' or 'P'.
	HTTPOnly bool

	// AbortOnStop closes every live connection on Stop and waits up to
	// GracePeriod for the workers to return.
	AbortOnStop bool
	GracePeriod time.Duration
}

// DefaultConfig returns a Config for port with every limit at its default.
func DefaultConfig(port int) Config {
	return Config{Port: port}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "server"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = request.DefaultMaxHeaderSize
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = request.DefaultMaxBodySize
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	return c
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max connections %d", c.MaxConnections)
	}
	return nil
}

// Address returns host:port for net.Listen.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Threaded reports whether connections get their own worker goroutine.
// Below two connections every client is served inline on the accept loop.
func (c Config) Threaded() bool {
	return c.MaxConnections >= 2
}

// ReaderOptions returns the frame reader limits for this config.
func (c Config) ReaderOptions() request.ReaderOptions {
	return request.ReaderOptions{
		MaxHeaderSize: c.MaxHeaderSize,
		MaxBodySize:   c.MaxBodySize,
		HTTPOnly:      c.HTTPOnly,
	}
}
