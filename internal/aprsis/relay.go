// Package aprsis implements a receive-only APRS-IS feed on top of the
// connection engine.
//
// A client is greeted with "# <server name>", must log in with a line
// starting with "user", and then only receives: whatever it sends is
// discarded. Broadcast delivers a packet line to every connected client.
package aprsis

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/server"
)

const (
	// DefaultPingInterval is the keepalive period when none is configured.
	DefaultPingInterval = 15 * time.Second

	// MaxLoginLine bounds the login line. Longer lines end the login phase.
	MaxLoginLine = 1024

	pingLine = "#ping; server doesn't support any incoming data\r\n"
)

var loginPattern = regexp.MustCompile(`^user\s([\w\-]{3,})\spass\s([\d\-]+)\svers\s([\w\d\-.]+)\s([\w\d\-.+]+)`)

// Login is a parsed APRS-IS login line.
type Login struct {
	Callsign string
	Passcode string
	Software string
	Version  string
}

// ParseLogin parses "user CALL pass N vers SOFT VER". The callsign is
// upper-cased.
func ParseLogin(line string) (Login, bool) {
	m := loginPattern.FindStringSubmatch(line)
	if m == nil {
		return Login{}, false
	}
	return Login{
		Callsign: strings.ToUpper(m[1]),
		Passcode: m[2],
		Software: m[3],
		Version:  m[4],
	}, true
}

// Config configures a Relay.
type Config struct {
	ServerName   string
	PingInterval time.Duration
}

// Relay is a server.Handler serving APRS-IS clients.
type Relay struct {
	cfg Config
	srv *server.Server

	// OnLogin, when set, is called after a client logged in.
	OnLogin func(c *server.Conn, l Login)
}

// New creates a relay listening as described by listen.
func New(listen server.Config, cfg Config, opts ...server.Option) (*Relay, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "aprsgate"
	}
	if listen.Name == "" {
		listen.Name = "aprsis"
	}

	r := &Relay{cfg: cfg}
	srv, err := server.New(listen, r, opts...)
	if err != nil {
		return nil, err
	}
	r.srv = srv
	return r, nil
}

// Server returns the underlying engine.
func (r *Relay) Server() *server.Server { return r.srv }

// Start starts listening.
func (r *Relay) Start() error { return r.srv.Start() }

// Stop stops listening.
func (r *Relay) Stop() { r.srv.Stop() }

// Broadcast sends message followed by CRLF to every connected client and
// returns how many writes succeeded.
func (r *Relay) Broadcast(message string) int {
	return r.srv.Broadcast([]byte(message + "\r\n"))
}

// ServeConn implements server.Handler.
func (r *Relay) ServeConn(c *server.Conn) {
	if _, err := c.Write([]byte("# " + r.cfg.ServerName + "\r\n")); err != nil {
		return
	}

	line, ok := readLogin(c)
	if !ok {
		logging.Info("APRS-IS client did not log in",
			zap.String("remote_addr", c.RemoteAddr),
			zap.Int("bytes_read", len(line)),
		)
		return
	}

	if l, ok := ParseLogin(line); ok {
		resp := "# logresp " + l.Callsign + " verified, server " + r.cfg.ServerName + "\r\n"
		if _, err := c.Write([]byte(resp)); err != nil {
			return
		}
		logging.Info("APRS-IS client logged in",
			zap.String("remote_addr", c.RemoteAddr),
			zap.String("callsign", l.Callsign),
			zap.String("software", l.Software+" "+l.Version),
		)
		if r.OnLogin != nil {
			r.OnLogin(c, l)
		}
	}

	r.idle(c)
}

// readLogin reads the first line. It fails as soon as the input cannot
// start with "user" or the connection ends.
func readLogin(c *server.Conn) (string, bool) {
	var (
		line []byte
		b    = make([]byte, 1)
	)
	for {
		if _, err := c.Read(b); err != nil {
			return string(line), false
		}
		line = append(line, b[0])
		if n := len(line); n <= 4 && !bytes.HasPrefix([]byte("user"), line) {
			return string(line), false
		}
		if b[0] == '\n' && bytes.HasSuffix(line, []byte("\r\n")) {
			return string(line), true
		}
		if len(line) > MaxLoginLine {
			return string(line), true
		}
	}
}

// idle discards input and pings until the client goes away or the
// server stops.
func (r *Relay) idle(c *server.Conn) {
	buf := make([]byte, 4096)
	next := time.Now().Add(r.cfg.PingInterval)
	for c.Alive() {
		if wait := time.Until(next); wait > 0 {
			if _, err := c.ReadWithin(buf, wait); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			continue
		}
		if _, err := c.Write([]byte(pingLine)); err != nil {
			return
		}
		next = time.Now().Add(r.cfg.PingInterval)
	}
}
