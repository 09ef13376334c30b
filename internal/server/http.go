package server

import (
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/request"
	"github.com/aprsair/aprsgate/internal/response"
)

// Router serves a parsed request.
type Router interface {
	ServeHTTP(ex *Exchange)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ex *Exchange)

// ServeHTTP calls f(ex).
func (f RouterFunc) ServeHTTP(ex *Exchange) { f(ex) }

// HTTPConfig holds the HTTP-level options of an HTTPHandler.
type HTTPConfig struct {
	// ServerName is sent to CGI children and used in log lines.
	ServerName string
	// Headers is the base header set merged into every response.
	Headers request.Header
	// Charset encodes text responses. RequestCharset decodes bodies.
	Charset        response.Charset
	RequestCharset response.Charset

	AuthRequired bool
	Credentials  map[string]string

	// BlockedError answers clients rejected by the access list with
	// BlockedErrorCode (423 when zero).
	BlockedError     bool
	BlockedErrorCode int

	// MaxDownloadSize bounds ServeFile (0 means unlimited).
	MaxDownloadSize int64
	// CGITimeout bounds CGI children (0 means unbounded).
	CGITimeout time.Duration
}

// HTTPHandler reads one request per connection and hands it to Routes.
type HTTPHandler struct {
	HTTPConfig
	Routes Router

	// OnBadClient is called with the bytes read so far when the peer is
	// not an HTTP client. Nothing is written back.
	OnBadClient func(c *Conn, consumed []byte)
}

// NewHTTPHandler returns a handler for routes.
func NewHTTPHandler(cfg HTTPConfig, routes Router) *HTTPHandler {
	if cfg.Charset.Encoding == nil {
		cfg.Charset = response.UTF8
	}
	if cfg.RequestCharset.Encoding == nil {
		cfg.RequestCharset = response.UTF8
	}
	return &HTTPHandler{HTTPConfig: cfg, Routes: routes}
}

// AuthRealm is the WWW-Authenticate challenge sent with 401.
const AuthRealm = `Basic realm="Authentication required"`

// ServeConn implements Handler.
func (h *HTTPHandler) ServeConn(c *Conn) {
	cfg := c.Server().Config()
	fr := request.NewFrameReader(c, cfg.ReaderOptions())
	w := h.writer(c)

	frame, err := fr.ReadFrame()
	if err != nil {
		h.readFailed(c, w, fr.Consumed, err)
		return
	}

	req, err := request.Parse(frame, c.RemoteAddr)
	if err != nil {
		logging.Info("Malformed request", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
		h.finish(c, w, w.SendError(400, nil))
		return
	}
	logging.LogHTTPRequest(c.RemoteAddr, req.Method, req.Target, req.Header.Map())

	ex := &Exchange{Conn: c, Request: req, Writer: w, handler: h}
	if !h.authorize(ex) {
		return
	}

	if h.Routes == nil {
		h.finish(c, w, ex.SendError(501))
		return
	}

	h.Routes.ServeHTTP(ex)

	if !ex.Upgraded && w.Written == 0 {
		ex.SendError(501)
	}
}

// OnBlockedClient implements BlockedHandler.
func (h *HTTPHandler) OnBlockedClient(c *Conn) {
	if !h.BlockedError {
		return
	}
	code := h.BlockedErrorCode
	if code == 0 {
		code = 423
	}
	w := h.writer(c)
	h.finish(c, w, w.SendError(code, nil))
}

func (h *HTTPHandler) writer(c *Conn) *response.Writer {
	return response.NewWriter(c, h.Charset, h.Headers)
}

func (h *HTTPHandler) readFailed(c *Conn, w *response.Writer, consumed []byte, err error) {
	switch {
	case errors.Is(err, request.ErrBadClient):
		logging.Info("Dropping non-HTTP client",
			zap.String("remote_addr", c.RemoteAddr),
			zap.Int("bytes_read", len(consumed)),
		)
		if h.OnBadClient != nil {
			h.OnBadClient(c, append([]byte(nil), consumed...))
		}
	case errors.Is(err, request.ErrHeaderTooLarge):
		h.finish(c, w, w.SendError(414, nil))
	case errors.Is(err, request.ErrPayloadTooLarge):
		h.finish(c, w, w.SendError(413, nil))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, os.ErrDeadlineExceeded):
		logging.Debug("Client went away before sending a request",
			zap.String("remote_addr", c.RemoteAddr),
			zap.Error(err),
		)
	default:
		c.Server().ReportError(err)
		logging.Warn("Failed to read request", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
	}
}

// authorize enforces basic auth. It writes the 401 itself.
func (h *HTTPHandler) authorize(ex *Exchange) bool {
	if !h.AuthRequired || len(h.Credentials) == 0 {
		return true
	}
	user, pass, ok := ex.Request.BasicAuth()
	if ok {
		if want, known := h.Credentials[user]; known && want == pass {
			return true
		}
	}
	ex.SendError(401, request.Field{Name: "WWW-Authenticate", Value: AuthRealm})
	return false
}

func (h *HTTPHandler) finish(c *Conn, w *response.Writer, err error) {
	if err != nil {
		logging.Debug("Failed to write response", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
		return
	}
	logging.LogHTTPResponse(c.RemoteAddr, w.LastCode, int(w.LastLength))
	c.Server().Observer().ResponseSent(c.Server().Name(), w.LastCode)
}
