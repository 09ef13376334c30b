package server

import (
	"net"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/cgi"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/request"
	"github.com/aprsair/aprsgate/internal/response"
)

// Exchange is one request and the means to answer it.
type Exchange struct {
	Conn    *Conn
	Request *request.Request
	Writer  *response.Writer

	// Upgraded is set once the connection was switched to WebSocket.
	Upgraded bool

	handler *HTTPHandler
}

// Handler returns the HTTP handler serving this exchange.
func (ex *Exchange) Handler() *HTTPHandler { return ex.handler }

func (ex *Exchange) done(err error) error {
	ex.handler.finish(ex.Conn, ex.Writer, err)
	return err
}

// SendError writes the standard error page for code with optional extra
// headers.
func (ex *Exchange) SendError(code int, extra ...request.Field) error {
	return ex.done(ex.Writer.SendError(code, request.Header(extra)))
}

// SendText writes text inside a minimal HTML document.
func (ex *Exchange) SendText(code int, text string) error {
	return ex.done(ex.Writer.SendText(code, text))
}

// SendHTML writes a rendered document.
func (ex *Exchange) SendHTML(code int, html string) error {
	return ex.done(ex.Writer.SendHTML(code, html))
}

// SendData writes data with contentType.
func (ex *Exchange) SendData(code int, contentType string, data []byte) error {
	return ex.done(ex.Writer.SendData(code, contentType, data))
}

// Send writes a response with explicit headers.
func (ex *Exchange) Send(code int, header request.Header, body []byte) error {
	return ex.done(ex.Writer.Write(code, header, body))
}

// SendHead answers a HEAD request with the headers a body of bodyLen
// bytes would carry.
func (ex *Exchange) SendHead(code int, header request.Header, bodyLen int64) error {
	return ex.done(ex.Writer.Head(code, header, bodyLen))
}

// PostParams decodes a form body with the request charset.
func (ex *Exchange) PostParams() map[string]string {
	return ex.Request.PostParams(ex.handler.RequestCharset.Encoding)
}

// Param looks name up in the query, then in the form body.
func (ex *Exchange) Param(name string) (string, bool) {
	return ex.Request.Param(name, ex.handler.RequestCharset.Encoding)
}

// BodyText decodes the body with the request charset.
func (ex *Exchange) BodyText() string {
	return ex.Request.BodyText(ex.handler.RequestCharset.Encoding)
}

// PassCGI runs the executable at path for this request and relays its
// output. POST and PUT without Content-Length get 411. A child that cannot
// be started gets 523.
func (ex *Exchange) PassCGI(path, args string) error {
	r := ex.Request
	if r.Method == "POST" || r.Method == "PUT" {
		if _, ok := r.ContentLength(); !ok {
			return ex.SendError(411)
		}
	}

	cfg := ex.Conn.Server().Config()
	port := cfg.Port
	if a := ex.Conn.Server().Addr(); a != nil {
		port = portOf(a)
	}

	res, err := cgi.Call(ex.Conn.Context(), cgi.Invocation{
		Path:    path,
		Args:    args,
		Env:     cgi.EnvFromRequest(r, cgi.Server{Name: ex.handler.ServerName, Software: "aprsgate", Port: port}),
		Body:    r.Body,
		Timeout: ex.handler.CGITimeout,
	})
	if err != nil {
		ex.Conn.Server().ReportError(err)
		logging.Warn("CGI call failed",
			zap.String("remote_addr", ex.Conn.RemoteAddr),
			zap.String("path", path),
			zap.Error(err),
		)
		return ex.SendError(response.StatusOriginUnreachable)
	}
	return ex.Send(200, res.Header, res.Body)
}

func portOf(a net.Addr) int {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
