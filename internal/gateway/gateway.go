// Package gateway is the HTTP front end of aprsgate.
//
// It keeps the last report of every station, renders them on "/", pushes
// new reports to WebSocket clients and hands them to an APRS-IS feed.
// Configured CGI routes are relayed to their executables and every other
// path is served from the web directory.
package gateway

import (
	"bytes"
	"embed"
	"html/template"
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/protocol"
	"github.com/aprsair/aprsgate/internal/registry"
	"github.com/aprsair/aprsgate/internal/server"
)

//go:embed templates/index.html.tmpl
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html.tmpl"))

// Feed receives every accepted report as an APRS packet line.
type Feed interface {
	Broadcast(message string) int
}

// CGIRoute maps a request path to an executable.
type CGIRoute struct {
	Path string
	Args string
}

// Config configures a Gateway.
type Config struct {
	Name   string
	WebDir string
	CGI    map[string]CGIRoute
}

// Gateway implements server.Router and server.WebSocketHandler.
type Gateway struct {
	cfg  Config
	feed Feed
	now  func() time.Time

	stations *xsync.MapOf[string, Report]
	sockets  *registry.Registry[*server.WebSocket]
}

var (
	_ server.Router           = (*Gateway)(nil)
	_ server.WebSocketHandler = (*Gateway)(nil)
)

// New creates a gateway. feed may be nil.
func New(cfg Config, feed Feed) *Gateway {
	if cfg.Name == "" {
		cfg.Name = "aprsgate"
	}
	return &Gateway{
		cfg:      cfg,
		feed:     feed,
		now:      time.Now,
		stations: xsync.NewMapOf[string, Report](),
		sockets:  registry.New[*server.WebSocket](),
	}
}

// Handler wraps the gateway in an HTTP connection handler.
func (g *Gateway) Handler(cfg server.HTTPConfig) *server.HTTPHandler {
	if cfg.ServerName == "" {
		cfg.ServerName = g.cfg.Name
	}
	return server.NewHTTPHandler(cfg, g)
}

// ServeHTTP implements server.Router.
func (g *Gateway) ServeHTTP(ex *server.Exchange) {
	req := ex.Request

	if req.IsWebSocketUpgrade() {
		ex.ServeWebSocket(g, true)
		return
	}

	if route, ok := g.cfg.CGI[req.Path]; ok {
		_ = ex.PassCGI(route.Path, route.Args)
		return
	}

	switch req.Path {
	case "/":
		if req.Method != "GET" && req.Method != "HEAD" {
			_ = ex.SendError(405)
			return
		}
		g.serveIndex(ex, req.Method == "HEAD")
	case "/api/report":
		if req.Method != "POST" {
			_ = ex.SendError(405)
			return
		}
		g.serveReport(ex)
	default:
		_ = ex.ServeFile(g.cfg.WebDir, "")
	}
}

func (g *Gateway) serveIndex(ex *server.Exchange, headOnly bool) {
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, struct {
		Name     string
		Stations []Report
	}{g.cfg.Name, g.Stations()})
	if err != nil {
		logging.Error("Failed to render index", zap.Error(err))
		_ = ex.SendError(500)
		return
	}
	if headOnly {
		body := ex.Writer.Charset().Encode(buf.String())
		_ = ex.SendHead(200, nil, int64(len(body)))
		return
	}
	_ = ex.SendHTML(200, buf.String())
}

func (g *Gateway) serveReport(ex *server.Exchange) {
	params := ex.PostParams()
	for k, v := range ex.Request.Query {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	r, err := ParseReport(params, g.now())
	if err != nil {
		logging.Info("Rejected report", zap.String("remote_addr", ex.Conn.RemoteAddr), zap.Error(err))
		_ = ex.SendText(400, template.HTMLEscapeString(err.Error()))
		return
	}

	clients := g.Ingest(r)
	_ = ex.SendText(200, "OK "+r.Callsign)
	logging.Info("Report accepted",
		zap.String("callsign", r.Callsign),
		zap.Int("websocket_clients", clients),
	)
}

// Ingest records r and fans its packet out to WebSocket clients and the
// APRS-IS feed. It returns the number of WebSocket clients reached.
func (g *Gateway) Ingest(r Report) int {
	g.stations.Store(r.Callsign, r)

	packet := r.Packet()
	if g.feed != nil {
		g.feed.Broadcast(packet)
	}
	return g.Push(packet)
}

// Push sends text to every connected WebSocket client.
func (g *Gateway) Push(text string) int {
	sent := 0
	for _, e := range g.sockets.Snapshot() {
		if err := e.Value.SendText(text); err != nil {
			logging.Debug("WebSocket push failed", zap.Uint64("id", e.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Stations returns the last report of every station, newest first.
func (g *Gateway) Stations() []Report {
	out := make([]Report, 0, g.stations.Size())
	g.stations.Range(func(_ string, r Report) bool {
		out = append(out, r)
		return true
	})
	slices.SortFunc(out, func(a, b Report) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return strings.Compare(a.Callsign, b.Callsign)
	})
	return out
}

// Clients is the number of connected WebSocket clients.
func (g *Gateway) Clients() int { return g.sockets.Len() }

// OnConnected implements server.WebSocketHandler.
func (g *Gateway) OnConnected(ws *server.WebSocket) {
	g.sockets.Add(ws.Conn.ID, ws)
	_ = ws.SendText("Welcome to " + g.cfg.Name)
}

// OnDisconnected implements server.WebSocketHandler.
func (g *Gateway) OnDisconnected(ws *server.WebSocket) {
	g.sockets.Remove(ws.Conn.ID)
}

// OnData implements server.WebSocketHandler. Every text frame is echoed
// back with " ok" appended.
func (g *Gateway) OnData(ws *server.WebSocket, data []byte) {
	for _, text := range protocol.DecodeAll(data) {
		if err := ws.SendText(text + " ok"); err != nil {
			logging.Debug("WebSocket echo failed", zap.Error(err))
			return
		}
	}
}
