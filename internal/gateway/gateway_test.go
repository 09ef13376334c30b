package gateway

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprsair/aprsgate/internal/server"
)

type recordingFeed struct {
	mu    sync.Mutex
	lines []string
}

func (f *recordingFeed) Broadcast(message string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, message)
	return 1
}

func (f *recordingFeed) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startGateway(t *testing.T, cfg Config, feed Feed) (*Gateway, *server.Server) {
	t.Helper()
	g := New(cfg, feed)
	srv, err := server.New(server.Config{Name: "http", Host: "127.0.0.1"}, g.Handler(server.HTTPConfig{}))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return g, srv
}

func send(t *testing.T, srv *server.Server, raw string) (*http.Response, string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func postReport(t *testing.T, srv *server.Server, form url.Values) (*http.Response, string) {
	body := form.Encode()
	return send(t, srv, "POST /api/report HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: "+
		strconv.Itoa(len(body))+"\r\n\r\n"+body)
}

func TestReportFlowsToFeedSocketsAndIndex(t *testing.T) {
	feed := &recordingFeed{}
	g, srv := startGateway(t, Config{Name: "APRSAIR"}, feed)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Welcome to APRSAIR", string(msg))
	require.Eventually(t, func() bool { return g.Clients() == 1 }, time.Second, 5*time.Millisecond)

	resp, body := postReport(t, srv, url.Values{
		"call":    {"n0call"},
		"lat":     {"49.0583"},
		"lon":     {"-72.0292"},
		"comment": {"hello world"},
	})
	require.Equal(t, 200, resp.StatusCode, body)
	assert.Contains(t, body, "OK N0CALL")

	packet := "N0CALL>APRS,TCPIP*:!4903.50N/07201.75W-hello world"
	assert.Equal(t, []string{packet}, feed.Lines())

	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, packet, string(msg))

	resp, body = send(t, srv, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<td>N0CALL</td>")
	assert.Contains(t, body, "hello world")
}

func TestHeadIndexSendsNoBody(t *testing.T) {
	_, srv := startGateway(t, Config{Name: "APRSAIR"}, nil)

	_, page := send(t, srv, "GET / HTTP/1.1\r\n\r\n")

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = io.WriteString(conn, "HEAD / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: "HEAD"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, strconv.Itoa(len(page)), resp.Header.Get("Content-Length"))

	// Nothing may follow the header block.
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	extra, _ := io.ReadAll(br)
	assert.Empty(t, extra)
}

func TestWebSocketEchoesText(t *testing.T) {
	_, srv := startGateway(t, Config{}, nil)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Welcome to aprsgate", string(msg))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping ok", string(msg))
}

func TestBadReportIsRejected(t *testing.T) {
	feed := &recordingFeed{}
	g, srv := startGateway(t, Config{}, feed)

	resp, _ := postReport(t, srv, url.Values{"call": {"??"}, "lat": {"1"}, "lon": {"2"}})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Empty(t, feed.Lines())
	assert.Empty(t, g.Stations())

	resp, _ = send(t, srv, "GET /api/report HTTP/1.1\r\n\r\n")
	assert.Equal(t, 405, resp.StatusCode)
}

func TestStationsNewestFirst(t *testing.T) {
	g := New(Config{}, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	g.Ingest(Report{Callsign: "OLD", Time: base})
	g.Ingest(Report{Callsign: "NEW", Time: base.Add(time.Hour)})
	g.Ingest(Report{Callsign: "OLD", Time: base.Add(2 * time.Hour), Comment: "moved"})

	got := g.Stations()
	require.Len(t, got, 2)
	assert.Equal(t, "OLD", got[0].Callsign)
	assert.Equal(t, "moved", got[0].Comment)
	assert.Equal(t, "NEW", got[1].Callsign)
}

func TestStaticAndCGIRoutes(t *testing.T) {
	web := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "app.css"), []byte("body{}"), 0o644))

	cfg := Config{WebDir: web}
	if _, err := os.Stat("/bin/sh"); err == nil {
		script := filepath.Join(t.TempDir(), "time.cgi")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf 'Content-Type: text/plain\\n\\nfrom %s' \"$SERVER_NAME\"\n"), 0o755))
		cfg.CGI = map[string]CGIRoute{"/cgi/time": {Path: script}}
	}
	_, srv := startGateway(t, cfg, nil)

	resp, body := send(t, srv, "GET /app.css HTTP/1.1\r\n\r\n")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "body{}", body)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css"))

	resp, _ = send(t, srv, "GET /missing.png HTTP/1.1\r\n\r\n")
	assert.Equal(t, 404, resp.StatusCode)

	if cfg.CGI != nil {
		resp, body = send(t, srv, "GET /cgi/time HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "from aprsgate", body)
	}
}
