package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprsair/aprsgate/internal/server"
)

func TestCollectorCountsEngineEvents(t *testing.T) {
	c := NewCollector()
	srv, err := server.New(server.Config{Name: "http", Host: "127.0.0.1"}, server.HandlerFunc(func(conn *server.Conn) {
		_, _ = conn.Write([]byte("hi"))
	}), server.WithObserver(c))
	require.NoError(t, err)
	require.NoError(t, c.Watch(srv))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_, _ = io.ReadAll(conn)
	_ = conn.Close()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(c.accepted.WithLabelValues("http")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.CollectAndCount(c.lifetime) == 1
	}, time.Second, 5*time.Millisecond)

	c.ResponseSent("http", 404)
	c.ResponseSent("http", 404)
	c.ConnBlocked("http")
	c.Error("http", io.EOF)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.responses.WithLabelValues("http", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocked.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("http")))

	assert.Error(t, c.Watch(srv), "a server is watched once")
}

func TestServeListenerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.ConnAccepted("aprsis")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `aprsgate_connections_accepted_total{server="aprsis"} 1`), string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("metrics listener did not stop")
	}
}
