package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprsair/aprsgate/internal/acl"
)

func startServer(t *testing.T, cfg Config, h Handler, opts ...Option) *Server {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	srv, err := New(cfg, h, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestCapacityNeverExceedsMaxConnections(t *testing.T) {
	const limit = 3
	var active, peak, overLimit atomic.Int32

	srv := startServer(t, Config{MaxConnections: limit}, HandlerFunc(func(c *Conn) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if c.Server().Stats().AliveClients > limit {
			overLimit.Add(1)
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		_, _ = c.Write([]byte("ok"))
	}))

	var wg sync.WaitGroup
	var served atomic.Int32
	for i := 0; i < limit+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
			buf := make([]byte, 2)
			if _, err := io.ReadFull(conn, buf); err == nil && string(buf) == "ok" {
				served.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit+5), served.Load(), "every client is eventually served")
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Zero(t, overLimit.Load())
	assert.Eventually(t, func() bool { return srv.Stats().AliveClients == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(limit+5), srv.Stats().TotalClients)
}

type blockingHandler struct {
	served  atomic.Int32
	blocked atomic.Int32
}

func (h *blockingHandler) ServeConn(c *Conn) {
	h.served.Add(1)
	_, _ = c.Write([]byte("welcome"))
}

func (h *blockingHandler) OnBlockedClient(c *Conn) {
	h.blocked.Add(1)
	_, _ = c.Write([]byte("blocked"))
}

func TestAllowListBlocksAndInvokesHookOnce(t *testing.T) {
	list, err := acl.New(acl.AllowList, []string{"10.0.0.*"}, nil)
	require.NoError(t, err)

	h := &blockingHandler{}
	srv := startServer(t, Config{}, h, WithACL(list))

	conn := dial(t, srv)
	got, _ := io.ReadAll(conn)
	assert.Equal(t, "blocked", string(got))

	assert.Eventually(t, func() bool { return h.blocked.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.served.Load())
	assert.Equal(t, uint64(1), srv.Stats().Blocked)
	assert.Zero(t, srv.Stats().TotalClients, "blocked clients never take a slot")

	// Loopback is admitted once the rule covers it.
	require.NoError(t, list.SetAllow([]string{"10.0.0.*", "127.0.0.*"}))
	conn = dial(t, srv)
	got, _ = io.ReadAll(conn)
	assert.Equal(t, "welcome", string(got))
	assert.Equal(t, int32(1), h.blocked.Load())
}

type pickyHandler struct{ HandlerFunc }

func (pickyHandler) AcceptClient(string) bool { return false }

func TestAcceptorRejectsSilently(t *testing.T) {
	var served atomic.Int32
	srv := startServer(t, Config{}, pickyHandler{HandlerFunc(func(*Conn) { served.Add(1) })})

	conn := dial(t, srv)
	got, err := io.ReadAll(conn)
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, served.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1"}, HandlerFunc(func(*Conn) {}))
	require.NoError(t, err)

	srv.Stop()
	require.NoError(t, srv.Start())
	assert.True(t, srv.Running())
	assert.NotNil(t, srv.Addr())

	srv.Stop()
	srv.Stop()
	assert.False(t, srv.Running())
	assert.False(t, srv.Stats().Stopped.IsZero())

	// A stopped server can be started again.
	require.NoError(t, srv.Start())
	srv.Stop()
}

func TestStartWhileRunning(t *testing.T) {
	srv := startServer(t, Config{}, HandlerFunc(func(*Conn) {}))

	assert.ErrorIs(t, srv.Start(), ErrAlreadyRunning)
	assert.ErrorIs(t, srv.SetConfig(Config{Port: 9}), ErrAlreadyRunning)

	srv.Stop()
	require.NoError(t, srv.SetConfig(Config{Host: "127.0.0.1", MaxConnections: 7}))
	assert.Equal(t, 7, srv.Config().MaxConnections)
}

func TestBindError(t *testing.T) {
	first := startServer(t, Config{}, HandlerFunc(func(*Conn) {}))
	port := first.Addr().(*net.TCPAddr).Port

	second, err := New(Config{Host: "127.0.0.1", Port: port}, HandlerFunc(func(*Conn) {}))
	require.NoError(t, err)
	err = second.Start()
	assert.ErrorIs(t, err, ErrBind)
	assert.False(t, second.Running())
	assert.Equal(t, uint64(1), second.Stats().Errors)
	assert.NotEmpty(t, second.Stats().LastError)
}

func TestPanicInHandlerIsContained(t *testing.T) {
	var calls atomic.Int32
	srv := startServer(t, Config{}, HandlerFunc(func(c *Conn) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		_, _ = c.Write([]byte("second"))
	}))

	first := dial(t, srv)
	_, _ = io.ReadAll(first)

	second := dial(t, srv)
	got, _ := io.ReadAll(second)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, uint64(1), srv.Stats().Errors)
}

func TestSingleThreadedMode(t *testing.T) {
	srv := startServer(t, Config{MaxConnections: 1}, HandlerFunc(func(c *Conn) {
		_, _ = c.Write([]byte("inline"))
	}))
	assert.False(t, srv.Config().Threaded())

	for i := 0; i < 3; i++ {
		conn := dial(t, srv)
		got, _ := io.ReadAll(conn)
		assert.Equal(t, "inline", string(got))
	}
}

// waitHandler holds every connection until the peer closes or the read
// fails.
func waitHandler(ready chan<- struct{}) HandlerFunc {
	return func(c *Conn) {
		ready <- struct{}{}
		buf := make([]byte, 16)
		for {
			if _, err := c.ReadWithin(buf, 0); err != nil {
				return
			}
		}
	}
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	ready := make(chan struct{}, 4)
	srv := startServer(t, Config{}, waitHandler(ready))

	a := dial(t, srv)
	b := dial(t, srv)
	dead := dial(t, srv)
	for i := 0; i < 3; i++ {
		<-ready
	}
	require.NoError(t, dead.Close())

	srv.Broadcast([]byte("# beacon\r\n"))

	for _, conn := range []net.Conn{a, b} {
		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "# beacon\r\n", line)
	}
}

func TestAbortOnStopClosesConnections(t *testing.T) {
	ready := make(chan struct{}, 2)
	srv, err := New(Config{Host: "127.0.0.1", AbortOnStop: true, GracePeriod: 2 * time.Second}, waitHandler(ready))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	conn := dial(t, srv)
	<-ready
	assert.Equal(t, 1, srv.Stats().AliveClients)

	srv.Stop()
	assert.Equal(t, 0, srv.Stats().AliveClients)

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestShutdownWaitsForWorkers(t *testing.T) {
	release := make(chan struct{})
	srv, err := New(Config{Host: "127.0.0.1"}, HandlerFunc(func(c *Conn) { <-release }))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	_ = dial(t, srv)

	require.Eventually(t, func() bool { return srv.Stats().AliveClients == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig(8080)
	assert.Equal(t, 50, cfg.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 4096, cfg.MaxHeaderSize)
	assert.Equal(t, 65536, cfg.MaxBodySize)
	assert.Equal(t, ":8080", cfg.Address())

	_, err := New(Config{Port: 70000}, HandlerFunc(func(*Conn) {}))
	assert.Error(t, err)
}

type failingListener struct {
	calls atomic.Int32
	addr  net.Addr
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.calls.Add(1)
	return nil, errors.New("accept: too many open files")
}
func (l *failingListener) Close() error   { return nil }
func (l *failingListener) Addr() net.Addr { return l.addr }

func TestAcceptErrorsBackOff(t *testing.T) {
	srv, err := New(Config{Name: "backoff"}, HandlerFunc(func(*Conn) {}))
	require.NoError(t, err)

	ln := &failingListener{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go srv.acceptConnections(ctx, ln, srv.Config(), context.Background(), done)

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	// 5+10+20+40+80ms fit in the window; a spinning loop would make
	// thousands of calls.
	assert.LessOrEqual(t, ln.calls.Load(), int32(8))
	assert.GreaterOrEqual(t, srv.Stats().Errors, uint64(2))
}

func TestAcceptBackoff(t *testing.T) {
	d := acceptBackoff(0)
	assert.Equal(t, 5*time.Millisecond, d)
	assert.Equal(t, 10*time.Millisecond, acceptBackoff(d))
	assert.Equal(t, time.Second, acceptBackoff(800*time.Millisecond))
	assert.Equal(t, time.Second, acceptBackoff(time.Second))
}

func TestNameReadableWhileReconfigured(t *testing.T) {
	srv, err := New(Config{Name: "first"}, HandlerFunc(func(*Conn) {}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			srv.ReportError(errors.New("late worker failure"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, srv.SetConfig(Config{Name: "second"}))
		}
	}()
	wg.Wait()

	assert.Equal(t, "second", srv.Name())
	assert.Equal(t, uint64(200), srv.Stats().Errors)
}
