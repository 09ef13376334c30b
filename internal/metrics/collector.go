// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/server"
)

const namespace = "aprsgate"

// Collector implements server.Observer on top of Prometheus vectors.
type Collector struct {
	reg *prometheus.Registry

	accepted  *prometheus.CounterVec
	blocked   *prometheus.CounterVec
	lifetime  *prometheus.HistogramVec
	responses *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

var _ server.Observer = (*Collector)(nil)

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections handed to a worker.",
		}, []string{"server"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_blocked_total",
			Help:      "Connections rejected by the access rules.",
		}, []string{"server"}),
		lifetime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Time from accept to close.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 1800},
		}, []string{"server"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Responses written, by status code.",
		}, []string{"server", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors counted by the engine.",
		}, []string{"server"}),
	}
	c.reg.MustRegister(c.accepted, c.blocked, c.lifetime, c.responses, c.errors)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Watch exports the live connection count of srv.
func (c *Collector) Watch(srv *server.Server) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "connections_alive",
		Help:        "Connections currently registered.",
		ConstLabels: prometheus.Labels{"server": srv.Name()},
	}, func() float64 { return float64(srv.Stats().AliveClients) })
	if err := c.reg.Register(g); err != nil {
		return fmt.Errorf("failed to watch %s: %w", srv.Name(), err)
	}
	return nil
}

func (c *Collector) ConnAccepted(name string) { c.accepted.WithLabelValues(name).Inc() }

func (c *Collector) ConnBlocked(name string) { c.blocked.WithLabelValues(name).Inc() }

func (c *Collector) ConnClosed(name string, lifetime time.Duration) {
	c.lifetime.WithLabelValues(name).Observe(lifetime.Seconds())
}

func (c *Collector) ResponseSent(name string, code int) {
	c.responses.WithLabelValues(name, strconv.Itoa(code)).Inc()
}

func (c *Collector) Error(name string, _ error) { c.errors.WithLabelValues(name).Inc() }

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	return c.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (c *Collector) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	logging.Info("Metrics listener started", zap.String("addr", ln.Addr().String()))
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener failed: %w", err)
	}
	return nil
}
