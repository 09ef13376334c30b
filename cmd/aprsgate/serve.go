package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aprsair/aprsgate/internal/aprsis"
	"github.com/aprsair/aprsgate/internal/config"
	"github.com/aprsair/aprsgate/internal/discovery"
	"github.com/aprsair/aprsgate/internal/gateway"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/metrics"
	"github.com/aprsair/aprsgate/internal/server"
	"github.com/aprsair/aprsgate/internal/ui"
	"github.com/aprsair/aprsgate/internal/urls"
	"github.com/aprsair/aprsgate/internal/version"
)

// Serve command flags
var (
	serveHost       string
	servePort       int
	serveAPRSISPort int
	serveNoAPRSIS   bool
	serveWebDir     string
	serveName       string
	serveLogLevel   string
	serveMetrics    string
	serveAnnounce   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the HTTP gateway and, unless disabled, the APRS-IS feed.

Settings come from the config file; flags given on the command line
override it. The gateway stops on SIGINT or SIGTERM.`,
	Example: `  # Run with the config file defaults
  aprsgate serve

  # HTTP on port 80, no APRS-IS feed, verbose logging
  aprsgate serve --port 80 --no-aprsis --log-level debug

  # Serve static files, expose metrics and announce over mDNS
  aprsgate serve --web-dir ./www --metrics 127.0.0.1:9100 --announce`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveHost, "host", "", "Address to bind (empty = all interfaces)")
	f.IntVar(&servePort, "port", 0, "HTTP port")
	f.IntVar(&serveAPRSISPort, "aprsis-port", 0, "APRS-IS feed port")
	f.BoolVar(&serveNoAPRSIS, "no-aprsis", false, "Disable the APRS-IS feed")
	f.StringVar(&serveWebDir, "web-dir", "", "Directory served for unknown paths")
	f.StringVar(&serveName, "name", "", "Server name shown to clients")
	f.StringVar(&serveLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&serveMetrics, "metrics", "", "Address of the Prometheus /metrics listener")
	f.BoolVar(&serveAnnounce, "announce", false, "Announce the gateway over mDNS")
}

// applyServeFlags copies explicitly set flags over the file values.
func applyServeFlags(cmd *cobra.Command, f *config.File) {
	changed := cmd.Flags().Changed
	if changed("host") {
		f.HTTP.Listener.Address = serveHost
		f.APRSIS.Listener.Address = serveHost
	}
	if changed("port") {
		f.HTTP.Listener.Port = servePort
	}
	if changed("aprsis-port") {
		f.APRSIS.Listener.Port = serveAPRSISPort
	}
	if changed("no-aprsis") {
		f.APRSIS.Enabled = !serveNoAPRSIS
	}
	if changed("web-dir") {
		f.HTTP.WebDir = serveWebDir
	}
	if changed("name") {
		f.HTTP.ServerName = serveName
		f.APRSIS.ServerName = serveName
	}
	if changed("log-level") {
		f.LogLevel = serveLogLevel
	}
	if changed("metrics") {
		f.Metrics.Address = serveMetrics
	}
	if changed("announce") {
		f.Discovery.Enabled = serveAnnounce
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, f)
	if err := f.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(f.LogLevel); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := startGateway(f)
	if err != nil {
		fmt.Println(ui.NewFailureResult("Gateway failed to start", err, startHints(err)...))
		return err
	}
	defer gw.shutdown()

	fmt.Println(ui.NewBanner("aprsgate", "aprsgate serve", gw.details(path)...))

	g, gctx := errgroup.WithContext(ctx)
	if f.Metrics.Address != "" {
		g.Go(func() error { return gw.collector.Serve(gctx, f.Metrics.Address) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	logging.Info("Shutting down", zap.Error(err))
	return err
}

// runningGateway is every listener started by serve.
type runningGateway struct {
	cfg       *config.File
	collector *metrics.Collector
	gateway   *gateway.Gateway
	http      *server.Server
	relay     *aprsis.Relay
	mdns      *discovery.Announcement
}

func startGateway(f *config.File) (*runningGateway, error) {
	rg := &runningGateway{cfg: f, collector: metrics.NewCollector()}

	var feed gateway.Feed
	if f.APRSIS.Enabled {
		list, err := f.APRSIS.Access.List()
		if err != nil {
			return nil, err
		}
		relay, err := aprsis.New(
			f.APRSIS.Listener.ServerConfig("aprsis"),
			aprsis.Config{ServerName: f.APRSIS.ServerName, PingInterval: f.APRSIS.PingInterval},
			server.WithACL(list),
			server.WithObserver(rg.collector),
		)
		if err != nil {
			return nil, err
		}
		rg.relay = relay
		feed = relay
	}

	routes := make(map[string]gateway.CGIRoute, len(f.HTTP.CGI.Routes))
	for p, r := range f.HTTP.CGI.Routes {
		routes[p] = gateway.CGIRoute{Path: r.Path, Args: r.Args}
	}
	rg.gateway = gateway.New(gateway.Config{Name: f.HTTP.ServerName, WebDir: f.HTTP.WebDir, CGI: routes}, feed)

	hc, err := f.HTTP.HTTPConfig()
	if err != nil {
		return nil, err
	}
	list, err := f.HTTP.Access.List()
	if err != nil {
		return nil, err
	}
	rg.http, err = server.New(
		f.HTTP.Listener.ServerConfig("http"),
		rg.gateway.Handler(hc),
		server.WithACL(list),
		server.WithObserver(rg.collector),
	)
	if err != nil {
		return nil, err
	}

	if err := rg.http.Start(); err != nil {
		return nil, err
	}
	if err := rg.collector.Watch(rg.http); err != nil {
		rg.shutdown()
		return nil, err
	}
	if rg.relay != nil {
		if err := rg.relay.Start(); err != nil {
			rg.shutdown()
			return nil, err
		}
		if err := rg.collector.Watch(rg.relay.Server()); err != nil {
			rg.shutdown()
			return nil, err
		}
	}

	if f.Discovery.Enabled {
		instance := f.Discovery.Instance
		if instance == "" {
			instance = f.HTTP.ServerName
		}
		a, err := discovery.Announce(discovery.Options{
			Instance:   instance,
			Port:       portOf(rg.http.Addr()),
			APRSISPort: rg.aprsisPort(),
			Version:    version.Get().Short(),
		})
		if err != nil {
			// The gateway is usable without mDNS.
			logging.Warn("mDNS announcement failed", zap.Error(err))
		}
		rg.mdns = a
	}
	return rg, nil
}

func (rg *runningGateway) aprsisPort() int {
	if rg.relay == nil {
		return 0
	}
	return portOf(rg.relay.Server().Addr())
}

func (rg *runningGateway) details(path string) []ui.Detail {
	d := []ui.Detail{
		{Key: "Config", Value: path},
		{Key: "HTTP", Value: addrString(rg.http.Addr())},
	}
	if rg.relay != nil {
		d = append(d, ui.Detail{Key: "APRS-IS", Value: addrString(rg.relay.Server().Addr())})
	} else {
		d = append(d, ui.Detail{Key: "APRS-IS", Value: "disabled"})
	}
	if rg.cfg.HTTP.WebDir != "" {
		d = append(d, ui.Detail{Key: "Web dir", Value: rg.cfg.HTTP.WebDir})
	}
	if rg.cfg.Metrics.Address != "" {
		d = append(d, ui.Detail{Key: "Metrics", Value: "http://" + rg.cfg.Metrics.Address + "/metrics"})
	}
	if rg.mdns != nil {
		d = append(d, ui.Detail{Key: "mDNS", Value: discovery.ServiceType})
	}
	d = append(d, ui.Detail{Key: "Access", Value: rg.http.ACL().Mode().String()})
	return d
}

func (rg *runningGateway) shutdown() {
	rg.mdns.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), rg.cfg.HTTP.Listener.GracePeriod+time.Second)
	defer cancel()
	if rg.relay != nil {
		if err := rg.relay.Server().Shutdown(ctx); err != nil {
			logging.Warn("APRS-IS feed did not drain", zap.Error(err))
		}
	}
	if err := rg.http.Shutdown(ctx); err != nil {
		logging.Warn("HTTP server did not drain", zap.Error(err))
	}
}

func startHints(err error) []string {
	if errors.Is(err, server.ErrBind) {
		return []string{
			"Another process may already use the port",
			"Ports below 1024 need elevated privileges",
			"Pick other ports with --port and --aprsis-port",
		}
	}
	return []string{"Check the config file with 'aprsgate config show'", "APRS-IS login format: " + urls.APRSISConnecting}
}

func portOf(a net.Addr) int {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func addrString(a net.Addr) string {
	if a == nil {
		return "-"
	}
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return ":" + port
	}
	return a.String()
}
