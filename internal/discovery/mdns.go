package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
)

const (
	// ServiceType is the mDNS service type advertised by aprsgate
	ServiceType = "_aprsgate._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for gateway discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an entry carries no port
	DefaultPort = 8080
)

// Announcement is a running mDNS registration.
type Announcement struct {
	server *zeroconf.Server
}

// Options describes what Announce publishes.
type Options struct {
	Instance   string
	Port       int
	APRSISPort int // 0 when the feed is disabled
	Version    string
}

// TXT returns the TXT records for o.
func (o Options) TXT() []string {
	txt := []string{"path=/"}
	if o.Version != "" {
		txt = append(txt, "version="+o.Version)
	}
	if o.APRSISPort > 0 {
		txt = append(txt, "aprsis="+strconv.Itoa(o.APRSISPort))
	}
	return txt
}

// Announce registers the gateway on every multicast interface.
func Announce(o Options) (*Announcement, error) {
	if o.Instance == "" {
		return nil, fmt.Errorf("announce: empty instance name")
	}
	srv, err := zeroconf.Register(o.Instance, ServiceType, ServiceDomain, o.Port, o.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Announcing gateway over mDNS",
		zap.String("instance", o.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", o.Port),
	)
	return &Announcement{server: srv}, nil
}

// Shutdown withdraws the registration.
func (a *Announcement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Scanner handles mDNS gateway discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every gateway that answers before the timeout or ctx ends.
// An instance seen on several interfaces is reported once.
func (s *Scanner) Scan(ctx context.Context) ([]*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found []*Gateway
		seen  = make(map[string]bool)
	)
	err := s.browse(ctx, func(g *Gateway) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[g.Instance] {
			seen[g.Instance] = true
			found = append(found, g)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

// WaitFor returns the first gateway announcing instance.
func (s *Scanner) WaitFor(ctx context.Context, instance string) (*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var match *Gateway
	err := s.browse(ctx, func(g *Gateway) bool {
		if strings.EqualFold(g.Instance, instance) {
			match = g
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("gateway %s not found within timeout", instance)
	}
	return match, nil
}

// browse feeds parsed entries to fn until fn returns false or ctx ends.
// fn is called from a single goroutine and browse waits for it to finish.
func (s *Scanner) browse(ctx context.Context, fn func(*Gateway) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if g := parseServiceEntry(entry); g != nil && !fn(g) {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-done
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Gateway.
// Returns nil for entries without an address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Gateway {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Gateway{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
