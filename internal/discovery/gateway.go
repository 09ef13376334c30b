package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Gateway represents an aprsgate instance found on the network
type Gateway struct {
	// Instance is the advertised instance name (e.g., "APRSAIR")
	Instance string

	// Hostname is the mDNS hostname (e.g., "shack-pi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the HTTP port of the gateway
	Port int

	// Metadata contains the TXT record data.
	// Announce publishes "version", "path" and, when enabled, "aprsis".
	Metadata map[string]string

	// DiscoveredAt is when the gateway answered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the gateway
func (g *Gateway) String() string {
	return fmt.Sprintf("aprsgate %s (%s) at %s", g.Instance, g.Hostname, net.JoinHostPort(g.IP, strconv.Itoa(g.Port)))
}

// BaseURL returns the HTTP base URL of the gateway
func (g *Gateway) BaseURL() string {
	return "http://" + net.JoinHostPort(g.IP, strconv.Itoa(g.Port))
}

// WebSocketURL returns the URL of the live feed
func (g *Gateway) WebSocketURL() string {
	return "ws://" + net.JoinHostPort(g.IP, strconv.Itoa(g.Port)) + "/ws"
}

// APRSISPort returns the advertised APRS-IS port, or 0 when the feed is off
func (g *Gateway) APRSISPort() int {
	p, err := strconv.Atoi(g.GetMetadata("aprsis"))
	if err != nil {
		return 0
	}
	return p
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (g *Gateway) GetMetadata(key string) string {
	if g.Metadata == nil {
		return ""
	}
	return g.Metadata[key]
}
