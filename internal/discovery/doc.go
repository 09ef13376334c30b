// Package discovery announces and finds aprsgate instances with mDNS.
//
// A running gateway registers itself as "_aprsgate._tcp" with TXT records
// carrying its version, root path and, when the feed is enabled, the
// APRS-IS port. Scanner browses for the same service type.
//
// # Usage Example
//
//	a, err := discovery.Announce(discovery.Options{Instance: "APRSAIR", Port: 8080})
//	if err != nil {
//	    return err
//	}
//	defer a.Shutdown()
//
//	gateways, err := discovery.NewScanner().Scan(ctx)
//	for _, g := range gateways {
//	    fmt.Println(g)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Gateways must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
