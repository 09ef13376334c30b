// Package server implements the connection engine: a TCP listener that
// hands each accepted connection to a Handler on its own goroutine.
//
// # Accepting
//
// The accept loop never blocks on a slow client. For every connection it
// asks the handler's optional Acceptor, then the access list. A rejected
// peer is passed to the optional BlockedHandler and closed without taking
// a worker slot. An admitted peer waits for one of MaxConnections slots and
// is then served on a fresh goroutine. With MaxConnections below two, every
// connection is served inline on the accept loop.
//
// # Lifecycle
//
// Start binds and returns. Stop closes the listener and joins the accept
// loop; it is safe to call any number of times. In-flight connections are
// left to finish unless AbortOnStop is set, in which case their sockets are
// closed and their contexts cancelled, and Stop waits up to GracePeriod.
//
// # HTTP
//
// HTTPHandler reads one request per connection with request.FrameReader and
// hands an Exchange to a Router. The Exchange writes responses and can
// switch to WebSocket (ServeWebSocket), relay to a CGI executable
// (PassCGI) or serve files (ServeFile). PrefixedHandler implements a
// length-prefixed binary upload protocol on the same framing.
//
// # Usage Example
//
//	h := server.NewHTTPHandler(server.HTTPConfig{ServerName: "gw"}, router)
//	srv, err := server.New(server.Config{Port: 8080}, h)
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
package server
