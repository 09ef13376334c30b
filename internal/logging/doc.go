// Package logging provides structured logging for the aprsgate engine.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used throughout the servers. It provides general logging
// functions and a few specialized helpers for connection-level events.
//
// # Log Levels
//
//   - Debug: hex dumps, WebSocket payloads, response summaries
//   - Info: connections accepted/closed, requests, blocked peers
//   - Warn: recovered handler panics, CGI failures
//   - Error: accept failures, startup failures
//
// # Structured Logging
//
//	logging.Info("Report received",
//	    zap.String("callsign", "R2ABC-7"),
//	    zap.Float64("lat", 55.75),
//	)
//
// Connection events carry the server name and the connection id:
//
//	logging.LogConnection("http", 42, "10.0.0.5:51234", "connection_accepted")
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to APRSGATE_LOG_LEVEL; if that is empty too the
// logger is a no-op.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
