// Package config loads and saves the aprsgate configuration file.
//
// The file is YAML (version 1) with one section per component: the HTTP
// front end, the APRS-IS feed, mDNS discovery and the metrics listener.
// Durations use Go syntax ("10s", "1m30s").
//
// # Configuration File Location
//
// DefaultPath follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/aprsgate/config.yaml or $HOME/.config/aprsgate/config.yaml
//   - macOS: $HOME/.config/aprsgate/config.yaml
//   - Windows: %LOCALAPPDATA%\aprsgate\config.yaml
//
// # Usage Example
//
//	f, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	httpCfg, err := f.HTTP.HTTPConfig()
//	if err != nil {
//	    return err
//	}
//	srv, err := server.New(f.HTTP.Listener.ServerConfig("http"), gw.Handler(httpCfg))
//
// Save writes to a temporary file and renames it over the target, so a
// crash never leaves a truncated file behind.
package config
