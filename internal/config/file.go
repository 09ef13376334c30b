package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aprsair/aprsgate/internal/acl"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/request"
	"github.com/aprsair/aprsgate/internal/response"
	"github.com/aprsair/aprsgate/internal/server"
)

const (
	appName    = "aprsgate"
	configFile = "config.yaml"
)

// ErrUnsupportedVersion is returned by Load for files written by a newer
// or older layout.
var ErrUnsupportedVersion = errors.New("config: unsupported version")

// Serializes writers within the process.
var fileMutex sync.Mutex

// Dir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/aprsgate or $HOME/.config/aprsgate
//   - macOS: $HOME/.config/aprsgate
//   - Windows: %LOCALAPPDATA%\aprsgate
func Dir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName), nil
		}
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(profile, "AppData", "Local", appName), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil
	}
}

// DefaultPath returns the full path of the configuration file.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads path. A missing file yields Default. Sections absent from the
// file keep their default values.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if f.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, f.Version, CurrentVersion)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Save writes the file to path atomically.
func (f *File) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# aprsgate configuration file
#
# Credentials under http.auth are stored in clear text. Keep this file
# readable by the gateway user only.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Validate reports the first setting that cannot be applied.
func (f *File) Validate() error {
	if f.LogLevel != "" {
		if _, err := logging.ParseLevel(f.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if err := f.HTTP.Listener.validate("http"); err != nil {
		return err
	}
	if _, err := f.HTTP.Access.List(); err != nil {
		return fmt.Errorf("http.access: %w", err)
	}
	for path, route := range f.HTTP.CGI.Routes {
		if route.Path == "" {
			return fmt.Errorf("http.cgi.routes[%s]: empty executable path", path)
		}
	}
	if f.APRSIS.Enabled {
		if err := f.APRSIS.Listener.validate("aprsis"); err != nil {
			return err
		}
		if _, err := f.APRSIS.Access.List(); err != nil {
			return fmt.Errorf("aprsis.access: %w", err)
		}
	}
	return nil
}

func (l Listener) validate(section string) error {
	if l.Port <= 0 || l.Port > 65535 {
		return fmt.Errorf("%s.listener.port: %d out of range", section, l.Port)
	}
	if l.MaxConnections < 0 {
		return fmt.Errorf("%s.listener.max_connections: must not be negative", section)
	}
	for _, enc := range []string{l.ResponseEncoding, l.RequestEncoding} {
		if _, err := charset(enc); err != nil {
			return fmt.Errorf("%s.listener: %w", section, err)
		}
	}
	return nil
}

// ServerConfig converts the listener into engine settings.
func (l Listener) ServerConfig(name string) server.Config {
	return server.Config{
		Name:           name,
		Host:           l.Address,
		Port:           l.Port,
		MaxConnections: l.MaxConnections,
		ReadTimeout:    l.ReadTimeout,
		MaxHeaderSize:  l.MaxHeaderSize,
		MaxBodySize:    l.MaxBodySize,
		HTTPOnly:       l.HTTPOnly,
		AbortOnStop:    l.AbortOnStop,
		GracePeriod:    l.GracePeriod,
	}
}

// List builds the access list.
func (a Access) List() (*acl.List, error) {
	mode, err := acl.ParseMode(a.Mode)
	if err != nil {
		return nil, err
	}
	return acl.New(mode, a.Allow, a.Deny)
}

// HTTPConfig converts the section into HTTP handler settings.
func (h HTTP) HTTPConfig() (server.HTTPConfig, error) {
	out, err := charset(h.Listener.ResponseEncoding)
	if err != nil {
		return server.HTTPConfig{}, err
	}
	in, err := charset(h.Listener.RequestEncoding)
	if err != nil {
		return server.HTTPConfig{}, err
	}

	names := make([]string, 0, len(h.Headers))
	for name := range h.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	headers := make(request.Header, 0, len(names))
	for _, name := range names {
		headers = append(headers, request.Field{Name: name, Value: h.Headers[name]})
	}

	return server.HTTPConfig{
		ServerName:       h.ServerName,
		Headers:          headers,
		Charset:          out,
		RequestCharset:   in,
		AuthRequired:     h.Auth.Required,
		Credentials:      h.Auth.Credentials,
		BlockedError:     h.Access.BlockedError,
		BlockedErrorCode: h.Access.BlockedErrorCode,
		MaxDownloadSize:  h.MaxDownloadSize,
		CGITimeout:       h.CGI.Timeout,
	}, nil
}

func charset(label string) (response.Charset, error) {
	if label == "" {
		return response.UTF8, nil
	}
	return response.LookupCharset(label)
}
