package config

import "time"

// CurrentVersion is the only configuration layout understood.
const CurrentVersion = 1

// File represents the entire configuration file.
type File struct {
	Version   int       `yaml:"version"`
	LogLevel  string    `yaml:"log_level,omitempty"` // debug, info, warn, error; empty is silent
	HTTP      HTTP      `yaml:"http"`
	APRSIS    APRSIS    `yaml:"aprsis"`
	Discovery Discovery `yaml:"discovery"`
	Metrics   Metrics   `yaml:"metrics"`
}

// Listener holds the engine settings shared by every listener.
type Listener struct {
	Address          string        `yaml:"address,omitempty"` // empty binds every interface
	Port             int           `yaml:"port"`
	MaxConnections   int           `yaml:"max_connections"` // below 2 serves inline
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	MaxHeaderSize    int           `yaml:"max_header_size"`
	MaxBodySize      int           `yaml:"max_body_size"`
	ResponseEncoding string        `yaml:"response_encoding,omitempty"`
	RequestEncoding  string        `yaml:"request_encoding,omitempty"`
	HTTPOnly         bool          `yaml:"http_only"`
	AbortOnStop      bool          `yaml:"abort_on_stop"`
	GracePeriod      time.Duration `yaml:"grace_period"`
}

// Access configures the address rules of a listener.
type Access struct {
	Mode             string   `yaml:"mode"` // none, allow or deny
	Allow            []string `yaml:"allow,omitempty"`
	Deny             []string `yaml:"deny,omitempty"`
	BlockedError     bool     `yaml:"blocked_error"`
	BlockedErrorCode int      `yaml:"blocked_error_code,omitempty"` // 423 when zero
}

// Auth configures HTTP basic authentication.
type Auth struct {
	Required    bool              `yaml:"required"`
	Credentials map[string]string `yaml:"credentials,omitempty"` // user -> password
}

// CGIRoute maps a request path to an executable.
type CGIRoute struct {
	Path string `yaml:"path"`
	Args string `yaml:"args,omitempty"`
}

// CGI configures the CGI bridge.
type CGI struct {
	Timeout time.Duration       `yaml:"timeout"` // zero waits for the child indefinitely
	Routes  map[string]CGIRoute `yaml:"routes,omitempty"`
}

// HTTP configures the gateway front end.
type HTTP struct {
	Listener        Listener          `yaml:"listener"`
	Access          Access            `yaml:"access"`
	ServerName      string            `yaml:"server_name"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Auth            Auth              `yaml:"auth"`
	WebDir          string            `yaml:"web_dir,omitempty"`
	MaxDownloadSize int64             `yaml:"max_download_size"`
	CGI             CGI               `yaml:"cgi"`
}

// APRSIS configures the receive-only APRS-IS feed.
type APRSIS struct {
	Enabled      bool          `yaml:"enabled"`
	Listener     Listener      `yaml:"listener"`
	Access       Access        `yaml:"access"`
	ServerName   string        `yaml:"server_name"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Discovery configures the mDNS announcement.
type Discovery struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"` // defaults to the HTTP server name
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Address string `yaml:"address,omitempty"` // empty disables
}

// Default returns the configuration used when no file exists.
func Default() *File {
	return &File{
		Version: CurrentVersion,
		HTTP: HTTP{
			Listener:        defaultListener(8080),
			Access:          Access{Mode: "none"},
			ServerName:      "aprsgate",
			Headers:         map[string]string{"Server": "aprsgate"},
			MaxDownloadSize: 32 << 20,
			CGI:             CGI{Routes: map[string]CGIRoute{}},
		},
		APRSIS: APRSIS{
			Enabled:      true,
			Listener:     defaultListener(14580),
			Access:       Access{Mode: "none"},
			ServerName:   "aprsgate",
			PingInterval: 15 * time.Second,
		},
		Discovery: Discovery{Enabled: false},
	}
}

func defaultListener(port int) Listener {
	return Listener{
		Port:             port,
		MaxConnections:   50,
		ReadTimeout:      10 * time.Second,
		MaxHeaderSize:    4096,
		MaxBodySize:      65536,
		ResponseEncoding: "utf-8",
		RequestEncoding:  "utf-8",
		GracePeriod:      5 * time.Second,
	}
}
