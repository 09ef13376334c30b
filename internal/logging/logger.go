package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LogLevelEnvVar names the environment variable consulted when no level is
// given. Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "APRSGATE_LOG_LEVEL"

// maxDump caps hex and ascii dumps in log fields
const maxDump = 256

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Initialize installs a console logger at level. An empty level falls back
// to APRSGATE_LOG_LEVEL, and when that is empty too the logger stays silent.
// Unknown level names log at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger.Store(zap.NewNop())
		return nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if term.IsTerminal(int(os.Stdout.Fd())) {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	errOut, _, err := zap.Open("stderr")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl))
	logger.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(errOut)))
	return nil
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// SetLogger replaces the global logger; nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// GetLogger returns the global logger.
func GetLogger() *zap.Logger { return logger.Load() }

func Debug(msg string, fields ...zap.Field) { logger.Load().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Load().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Load().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Load().Error(msg, fields...) }

// Fatal logs and exits the process.
func Fatal(msg string, fields ...zap.Field) { logger.Load().Fatal(msg, fields...) }

// Sync flushes buffered entries.
func Sync() { _ = logger.Load().Sync() }

// LogConnection records a lifecycle event of connection id on server.
func LogConnection(server string, id uint64, remoteAddr string, event string) {
	Info("Connection event",
		zap.String("server", server),
		zap.Uint64("conn_id", id),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogBlocked records a peer refused by the access list.
func LogBlocked(server string, remoteAddr string, mode string) {
	Info("Connection blocked by access rules",
		zap.String("server", server),
		zap.String("remote_addr", remoteAddr),
		zap.String("acl_mode", mode),
	)
}

func LogHTTPRequest(remoteAddr string, method string, path string, headers map[string]string) {
	Info("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", headers),
	)
}

func LogHTTPResponse(remoteAddr string, statusCode int, bodyLen int) {
	Debug("HTTP response",
		zap.String("remote_addr", remoteAddr),
		zap.Int("status", statusCode),
		zap.Int("body_length", bodyLen),
	)
}

// LogWebSocketMessage logs a frame payload; the hex dump is only built when
// debug is enabled.
func LogWebSocketMessage(remoteAddr string, direction string, data []byte) {
	l := logger.Load()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug("WebSocket data",
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
	)
}

// LogRawBytes dumps data as hex and printable ascii.
func LogRawBytes(label string, data []byte) {
	if !logger.Load().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func truncate(data []byte) ([]byte, bool) {
	if len(data) > maxDump {
		return data[:maxDump], true
	}
	return data, false
}

func hexDump(data []byte) string {
	b, cut := truncate(data)
	s := hex.EncodeToString(b)
	if cut {
		s += "..."
	}
	return s
}

func asciiDump(data []byte) string {
	b, _ := truncate(data)
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 32 || c > 126 {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
