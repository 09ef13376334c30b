package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "info", want: zapcore.InfoLevel},
		{in: "warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "loud", want: zapcore.InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected the no-op logger")
	}
}

func TestLogConnectionFields(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	LogConnection("http", 42, "10.0.0.5:4000", "connection_accepted")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["conn_id"] != uint64(42) {
		t.Errorf("conn_id = %v", fields["conn_id"])
	}
	if fields["event"] != "connection_accepted" {
		t.Errorf("event = %v", fields["event"])
	}
	if fields["server"] != "http" {
		t.Errorf("server = %v", fields["server"])
	}
}

func TestRawBytesDumpIsCapped(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	LogRawBytes("frame", []byte(strings.Repeat("A", 1000)))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	ascii, _ := fields["ascii"].(string)
	if len(ascii) > maxDump+3 {
		t.Errorf("ascii dump has %d chars, cap is %d", len(ascii), maxDump)
	}
	if fields["length"] != int64(1000) {
		t.Errorf("length = %v (%T)", fields["length"], fields["length"])
	}
}

func TestAsciiDumpMasksControlBytes(t *testing.T) {
	if got := asciiDump([]byte("ok\r\n\x00")); got != "ok..." {
		t.Errorf("asciiDump = %q", got)
	}
}
