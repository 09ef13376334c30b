package gateway

import (
	"errors"
	"testing"
	"time"
)

func TestParseReport(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		params  map[string]string
		packet  string
		wantErr bool
	}{
		{
			name:   "basic",
			params: map[string]string{"call": "n0call-9", "lat": "49.0583", "lon": "-72.0292", "comment": "on the air"},
			packet: "N0CALL-9>APRS,TCPIP*:!4903.50N/07201.75W-on the air",
		},
		{
			name:   "southern hemisphere with symbol",
			params: map[string]string{"call": "VK2ABC", "lat": "-33.8688", "lon": "151.2093", "symbol": "/>"},
			packet: "VK2ABC>APRS,TCPIP*:!3352.13S/15112.56E>",
		},
		{name: "missing call", params: map[string]string{"lat": "1", "lon": "1"}, wantErr: true},
		{name: "bad call", params: map[string]string{"call": "N0 CALL", "lat": "1", "lon": "1"}, wantErr: true},
		{name: "lat out of range", params: map[string]string{"call": "N0CALL", "lat": "91", "lon": "1"}, wantErr: true},
		{name: "lon not a number", params: map[string]string{"call": "N0CALL", "lat": "1", "lon": "east"}, wantErr: true},
		{name: "bad symbol", params: map[string]string{"call": "N0CALL", "lat": "1", "lon": "1", "symbol": "abc"}, wantErr: true},
		{name: "multi-line comment", params: map[string]string{"call": "N0CALL", "lat": "1", "lon": "1", "comment": "a\r\nb"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReport(tt.params, now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReport) {
					t.Fatalf("ParseReport() error = %v, want ErrInvalidReport", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReport() error = %v", err)
			}
			if got := r.Packet(); got != tt.packet {
				t.Errorf("Packet() = %q, want %q", got, tt.packet)
			}
			if !r.Time.Equal(now) {
				t.Errorf("Time = %v, want %v", r.Time, now)
			}
		})
	}
}

func TestFormatCoordinates(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatLat(0), "0000.00N"},
		{FormatLat(-0.5), "0030.00S"},
		{FormatLat(45.99999), "4600.00N"},
		{FormatLon(0), "00000.00E"},
		{FormatLon(-179.5), "17930.00W"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
