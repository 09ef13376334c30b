package gateway

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidReport is returned for reports that cannot be relayed.
	ErrInvalidReport = errors.New("gateway: invalid report")

	callsignPattern = regexp.MustCompile(`^[A-Z0-9]{3,7}(-[0-9A-Z]{1,2})?$`)
)

// Report is the last known position of a station.
type Report struct {
	Callsign    string
	Lat         float64
	Lon         float64
	SymbolTable string
	Symbol      string
	Comment     string
	Time        time.Time
}

// ParseReport builds a report from form parameters: call, lat, lon and
// the optional symbol (table and code, default "/-") and comment.
func ParseReport(params map[string]string, now time.Time) (Report, error) {
	r := Report{
		Callsign:    strings.ToUpper(strings.TrimSpace(params["call"])),
		SymbolTable: "/",
		Symbol:      "-",
		Comment:     strings.TrimSpace(params["comment"]),
		Time:        now,
	}
	if !callsignPattern.MatchString(r.Callsign) {
		return Report{}, fmt.Errorf("%w: callsign %q", ErrInvalidReport, params["call"])
	}

	var err error
	if r.Lat, err = parseCoord(params["lat"], 90); err != nil {
		return Report{}, fmt.Errorf("%w: lat: %v", ErrInvalidReport, err)
	}
	if r.Lon, err = parseCoord(params["lon"], 180); err != nil {
		return Report{}, fmt.Errorf("%w: lon: %v", ErrInvalidReport, err)
	}

	if s := params["symbol"]; s != "" {
		if len(s) != 2 {
			return Report{}, fmt.Errorf("%w: symbol %q", ErrInvalidReport, s)
		}
		r.SymbolTable, r.Symbol = s[:1], s[1:]
	}
	if strings.ContainsAny(r.Comment, "\r\n") {
		return Report{}, fmt.Errorf("%w: comment spans lines", ErrInvalidReport)
	}
	if len(r.Comment) > 43 {
		r.Comment = r.Comment[:43]
	}
	return r, nil
}

func parseCoord(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%v out of range", v)
	}
	return v, nil
}

// Packet renders the report as an uncompressed APRS position packet
// without timestamp.
func (r Report) Packet() string {
	return fmt.Sprintf("%s>APRS,TCPIP*:!%s%s%s%s%s",
		r.Callsign, FormatLat(r.Lat), r.SymbolTable, FormatLon(r.Lon), r.Symbol, r.Comment)
}

// FormatLat renders degrees as DDMM.mmN.
func FormatLat(v float64) string {
	hemi := "N"
	if v < 0 {
		hemi, v = "S", -v
	}
	d, m := degMin(v)
	return fmt.Sprintf("%02d%05.2f%s", d, m, hemi)
}

// FormatLon renders degrees as DDDMM.mmE.
func FormatLon(v float64) string {
	hemi := "E"
	if v < 0 {
		hemi, v = "W", -v
	}
	d, m := degMin(v)
	return fmt.Sprintf("%03d%05.2f%s", d, m, hemi)
}

func degMin(v float64) (int, float64) {
	d := math.Floor(v)
	m := math.Round((v-d)*60*100) / 100
	if m >= 60 {
		d++
		m = 0
	}
	return int(d), m
}
