package request

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
)

// Request is a parsed text-protocol request.
type Request struct {
	Method string
	// Target is the raw request target as sent, path plus query.
	Target string
	Proto  string

	// Path is the percent-decoded path without the query string.
	Path string
	// RawQuery is the percent-decoded query string without the leading '?'.
	RawQuery string
	// Query holds decoded query parameters. Repeated names are joined with ",".
	Query map[string]string

	Header Header
	Body   []byte

	RemoteAddr string
}

// Parse builds a Request from a frame read off the connection.
func Parse(f *Frame, remoteAddr string) (*Request, error) {
	r, err := ParseHeaderBlock(string(f.Header))
	if err != nil {
		return nil, err
	}
	r.Body = f.Body
	r.RemoteAddr = remoteAddr
	return r, nil
}

// ParseHeaderBlock parses a request line and header block.
func ParseHeaderBlock(block string) (*Request, error) {
	line := block
	if i := strings.IndexByte(block, '\n'); i >= 0 {
		line = block[:i]
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, strings.TrimSpace(line))
	}

	r := &Request{
		Method: strings.ToUpper(parts[0]),
		Target: parts[1],
		Proto:  "HTTP/1.0",
		Header: ParseHeader(block),
	}
	if len(parts) > 2 {
		r.Proto = parts[2]
	}

	path, query, _ := strings.Cut(r.Target, "?")
	r.Path = unescape(path)
	r.RawQuery = unescape(query)
	r.Query = ParseParams(query)
	return r, nil
}

// ParseParams splits name=value pairs on '&' and '?'. Pairs with an empty
// name or value are skipped. A repeated name appends to the earlier value
// with a comma.
func ParseParams(s string) map[string]string {
	params := make(map[string]string)
	pairs := strings.FieldsFunc(s, func(r rune) bool { return r == '&' || r == '?' })
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, value = unescape(name), unescape(value)
		if name == "" || value == "" {
			continue
		}
		if prev, seen := params[name]; seen {
			params[name] = prev + "," + value
		} else {
			params[name] = value
		}
	}
	return params
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// Get returns a header value.
func (r *Request) Get(name string) string { return r.Header.Get(name) }

// Accept returns the Accept header.
func (r *Request) Accept() string { return r.Get("Accept") }

// AcceptLanguage returns the Accept-Language header.
func (r *Request) AcceptLanguage() string { return r.Get("Accept-Language") }

// AcceptEncoding returns the Accept-Encoding header.
func (r *Request) AcceptEncoding() string { return r.Get("Accept-Encoding") }

// Authorization returns the Authorization header.
func (r *Request) Authorization() string { return r.Get("Authorization") }

// CacheControl returns the Cache-Control header.
func (r *Request) CacheControl() string { return r.Get("Cache-Control") }

// Cookie returns the Cookie header.
func (r *Request) Cookie() string { return r.Get("Cookie") }

// ContentEncoding returns the Content-Encoding header.
func (r *Request) ContentEncoding() string { return r.Get("Content-Encoding") }

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string { return r.Get("Content-Type") }

// Origin returns the Origin header.
func (r *Request) Origin() string { return r.Get("Origin") }

// Referer returns the Referer header.
func (r *Request) Referer() string { return r.Get("Referer") }

// UserAgent returns the User-Agent header.
func (r *Request) UserAgent() string { return r.Get("User-Agent") }

// Host returns the Host header.
func (r *Request) Host() string { return r.Get("Host") }

// ContentLength returns the declared body length and whether the header
// is present and numeric.
func (r *Request) ContentLength() (int, bool) {
	v, ok := r.Header.Lookup("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsWebSocketUpgrade reports whether the client asked for a WebSocket upgrade.
func (r *Request) IsWebSocketUpgrade() bool {
	return strings.EqualFold(r.Get("Upgrade"), "websocket") || r.Header.Has("Sec-WebSocket-Key")
}

// BasicAuth decodes an "Authorization: Basic" header. ok is false when the
// header is missing or malformed.
func (r *Request) BasicAuth() (user, password string, ok bool) {
	auth := r.Authorization()
	const prefix = "basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	user, password, ok = strings.Cut(string(raw), ":")
	if !ok || user == "" {
		return "", "", false
	}
	return user, password, true
}

// User returns the basic-auth user name, or "".
func (r *Request) User() string {
	u, _, _ := r.BasicAuth()
	return u
}

// BodyText decodes the body with enc. A nil encoding treats the body as UTF-8.
func (r *Request) BodyText(enc encoding.Encoding) string {
	if enc == nil || len(r.Body) == 0 {
		return string(r.Body)
	}
	out, err := enc.NewDecoder().Bytes(r.Body)
	if err != nil {
		return string(r.Body)
	}
	return string(out)
}

// PostParams parses a form-encoded body with the query merge rules.
func (r *Request) PostParams(enc encoding.Encoding) map[string]string {
	return ParseParams(strings.ReplaceAll(r.BodyText(enc), "+", "%20"))
}

// Param looks name up in the query first, then in the post parameters.
func (r *Request) Param(name string, enc encoding.Encoding) (string, bool) {
	if v, ok := r.Query[name]; ok {
		return v, true
	}
	v, ok := r.PostParams(enc)[name]
	return v, ok
}
