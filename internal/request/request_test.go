package request

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReadFrameStopsAtContentLength(t *testing.T) {
	wire := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 11\r\n\r\nhello worldEXTRA BYTES"
	rd := strings.NewReader(wire)

	fr := NewFrameReader(rd, ReaderOptions{})
	f, err := fr.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, 11, f.ContentLength)
	assert.Equal(t, "hello world", string(f.Body))

	rest, _ := io.ReadAll(rd)
	assert.Equal(t, "EXTRA BYTES", string(rest), "bytes past the body must stay on the wire")
}

func TestReadFrameLimits(t *testing.T) {
	tests := []struct {
		name string
		wire string
		opts ReaderOptions
		want error
	}{
		{
			name: "header too large",
			wire: "GET /" + strings.Repeat("a", 200) + " HTTP/1.1\r\n\r\n",
			opts: ReaderOptions{MaxHeaderSize: 64},
			want: ErrHeaderTooLarge,
		},
		{
			name: "body too large",
			wire: "POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n" + strings.Repeat("b", 100),
			opts: ReaderOptions{MaxBodySize: 80},
			want: ErrPayloadTooLarge,
		},
		{
			name: "declared length overflows when added to the header",
			wire: "POST / HTTP/1.1\r\nContent-Length: 9223372036854775807\r\n\r\nabc",
			want: ErrPayloadTooLarge,
		},
		{
			name: "declared length beyond int",
			wire: "POST / HTTP/1.1\r\nContent-Length: 99999999999999999999999\r\n\r\n",
			want: ErrPayloadTooLarge,
		},
		{
			name: "huge declared length",
			wire: "POST / HTTP/1.1\r\nContent-Length: 4000000000\r\n\r\nabc",
			want: ErrPayloadTooLarge,
		},
		{
			name: "http only rejects binary",
			wire: "\x16\x03\x01garbage\r\n\r\n",
			opts: ReaderOptions{HTTPOnly: true},
			want: ErrBadClient,
		},
		{
			name: "unterminated header",
			wire: "GET / HTTP/1.1\r\nHost: x\r\n",
			want: ErrBadClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(strings.NewReader(tt.wire), tt.opts).ReadFrame()
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFrameTooLarge(t *testing.T) {
	f := &Frame{Header: make([]byte, 40), ContentLength: 60}
	assert.False(t, f.TooLarge(100))
	assert.True(t, f.TooLarge(99))

	f.ContentLength = int(^uint(0) >> 1)
	assert.True(t, f.TooLarge(100))
}

func TestHTTPOnlyKeepsConsumedBytes(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte("Xyz")), ReaderOptions{HTTPOnly: true})
	_, err := fr.ReadFrame()
	require.ErrorIs(t, err, ErrBadClient)
	assert.Equal(t, []byte("X"), fr.Consumed)
}

func TestReadFrameEmptyStream(t *testing.T) {
	_, err := NewFrameReader(strings.NewReader(""), ReaderOptions{}).ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestQueryMergePolicy(t *testing.T) {
	f, err := NewFrameReader(strings.NewReader("GET /foo?bar=1&bar=2 HTTP/1.1\r\nHost: x\r\n\r\n"), ReaderOptions{}).ReadFrame()
	require.NoError(t, err)

	r, err := Parse(f, "127.0.0.1:5000")
	require.NoError(t, err)

	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/foo", r.Path)
	assert.Equal(t, "bar=1&bar=2", r.RawQuery)
	assert.Equal(t, map[string]string{"bar": "1,2"}, r.Query)
	assert.Equal(t, "x", r.Host())
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{in: "", want: map[string]string{}},
		{in: "a=1", want: map[string]string{"a": "1"}},
		{in: "a=1?b=2", want: map[string]string{"a": "1", "b": "2"}},
		{in: "a=&=2&c", want: map[string]string{}},
		{in: "msg=hello%20world", want: map[string]string{"msg": "hello world"}},
		{in: "bad=%zz", want: map[string]string{"bad": "%zz"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseParams(tt.in), tt.in)
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	r, err := ParseHeaderBlock("GET / HTTP/1.1\r\nUser-Agent: tracker/1.0\r\nX-Token: a\r\nx-token: b\r\n\r\n")
	require.NoError(t, err)

	assert.Equal(t, "tracker/1.0", r.Get("user-agent"))
	assert.Equal(t, "tracker/1.0", r.UserAgent())
	assert.Equal(t, "a, b", r.Get("X-TOKEN"))
	require.Len(t, r.Header, 2)
	assert.Equal(t, "User-Agent", r.Header[0].Name, "stored casing is preserved")
}

func TestMalformedRequestLine(t *testing.T) {
	_, err := ParseHeaderBlock("NOPE\r\n\r\n")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBasicAuth(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte("N0CALL:secret"))
	tests := []struct {
		name     string
		header   string
		wantUser string
		wantPass string
		wantOK   bool
	}{
		{name: "valid", header: "Authorization: Basic " + good, wantUser: "N0CALL", wantPass: "secret", wantOK: true},
		{name: "lower scheme", header: "Authorization: basic " + good, wantUser: "N0CALL", wantPass: "secret", wantOK: true},
		{name: "missing"},
		{name: "bad base64", header: "Authorization: Basic !!!"},
		{name: "no colon", header: "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon"))},
		{name: "bearer", header: "Authorization: Bearer abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseHeaderBlock("GET / HTTP/1.1\r\n" + tt.header + "\r\n\r\n")
			require.NoError(t, err)
			u, p, ok := r.BasicAuth()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantUser, u)
			assert.Equal(t, tt.wantPass, p)
			assert.Equal(t, tt.wantUser, r.User())
		})
	}
}

func TestPostParamsAndParam(t *testing.T) {
	r, err := ParseHeaderBlock("POST /api/report?call=N0CALL HTTP/1.1\r\nContent-Length: 20\r\n\r\n")
	require.NoError(t, err)
	r.Body = []byte("call=K1ABC&text=a+b")

	params := r.PostParams(nil)
	assert.Equal(t, "K1ABC", params["call"])
	assert.Equal(t, "a b", params["text"])

	v, ok := r.Param("call", nil)
	assert.True(t, ok)
	assert.Equal(t, "N0CALL", v, "query wins over body")

	v, ok = r.Param("text", nil)
	assert.True(t, ok)
	assert.Equal(t, "a b", v)

	n, ok := r.ContentLength()
	assert.True(t, ok)
	assert.Equal(t, 20, n)
}

func TestBodyTextDecodes(t *testing.T) {
	r := &Request{Body: []byte{'c', 'a', 'f', 0xe9}}
	assert.Equal(t, "café", r.BodyText(charmap.Windows1252))
}
