// Package response serializes HTTP/1.1 responses onto a raw connection.
package response

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aprsair/aprsgate/internal/request"
)

// StatusHeader is the CGI-style header that replaces the status line.
const StatusHeader = "Status"

// Writer writes responses to one connection.
type Writer struct {
	w       io.Writer
	charset Charset
	base    request.Header

	// Written is the number of responses sent.
	Written int
	// LastCode is the status code of the last response.
	LastCode int
	// LastLength is the declared body length of the last response.
	LastLength int64
}

// NewWriter returns a Writer that merges base into every response and
// encodes text bodies with cs.
func NewWriter(w io.Writer, cs Charset, base request.Header) *Writer {
	if cs.Encoding == nil {
		cs = UTF8
	}
	return &Writer{w: w, charset: cs, base: base}
}

// Charset returns the body charset.
func (rw *Writer) Charset() Charset { return rw.charset }

// StatusLine renders "HTTP/1.1 <code> <reason>".
func StatusLine(code int) string {
	return "HTTP/1.1 " + strconv.Itoa(code) + " " + StatusText(code)
}

// Head writes the status line and merged headers for a body of length
// bodyLen. A negative bodyLen omits the automatic Content-Length.
func (rw *Writer) Head(code int, override request.Header, bodyLen int64) error {
	h := rw.base.Clone()
	for _, f := range override {
		h.Set(f.Name, f.Value)
	}

	line := StatusLine(code)
	if status, ok := h.Lookup(StatusHeader); ok {
		h.Del(StatusHeader)
		if status = strings.TrimSpace(status); status != "" {
			line = "HTTP/1.1 " + status
			if n, err := strconv.Atoi(strings.Fields(status)[0]); err == nil {
				code = n
			}
		}
	}

	if !h.Has("Content-Type") {
		h.Set("Content-Type", "text/html; charset="+rw.charset.Name)
	}
	if bodyLen >= 0 && !h.Has("Content-Length") {
		h.Set("Content-Length", strconv.FormatInt(bodyLen, 10))
	}

	var b strings.Builder
	b.WriteString(line)
	b.WriteString("\r\n")
	for _, f := range h {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(rw.w, b.String()); err != nil {
		return fmt.Errorf("failed to write response header: %w", err)
	}
	rw.Written++
	rw.LastCode = code
	rw.LastLength = bodyLen
	return nil
}

// Write sends a complete response.
func (rw *Writer) Write(code int, header request.Header, body []byte) error {
	if err := rw.Head(code, header, int64(len(body))); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := rw.w.Write(body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}

// SendError writes the standard error page for code.
func (rw *Writer) SendError(code int, header request.Header) error {
	page := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, StatusText(code))
	return rw.Write(code, header, rw.charset.Encode(page))
}

// SendText wraps text in a minimal HTML document.
func (rw *Writer) SendText(code int, text string) error {
	return rw.Write(code, nil, rw.charset.Encode("<html><body>"+text+"</body></html>"))
}

// SendHTML writes an already rendered document.
func (rw *Writer) SendHTML(code int, html string) error {
	return rw.Write(code, nil, rw.charset.Encode(html))
}

// SendData writes data with the given content type.
func (rw *Writer) SendData(code int, contentType string, data []byte) error {
	return rw.Write(code, request.Header{{Name: "Content-Type", Value: contentType}}, data)
}

// SendFile streams size bytes from r.
func (rw *Writer) SendFile(contentType string, r io.Reader, size int64) error {
	if err := rw.Head(200, request.Header{{Name: "Content-Type", Value: contentType}}, size); err != nil {
		return err
	}
	bw := bufio.NewWriter(rw.w)
	if _, err := io.CopyN(bw, r, size); err != nil {
		return fmt.Errorf("failed to stream file: %w", err)
	}
	return bw.Flush()
}

// WriteRaw writes bytes with no framing.
func (rw *Writer) WriteRaw(p []byte) error {
	_, err := rw.w.Write(p)
	return err
}
