package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/request"
	"github.com/aprsair/aprsgate/internal/response"
)

// PrefixedHandler serves a binary upload protocol over HTTP framing.
//
// The body of a GET, POST or PUT starts with Prefix followed by a
// little-endian int32 data length and then the data. Replies use the same
// framing with Content-Type application/<Prefix>.
type PrefixedHandler struct {
	HTTPConfig
	Prefix string

	// Handle produces the reply data. The default replies "Hello <time>".
	Handle func(c *Conn, req *request.Request, data []byte) ([]byte, error)
}

// NewPrefixedHandler returns a handler for prefix.
func NewPrefixedHandler(cfg HTTPConfig, prefix string) *PrefixedHandler {
	if cfg.Charset.Encoding == nil {
		cfg.Charset = response.UTF8
	}
	return &PrefixedHandler{HTTPConfig: cfg, Prefix: prefix}
}

// OnBlockedClient implements BlockedHandler.
func (h *PrefixedHandler) OnBlockedClient(c *Conn) {
	(&HTTPHandler{HTTPConfig: h.HTTPConfig}).OnBlockedClient(c)
}

// ServeConn implements Handler.
func (h *PrefixedHandler) ServeConn(c *Conn) {
	cfg := c.Server().Config()
	opts := cfg.ReaderOptions()
	opts.HTTPOnly = false

	hh := &HTTPHandler{HTTPConfig: h.HTTPConfig}
	w := hh.writer(c)
	fail := func(code int, extra ...request.Field) {
		hh.finish(c, w, w.SendError(code, request.Header(extra)))
	}

	fr := request.NewFrameReader(c, opts)
	frame, err := fr.ReadHeader()
	if err != nil {
		switch {
		case errors.Is(err, request.ErrPayloadTooLarge):
			fail(413)
		case errors.Is(err, request.ErrHeaderTooLarge), errors.Is(err, request.ErrBadClient):
			fail(400)
		}
		return
	}

	req, err := request.ParseHeaderBlock(string(frame.Header))
	if err != nil || (req.Method != "GET" && req.Method != "POST" && req.Method != "PUT") {
		fail(400)
		return
	}
	req.RemoteAddr = c.RemoteAddr

	ex := &Exchange{Conn: c, Request: req, Writer: w, handler: hh}
	if !hh.authorize(ex) {
		return
	}

	if frame.ContentLength == 0 {
		fail(411)
		return
	}
	if frame.TooLarge(opts.MaxBodySize) {
		fail(413)
		return
	}
	head := len(h.Prefix) + 4
	if frame.ContentLength < head {
		fail(406)
		return
	}

	buf := make([]byte, head)
	if _, err := io.ReadFull(c, buf); err != nil {
		logging.Debug("Prefixed client went away", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
		return
	}
	if string(buf[:len(h.Prefix)]) != h.Prefix {
		fail(415)
		return
	}

	length := int32(binary.LittleEndian.Uint32(buf[len(h.Prefix):]))
	if length < 0 || int(length) > frame.ContentLength {
		fail(416)
		return
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c, data); err != nil {
		logging.Debug("Prefixed client went away", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
		return
	}
	req.Body = data

	handle := h.Handle
	if handle == nil {
		handle = helloReply
	}
	reply, err := handle(c, req, data)
	if err != nil {
		c.Server().ReportError(err)
		fail(500)
		return
	}

	hh.finish(c, w, w.SendData(200, "application/"+h.Prefix, EncodePrefixed(h.Prefix, reply)))
}

// EncodePrefixed frames data as prefix, little-endian int32 length, data.
func EncodePrefixed(prefix string, data []byte) []byte {
	out := make([]byte, 0, len(prefix)+4+len(data))
	out = append(out, prefix...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

func helloReply(*Conn, *request.Request, []byte) ([]byte, error) {
	return []byte(fmt.Sprintf("Hello %s", time.Now().Format(time.DateTime))), nil
}
