package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Limits used when no explicit value is configured.
const (
	DefaultMaxHeaderSize = 4096
	DefaultMaxBodySize   = 65536
)

var (
	// ErrBadClient is returned when the peer does not speak HTTP: the first
	// byte is not G or P in HTTP-only mode, or the header never terminates.
	ErrBadClient = errors.New("request: not an http client")

	// ErrHeaderTooLarge is returned when no header terminator is seen
	// within the header size limit.
	ErrHeaderTooLarge = errors.New("request: header too large")

	// ErrPayloadTooLarge is returned when header plus declared body
	// exceeds the body size limit.
	ErrPayloadTooLarge = errors.New("request: payload too large")

	// ErrMalformed is returned for a request line that cannot be parsed.
	ErrMalformed = errors.New("request: malformed request line")
)

var (
	headerEnd     = []byte("\r\n\r\n")
	contentLength = regexp.MustCompile(`(?i)Content-Length:[ \t]*(\d+)`)
)

// Frame is one text-protocol unit as read from the wire.
type Frame struct {
	// Header holds every byte up to and including the blank line.
	Header []byte
	// Body holds exactly ContentLength bytes.
	Body []byte
	// ContentLength is the declared body length (0 when absent).
	ContentLength int
}

// TooLarge reports whether header plus declared body exceed maxBody.
func (f *Frame) TooLarge(maxBody int) bool {
	return f.ContentLength > maxBody-len(f.Header)
}

// ReaderOptions bound a FrameReader.
type ReaderOptions struct {
	MaxHeaderSize int
	MaxBodySize   int
	// HTTPOnly rejects a peer whose first byte is not 'G' or 'P'.
	HTTPOnly bool
}

// FrameReader reads header blocks byte by byte so that nothing past the
// declared body is consumed from the connection.
type FrameReader struct {
	r    io.Reader
	opts ReaderOptions
	one  [1]byte

	// Consumed holds every byte read for the current frame. It is what
	// a bad-client hook receives.
	Consumed []byte
}

// NewFrameReader wraps r. Zero limits take the package defaults.
func NewFrameReader(r io.Reader, opts ReaderOptions) *FrameReader {
	if opts.MaxHeaderSize <= 0 {
		opts.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	return &FrameReader{r: r, opts: opts}
}

// ReadFrame reads one header block and its body.
//
// The header is read one byte at a time until "\r\n\r\n" is seen. More than
// MaxHeaderSize bytes without a terminator yields ErrHeaderTooLarge. The
// body length comes from Content-Length; if header plus body would exceed
// MaxBodySize, ErrPayloadTooLarge is returned before any body byte is read.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	frame, err := fr.ReadHeader()
	if err != nil {
		return nil, err
	}

	if frame.TooLarge(fr.opts.MaxBodySize) {
		return frame, ErrPayloadTooLarge
	}

	if frame.ContentLength > 0 {
		frame.Body = make([]byte, frame.ContentLength)
		if _, err := io.ReadFull(fr.r, frame.Body); err != nil {
			return frame, fmt.Errorf("failed to read body: %w", err)
		}
	}

	return frame, nil
}

// ReadHeader reads only the header block. The body, if any, is left on the
// wire for the caller.
func (fr *FrameReader) ReadHeader() (*Frame, error) {
	fr.Consumed = fr.Consumed[:0]

	for {
		b, err := fr.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(fr.Consumed) > 0 {
				return nil, fmt.Errorf("%w: header not terminated", ErrBadClient)
			}
			return nil, err
		}

		if fr.opts.HTTPOnly && len(fr.Consumed) == 1 && b != 'G' && b != 'P' {
			return nil, fmt.Errorf("%w: unexpected first byte 0x%02x", ErrBadClient, b)
		}

		if b == '\n' && bytes.HasSuffix(fr.Consumed, headerEnd) {
			break
		}
		if len(fr.Consumed) > fr.opts.MaxHeaderSize {
			return nil, ErrHeaderTooLarge
		}
	}

	frame := &Frame{Header: append([]byte(nil), fr.Consumed...)}

	if m := contentLength.FindSubmatch(frame.Header); m != nil {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			return nil, ErrPayloadTooLarge
		}
		frame.ContentLength = n
	}
	return frame, nil
}

func (fr *FrameReader) readByte() (byte, error) {
	for {
		n, err := fr.r.Read(fr.one[:])
		if n == 1 {
			fr.Consumed = append(fr.Consumed, fr.one[0])
			return fr.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
