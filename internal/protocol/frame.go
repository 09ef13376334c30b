package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WebSocket frame opcodes
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// MaxFrameSize bounds the payload ReadFrame will allocate.
const MaxFrameSize = 16 << 20

// ErrShortFrame is returned when a buffer ends before the frame it
// declares.
var ErrShortFrame = errors.New("protocol: short frame")

// Frame represents a WebSocket frame
type Frame struct {
	FIN     bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte // unmasked
}

// ParseFrame decodes the frame at the start of buf and returns it together
// with the number of bytes it occupied.
func ParseFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortFrame
	}

	f := &Frame{
		FIN:    buf[0]&0x80 != 0,
		Opcode: buf[0] & 0x0F,
		Masked: buf[1]&0x80 != 0,
	}

	pos := 2
	switch n := uint64(buf[1] & 0x7F); n {
	case 126:
		if len(buf) < pos+2 {
			return nil, 0, ErrShortFrame
		}
		f.Length = uint64(binary.BigEndian.Uint16(buf[pos:]))
		pos += 2
	case 127:
		if len(buf) < pos+8 {
			return nil, 0, ErrShortFrame
		}
		f.Length = binary.BigEndian.Uint64(buf[pos:])
		pos += 8
	default:
		f.Length = n
	}

	if f.Masked {
		if len(buf) < pos+4 {
			return nil, 0, ErrShortFrame
		}
		copy(f.MaskKey[:], buf[pos:pos+4])
		pos += 4
	}

	if f.Length > uint64(len(buf)-pos) {
		return nil, 0, fmt.Errorf("%w: need %d payload bytes, have %d", ErrShortFrame, f.Length, len(buf)-pos)
	}
	end := pos + int(f.Length)

	f.Payload = make([]byte, f.Length)
	copy(f.Payload, buf[pos:end])
	if f.Masked {
		unmaskPayload(f.Payload, f.MaskKey)
	}
	return f, end, nil
}

// ReadFrame reads one frame from a stream.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, 2, 14)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	extra := 0
	switch header[1] & 0x7F {
	case 126:
		extra = 2
	case 127:
		extra = 8
	}
	if header[1]&0x80 != 0 {
		extra += 4
	}
	header = header[:2+extra]
	if _, err := io.ReadFull(r, header[2:]); err != nil {
		return nil, fmt.Errorf("failed to read extended header: %w", err)
	}

	// Parse the header alone to learn the payload length.
	length := uint64(header[1] & 0x7F)
	switch length {
	case 126:
		length = uint64(binary.BigEndian.Uint16(header[2:]))
	case 127:
		length = binary.BigEndian.Uint64(header[2:])
	}

	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame payload of %d bytes exceeds %d", length, MaxFrameSize)
	}

	buf := make([]byte, len(header)+int(length))
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[len(header):]); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	f, _, err := ParseFrame(buf)
	return f, err
}

// DecodeText returns the text payload of the first frame in buf. Frames
// with any other opcode, and buffers that are structurally inconsistent,
// decode to "". Invalid UTF-8 sequences are replaced.
func DecodeText(buf []byte) string {
	f, _, err := ParseFrame(buf)
	if err != nil || f.Opcode != OpcodeText {
		return ""
	}
	return strings.ToValidUTF8(string(f.Payload), "�")
}

// DecodeAll decodes every complete text frame in buf, in order. Decoding
// stops at the first incomplete frame.
func DecodeAll(buf []byte) []string {
	var out []string
	for len(buf) > 0 {
		f, n, err := ParseFrame(buf)
		if err != nil {
			break
		}
		if f.Opcode == OpcodeText {
			out = append(out, strings.ToValidUTF8(string(f.Payload), "�"))
		}
		buf = buf[n:]
	}
	return out
}

// EncodeText builds an unmasked final text frame carrying s.
func EncodeText(s string) []byte {
	return encode(OpcodeText, []byte(s))
}

// EncodeClose builds an unmasked close frame with no status.
func EncodeClose() []byte {
	return encode(OpcodeClose, nil)
}

func encode(opcode byte, payload []byte) []byte {
	n := len(payload)
	var frame []byte
	switch {
	case n < 126:
		frame = make([]byte, 2, 2+n)
		frame[1] = byte(n)
	case n <= 0xFFFF:
		frame = make([]byte, 4, 4+n)
		frame[1] = 126
		binary.BigEndian.PutUint16(frame[2:], uint16(n))
	default:
		frame = make([]byte, 10, 10+n)
		frame[1] = 127
		binary.BigEndian.PutUint64(frame[2:], uint64(n))
	}
	frame[0] = 0x80 | opcode
	return append(frame, payload...)
}

// unmaskPayload applies XOR mask to payload in place
func unmaskPayload(payload []byte, maskKey [4]byte) {
	for i := range payload {
		payload[i] ^= maskKey[i%4]
	}
}

// OpcodeString returns a human-readable opcode name
func (f *Frame) OpcodeString() string {
	switch f.Opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", f.Opcode)
	}
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.FIN, f.OpcodeString(), f.Masked, f.Length)
}
