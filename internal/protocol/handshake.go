package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
)

// acceptGUID is appended to the client key before hashing.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes Sec-WebSocket-Accept for a Sec-WebSocket-Key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HandshakeResponse renders the 101 response for key.
func HandshakeResponse(key string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n" +
		"\r\n")
}

// WriteHandshake writes the 101 response for key.
func WriteHandshake(w io.Writer, key string) error {
	if _, err := w.Write(HandshakeResponse(key)); err != nil {
		return fmt.Errorf("failed to write handshake response: %w", err)
	}
	return nil
}
