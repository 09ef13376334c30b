package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/protocol"
)

const (
	// pollInterval bounds each blocking read of the frame loop. When it
	// elapses the loop checks that the server is still running.
	pollInterval = 10 * time.Second

	// readBufferSize is the largest chunk handed to OnData at once.
	readBufferSize = 64 << 10
)

// WebSocketHandler receives the events of an upgraded connection. All
// calls happen on the connection worker. A panic in any of them is
// recovered and logged.
type WebSocketHandler interface {
	OnConnected(ws *WebSocket)
	OnDisconnected(ws *WebSocket)
	// OnData receives raw bytes as read from the socket. Use
	// protocol.DecodeText or protocol.DecodeAll to get at the text.
	OnData(ws *WebSocket, data []byte)
}

// WebSocket is an upgraded exchange.
type WebSocket struct {
	*Exchange
	received int
}

// SendText writes s as one unmasked text frame.
func (ws *WebSocket) SendText(s string) error {
	if _, err := ws.Conn.Write(protocol.EncodeText(s)); err != nil {
		return fmt.Errorf("failed to write text frame: %w", err)
	}
	logging.LogWebSocketMessage(ws.Conn.RemoteAddr, "sent", []byte(s))
	return nil
}

// Received is the number of data chunks delivered so far.
func (ws *WebSocket) Received() int { return ws.received }

// UpgradeWebSocket performs the opening handshake. Without a
// Sec-WebSocket-Key it answers 417 when sendErrorIfFail is set, and
// reports false either way.
func (ex *Exchange) UpgradeWebSocket(sendErrorIfFail bool) bool {
	key := ex.Request.Get("Sec-WebSocket-Key")
	if key == "" {
		logging.Info("WebSocket upgrade without key",
			zap.String("remote_addr", ex.Conn.RemoteAddr),
			zap.String("path", ex.Request.Path),
		)
		if sendErrorIfFail {
			ex.SendError(417)
		}
		return false
	}

	logging.LogRawBytes("HTTP 101 Response", protocol.HandshakeResponse(key))
	if err := protocol.WriteHandshake(ex.Conn, key); err != nil {
		logging.Error("Failed to send HTTP 101 response",
			zap.String("remote_addr", ex.Conn.RemoteAddr),
			zap.Error(err),
		)
		return false
	}

	ex.Upgraded = true
	ex.Conn.Server().Observer().ResponseSent(ex.Conn.Server().Name(), 101)
	logging.LogConnection(ex.Conn.Server().Name(), ex.Conn.ID, ex.Conn.RemoteAddr, "websocket_upgraded")
	return true
}

// ServeWebSocket upgrades the exchange and runs the frame loop until the
// peer disconnects, a read fails, or the server stops.
func (ex *Exchange) ServeWebSocket(h WebSocketHandler, sendErrorIfFail bool) {
	if !ex.UpgradeWebSocket(sendErrorIfFail) {
		return
	}

	ws := &WebSocket{Exchange: ex}
	c := ex.Conn
	defer func() {
		ws.hook("OnDisconnected", func() { h.OnDisconnected(ws) })
		logging.LogConnection(c.Server().Name(), c.ID, c.RemoteAddr, "websocket_closed")
	}()

	ws.hook("OnConnected", func() { h.OnConnected(ws) })

	buf := make([]byte, readBufferSize)
	for c.Alive() {
		n, err := c.ReadWithin(buf, pollInterval)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if isClose(data) {
				logging.Info("Received close frame", zap.String("remote_addr", c.RemoteAddr))
				_, _ = c.Write(protocol.EncodeClose())
				return
			}
			ws.received++
			logging.LogWebSocketMessage(c.RemoteAddr, "received", data)
			ws.hook("OnData", func() { h.OnData(ws, data) })
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			logging.Info("Connection closed or error reading frame",
				zap.String("remote_addr", c.RemoteAddr),
				zap.Error(err),
			)
			return
		}
	}
}

func isClose(data []byte) bool {
	f, _, err := protocol.ParseFrame(data)
	return err == nil && f.Opcode == protocol.OpcodeClose
}

func (ws *WebSocket) hook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Recovered from WebSocket hook panic",
				zap.String("hook", name),
				zap.String("remote_addr", ws.Conn.RemoteAddr),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
