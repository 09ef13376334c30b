// Package protocol implements the minimal RFC 6455 WebSocket codec used by
// the server: the opening handshake and text frames.
//
// # Handshake
//
// The server answers an upgrade request with
//
//	HTTP/1.1 101 Switching Protocols\r\n
//	Connection: Upgrade\r\n
//	Upgrade: websocket\r\n
//	Sec-WebSocket-Accept: <AcceptKey(key)>\r\n
//	\r\n
//
// # Frames
//
// Inbound frames are expected masked and are unmasked with the 4-byte key
// cycling per byte. Outbound frames are never masked and always carry
// FIN with the text opcode. The length prefix uses the shortest form:
// 7 bits below 126, 16 bits up to 65535, 64 bits otherwise.
//
// Decoding never fails towards the caller. A buffer that is too short or
// carries a non-text opcode decodes to the empty string.
//
// All functions are stateless and safe for concurrent use.
package protocol
