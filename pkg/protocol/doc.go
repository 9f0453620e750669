// Package protocol implements the textcanvas wire protocol.
//
// The protocol is a minimal subset of RFC 6455 WebSocket framing carrying
// JSON payloads. Clients connect with a plain HTTP/1.1 upgrade request,
// the server answers with a 101 response, and from then on both sides
// exchange length-prefixed frames.
//
// # Handshake
//
//	Client                                   Server
//	  │                                         │
//	  │── GET /ws (Sec-WebSocket-Key: k) ──────>│
//	  │                                         │
//	  │<── 101 (Sec-WebSocket-Accept: a) ───────│
//	  │                                         │
//
// The accept token is base64(SHA-1(k + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11")).
// No subprotocols or extensions are negotiated.
//
// # Frame Format
//
//	┌──────────┬────────────────┬──────────────────────┬──────────┬─────────┐
//	│ Flags    │ Mask | Len7    │ Extended Length      │ Mask Key │ Payload │
//	│ (1 byte) │ (1 byte)       │ (0, 2 or 8 bytes)    │ (0 or 4) │         │
//	└──────────┴────────────────┴──────────────────────┴──────────┴─────────┘
//
// Payloads up to 125 bytes store the length in Len7. Payloads of 126..65535
// bytes set Len7 to 126 followed by a big-endian uint16. Larger payloads set
// Len7 to 127 followed by a big-endian uint64.
//
// The server always sends a single final text frame (flags 0x81) and never
// masks. Client frames are masked; DecodeFrames unmasks them by XOR-ing each
// payload byte with key[i%4]. Opcode and fragmentation bits are not
// validated: every frame is treated as a text payload.
//
// # Messages
//
// Client → server:
//
//	{"x": 3, "y": 7, "c": "h"}   // text edit
//	{"x": 3, "y": 7, "c": null}  // erase
//	{"x": 3, "y": 7}             // cursor move
//
// Server → client:
//
//	{"type": "update", "data": {"7": {"3": "h"}}}
//
// Grid keys travel as decimal strings and are parsed to integers at the
// boundary (see ParseCoord and FormatCoord).
//
// # File Structure
//
//   - encoder.go: Big-endian frame header encoder
//   - decoder.go: Bounds-checked frame decoder
//   - frame.go: Frame encoding, decoding and client-side masking
//   - handshake.go: HTTP upgrade handshake
//   - message.go: JSON messages and grid coordinates
package protocol
