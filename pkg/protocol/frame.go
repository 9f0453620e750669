package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Frame constants.
const (
	// FlagFinal marks the last fragment of a message.
	FlagFinal byte = 0x80

	// OpcodeText marks a UTF-8 text payload.
	OpcodeText byte = 0x01

	// TextFrameFlags is the flags byte of every frame the server sends.
	TextFrameFlags = FlagFinal | OpcodeText

	// MaxShortLength is the largest payload length stored in the 7-bit field.
	MaxShortLength = 125

	// MaxPayloadSize bounds a single decoded payload (16MB). Longer frames
	// are rejected with ErrFrameTooLarge.
	MaxPayloadSize = 16 * 1024 * 1024

	// MaskKeySize is the size of the client masking key.
	MaskKeySize = 4

	maskBit        byte = 0x80
	lengthMarker16 byte = 126
	lengthMarker64 byte = 127
)

// Frame errors.
var (
	ErrShortFrame    = errors.New("protocol: truncated frame")
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
)

// EncodeFrame encodes v as a single final, unmasked text frame.
// Strings and byte slices are sent as-is; any other value is serialized
// to compact JSON first.
func EncodeFrame(v any) ([]byte, error) {
	var payload []byte
	switch p := v.(type) {
	case string:
		payload = []byte(p)
	case []byte:
		payload = p
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode payload: %w", err)
		}
		payload = data
	}

	e := NewEncoderWithCap(len(payload) + 10)
	e.WriteByte(TextFrameFlags)
	e.WriteLength(len(payload), 0)
	e.WriteBytes(payload)
	return e.Bytes(), nil
}

// DecodeFrames decodes every frame in raw, in order. A single physical read
// may hold several concatenated frames; all of them are decoded eagerly.
// If raw ends in the middle of a frame, the payloads decoded before it are
// returned together with ErrShortFrame.
func DecodeFrames(raw []byte) ([]string, error) {
	payloads, n, err := DecodeAvailable(raw)
	if err != nil {
		return payloads, err
	}
	if n < len(raw) {
		return payloads, ErrShortFrame
	}
	return payloads, nil
}

// DecodeAvailable decodes the complete frames at the start of raw and
// reports how many bytes they occupied. Bytes after n belong to a frame
// whose remainder has not arrived yet; callers keep them and retry once
// more data is read.
func DecodeAvailable(raw []byte) (payloads []string, n int, err error) {
	d := NewDecoder(raw)
	for !d.EOF() {
		start := d.Position()
		payload, err := decodeFrame(d)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return payloads, start, nil
		}
		if err != nil {
			return payloads, start, err
		}
		payloads = append(payloads, payload)
		n = d.Position()
	}
	return payloads, n, nil
}

// decodeFrame decodes one frame starting at the decoder's position.
func decodeFrame(d *Decoder) (string, error) {
	// Flags byte: opcode and FIN are accepted without validation.
	if _, err := d.ReadByte(); err != nil {
		return "", err
	}

	masked, length, err := d.ReadLength()
	if err != nil {
		return "", err
	}
	if length > MaxPayloadSize {
		return "", ErrFrameTooLarge
	}

	var key []byte
	if masked {
		if key, err = d.ReadBytes(MaskKeySize); err != nil {
			return "", err
		}
	}

	data, err := d.ReadBytes(int(length))
	if err != nil {
		return "", err
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	if masked {
		for i := range payload {
			payload[i] ^= key[i%MaskKeySize]
		}
	}
	return string(payload), nil
}

// MaskFrame returns a copy of an encoded unmasked frame with the mask bit
// set and its payload masked with key, as a client would send it.
func MaskFrame(frame []byte, key [MaskKeySize]byte) ([]byte, error) {
	d := NewDecoder(frame)
	flags, err := d.ReadByte()
	if err != nil {
		return nil, ErrShortFrame
	}
	_, length, err := d.ReadLength()
	if err != nil {
		return nil, ErrShortFrame
	}
	payload, err := d.ReadBytes(int(length))
	if err != nil {
		return nil, ErrShortFrame
	}

	e := NewEncoderWithCap(len(frame) + MaskKeySize)
	e.WriteByte(flags)
	e.WriteLength(len(payload), maskBit)
	e.WriteBytes(key[:])
	for i, b := range payload {
		e.WriteByte(b ^ key[i%MaskKeySize])
	}
	return e.Bytes(), nil
}
