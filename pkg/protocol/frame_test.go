package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var testMaskKey = [MaskKeySize]byte{0x37, 0xfa, 0x21, 0x3d}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	frame, err := EncodeFrame(v)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	return frame
}

func mustMask(t *testing.T, frame []byte) []byte {
	t.Helper()
	masked, err := MaskFrame(frame, testMaskKey)
	if err != nil {
		t.Fatalf("MaskFrame() error = %v", err)
	}
	return masked
}

func TestEncodeFrameHeader(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantHeader []byte
	}{
		{"empty", 0, []byte{0x81, 0x00}},
		{"one_byte", 1, []byte{0x81, 0x01}},
		{"short_max", 125, []byte{0x81, 125}},
		{"medium_min", 126, []byte{0x81, 126, 0x00, 126}},
		{"medium_max", 65535, []byte{0x81, 126, 0xFF, 0xFF}},
		{"long_min", 65536, []byte{0x81, 127, 0, 0, 0, 0, 0, 0x01, 0x00, 0x00}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := strings.Repeat("a", tc.size)
			frame := mustEncode(t, payload)

			if !bytes.Equal(frame[:len(tc.wantHeader)], tc.wantHeader) {
				t.Errorf("header = %v, want %v", frame[:len(tc.wantHeader)], tc.wantHeader)
			}
			if got := len(frame) - len(tc.wantHeader); got != tc.size {
				t.Errorf("payload length = %d, want %d", got, tc.size)
			}
			if string(frame[len(tc.wantHeader):]) != payload {
				t.Error("payload bytes differ from input")
			}
		})
	}
}

func TestEncodeFrameJSON(t *testing.T) {
	frame := mustEncode(t, NewUpdate(Grid{0: {0: strPtr("h")}}))

	want := `{"type":"update","data":{"0":{"0":"h"}}}`
	if got := string(frame[2:]); got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
	if frame[0] != TextFrameFlags {
		t.Errorf("flags = %#x, want %#x", frame[0], TextFrameFlags)
	}
	if frame[1]&maskBit != 0 {
		t.Error("server frames must not be masked")
	}
}

func TestEncodeFrameRejectsUnserializable(t *testing.T) {
	if _, err := EncodeFrame(make(chan int)); err == nil {
		t.Fatal("EncodeFrame(chan) should fail")
	}
}

func TestDecodeFramesRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 65535, 65536}

	for _, size := range sizes {
		payload := strings.Repeat("x", size)
		masked := mustMask(t, mustEncode(t, payload))

		got, err := DecodeFrames(masked)
		if err != nil {
			t.Fatalf("size %d: DecodeFrames() error = %v", size, err)
		}
		if len(got) != 1 {
			t.Fatalf("size %d: got %d payloads, want 1", size, len(got))
		}
		if got[0] != payload {
			t.Errorf("size %d: payload mismatch (len %d)", size, len(got[0]))
		}
	}
}

func TestDecodeFramesMasking(t *testing.T) {
	// "Hello" masked with 37 fa 21 3d, the RFC 6455 section 5.7 example.
	raw := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	got, err := DecodeFrames(raw)
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if len(got) != 1 || got[0] != "Hello" {
		t.Errorf("DecodeFrames() = %q, want [Hello]", got)
	}
}

func TestDecodeFramesConcatenated(t *testing.T) {
	first := `{"x":0,"y":0,"c":"h"}`
	second := `{"x":1,"y":0}`

	var raw []byte
	raw = append(raw, mustMask(t, mustEncode(t, first))...)
	raw = append(raw, mustMask(t, mustEncode(t, second))...)

	got, err := DecodeFrames(raw)
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d payloads, want 2", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Errorf("DecodeFrames() = %q, want [%q %q]", got, first, second)
	}
}

func TestDecodeFramesManyConcatenated(t *testing.T) {
	const count = 10000

	var raw []byte
	for i := 0; i < count; i++ {
		raw = append(raw, mustMask(t, mustEncode(t, FormatCoord(i)))...)
	}

	got, err := DecodeFrames(raw)
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if len(got) != count {
		t.Fatalf("got %d payloads, want %d", len(got), count)
	}
	for i, p := range got {
		if p != FormatCoord(i) {
			t.Fatalf("payload %d = %q, want %q", i, p, FormatCoord(i))
		}
	}
}

func TestDecodeFramesUnmasked(t *testing.T) {
	got, err := DecodeFrames(mustEncode(t, "plain"))
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if len(got) != 1 || got[0] != "plain" {
		t.Errorf("DecodeFrames() = %q, want [plain]", got)
	}
}

func TestDecodeFramesTruncated(t *testing.T) {
	full := mustMask(t, mustEncode(t, "complete"))
	partial := mustMask(t, mustEncode(t, strings.Repeat("p", 300)))

	raw := append(append([]byte{}, full...), partial[:50]...)

	got, err := DecodeFrames(raw)
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("DecodeFrames() error = %v, want ErrShortFrame", err)
	}
	if len(got) != 1 || got[0] != "complete" {
		t.Errorf("DecodeFrames() = %q, want [complete]", got)
	}
}

func TestDecodeAvailableAcrossReads(t *testing.T) {
	payload := strings.Repeat("z", 2000)
	frame := mustMask(t, mustEncode(t, payload))

	var pending []byte
	var got []string
	for off := 0; off < len(frame); off += 1024 {
		end := off + 1024
		if end > len(frame) {
			end = len(frame)
		}
		pending = append(pending, frame[off:end]...)

		payloads, n, err := DecodeAvailable(pending)
		if err != nil {
			t.Fatalf("DecodeAvailable() error = %v", err)
		}
		got = append(got, payloads...)
		pending = pending[n:]
	}

	if len(pending) != 0 {
		t.Errorf("%d bytes left pending", len(pending))
	}
	if len(got) != 1 || got[0] != payload {
		t.Fatalf("got %d payloads, want the 2000-byte payload once", len(got))
	}
}

func TestDecodeFramesTooLarge(t *testing.T) {
	raw := []byte{0x81, 0xFF, 0, 0, 0, 0, 0x10, 0, 0, 0}

	_, err := DecodeFrames(raw)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("DecodeFrames() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeFramesEmpty(t *testing.T) {
	got, err := DecodeFrames(nil)
	if err != nil || len(got) != 0 {
		t.Errorf("DecodeFrames(nil) = %q, %v; want [], nil", got, err)
	}
}

func TestMaskFrame(t *testing.T) {
	masked := mustMask(t, mustEncode(t, "Hello"))

	want := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	if !bytes.Equal(masked, want) {
		t.Errorf("MaskFrame() = %x, want %x", masked, want)
	}

	if _, err := MaskFrame([]byte{0x81}, testMaskKey); !errors.Is(err, ErrShortFrame) {
		t.Errorf("MaskFrame(short) error = %v, want ErrShortFrame", err)
	}
}

func strPtr(s string) *string {
	return &s
}
