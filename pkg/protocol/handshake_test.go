package protocol

import (
	"bufio"
	"errors"
	"net/http"
	"strings"
	"testing"
)

const sampleRequest = "GET /ws HTTP/1.1\r\n" +
	"Host: canvas.example:10500\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestAcceptKey(t *testing.T) {
	// Vector from RFC 6455 section 1.3.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="; got != want {
		t.Errorf("AcceptKey() = %q, want %q", got, want)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(sampleRequest)

	tests := []struct {
		name string
		want string
	}{
		{"Host", "canvas.example:10500"},
		{"Upgrade", "websocket"},
		{"Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ=="},
	}
	for _, tc := range tests {
		if got := headers[tc.name]; got != tc.want {
			t.Errorf("headers[%q] = %q, want %q", tc.name, got, tc.want)
		}
	}
	if _, ok := headers["GET /ws HTTP/1.1"]; ok {
		t.Error("request line parsed as a header")
	}
}

func TestHeaderValueCaseInsensitive(t *testing.T) {
	headers := ParseHeaders("GET / HTTP/1.1\r\nSec-Websocket-Key: abc\r\n\r\n")

	v, ok := HeaderValue(headers, "Sec-WebSocket-Key")
	if !ok || v != "abc" {
		t.Errorf("HeaderValue() = %q, %v; want abc, true", v, ok)
	}
	if _, ok := HeaderValue(headers, "Origin"); ok {
		t.Error("HeaderValue(Origin) should be absent")
	}
}

func TestRequestHost(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{"with_port", "GET / HTTP/1.1\r\nHost: a.example:10500\r\n\r\n", "a.example", nil},
		{"without_port", "GET / HTTP/1.1\r\nHost: a.example\r\n\r\n", "a.example", nil},
		{"ipv6", "GET / HTTP/1.1\r\nHost: [::1]:10500\r\n\r\n", "::1", nil},
		{"missing", "GET / HTTP/1.1\r\n\r\n", "", ErrMissingHost},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RequestHost(tc.raw)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("RequestHost() error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("RequestHost() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildHandshakeResponse(t *testing.T) {
	resp, err := BuildHandshakeResponse(sampleRequest, "canvas.example", 10500)
	if err != nil {
		t.Fatalf("BuildHandshakeResponse() error = %v", err)
	}

	parsed, err := http.ReadResponse(bufio.NewReader(strings.NewReader(string(resp))), nil)
	if err != nil {
		t.Fatalf("response does not parse as HTTP: %v", err)
	}
	if parsed.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", parsed.StatusCode)
	}

	want := map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Websocket-Origin":     "canvas.example",
		"Websocket-Location":   "ws://canvas.example:10500/ws",
		"Sec-Websocket-Accept": "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=",
	}
	for name, v := range want {
		if got := parsed.Header.Get(name); got != v {
			t.Errorf("header %s = %q, want %q", name, got, v)
		}
	}
	if !strings.HasSuffix(string(resp), HeaderEnd) {
		t.Error("response must end with an empty line")
	}
}

func TestBuildHandshakeResponseMissingKey(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\nHost: a.example\r\n\r\n"

	resp, err := BuildHandshakeResponse(raw, "a.example", 10500)
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("error = %v, want ErrMissingKey", err)
	}
	if resp != nil {
		t.Error("response should be nil on failure")
	}
}

func TestSplitRequest(t *testing.T) {
	frame := "\x81\x02hi"
	long := "GET /ws HTTP/1.1\r\nCookie: " + strings.Repeat("a", 64)

	tests := []struct {
		name     string
		buf      string
		limit    int
		wantOK   bool
		wantRest string
		wantErr  error
	}{
		{"complete", sampleRequest, 1024, true, "", nil},
		{"pipelined_frame", sampleRequest + frame, 1024, true, frame, nil},
		{"partial", sampleRequest[:40], 1024, false, "", nil},
		{"end_exactly_at_limit", sampleRequest, len(sampleRequest), true, "", nil},
		{"no_end_at_limit", long, len(long), false, "", ErrHeadersTooLarge},
		{"no_end_past_limit", long, 16, false, "", ErrHeadersTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			request, rest, ok, err := SplitRequest([]byte(tc.buf), tc.limit)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if string(request) != sampleRequest {
				t.Errorf("request = %q", request)
			}
			if string(rest) != tc.wantRest {
				t.Errorf("rest = %q, want %q", rest, tc.wantRest)
			}
		})
	}
}
