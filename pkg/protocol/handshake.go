package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net"
	"strconv"
	"strings"
)

// WebSocket GUID as defined in RFC 6455.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Path is the request path advertised in WebSocket-Location.
const Path = "/ws"

// Handshake errors.
var (
	ErrMissingKey      = errors.New("protocol: missing Sec-WebSocket-Key header")
	ErrMissingHost     = errors.New("protocol: missing Host header")
	ErrHeadersTooLarge = errors.New("protocol: upgrade request exceeds header limit")
)

// HeaderEnd terminates the header block of an upgrade request.
const HeaderEnd = "\r\n\r\n"

// SplitRequest finds the end of the upgrade request in buf. It returns the
// request through the blank line and the bytes that followed it, which are
// frames the client sent without waiting for the response. ok is false
// while the header block is incomplete. Once buf holds limit bytes without
// a complete block, SplitRequest returns ErrHeadersTooLarge.
func SplitRequest(buf []byte, limit int) (request, rest []byte, ok bool, err error) {
	i := bytes.Index(buf, []byte(HeaderEnd))
	if i < 0 {
		if len(buf) >= limit {
			return nil, nil, false, ErrHeadersTooLarge
		}
		return nil, nil, false, nil
	}
	end := i + len(HeaderEnd)
	return buf[:end], buf[end:], true, nil
}

// ParseHeaders parses the "Name: Value" lines of a raw HTTP request.
// The request line and malformed lines are skipped. Later duplicates win.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(raw, "\r\n") {
		line = strings.TrimRight(line, " \t\r\n")
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		headers[name] = value
	}
	return headers
}

// HeaderValue looks up a header by case-insensitive name.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// RequestHost returns the Host header of a raw request without its port.
func RequestHost(raw string) (string, error) {
	host, ok := HeaderValue(ParseHeaders(raw), "Host")
	if !ok || host == "" {
		return "", ErrMissingHost
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h, nil
	}
	return host, nil
}

// AcceptKey computes the Sec-WebSocket-Accept token for a client key.
func AcceptKey(key string) string {
	hash := sha1.Sum([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// BuildHandshakeResponse builds the 101 upgrade response for a raw client
// request. host and port populate WebSocket-Origin and WebSocket-Location.
// It fails with ErrMissingKey when the request has no Sec-WebSocket-Key,
// in which case the connection is unusable.
func BuildHandshakeResponse(raw, host string, port int) ([]byte, error) {
	key, ok := HeaderValue(ParseHeaders(raw), "Sec-WebSocket-Key")
	if !ok || key == "" {
		return nil, ErrMissingKey
	}

	location := net.JoinHostPort(host, strconv.Itoa(port))

	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Web Socket Protocol Handshake\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("WebSocket-Origin: " + host + "\r\n")
	sb.WriteString("WebSocket-Location: ws://" + location + Path + "\r\n")
	sb.WriteString("Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n")
	sb.WriteString("\r\n")
	return []byte(sb.String()), nil
}
