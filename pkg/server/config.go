package server

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Config holds configuration for the canvas socket server.
type Config struct {
	// BindAddress is the interface address to listen on.
	// Default: "0.0.0.0" (all interfaces).
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	// Default: 10500.
	Port int

	// FrameDelay is the pause between two ticks of the loop.
	// Default: 100ms.
	FrameDelay time.Duration

	// Buffers

	// ReadChunkSize is the number of bytes read from a client per tick.
	// Default: 1024.
	ReadChunkSize int

	// HandshakeBufferSize bounds the upgrade request header block.
	// Default: 1024.
	HandshakeBufferSize int

	// MaxPendingBytes bounds the bytes buffered for a frame that spans
	// several reads. Clients exceeding it are disconnected.
	// Default: 1MB.
	MaxPendingBytes int

	// Timeouts

	// HandshakeTimeout is how long an accepted connection may take to send
	// its complete upgrade request. It is checked once per tick; the loop
	// never waits for the headers.
	// Default: 2 seconds.
	HandshakeTimeout time.Duration

	// Backlog is the listen queue length.
	// Default: 128.
	Backlog int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddress:         "0.0.0.0",
		Port:                10500,
		FrameDelay:          100 * time.Millisecond,
		ReadChunkSize:       1024,
		HandshakeBufferSize: 1024,
		MaxPendingBytes:     1 << 20,
		HandshakeTimeout:    2 * time.Second,
		Backlog:             128,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithAddress sets the bind address and port and returns the config for chaining.
func (c *Config) WithAddress(bindAddress string, port int) *Config {
	c.BindAddress = bindAddress
	c.Port = port
	return c
}

// WithFrameDelay sets the tick delay and returns the config for chaining.
func (c *Config) WithFrameDelay(d time.Duration) *Config {
	c.FrameDelay = d
	return c
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("server: port must be between 0 and 65535")
	}
	if c.FrameDelay < 0 {
		return errors.New("server: frame delay must not be negative")
	}
	if c.ReadChunkSize <= 0 || c.HandshakeBufferSize <= 0 {
		return errors.New("server: buffer sizes must be positive")
	}
	return nil
}

// applyDefaults fills in defaults for any unset fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.BindAddress == "" {
		c.BindAddress = defaults.BindAddress
	}
	if c.FrameDelay == 0 {
		c.FrameDelay = defaults.FrameDelay
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = defaults.ReadChunkSize
	}
	if c.HandshakeBufferSize == 0 {
		c.HandshakeBufferSize = defaults.HandshakeBufferSize
	}
	if c.MaxPendingBytes == 0 {
		c.MaxPendingBytes = defaults.MaxPendingBytes
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.Backlog == 0 {
		c.Backlog = defaults.Backlog
	}
}
