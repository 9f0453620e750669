package server

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BindAddress != "0.0.0.0" {
		t.Errorf("BindAddress = %q, want 0.0.0.0", cfg.BindAddress)
	}
	if cfg.Port != 10500 {
		t.Errorf("Port = %d, want 10500", cfg.Port)
	}
	if cfg.FrameDelay != 100*time.Millisecond {
		t.Errorf("FrameDelay = %v, want 100ms", cfg.FrameDelay)
	}
	if cfg.ReadChunkSize != 1024 || cfg.HandshakeBufferSize != 1024 {
		t.Errorf("buffer sizes = %d/%d, want 1024/1024", cfg.ReadChunkSize, cfg.HandshakeBufferSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigChaining(t *testing.T) {
	cfg := DefaultConfig().
		WithAddress("127.0.0.1", 9000).
		WithFrameDelay(10 * time.Millisecond)

	if got := cfg.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %q, want 127.0.0.1:9000", got)
	}
	if cfg.FrameDelay != 10*time.Millisecond {
		t.Errorf("FrameDelay = %v, want 10ms", cfg.FrameDelay)
	}
}

func TestConfigClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Port = 1

	if cfg.Port == 1 {
		t.Error("modifying the clone changed the source config")
	}
	if (*Config)(nil).Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"ephemeral_port", func(c *Config) { c.Port = 0 }, false},
		{"negative_port", func(c *Config) { c.Port = -1 }, true},
		{"port_too_large", func(c *Config) { c.Port = 70000 }, true},
		{"negative_delay", func(c *Config) { c.FrameDelay = -time.Second }, true},
		{"zero_read_chunk", func(c *Config) { c.ReadChunkSize = 0 }, true},
		{"zero_handshake_buffer", func(c *Config) { c.HandshakeBufferSize = 0 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{Port: 8080}
	cfg.applyDefaults()

	defaults := DefaultConfig()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.BindAddress != defaults.BindAddress {
		t.Errorf("BindAddress = %q, want %q", cfg.BindAddress, defaults.BindAddress)
	}
	if cfg.MaxPendingBytes != defaults.MaxPendingBytes {
		t.Errorf("MaxPendingBytes = %d, want %d", cfg.MaxPendingBytes, defaults.MaxPendingBytes)
	}
	if cfg.HandshakeTimeout != defaults.HandshakeTimeout {
		t.Error("handshake timeout not defaulted")
	}
}
