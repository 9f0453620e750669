package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/textcanvas/internal/errors"
	"github.com/vango-dev/textcanvas/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "textcanvas.json"

	// DefaultHost is the default bind address of the canvas socket.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the default canvas socket port.
	DefaultPort = 10500

	// DefaultFrameDelay is the default pause between ticks.
	DefaultFrameDelay = "100ms"

	// DefaultDSN is the default persistence backend.
	DefaultDSN = "sqlite:textcanvas.db"

	// DefaultExportPrefix is the default object key prefix for snapshots.
	DefaultExportPrefix = "snapshots/"

	// DefaultInstance is the default mDNS instance name.
	DefaultInstance = "textcanvas"
)

// Config represents the complete textcanvas.json configuration.
type Config struct {
	// Server contains the canvas socket settings.
	Server ServerConfig `json:"server"`

	// Store selects the persistence backend.
	Store StoreConfig `json:"store"`

	// HTTP contains the side HTTP server settings.
	HTTP HTTPConfig `json:"http"`

	// Export contains snapshot export settings.
	Export ExportConfig `json:"export"`

	// Discovery contains LAN advertisement settings.
	Discovery DiscoveryConfig `json:"discovery"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains canvas socket settings. Durations are strings
// such as "100ms" or "2s".
type ServerConfig struct {
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port,omitempty"`
	FrameDelay       string `json:"frameDelay,omitempty"`
	ReadChunkSize    int    `json:"readChunkSize,omitempty"`
	MaxPendingBytes  int    `json:"maxPendingBytes,omitempty"`
	HandshakeTimeout string `json:"handshakeTimeout,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// DSN is sqlite:<path>, postgres://..., redis://... or memory:.
	DSN string `json:"dsn,omitempty"`
}

// HTTPConfig contains the side HTTP server settings.
type HTTPConfig struct {
	// Address enables the server when set (e.g., "127.0.0.1:10501").
	Address string `json:"address,omitempty"`
}

// ExportConfig contains snapshot export settings.
type ExportConfig struct {
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint for compatible object stores.
	Endpoint string `json:"endpoint,omitempty"`

	// Interval uploads a snapshot periodically while serving (e.g., "10m").
	// Empty disables periodic export.
	Interval string `json:"interval,omitempty"`
}

// DiscoveryConfig contains LAN advertisement settings.
type DiscoveryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// JSON selects the JSON handler instead of text.
	JSON bool `json:"json,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadOptional reads textcanvas.json from dir, returning defaults when the
// file does not exist.
func LoadOptional(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E120").
			WithDetail(path).
			Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E121").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E121").WithDetail(path).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.FrameDelay == "" {
		c.Server.FrameDelay = DefaultFrameDelay
	}

	if c.Store.DSN == "" {
		c.Store.DSN = DefaultDSN
	}

	if c.Export.Prefix == "" {
		c.Export.Prefix = DefaultExportPrefix
	}

	if c.Discovery.Instance == "" {
		c.Discovery.Instance = DefaultInstance
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E122").
			WithDetail(strconv.Itoa(c.Server.Port))
	}

	if d, err := time.ParseDuration(c.Server.FrameDelay); err != nil || d <= 0 {
		return errors.New("E123").
			WithDetail(c.Server.FrameDelay).
			WithSuggestion(`Use a Go duration such as "100ms"`)
	}
	for _, value := range []string{c.Server.HandshakeTimeout, c.Export.Interval} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return errors.New("E123").WithDetail(value)
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return errors.Newf(errors.CategoryConfig, "invalid http address %q", c.HTTP.Address).Wrap(err)
		}
	}
	return nil
}

// ServerConfig converts the server section into a socket server config.
// Call Validate first; unparsable durations fall back to defaults.
func (c *Config) ServerConfig() *server.Config {
	cfg := server.DefaultConfig().WithAddress(c.Server.Host, c.Server.Port)
	if d, err := time.ParseDuration(c.Server.FrameDelay); err == nil {
		cfg.FrameDelay = d
	}
	if d, err := time.ParseDuration(c.Server.HandshakeTimeout); err == nil {
		cfg.HandshakeTimeout = d
	}
	if c.Server.ReadChunkSize > 0 {
		cfg.ReadChunkSize = c.Server.ReadChunkSize
	}
	if c.Server.MaxPendingBytes > 0 {
		cfg.MaxPendingBytes = c.Server.MaxPendingBytes
	}
	return cfg
}

// ExportInterval returns the periodic export interval, or 0 when disabled.
func (c *Config) ExportInterval() time.Duration {
	d, err := time.ParseDuration(c.Export.Interval)
	if err != nil {
		return 0
	}
	return d
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("E124").WithDetail(name)
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
