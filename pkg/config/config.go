// Package config loads the payload core's configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/serviohq/servio/pkg/multipart"
)

// ServerConfig configures the payload-processing core.
type ServerConfig struct {
	// LogLevel is the zap level name: debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// TempDir is where spooled uploads are written.
	TempDir string `yaml:"tempDir"`

	// UploadStorage selects where file fields accumulate: "memory" or
	// "filesystem".
	UploadStorage string `yaml:"uploadStorage"`

	// CompressionLevel is the DEFLATE level for both codecs (1..9).
	CompressionLevel int `yaml:"compressionLevel"`

	// MaxDecodedBytes caps the output of a single codec operation;
	// 0 disables the cap.
	MaxDecodedBytes int `yaml:"maxDecodedBytes"`

	Session   SessionConfig   `yaml:"session"`
	WebSocket WebSocketConfig `yaml:"webSocket"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file; ignored by the memory backend.
	Path string `yaml:"path"`

	// TTL is the idle lifetime of a session; 0 disables expiry.
	TTL time.Duration `yaml:"ttl"`
}

// WebSocketConfig configures per-message-deflate on WebSocket endpoints.
type WebSocketConfig struct {
	// Compression enables per-message-deflate on data messages.
	Compression bool `yaml:"compression"`

	// ContextTakeover carries the sliding-window dictionary across messages
	// of one connection.
	ContextTakeover bool `yaml:"contextTakeover"`

	// MaxMessageBytes caps a decompressed message; 0 disables the cap.
	MaxMessageBytes int `yaml:"maxMessageBytes"`
}

// Default returns the configuration used when no file is given.
func Default() ServerConfig {
	return ServerConfig{
		LogLevel:         "info",
		TempDir:          os.TempDir(),
		UploadStorage:    "memory",
		CompressionLevel: 1,
		Session: SessionConfig{
			Backend: "memory",
		},
		WebSocket: WebSocketConfig{
			Compression:     true,
			ContextTakeover: true,
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides with the given prefix (default "SERVIO").
func Load(path, envPrefix string) (ServerConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(envPrefix, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from PREFIX_NAME variables.
func applyEnv(prefix string, cfg *ServerConfig) error {
	if prefix == "" {
		prefix = "SERVIO"
	}

	if v := os.Getenv(prefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(prefix + "_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv(prefix + "_UPLOAD_STORAGE"); v != "" {
		cfg.UploadStorage = v
	}
	if v := os.Getenv(prefix + "_COMPRESSION_LEVEL"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s_COMPRESSION_LEVEL: %w", prefix, err)
		}
		cfg.CompressionLevel = level
	}
	if v := os.Getenv(prefix + "_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := os.Getenv(prefix + "_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	return nil
}

// Validate checks the configuration for contradictions.
func (c ServerConfig) Validate() error {
	switch c.UploadStorage {
	case "memory", "filesystem":
	default:
		return fmt.Errorf("config: unknown upload storage %q", c.UploadStorage)
	}
	if c.UploadStorage == "filesystem" && c.TempDir == "" {
		return fmt.Errorf("config: filesystem upload storage needs tempDir")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("config: compression level %d out of range 1..9", c.CompressionLevel)
	}
	switch c.Session.Backend {
	case "memory":
	case "sqlite":
		if c.Session.Path == "" {
			return fmt.Errorf("config: sqlite session backend needs path")
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	return nil
}

// FieldStorage maps the configured upload storage to the multipart setting.
func (c ServerConfig) FieldStorage() multipart.Storage {
	if c.UploadStorage == "filesystem" {
		return multipart.FilesystemStorage
	}
	return multipart.MemoryStorage
}
