// Package config loads mirrorpair configuration from a JSON5 file with
// environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Storage   StorageConfig   `json:"storage"`
	Pairing   PairingConfig   `json:"pairing"`
	Log       LogConfig       `json:"log"`
	Telemetry TelemetryConfig `json:"telemetry"`
	DevServer DevServerConfig `json:"devServer"`
}

// ServiceConfig points at the remote pairing service.
type ServiceConfig struct {
	BaseURL        string `json:"baseUrl"`
	CSRFToken      string `json:"csrfToken,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	RateLimitRPM   int    `json:"rateLimitRpm"` // 0 disables client-side limiting
}

// StorageConfig selects the durable key-value driver for the device id and token.
type StorageConfig struct {
	Driver         string `json:"driver"` // file, sqlite, postgres, redis, keyring
	Path           string `json:"path,omitempty"`
	DSN            string `json:"dsn,omitempty"`
	RedisAddr      string `json:"redisAddr,omitempty"`
	RedisPassword  string `json:"redisPassword,omitempty"`
	RedisDB        int    `json:"redisDb,omitempty"`
	KeyringService string `json:"keyringService,omitempty"`
	Namespace      string `json:"namespace,omitempty"`
	EncryptionKey  string `json:"encryptionKey,omitempty"` // seals stored values with AES-256-GCM when set
}

// PairingConfig tunes the QR refresh loop.
type PairingConfig struct {
	PollIntervalMs int  `json:"pollIntervalMs"`
	AutoInitiate   bool `json:"autoInitiate"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// TelemetryConfig enables OTLP trace export (only with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// DevServerConfig configures the reference pairing service started by "mirrorpair serve".
type DevServerConfig struct {
	Listen       string `json:"listen"`
	TTLSeconds   int    `json:"ttlSeconds"`
	RateLimitRPM int    `json:"rateLimitRpm,omitempty"` // per client IP, 0 disables
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:        "http://127.0.0.1:8000",
			TimeoutSeconds: 10,
			RateLimitRPM:   120,
		},
		Storage: StorageConfig{
			Driver:         "file",
			Path:           "~/.mirrorpair/state.json",
			KeyringService: "mirrorpair",
			Namespace:      "mirrorpair",
		},
		Pairing: PairingConfig{
			PollIntervalMs: 1000,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "mirrorpair",
		},
		DevServer: DevServerConfig{
			Listen:     "127.0.0.1:8000",
			TTLSeconds: 600,
		},
	}
}

// Load reads the config at path on top of Default() and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.Service.BaseURL = NormalizeBaseURL(cfg.Service.BaseURL)
	cfg.Log.Level = NormalizeLogLevel(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks fields that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite", "keyring":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redisAddr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Service.BaseURL == "" {
		return errors.New("service.baseUrl is required")
	}
	if c.Pairing.PollIntervalMs < 0 {
		return errors.New("pairing.pollIntervalMs must not be negative")
	}
	return nil
}

// Timeout returns the per-request timeout for the remote service.
func (c *Config) Timeout() time.Duration {
	if c.Service.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between QR refresh and the TTL poll.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pairing.PollIntervalMs) * time.Millisecond
}

func (c *Config) applyEnv() {
	envStr("MIRRORPAIR_BASE_URL", &c.Service.BaseURL)
	envStr("MIRRORPAIR_CSRF_TOKEN", &c.Service.CSRFToken)
	envInt("MIRRORPAIR_RATE_LIMIT_RPM", &c.Service.RateLimitRPM)
	envStr("MIRRORPAIR_STORAGE_DRIVER", &c.Storage.Driver)
	envStr("MIRRORPAIR_STORAGE_PATH", &c.Storage.Path)
	envStr("MIRRORPAIR_POSTGRES_DSN", &c.Storage.DSN)
	envStr("MIRRORPAIR_REDIS_ADDR", &c.Storage.RedisAddr)
	envStr("MIRRORPAIR_ENCRYPTION_KEY", &c.Storage.EncryptionKey)
	envStr("MIRRORPAIR_LOG_LEVEL", &c.Log.Level)
	envInt("MIRRORPAIR_POLL_INTERVAL_MS", &c.Pairing.PollIntervalMs)
	envStr("MIRRORPAIR_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MIRRORPAIR_OTEL_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MIRRORPAIR_DEVSERVER_LISTEN", &c.DevServer.Listen)
	envInt("MIRRORPAIR_DEVSERVER_RATE_LIMIT_RPM", &c.DevServer.RateLimitRPM)
	if c.Telemetry.Endpoint != "" && os.Getenv("MIRRORPAIR_OTEL_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// DefaultPath is where the config file lives when neither --config nor
// MIRRORPAIR_CONFIG is set.
func DefaultPath() string {
	return ExpandHome("~/.mirrorpair/config.json")
}

// Save writes cfg to path as indented JSON, creating parent directories.
// The file is replaced atomically.
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
