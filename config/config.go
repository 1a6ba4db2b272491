package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultSharedSecret is what the collector tooling falls back to when no
	// secret is configured. It is public and must never be used in production.
	DefaultSharedSecret = "ultrasafesecret"

	// DefaultFixtureTime is the X-Hamustro-Time every generated fixture is
	// signed with, so replaying tools know which header to send.
	DefaultFixtureTime = "1454514088"

	DefaultTimeout = 30 * time.Second
)

var ErrConfig = errors.New("config error")

type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Config is the JSON record shared with the collector. Only SharedSecret,
// FixtureTime and Timeout drive this tool; the rest is what the setup wizard
// writes for the collector itself.
type Config struct {
	SharedSecret string `json:"shared_secret"`
	FixtureTime  string `json:"fixture_time,omitempty"`
	Timeout      int    `json:"timeout,omitempty"` // seconds

	LogFile           string `json:"logfile,omitempty"`
	Signature         string `json:"signature,omitempty"`
	Dialect           string `json:"dialect,omitempty"`
	MaxWorkerSize     int    `json:"max_worker_size,omitempty"`
	MaxQueueSize      int    `json:"max_queue_size,omitempty"`
	BufferSize        int    `json:"buffer_size,omitempty"`
	SpreadBufferSize  bool   `json:"spread_buffer_size,omitempty"`
	RetryAttempt      int    `json:"retry_attempt,omitempty"`
	MaintenanceKey    string `json:"maintenance_key,omitempty"`
	AutoFlushInterval int    `json:"auto_flush_interval,omitempty"`
	MaskedIP          bool   `json:"masked_ip,omitempty"`

	S3   map[string]string `json:"s3,omitempty"`
	ABS  map[string]string `json:"abs,omitempty"`
	SNS  map[string]string `json:"sns,omitempty"`
	AQS  map[string]string `json:"aqs,omitempty"`
	File map[string]string `json:"file,omitempty"`

	defaultSecret bool
}

// Load reads the configuration record at path, applies HAMUSTRO_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}

	cfg.applyEnv()

	if cfg.SharedSecret == "" {
		cfg.SharedSecret = DefaultSharedSecret
		cfg.defaultSecret = true
	}
	if cfg.defaultSecret || cfg.SharedSecret == DefaultSharedSecret {
		log.Printf("Config: WARNING %s uses the insecure default shared_secret %q; never rely on it outside local testing",
			path, DefaultSharedSecret)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (c *Config) applyEnv() {
	c.SharedSecret = getenv("HAMUSTRO_SHARED_SECRET", c.SharedSecret)
	c.FixtureTime = getenv("HAMUSTRO_FIXTURE_TIME", c.FixtureTime)
	c.Timeout = getenvInt("HAMUSTRO_TIMEOUT", c.Timeout)
}

// UsesDefaultSecret reports whether no secret was configured at all.
func (c *Config) UsesDefaultSecret() bool {
	return c.defaultSecret
}

func (c *Config) FixtureTimestamp() string {
	if c.FixtureTime != "" {
		return c.FixtureTime
	}
	return DefaultFixtureTime
}

func (c *Config) HTTPTimeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return DefaultTimeout
}

var dialects = []string{"abs", "aqs", "s3", "sns", "file"}

func oneOf(val string, allowed []string) bool {
	for _, a := range allowed {
		if val == a {
			return true
		}
	}
	return false
}

// Validate reports every problem with the record at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.ContainsAny(c.SharedSecret, "\r\n") {
		result = multierror.Append(result, errors.New("shared_secret must be a single line"))
	}
	if strings.ContainsAny(c.FixtureTime, "\r\n") {
		result = multierror.Append(result, errors.New("fixture_time must be usable as an HTTP header value"))
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must be >= 0, got %d", c.Timeout))
	}
	if c.Signature != "" && !oneOf(c.Signature, []string{"required", "optional"}) {
		result = multierror.Append(result, fmt.Errorf("signature must be required or optional, got %q", c.Signature))
	}
	if c.Dialect != "" && !oneOf(strings.ToLower(c.Dialect), dialects) {
		result = multierror.Append(result, fmt.Errorf("dialect must be one of %s, got %q", strings.Join(dialects, ", "), c.Dialect))
	}
	for name, n := range map[string]int{
		"max_worker_size":     c.MaxWorkerSize,
		"max_queue_size":      c.MaxQueueSize,
		"buffer_size":         c.BufferSize,
		"retry_attempt":       c.RetryAttempt,
		"auto_flush_interval": c.AutoFlushInterval,
	} {
		if n < 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be >= 0, got %d", name, n))
		}
	}

	return result.ErrorOrNil()
}

// Save writes the record as indented JSON, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directories for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
