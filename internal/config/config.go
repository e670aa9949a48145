// Package config loads the registry's typed configuration from a YAML file
// (if present) layered with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP transport boundary (internal/transport/httpapi).
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the two CQRS connection pools.
type DatabaseConfig struct {
	WriteDSN        string `yaml:"write_dsn" env:"DATABASE_WRITE_DSN"`
	ReadDSN         string `yaml:"read_dsn" env:"DATABASE_READ_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `yaml:"conn_max_life_secs" env:"DATABASE_CONN_MAX_LIFE_SECS"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// EventStreamConfig controls the event log's fan-out mirror.
type EventStreamConfig struct {
	RedisAddr   string `yaml:"redis_addr" env:"EVENT_STREAM_REDIS_ADDR"`
	StreamName  string `yaml:"stream_name" env:"EVENT_STREAM_NAME"`
}

// MeterConfig controls the Elexon-style meter-client boundary.
type MeterConfig struct {
	BaseURL             string  `yaml:"base_url" env:"METER_BASE_URL"`
	RateLimitPerSecond  float64 `yaml:"rate_limit_per_second" env:"METER_RATE_LIMIT_PER_SECOND"`
	TimeoutSeconds      int     `yaml:"timeout_seconds" env:"METER_TIMEOUT_SECONDS"`
}

// AuthConfig controls the API-key/token expiry window. Actual JWT/bcrypt
// verification is out of scope; the registry only consumes a resolved
// user id and role placed on the request context upstream.
type AuthConfig struct {
	APIKeyExpiryHours int `yaml:"api_key_expiry_hours" env:"AUTH_API_KEY_EXPIRY_HOURS"`
}

// RegistryConfig holds the registry's issuance tunables.
type RegistryConfig struct {
	CertificateGranularityHours float64 `yaml:"certificate_granularity_hours" env:"CERTIFICATE_GRANULARITY_HOURS"`
	CapacityMargin              float64 `yaml:"capacity_margin" env:"CAPACITY_MARGIN"`
	CertificateExpiryYears      int     `yaml:"certificate_expiry_years" env:"CERTIFICATE_EXPIRY_YEARS"`
}

// LoggingConfig controls pkg/logger construction.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output" env:"LOG_OUTPUT"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	EventStream EventStreamConfig `yaml:"event_stream"`
	Meter       MeterConfig       `yaml:"meter"`
	Auth        AuthConfig        `yaml:"auth"`
	Registry    RegistryConfig    `yaml:"registry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// New returns a Config populated with sensible production defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
			MigrateOnStart:  true,
		},
		EventStream: EventStreamConfig{StreamName: "events"},
		Meter:       MeterConfig{RateLimitPerSecond: 5, TimeoutSeconds: 15},
		Auth:        AuthConfig{APIKeyExpiryHours: 24 * 30},
		Registry: RegistryConfig{
			CertificateGranularityHours: 1.0,
			CapacityMargin:              1.1,
			CertificateExpiryYears:      2,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Granularity returns the certificate production interval as a time.Duration.
func (c RegistryConfig) Granularity() time.Duration {
	return time.Duration(c.CertificateGranularityHours * float64(time.Hour))
}

// Load reads an optional .env file, an optional YAML config file (path from
// CONFIG_FILE or "configs/config.yaml"), then overlays environment variables.
// Environment variables always win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode env config: %w", err)
	}

	return cfg, nil
}
