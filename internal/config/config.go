package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	AuthTimeout               time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	MaxMessageBytes           int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBufferSize          int           `mapstructure:"client_buffer_size" yaml:"client_buffer_size"`
	RateLimitPerMinute        int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxContentLength          int           `mapstructure:"max_content_length" yaml:"max_content_length"`
	DuplicateConnectionPolicy string        `mapstructure:"duplicate_connection_policy" yaml:"duplicate_connection_policy"`
	WSOriginPatterns          []string      `mapstructure:"ws_origin_patterns" yaml:"ws_origin_patterns"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                      ":8080",
		ReadHeaderTimeout:         5 * time.Second,
		ShutdownTimeout:           5 * time.Second,
		DatabasePath:              "vseti.db",
		JWTSecret:                 "change-me",
		JWTIssuer:                 "vseti-chat",
		JWTAudience:               "vseti-chat",
		JWTTTL:                    24 * time.Hour,
		AuthTimeout:               10 * time.Second,
		MaxMessageBytes:           1 << 20,
		ClientBufferSize:          64,
		RateLimitPerMinute:        120,
		MaxContentLength:          4000,
		DuplicateConnectionPolicy: "keep",
		LogLevel:                  "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the keys exposed as CLI flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is empty"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("jwt_ttl must be positive"))
	}
	if c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("auth_timeout must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	switch c.DuplicateConnectionPolicy {
	case "keep", "evict":
	default:
		errs = append(errs, fmt.Errorf("duplicate_connection_policy %q must be keep or evict", c.DuplicateConnectionPolicy))
	}
	return errors.Join(errs...)
}
