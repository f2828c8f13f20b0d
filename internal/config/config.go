// Package config provides configuration types for the ratelimit command.
//
// Configuration selects the shared store, the algorithm and its parameters,
// and the settings of the HTTP service. It is read from ratelimit.yaml and
// RATELIMIT_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ryhazerus/ratelimit"
)

// Config is the top-level configuration.
type Config struct {
	// Store selects and configures the shared counter store.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Algorithm selects the rate limiting algorithm.
	Algorithm AlgorithmConfig `yaml:"algorithm" mapstructure:"algorithm"`

	// Prefix namespaces every key in the store.
	// Defaults to "@upstash/ratelimit".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Timeout bounds how long a decision waits for the store before the
	// request is let through (e.g., "50ms"). Empty disables the bound.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// Analytics records every decision as Prometheus metrics.
	Analytics bool `yaml:"analytics" mapstructure:"analytics"`

	// Server configures the HTTP service started by "ratelimit serve".
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the shared store.
type StoreConfig struct {
	// Type is one of "redis", "sqlite" or "memory". Defaults to "memory".
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=redis sqlite memory"`

	Redis  RedisConfig  `yaml:"redis" mapstructure:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite" mapstructure:"sqlite"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// Addr is the Redis server address. Defaults to "127.0.0.1:6379".
	Addr     string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db" validate:"gte=0"`
}

// SQLiteConfig configures the SQLite database.
type SQLiteConfig struct {
	// DSN is the database file, or ":memory:". Defaults to "ratelimit.db".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// AlgorithmConfig selects an algorithm. FixedWindow, SlidingWindow and
// SlidingLog use Tokens and Window; TokenBucket uses MaxTokens, RefillRate
// and Interval.
type AlgorithmConfig struct {
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=fixed_window sliding_window sliding_log token_bucket"`

	Tokens int64  `yaml:"tokens" mapstructure:"tokens" validate:"gte=0"`
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	RefillRate int64  `yaml:"refill_rate" mapstructure:"refill_rate" validate:"gte=0"`
	Interval   string `yaml:"interval" mapstructure:"interval" validate:"omitempty,duration"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat is "text" or "json". Defaults to "text".
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`

	// IdentifierHeader, when set, is read for the identifier of requests
	// to /limit that carry no JSON body.
	IdentifierHeader string `yaml:"identifier_header" mapstructure:"identifier_header"`
}

// SetDefaults fills in every optional field left empty.
func (c *Config) SetDefaults() {
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Store.SQLite.DSN == "" {
		c.Store.SQLite.DSN = "ratelimit.db"
	}

	if c.Algorithm.Type == "" {
		c.Algorithm.Type = "sliding_window"
	}
	switch c.Algorithm.Type {
	case "token_bucket":
		if c.Algorithm.MaxTokens == 0 {
			c.Algorithm.MaxTokens = 10
		}
		if c.Algorithm.RefillRate == 0 {
			c.Algorithm.RefillRate = 1
		}
		if c.Algorithm.Interval == "" {
			c.Algorithm.Interval = "1s"
		}
	default:
		if c.Algorithm.Tokens == 0 {
			c.Algorithm.Tokens = 10
		}
		if c.Algorithm.Window == "" {
			c.Algorithm.Window = "10s"
		}
	}

	if c.Prefix == "" {
		c.Prefix = ratelimit.DefaultPrefix
	}

	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}
}

// RateLimitAlgorithm converts the algorithm section into a ratelimit.Algorithm.
// The config must have been validated.
func (c *Config) RateLimitAlgorithm() (ratelimit.Algorithm, error) {
	a := c.Algorithm
	switch a.Type {
	case "fixed_window":
		return ratelimit.FixedWindow{Tokens: a.Tokens, Window: mustDuration(a.Window)}, nil
	case "sliding_window":
		return ratelimit.SlidingWindow{Tokens: a.Tokens, Window: mustDuration(a.Window)}, nil
	case "sliding_log":
		return ratelimit.SlidingLog{Tokens: a.Tokens, Window: mustDuration(a.Window)}, nil
	case "token_bucket":
		return ratelimit.TokenBucket{
			MaxTokens:  a.MaxTokens,
			RefillRate: a.RefillRate,
			Interval:   mustDuration(a.Interval),
		}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm type: %s", a.Type)
	}
}

// TimeoutDuration returns the parsed Timeout, zero when unset.
func (c *Config) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout)
}

// mustDuration parses a duration already checked by the duration validator.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
