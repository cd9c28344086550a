package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Canvas    CanvasConfig    `mapstructure:"canvas" yaml:"canvas"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
}

// DatabaseConfig selects the drawing store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path" yaml:"path"`
	URL    string `mapstructure:"url" yaml:"url"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// RedisConfig enables the cross-instance relay when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// CanvasConfig is the surface size used for server-side rendering.
type CanvasConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// DiscoveryConfig controls LAN advertisement.
type DiscoveryConfig struct {
	MDNS     bool   `mapstructure:"mdns" yaml:"mdns"`
	Instance string `mapstructure:"instance" yaml:"instance"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MaxMessageBytes:    1 << 20,
		RateLimitPerMinute: 600,
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "tahta.db",
		},
		JWT: JWTConfig{
			Secret:   "change-me",
			Issuer:   "tahta",
			Audience: "tahta",
			TTL:      24 * time.Hour,
		},
		Redis: RedisConfig{
			Channel: "tahta:relay",
		},
		Canvas: CanvasConfig{
			Width:  1280,
			Height: 720,
		},
		Discovery: DiscoveryConfig{
			Instance: "tahta",
		},
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		errs = append(errs, errors.New("canvas size must be positive"))
	}
	return errors.Join(errs...)
}
