// Package api provides the HTTP surface of the labeler: a JSON API over the
// catalog, triage engine and preview service plus raw image serving.
package api

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/platelab/labeler/internal/conf"
	"github.com/platelab/labeler/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "64K"

	// cropRateBurst is the number of crop requests a client may issue at once
	// before the per-second limit applies.
	cropRateBurst = 10
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string
	Port int

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Limits
	BodyLimit     string  // maximum request body size, e.g. "64K"
	CropRateLimit float64 // /preview_crop requests per second per client, 0 disables

	// Metrics exposes /metrics when a registry is attached.
	Metrics bool

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            5000,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	cfg.Host = settings.WebServer.Host
	cfg.Port = settings.WebServer.Port
	if settings.WebServer.BodyLimit != "" {
		cfg.BodyLimit = settings.WebServer.BodyLimit
	}
	if settings.WebServer.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.WebServer.ReadTimeout
	}
	if settings.WebServer.WriteTimeout > 0 {
		cfg.WriteTimeout = settings.WebServer.WriteTimeout
	}
	cfg.CropRateLimit = settings.Preview.RateLimit
	cfg.Metrics = settings.Telemetry.Metrics
	cfg.Debug = settings.Debug

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.BodyLimit != "" {
		if _, err := bytes.Parse(c.BodyLimit); err != nil {
			return fmt.Errorf("invalid body limit %q: %w", c.BodyLimit, err)
		}
	}
	if c.CropRateLimit < 0 {
		return fmt.Errorf("crop rate limit must not be negative")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, body_limit=%s, crop_rate=%g/s, metrics=%v",
		c.Address(), c.BodyLimit, c.CropRateLimit, c.Metrics)
}
