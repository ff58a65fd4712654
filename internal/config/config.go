// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package config loads huddle-agent configuration.
//
// Configuration is layered with Koanf v2:
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML (config.yaml, /etc/huddle/config.yaml, or HUDDLE_CONFIG_PATH)
//  3. Environment: HUDDLE_<SECTION>_<KEY>, e.g. HUDDLE_IMAGES_MAX_DISK_BYTES
//
// The loaded struct is validated with go-playground/validator before use.
// Config is immutable after loading and safe for concurrent reads.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/huddle/internal/validation"
)

// Config holds all agent configuration.
type Config struct {
	API        APIConfig        `koanf:"api"`
	Store      StoreConfig      `koanf:"store"`
	Images     ImagesConfig     `koanf:"images"`
	Cache      CacheConfig      `koanf:"cache"`
	Colors     ColorsConfig     `koanf:"colors"`
	Session    SessionConfig    `koanf:"session"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// APIConfig configures the backend REST client.
type APIConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	UserAgent string        `koanf:"user_agent"`

	// Circuit breaker settings shared by the backend and image CDN breakers.
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests" validate:"gte=1"`
	BreakerInterval     time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests" validate:"gte=1"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
}

// StoreConfig configures the persistent key-value store.
type StoreConfig struct {
	Path       string `koanf:"path" validate:"required_without=InMemory"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
	KeyPrefix  string `koanf:"key_prefix"`
}

// ImagesConfig configures the avatar image cache.
type ImagesConfig struct {
	Dir             string        `koanf:"dir" validate:"required"`
	MaxDiskBytes    int64         `koanf:"max_disk_bytes" validate:"gt=0"`
	MaxAge          time.Duration `koanf:"max_age" validate:"gt=0"`
	MemoryEntries   int           `koanf:"memory_entries" validate:"gte=1"`
	RefreshMaxAge   time.Duration `koanf:"refresh_max_age" validate:"gt=0"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gt=0"`

	// RefreshRate paces the sequential profile-picture pass, in downloads per second.
	RefreshRate float64 `koanf:"refresh_rate" validate:"gt=0"`
}

// CacheConfig configures the entity cache background work.
type CacheConfig struct {
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`

	// ValidateInterval runs ValidateCache periodically. Zero disables it.
	ValidateInterval time.Duration `koanf:"validate_interval" validate:"gte=0"`
}

// ColorsConfig configures the entity color palette.
type ColorsConfig struct {
	// Palette overrides the built-in palette when non-empty.
	Palette []string `koanf:"palette" validate:"omitempty,dive,hexcolor"`
}

// SessionConfig configures the current user.
type SessionConfig struct {
	// AccessToken is a JWT whose subject is the current user id. Empty means
	// the agent starts logged out.
	AccessToken string `koanf:"access_token"`
}

// ServerConfig configures the debug HTTP surface.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Addr            string        `koanf:"addr" validate:"required_with=Enabled"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	// Per-client request limit on /debug routes. Zero disables limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"required_with=RateLimitRequests"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gte=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gte=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gte=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Images.RefreshMaxAge > c.Images.MaxAge {
		return fmt.Errorf("invalid configuration: images.refresh_max_age (%v) must not exceed images.max_age (%v)",
			c.Images.RefreshMaxAge, c.Images.MaxAge)
	}
	return nil
}
