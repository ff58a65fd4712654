// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/huddle/config.yaml",
	"/etc/huddle/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "HUDDLE_CONFIG_PATH"

// EnvPrefix is stripped from environment variables before mapping them to config keys.
const EnvPrefix = "HUDDLE_"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:             "http://localhost:8080/api",
			Timeout:             15 * time.Second,
			UserAgent:           "huddle-agent",
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Store: StoreConfig{
			Path:       "/data/huddle/store",
			SyncWrites: false,
		},
		Images: ImagesConfig{
			Dir:             "/data/huddle/images",
			MaxDiskBytes:    100 << 20, // 100 MiB
			MaxAge:          7 * 24 * time.Hour,
			MemoryEntries:   256,
			RefreshMaxAge:   6 * time.Hour,
			DownloadTimeout: 30 * time.Second,
			RefreshRate:     5,
		},
		Cache: CacheConfig{
			FlushInterval:    5 * time.Minute,
			ValidateInterval: 0,
		},
		Server: ServerConfig{
			Enabled:           false,
			Addr:              "127.0.0.1:9477",
			ReadTimeout:       10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults
//  2. Config File: optional YAML
//  3. Environment Variables: HUDDLE_-prefixed overrides
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// HUDDLE_IMAGES_MAX_DISK_BYTES -> images.max_disk_bytes
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"colors.palette",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// configSections are the top-level keys an environment variable may address.
var configSections = map[string]bool{
	"api":        true,
	"store":      true,
	"images":     true,
	"cache":      true,
	"colors":     true,
	"session":    true,
	"server":     true,
	"logging":    true,
	"supervisor": true,
}

// envTransformFunc maps an environment variable name to a koanf path.
// The section is the first segment after the prefix; the rest is the key.
//
// Examples:
//   - HUDDLE_API_BASE_URL -> api.base_url
//   - HUDDLE_IMAGES_MAX_DISK_BYTES -> images.max_disk_bytes
//   - HUDDLE_LOGGING_LEVEL -> logging.level
//
// Variables that do not name a known section map to "" and are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" || !configSections[section] {
		return ""
	}
	return section + "." + rest
}
