// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with no config path override.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "huddle.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Images.MaxDiskBytes != 100<<20 {
		t.Errorf("Images.MaxDiskBytes = %d, want 100MiB", cfg.Images.MaxDiskBytes)
	}
	if cfg.Images.MaxAge != 7*24*time.Hour {
		t.Errorf("Images.MaxAge = %v, want 168h", cfg.Images.MaxAge)
	}
	if cfg.Images.RefreshMaxAge != 6*time.Hour {
		t.Errorf("Images.RefreshMaxAge = %v, want 6h", cfg.Images.RefreshMaxAge)
	}
	if cfg.Images.MemoryEntries != 256 {
		t.Errorf("Images.MemoryEntries = %d, want 256", cfg.Images.MemoryEntries)
	}
	if cfg.Cache.FlushInterval != 5*time.Minute {
		t.Errorf("Cache.FlushInterval = %v, want 5m", cfg.Cache.FlushInterval)
	}
	if cfg.Cache.ValidateInterval != 0 {
		t.Errorf("Cache.ValidateInterval = %v, want disabled", cfg.Cache.ValidateInterval)
	}
	if len(cfg.Colors.Palette) != 0 {
		t.Errorf("Colors.Palette should default to the built-in palette, got %v", cfg.Colors.Palette)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HUDDLE_API_BASE_URL", "api.base_url"},
		{"HUDDLE_IMAGES_MAX_DISK_BYTES", "images.max_disk_bytes"},
		{"HUDDLE_CACHE_FLUSH_INTERVAL", "cache.flush_interval"},
		{"HUDDLE_COLORS_PALETTE", "colors.palette"},
		{"HUDDLE_SESSION_ACCESS_TOKEN", "session.access_token"},
		{"HUDDLE_LOGGING_LEVEL", "logging.level"},
		{"HUDDLE_SUPERVISOR_FAILURE_BACKOFF", "supervisor.failure_backoff"},

		// Unknown sections and bare prefixes are ignored
		{"HUDDLE_CONFIG_PATH", ""},
		{"HUDDLE_RANDOM", ""},
		{"HUDDLE_API", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := isolate(t)

	t.Run("no config file exists", func(t *testing.T) {
		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty string", got)
		}
	})

	t.Run("config.yaml exists", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		t.Cleanup(func() { os.Remove(path) })

		if got := findConfigFile(); got != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", got)
		}
	})

	t.Run("env var takes precedence", func(t *testing.T) {
		custom := writeConfig(t, dir, "logging:\n  level: info\n")
		t.Setenv(ConfigPathEnvVar, custom)

		if got := findConfigFile(); got != custom {
			t.Errorf("findConfigFile() = %q, want %q", got, custom)
		}
	})

	t.Run("env var with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")

		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty string", got)
		}
	})
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	isolate(t)
	t.Setenv("HUDDLE_API_BASE_URL", "https://api.example.com/v1")
	t.Setenv("HUDDLE_IMAGES_MAX_DISK_BYTES", "1048576")
	t.Setenv("HUDDLE_CACHE_FLUSH_INTERVAL", "30s")
	t.Setenv("HUDDLE_COLORS_PALETTE", "#112233, #445566")
	t.Setenv("HUDDLE_STORE_IN_MEMORY", "true")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Images.MaxDiskBytes != 1<<20 {
		t.Errorf("Images.MaxDiskBytes = %d, want 1MiB", cfg.Images.MaxDiskBytes)
	}
	if cfg.Cache.FlushInterval != 30*time.Second {
		t.Errorf("Cache.FlushInterval = %v, want 30s", cfg.Cache.FlushInterval)
	}
	if len(cfg.Colors.Palette) != 2 || cfg.Colors.Palette[1] != "#445566" {
		t.Errorf("Colors.Palette = %v, want two entries", cfg.Colors.Palette)
	}
	if !cfg.Store.InMemory {
		t.Error("Store.InMemory should be true")
	}

	// defaults still apply for unset values
	if cfg.Images.MaxAge != 7*24*time.Hour {
		t.Errorf("Images.MaxAge = %v, want default", cfg.Images.MaxAge)
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
api:
  base_url: "https://file.example.com"
images:
  dir: "/tmp/huddle-images"
  memory_entries: 32
logging:
  level: "warn"
`)
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.API.BaseURL != "https://file.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Images.Dir != "/tmp/huddle-images" || cfg.Images.MemoryEntries != 32 {
		t.Errorf("Images = %+v", cfg.Images)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Images.MaxDiskBytes != 100<<20 {
		t.Errorf("Images.MaxDiskBytes = %d, want default", cfg.Images.MaxDiskBytes)
	}
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "logging:\n  level: warn\n  format: console\n")
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HUDDLE_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug (env wins)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console (from file)", cfg.Logging.Format)
	}
}

func TestLoadWithKoanfValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "bad base url",
			env:     map[string]string{"HUDDLE_API_BASE_URL": "not a url"},
			wantErr: "api.base_url",
		},
		{
			name:    "zero disk ceiling",
			env:     map[string]string{"HUDDLE_IMAGES_MAX_DISK_BYTES": "0"},
			wantErr: "images.max_disk_bytes",
		},
		{
			name:    "bad palette entry",
			env:     map[string]string{"HUDDLE_COLORS_PALETTE": "#112233,blue"},
			wantErr: "colors.palette[1]",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"HUDDLE_LOGGING_LEVEL": "loud"},
			wantErr: "logging.level",
		},
		{
			name:    "refresh age beyond max age",
			env:     map[string]string{"HUDDLE_IMAGES_REFRESH_MAX_AGE": "200h"},
			wantErr: "images.refresh_max_age",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadWithKoanf()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithKoanfStorePathRequired(t *testing.T) {
	dir := isolate(t)
	t.Setenv(ConfigPathEnvVar, writeConfig(t, dir, "store:\n  path: \"\"\n"))

	if _, err := LoadWithKoanf(); err == nil || !strings.Contains(err.Error(), "store.path") {
		t.Errorf("err = %v, want store.path failure", err)
	}

	t.Setenv("HUDDLE_STORE_IN_MEMORY", "true")
	if _, err := LoadWithKoanf(); err != nil {
		t.Errorf("in-memory store needs no path: %v", err)
	}
}
