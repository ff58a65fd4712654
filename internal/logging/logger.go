// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package logging provides the zerolog-based process logger for Huddle.
//
// Every cache component logs through this package so that swallowed failures
// (refresh errors, malformed persisted blobs, failed avatar downloads) are
// still visible with structured fields:
//
//	logging.Warn().Err(err).Str("cache_type", "friends").Msg("Refresh failed, keeping cached data")
//
// Init is called once from the composition root with values loaded by the
// config package. Before Init, a JSON logger at info level writes to stderr.
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never emitted.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal or
	// disabled. Unknown values fall back to info.
	Level string

	// Format is json (default) or console.
	Format string

	Caller    bool
	Timestamp bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used before Init.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var global atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging must work before Init is called
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Init(DefaultConfig())
}

// Init replaces the global logger. It may be called again, e.g. by tests.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()
	global.Store(&l)
}

// levelAliases covers spellings operators use that zerolog does not accept.
var levelAliases = map[string]zerolog.Level{
	"warning": zerolog.WarnLevel,
	"off":     zerolog.Disabled,
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if l, ok := levelAliases[level]; ok {
		return l
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *global.Load()
}

func current() *zerolog.Logger {
	return global.Load()
}

// Debug starts a debug level event.
func Debug() *zerolog.Event { return current().Debug() }

// Info starts an info level event.
func Info() *zerolog.Event { return current().Info() }

// Warn starts a warn level event. Recovered failures that leave the cache
// untouched are logged at this level.
func Warn() *zerolog.Event { return current().Warn() }

// Error starts an error level event.
func Error() *zerolog.Event { return current().Error() }

// Fatal starts a fatal level event. os.Exit(1) follows the write.
func Fatal() *zerolog.Event { return current().Fatal() }

// Err starts an error level event carrying err, or an info event if err is nil.
func Err(err error) *zerolog.Event { return current().Err(err) }

// NewTestLogger creates a JSON logger writing to w, for capturing output in tests.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
