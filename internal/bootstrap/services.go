// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package bootstrap

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/huddle/internal/logging"
)

// DefaultFlushInterval is the period of FlushService when none is configured.
const DefaultFlushInterval = 5 * time.Minute

// FlushService periodically writes every cache to the store under suture.
type FlushService struct {
	boot     *Bootstrap
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewFlushService flushes boot every interval. A non-positive interval means
// DefaultFlushInterval.
func NewFlushService(boot *Bootstrap, interval time.Duration) *FlushService {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushService{
		boot:     boot,
		interval: interval,
		logger:   logging.WithComponent("flush"),
		name:     "cache-flush",
	}
}

// Serve implements suture.Service. A failed flush is logged and retried on
// the next tick; it never ends the service.
func (s *FlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug().Dur("interval", s.interval).Msg("Flush service running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.boot.Flush(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Periodic cache flush failed")
				continue
			}
			s.logger.Debug().Dur("duration", time.Since(start)).Msg("Caches flushed")
		}
	}
}

// String names the service in supervisor events.
func (s *FlushService) String() string {
	return s.name
}

// Validator reconciles the cache with the backend.
// *appcache.Cache implements it.
type Validator interface {
	ValidateCache(ctx context.Context)
}

// ValidationService runs ValidateCache on a fixed period.
type ValidationService struct {
	cache    Validator
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewValidationService validates every interval. Callers only register it
// when interval is positive.
func NewValidationService(cache Validator, interval time.Duration) *ValidationService {
	return &ValidationService{
		cache:    cache,
		interval: interval,
		logger:   logging.WithComponent("validation"),
		name:     "cache-validation",
	}
}

// Serve implements suture.Service.
func (s *ValidationService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug().Dur("interval", s.interval).Msg("Validation service running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cache.ValidateCache(ctx)
		}
	}
}

// String names the service in supervisor events.
func (s *ValidationService) String() string {
	return s.name
}
