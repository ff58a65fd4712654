// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package bootstrap owns the cache lifecycle: a one-time load from the
// persistent store, periodic flushes and the final flush on shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/huddle/internal/logging"
)

// Loader hydrates itself from the persistent store. Load tolerates missing
// and malformed keys.
type Loader interface {
	Load(ctx context.Context)
}

// Entities is the entity cache surface the lifecycle drives.
// *appcache.Cache implements it.
type Entities interface {
	Loader
	Flush(ctx context.Context) error
	Wait()
}

// Images is the image cache surface the lifecycle drives.
// *imagecache.Cache implements it. Its metadata is loaded at construction.
type Images interface {
	Flush(ctx context.Context)
	Wait()
}

// Bootstrap ties the process-wide caches to the store.
type Bootstrap struct {
	entities Entities
	colors   Loader
	images   Images

	mu          sync.Mutex
	initialized bool
}

// New returns a Bootstrap. colors and images may be nil.
func New(entities Entities, colors Loader, images Images) *Bootstrap {
	return &Bootstrap{entities: entities, colors: colors, images: images}
}

// Initialize loads the color assignments and every entity table with its
// timestamps. Only the first call does anything; it reports whether this
// call loaded.
func (b *Bootstrap) Initialize(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return false
	}

	start := time.Now()
	if b.colors != nil {
		b.colors.Load(ctx)
	}
	b.entities.Load(ctx)
	b.initialized = true

	logging.Info().Dur("duration", time.Since(start)).Msg("Caches loaded from store")
	return true
}

// Initialized reports whether Initialize has run.
func (b *Bootstrap) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Flush writes all tables, timestamps and image metadata, changed or not.
func (b *Bootstrap) Flush(ctx context.Context) error {
	var errs []error
	if err := b.entities.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush entity cache: %w", err))
	}
	if b.images != nil {
		b.images.Flush(ctx)
	}
	return errors.Join(errs...)
}

// Shutdown waits for background cache work and flushes once more.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	b.entities.Wait()
	if b.images != nil {
		b.images.Wait()
	}
	return b.Flush(ctx)
}
