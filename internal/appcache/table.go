// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package appcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/models"
	"github.com/tomtom215/huddle/internal/store"
)

const keyPrefix = "appcache:"

// persisted is the type-erased view of a table used for load, flush and clear.
type persisted interface {
	Name() string
	load(ctx context.Context, st store.Store)
	save(ctx context.Context, st store.Store) error
	drop(ctx context.Context, st store.Store) error
	remove(owner uuid.UUID) bool
	clear()
	count(owner uuid.UUID) int
}

// table maps an owner id to one value. Values are published whole and never
// mutated afterwards, so a reader holding one never sees a partial write.
type table[V any] struct {
	name  string
	key   string
	size  func(V) int
	mu    sync.RWMutex
	data  map[uuid.UUID]V
	saveM sync.Mutex
}

func newTable[V any](name string, size func(V) int) *table[V] {
	return &table[V]{
		name: name,
		key:  keyPrefix + name,
		size: size,
		data: make(map[uuid.UUID]V),
	}
}

func listSize[T any](v []T) int { return len(v) }

func one[T any](T) int { return 1 }

// Name returns the cache-type name.
func (t *table[V]) Name() string { return t.name }

func (t *table[V]) get(owner uuid.UUID) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[owner]
	return v, ok
}

func (t *table[V]) set(owner uuid.UUID, v V) {
	t.mu.Lock()
	t.data[owner] = v
	t.mu.Unlock()
}

// mutate replaces owner's value with fn(current) atomically.
func (t *table[V]) mutate(owner uuid.UUID, fn func(cur V, ok bool) V) V {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.data[owner]
	next := fn(cur, ok)
	t.data[owner] = next
	return next
}

// rewriteAll replaces every owner's value with fn(owner, current) under one
// lock. Owners for which fn reports false are removed.
func (t *table[V]) rewriteAll(fn func(owner uuid.UUID, cur V) (V, bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for owner, cur := range t.data {
		if next, keep := fn(owner, cur); keep {
			t.data[owner] = next
		} else {
			delete(t.data, owner)
		}
	}
}

func (t *table[V]) remove(owner uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[owner]
	delete(t.data, owner)
	return ok
}

func (t *table[V]) clear() {
	t.mu.Lock()
	t.data = make(map[uuid.UUID]V)
	t.mu.Unlock()
}

func (t *table[V]) count(owner uuid.UUID) int {
	v, ok := t.get(owner)
	if !ok {
		return 0
	}
	return t.size(v)
}

func (t *table[V]) owners() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(t.data))
	for id := range t.data {
		out = append(out, id)
	}
	return out
}

func (t *table[V]) snapshot() map[uuid.UUID]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uuid.UUID]V, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

// load replaces the table with its persisted form. A missing or malformed
// record leaves the table empty.
func (t *table[V]) load(ctx context.Context, st store.Store) {
	var m map[uuid.UUID]V
	if err := store.LoadJSON(ctx, st, t.key, &m); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CachePersistErrors.WithLabelValues(t.key, "load").Inc()
			logging.Warn().Err(err).Str("cache_type", t.name).Str("key", t.key).Msg("Discarding unreadable cache table")
		}
		return
	}
	if m == nil {
		m = make(map[uuid.UUID]V)
	}
	t.mu.Lock()
	t.data = m
	t.mu.Unlock()
}

// save writes the table. Saves are serialized and snapshot under the save
// lock, so the last save to finish holds the newest state.
func (t *table[V]) save(ctx context.Context, st store.Store) error {
	t.saveM.Lock()
	defer t.saveM.Unlock()
	if err := store.SaveJSON(ctx, st, t.key, t.snapshot()); err != nil {
		metrics.CachePersistErrors.WithLabelValues(t.key, "save").Inc()
		return fmt.Errorf("save %s: %w", t.name, err)
	}
	return nil
}

func (t *table[V]) drop(ctx context.Context, st store.Store) error {
	t.saveM.Lock()
	defer t.saveM.Unlock()
	if err := st.Delete(ctx, t.key); err != nil {
		metrics.CachePersistErrors.WithLabelValues(t.key, "delete").Inc()
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

// dedupKeepLast returns items unique by id. Each id keeps its last
// occurrence, at the position of that occurrence.
func dedupKeepLast[T models.Identifiable](items []T) []T {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]T, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		id := items[i].EntityID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, items[i])
	}
	slices.Reverse(out)
	return out
}

// normalizeRequests drops entries with the nil id and keeps the first
// occurrence of every other id.
func normalizeRequests[T models.Identifiable](items []T) []T {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := item.EntityID()
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
