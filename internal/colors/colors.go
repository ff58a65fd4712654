// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package colors assigns each entity a stable display color.
//
// Colors are handed out round-robin from a fixed palette, so the palette is
// used evenly no matter how ids are distributed. The Nth distinct id ever
// seen gets palette[(N-1) mod len(palette)]. Assignments, usage counters and
// the cursor are persisted so an entity keeps its color across restarts.
package colors

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/store"
)

// StoreKey is the store key holding the assignment state.
const StoreKey = "colors:state"

// Color is a palette entry, as a hex RGB string.
type Color string

// DefaultPalette is the palette used when none is configured.
var DefaultPalette = []Color{
	"#7C3AED", // violet
	"#2563EB", // blue
	"#0891B2", // cyan
	"#059669", // emerald
	"#65A30D", // lime
	"#D97706", // amber
	"#EA580C", // orange
	"#DC2626", // red
	"#DB2777", // pink
	"#4F46E5", // indigo
}

// state is the persisted form.
type state struct {
	Assignments map[uuid.UUID]Color `json:"assignments"`
	Usage       map[Color]int       `json:"usage"`
	Cursor      int                 `json:"cursor"`
}

// Assigner maps entity ids to palette colors. It is safe for concurrent use.
type Assigner struct {
	store   store.Store
	palette []Color

	mu          sync.Mutex
	assignments map[uuid.UUID]Color
	usage       map[Color]int
	cursor      int
}

// New creates an empty Assigner. A nil palette selects DefaultPalette.
// A nil store keeps the state in memory only.
func New(st store.Store, palette []Color) *Assigner {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	p := make([]Color, len(palette))
	copy(p, palette)

	return &Assigner{
		store:       st,
		palette:     p,
		assignments: make(map[uuid.UUID]Color),
		usage:       make(map[Color]int),
	}
}

// Load replaces the in-memory state with the persisted one. A missing or
// malformed record leaves the Assigner empty and is not an error.
func (a *Assigner) Load(ctx context.Context) {
	if a.store == nil {
		return
	}

	var s state
	if err := store.LoadJSON(ctx, a.store, StoreKey, &s); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CachePersistErrors.WithLabelValues(StoreKey, "load").Inc()
			logging.Warn().Err(err).Str("key", StoreKey).Msg("Discarding unreadable color state")
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.assignments = s.Assignments
	if a.assignments == nil {
		a.assignments = make(map[uuid.UUID]Color)
	}
	a.usage = s.Usage
	if a.usage == nil {
		a.usage = make(map[Color]int)
	}
	a.cursor = s.Cursor
	if a.cursor < 0 {
		a.cursor = 0
	}
	metrics.ColorAssignedEntities.Set(float64(len(a.assignments)))
}

// ColorFor returns the color of id, assigning the next palette color if id
// has none yet.
func (a *Assigner) ColorFor(id uuid.UUID) Color {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.assignments[id]; ok {
		return c
	}
	c := a.assignLocked(id)
	a.persistLocked()
	return c
}

// Preassign assigns colors to every id that has none, persisting once for
// the whole batch.
func (a *Assigner) Preassign(ids []uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	assigned := 0
	for _, id := range ids {
		if _, ok := a.assignments[id]; ok {
			continue
		}
		a.assignLocked(id)
		assigned++
	}
	if assigned > 0 {
		a.persistLocked()
	}
}

// Lookup returns the assigned color without assigning one.
func (a *Assigner) Lookup(id uuid.UUID) (Color, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.assignments[id]
	return c, ok
}

// DistributionStats returns a copy of the per-color usage counters.
func (a *Assigner) DistributionStats() map[Color]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[Color]int, len(a.usage))
	for c, n := range a.usage {
		out[c] = n
	}
	return out
}

// Len returns the number of assigned entities.
func (a *Assigner) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.assignments)
}

// Reset clears every assignment, the usage counters and the cursor, and
// persists the empty state.
func (a *Assigner) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.assignments = make(map[uuid.UUID]Color)
	a.usage = make(map[Color]int)
	a.cursor = 0
	a.persistLocked()
}

// ClearForUser is called when a user's data is cleared. Assignments are
// shared by every account on the device, so it leaves them untouched.
func (a *Assigner) ClearForUser(userID uuid.UUID) {
	logging.Debug().Str("user_id", userID.String()).Msg("Color assignments are global; nothing cleared for user")
}

func (a *Assigner) assignLocked(id uuid.UUID) Color {
	c := a.palette[a.cursor%len(a.palette)]
	a.cursor++
	a.assignments[id] = c
	a.usage[c]++

	metrics.ColorAssignments.Inc()
	metrics.ColorAssignedEntities.Set(float64(len(a.assignments)))
	return c
}

// persistLocked writes the state; failures are logged and dropped.
func (a *Assigner) persistLocked() {
	if a.store == nil {
		return
	}
	s := state{Assignments: a.assignments, Usage: a.usage, Cursor: a.cursor}
	if err := store.SaveJSON(context.Background(), a.store, StoreKey, s); err != nil {
		metrics.CachePersistErrors.WithLabelValues(StoreKey, "save").Inc()
		logging.Warn().Err(err).Str("key", StoreKey).Msg("Failed to persist color state")
	}
}
