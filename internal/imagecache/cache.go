// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package imagecache is the two-tier avatar cache keyed by owner id.
//
// The memory tier is a bounded LRU. The disk tier holds one file per owner
// under a billy filesystem, with cached-at, last-accessed and size metadata
// persisted in the store. After every disk write the tier is trimmed back to
// 75% of its byte ceiling, least recently accessed first. Downloads for the
// same owner are coalesced so at most one fetch per owner is in flight.
package imagecache

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/huddle/internal/cache"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/store"
)

// StoreKey is the store key holding the disk tier metadata.
const StoreKey = "images:metadata"

const (
	imageDir = "avatars"
	imageExt = ".img"

	// after an over-ceiling write, trim down to this share of the ceiling
	evictionTargetRatio = 0.75
)

// Fetcher downloads image bytes.
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Config bounds the cache.
type Config struct {
	MaxDiskBytes    int64
	MaxAge          time.Duration
	MemoryEntries   int
	DownloadTimeout time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		MaxDiskBytes:    100 << 20,
		MaxAge:          7 * 24 * time.Hour,
		MemoryEntries:   256,
		DownloadTimeout: 30 * time.Second,
	}
}

type entryMeta struct {
	CachedAt     time.Time `json:"cachedAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	Size         int64     `json:"size"`
}

// Cache is the avatar cache. Create it with New.
type Cache struct {
	cfg     Config
	now     func() time.Time
	fs      billy.Filesystem
	store   store.Store
	fetcher Fetcher

	memory *cache.LRU[uuid.UUID, *Image]

	// diskMu serializes file writes, removals and eviction.
	diskMu sync.Mutex

	// mu guards meta and pending.
	mu   sync.Mutex
	meta map[uuid.UUID]entryMeta
	// pending maps an owner to the sequence number of its newest unwritten
	// Put; a writer whose number no longer matches was superseded or removed.
	pending map[uuid.UUID]uint64
	seq     uint64

	persistMu sync.Mutex

	group    singleflight.Group
	flightMu sync.Mutex
	flights  map[uuid.UUID]int

	wg sync.WaitGroup
}

// New creates the cache, loads persisted metadata, drops metadata whose
// file is gone and files without metadata, removes entries older than
// MaxAge and enforces the byte ceiling.
func New(ctx context.Context, cfg Config, fsys billy.Filesystem, st store.Store, fetcher Fetcher) (*Cache, error) {
	def := DefaultConfig()
	if cfg.MaxDiskBytes <= 0 {
		cfg.MaxDiskBytes = def.MaxDiskBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = def.MemoryEntries
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = def.DownloadTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := fsys.MkdirAll(imageDir, 0o755); err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:     cfg,
		now:     now,
		fs:      fsys,
		store:   st,
		fetcher: fetcher,
		meta:    make(map[uuid.UUID]entryMeta),
		pending: make(map[uuid.UUID]uint64),
		flights: make(map[uuid.UUID]int),
	}
	c.memory = cache.NewLRU[uuid.UUID, *Image](cfg.MemoryEntries, func(uuid.UUID, *Image) {
		metrics.ImageEvictions.WithLabelValues("memory").Inc()
	})

	c.loadMeta(ctx)
	c.reconcile(ctx)

	c.diskMu.Lock()
	c.evictLocked(ctx)
	c.diskMu.Unlock()

	c.updateGauges()
	return c, nil
}

func fileName(id uuid.UUID) string {
	return path.Join(imageDir, id.String()+imageExt)
}

func (c *Cache) loadMeta(ctx context.Context) {
	if c.store == nil {
		return
	}
	var m map[uuid.UUID]entryMeta
	if err := store.LoadJSON(ctx, c.store, StoreKey, &m); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CachePersistErrors.WithLabelValues(StoreKey, "load").Inc()
			logging.Warn().Err(err).Str("key", StoreKey).Msg("Discarding unreadable image metadata")
		}
		return
	}
	c.mu.Lock()
	for id, e := range m {
		c.meta[id] = e
	}
	c.mu.Unlock()
}

// reconcile aligns metadata with the files on disk and applies age cleanup.
func (c *Cache) reconcile(ctx context.Context) {
	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	onDisk := make(map[uuid.UUID]int64)
	infos, err := c.fs.ReadDir(imageDir)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to list image cache directory")
	}
	for _, info := range infos {
		name := info.Name()
		id, perr := uuid.Parse(strings.TrimSuffix(name, imageExt))
		if info.IsDir() || !strings.HasSuffix(name, imageExt) || perr != nil {
			continue
		}
		onDisk[id] = info.Size()
	}

	cutoff := c.now().Add(-c.cfg.MaxAge)
	var expired []uuid.UUID

	c.mu.Lock()
	for id, e := range c.meta {
		size, ok := onDisk[id]
		if !ok {
			delete(c.meta, id)
			metrics.ImageEvictions.WithLabelValues("orphan").Inc()
			continue
		}
		if e.CachedAt.Before(cutoff) {
			delete(c.meta, id)
			expired = append(expired, id)
			continue
		}
		if e.Size != size {
			e.Size = size
			c.meta[id] = e
		}
	}
	var orphans []uuid.UUID
	for id := range onDisk {
		if _, ok := c.meta[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	c.mu.Unlock()

	for _, id := range orphans {
		c.removeFile(id)
	}
	for _, id := range expired {
		c.removeFile(id)
		metrics.ImageEvictions.WithLabelValues("age").Inc()
	}
	if len(expired) > 0 || len(orphans) > 0 {
		logging.Info().
			Int("expired", len(expired)).
			Int("orphaned_files", len(orphans)).
			Msg("Image cache cleanup")
	}
	c.persistMeta(ctx)
}

// Get returns the cached image for ownerID, or nil. Memory is checked first,
// then disk; a disk hit is promoted to memory.
func (c *Cache) Get(ownerID uuid.UUID) *Image {
	if img, ok := c.memory.Get(ownerID); ok {
		c.touch(ownerID, false)
		metrics.ImageCacheHits.WithLabelValues("memory").Inc()
		return img
	}

	c.mu.Lock()
	_, known := c.meta[ownerID]
	_, writing := c.pending[ownerID]
	c.mu.Unlock()
	if !known || writing {
		metrics.ImageCacheMisses.Inc()
		return nil
	}

	data, err := c.readFile(ownerID)
	if err != nil {
		logging.Debug().Err(err).Str("owner_id", ownerID.String()).Msg("Image file unreadable, dropping entry")
		c.Remove(ownerID)
		metrics.ImageCacheMisses.Inc()
		return nil
	}
	img, err := Decode(data)
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Cached image is corrupt, dropping entry")
		c.Remove(ownerID)
		metrics.ImageCacheMisses.Inc()
		return nil
	}

	c.memory.Add(ownerID, img)
	c.touch(ownerID, true)
	metrics.ImageCacheHits.WithLabelValues("disk").Inc()
	c.updateGauges()
	return img
}

// touch stamps the last-accessed time, persisting it when persist is set.
func (c *Cache) touch(ownerID uuid.UUID, persist bool) {
	c.mu.Lock()
	e, ok := c.meta[ownerID]
	if ok {
		e.LastAccessed = c.now()
		c.meta[ownerID] = e
	}
	c.mu.Unlock()
	if ok && persist {
		c.persistMeta(context.Background())
	}
}

// Put stores img in memory immediately and writes it to disk in the
// background, then enforces the byte ceiling.
func (c *Cache) Put(ownerID uuid.UUID, img *Image) {
	if img == nil || len(img.Data) == 0 {
		return
	}
	c.memory.Add(ownerID, img)

	now := c.now()
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.pending[ownerID] = seq
	c.meta[ownerID] = entryMeta{CachedAt: now, LastAccessed: now, Size: img.Size()}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writeToDisk(ownerID, img.Data, seq)
	}()
}

func (c *Cache) writeToDisk(ownerID uuid.UUID, data []byte, seq uint64) {
	ctx := context.Background()

	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	c.mu.Lock()
	current := c.pending[ownerID] == seq
	c.mu.Unlock()
	if !current {
		return
	}

	err := c.writeFile(ownerID, data)

	c.mu.Lock()
	if c.pending[ownerID] == seq {
		delete(c.pending, ownerID)
		if err != nil {
			delete(c.meta, ownerID)
		}
	}
	c.mu.Unlock()

	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Failed to write image to disk")
		return
	}

	c.persistMeta(ctx)
	c.evictLocked(ctx)
	c.updateGauges()
}

// writeFile writes through a temp file so readers never see a partial image.
func (c *Cache) writeFile(ownerID uuid.UUID, data []byte) error {
	name := fileName(ownerID)
	tmp := name + ".tmp"
	if err := util.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := c.fs.Rename(tmp, name); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return nil
}

func (c *Cache) readFile(ownerID uuid.UUID) ([]byte, error) {
	f, err := c.fs.Open(fileName(ownerID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (c *Cache) removeFile(ownerID uuid.UUID) {
	if err := c.fs.Remove(fileName(ownerID)); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Failed to remove image file")
	}
}

// evictLocked trims the disk tier to evictionTargetRatio of the ceiling,
// least recently accessed first. Caller holds diskMu.
func (c *Cache) evictLocked(ctx context.Context) {
	type candidate struct {
		id uuid.UUID
		entryMeta
	}

	c.mu.Lock()
	var total int64
	candidates := make([]candidate, 0, len(c.meta))
	for id, e := range c.meta {
		total += e.Size
		candidates = append(candidates, candidate{id: id, entryMeta: e})
	}
	if total <= c.cfg.MaxDiskBytes {
		c.mu.Unlock()
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		if !a.CachedAt.Equal(b.CachedAt) {
			return a.CachedAt.Before(b.CachedAt)
		}
		return a.id.String() < b.id.String()
	})

	target := int64(float64(c.cfg.MaxDiskBytes) * evictionTargetRatio)
	var victims []uuid.UUID
	for _, cand := range candidates {
		if total <= target {
			break
		}
		delete(c.meta, cand.id)
		delete(c.pending, cand.id)
		total -= cand.Size
		victims = append(victims, cand.id)
	}
	c.mu.Unlock()

	for _, id := range victims {
		c.memory.Remove(id)
		c.removeFile(id)
		metrics.ImageEvictions.WithLabelValues("size").Inc()
	}
	logging.Debug().
		Int("evicted", len(victims)).
		Int64("bytes", total).
		Int64("ceiling", c.cfg.MaxDiskBytes).
		Msg("Image cache trimmed")

	c.persistMeta(ctx)
}

// Remove deletes ownerID from both tiers and the metadata.
func (c *Cache) Remove(ownerID uuid.UUID) {
	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	c.mu.Lock()
	delete(c.meta, ownerID)
	delete(c.pending, ownerID)
	c.mu.Unlock()

	c.memory.Remove(ownerID)
	c.removeFile(ownerID)
	c.persistMeta(context.Background())
	c.updateGauges()
}

// ClearAll empties both tiers, the metadata and the image directory.
func (c *Cache) ClearAll(ctx context.Context) {
	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	c.mu.Lock()
	c.meta = make(map[uuid.UUID]entryMeta)
	c.pending = make(map[uuid.UUID]uint64)
	c.mu.Unlock()

	c.memory.Clear()
	if err := util.RemoveAll(c.fs, imageDir); err != nil {
		logging.Warn().Err(err).Msg("Failed to remove image cache directory")
	}
	if err := c.fs.MkdirAll(imageDir, 0o755); err != nil {
		logging.Warn().Err(err).Msg("Failed to recreate image cache directory")
	}

	if c.store != nil {
		if err := c.store.Delete(ctx, StoreKey); err != nil {
			metrics.CachePersistErrors.WithLabelValues(StoreKey, "delete").Inc()
			logging.Warn().Err(err).Str("key", StoreKey).Msg("Failed to delete image metadata")
		}
	}
	c.updateGauges()
	logging.Info().Msg("Image cache cleared")
}

// CurrentSizeBytes returns the total size of the disk tier.
func (c *Cache) CurrentSizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, e := range c.meta {
		total += e.Size
	}
	return total
}

// CachedAt returns when ownerID's image was stored.
func (c *Cache) CachedAt(ownerID uuid.UUID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.meta[ownerID]
	return e.CachedAt, ok
}

// Flush persists the metadata, including last-accessed times from memory hits.
func (c *Cache) Flush(ctx context.Context) {
	c.persistMeta(ctx)
}

// Wait blocks until background disk writes and downloads finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Stats describes the cache for diagnostics.
type Stats struct {
	MemoryEntries int   `json:"memoryEntries"`
	DiskEntries   int   `json:"diskEntries"`
	DiskBytes     int64 `json:"diskBytes"`
	MaxDiskBytes  int64 `json:"maxDiskBytes"`
	InFlight      int   `json:"inFlight"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		MemoryEntries: c.memory.Len(),
		MaxDiskBytes:  c.cfg.MaxDiskBytes,
	}
	c.mu.Lock()
	s.DiskEntries = len(c.meta)
	for _, e := range c.meta {
		s.DiskBytes += e.Size
	}
	c.mu.Unlock()

	c.flightMu.Lock()
	s.InFlight = len(c.flights)
	c.flightMu.Unlock()
	return s
}

func (c *Cache) persistMeta(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	snapshot := make(map[uuid.UUID]entryMeta, len(c.meta))
	for id, e := range c.meta {
		snapshot[id] = e
	}
	c.mu.Unlock()

	if err := store.SaveJSON(ctx, c.store, StoreKey, snapshot); err != nil {
		metrics.CachePersistErrors.WithLabelValues(StoreKey, "save").Inc()
		logging.Warn().Err(err).Str("key", StoreKey).Msg("Failed to persist image metadata")
	}
}

func (c *Cache) updateGauges() {
	s := c.Stats()
	metrics.ImageCacheBytes.Set(float64(s.DiskBytes))
	metrics.ImageCacheEntries.WithLabelValues("memory").Set(float64(s.MemoryEntries))
	metrics.ImageCacheEntries.WithLabelValues("disk").Set(float64(s.DiskEntries))
}
