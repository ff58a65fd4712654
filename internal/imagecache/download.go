// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package imagecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
)

// ErrNoURL is returned when an image is requested without a source URL.
var ErrNoURL = errors.New("imagecache: no image url")

// DownloadAndCache returns the cached image for ownerID, downloading and
// caching it from url on a miss. Concurrent calls for the same owner share
// one fetch and receive the same result. The fetch is not bound to ctx; ctx
// only limits how long this caller waits.
func (c *Cache) DownloadAndCache(ctx context.Context, url string, ownerID uuid.UUID) (*Image, error) {
	if img := c.Get(ownerID); img != nil {
		return img, nil
	}
	if url == "" {
		return nil, ErrNoURL
	}

	select {
	case r := <-c.startFlight(ctx, url, ownerID, false):
		if r.Shared {
			metrics.ImageDownloads.WithLabelValues("deduplicated").Inc()
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Image), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetWithRefresh returns the cached image for ownerID immediately. When the
// entry is older than maxAge, or absent, a background download from url is
// started unless one is already in flight for that owner. The returned value
// is the one cached before the refresh.
func (c *Cache) GetWithRefresh(ctx context.Context, ownerID uuid.UUID, url string, maxAge time.Duration) *Image {
	img := c.Get(ownerID)

	stale := img == nil
	if img != nil {
		cachedAt, ok := c.CachedAt(ownerID)
		stale = !ok || c.now().Sub(cachedAt) > maxAge
	}
	if stale && url != "" {
		// the forwarded result is drained by startFlight's goroutine
		_ = c.startFlight(ctx, url, ownerID, img != nil)
	}
	return img
}

// InFlight reports whether a download for ownerID is running.
func (c *Cache) InFlight(ownerID uuid.UUID) bool {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	return c.flights[ownerID] > 0
}

// startFlight joins or starts the download for ownerID. The call is
// registered with the group before returning, so a later call for the same
// owner joins it. force skips the cached-image short circuit used by
// stale refreshes.
func (c *Cache) startFlight(ctx context.Context, url string, ownerID uuid.UUID, force bool) <-chan singleflight.Result {
	c.flightMu.Lock()
	c.flights[ownerID]++
	c.flightMu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)

	c.wg.Add(1)
	ch := c.group.DoChan(ownerID.String(), func() (interface{}, error) {
		if !force {
			// a previous flight may have filled the cache after our miss
			if img, ok := c.memory.Get(ownerID); ok {
				return img, nil
			}
		}
		return c.download(fetchCtx, url, ownerID)
	})

	out := make(chan singleflight.Result, 1)
	go func() {
		defer c.wg.Done()
		r := <-ch
		c.flightMu.Lock()
		if c.flights[ownerID]--; c.flights[ownerID] <= 0 {
			delete(c.flights, ownerID)
		}
		c.flightMu.Unlock()
		out <- r
	}()
	return out
}

func (c *Cache) download(ctx context.Context, url string, ownerID uuid.UUID) (*Image, error) {
	if c.fetcher == nil {
		return nil, errors.New("imagecache: no fetcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	start := time.Now()
	data, err := c.fetcher.FetchImage(ctx, url)
	if err != nil {
		metrics.RecordImageDownload(time.Since(start), err)
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Avatar download failed")
		return nil, fmt.Errorf("download avatar: %w", err)
	}

	img, err := Decode(data)
	metrics.RecordImageDownload(time.Since(start), err)
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Int("bytes", len(data)).Msg("Downloaded avatar is not an image")
		return nil, err
	}

	c.Put(ownerID, img)
	logging.Debug().
		Str("owner_id", ownerID.String()).
		Str("format", img.Format).
		Int("bytes", len(data)).
		Msg("Avatar cached")
	return img, nil
}
