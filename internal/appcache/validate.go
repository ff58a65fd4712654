// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package appcache

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/models"
)

// tableOps reconciles one cache type for the signed-in user.
type tableOps struct {
	// apply decodes an inline payload and writes it for owner.
	apply func(owner uuid.UUID, data []byte) error
	// refresh refetches the table for owner.
	refresh func(ctx context.Context, owner uuid.UUID) error
}

// inline returns an apply func decoding a V and handing it to update.
func inline[V any](update func(uuid.UUID, V, string)) func(uuid.UUID, []byte) error {
	return func(owner uuid.UUID, data []byte) error {
		var v V
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode inline payload: %w", err)
		}
		update(owner, v, sourceValidation)
		return nil
	}
}

func ownRefresh(fn func(context.Context) error) func(context.Context, uuid.UUID) error {
	return func(ctx context.Context, _ uuid.UUID) error { return fn(ctx) }
}

// buildOps wires every cache type to its inline decoder and refresh. The
// profile tables reconcile the signed-in user's own profile.
func (c *Cache) buildOps() map[string]tableOps {
	return map[string]tableOps{
		Friends:            {inline(c.updateFriends), ownRefresh(c.RefreshFriends)},
		Activities:         {inline(c.updateActivities), ownRefresh(c.RefreshActivities)},
		ActivityTypes:      {inline(c.updateActivityTypes), ownRefresh(c.RefreshActivityTypes)},
		RecommendedFriends: {inline(c.updateRecommendedFriends), ownRefresh(c.RefreshRecommendedFriends)},
		FriendRequests:     {inline(c.updateFriendRequests), ownRefresh(c.RefreshFriendRequests)},
		SentFriendRequests: {inline(c.updateSentFriendRequests), ownRefresh(c.RefreshSentFriendRequests)},
		OtherProfiles:      {inline(c.updateOtherProfile), c.RefreshOtherProfile},
		ProfileStats:       {inline(c.updateProfileStats), c.RefreshProfileStats},
		ProfileInterests:   {inline(c.updateProfileInterests), c.RefreshProfileInterests},
		ProfileSocialMedia: {inline(c.updateProfileSocialMedia), c.RefreshProfileSocialMedia},
		ProfileActivities:  {inline(c.updateProfileActivities), c.RefreshProfileActivities},
	}
}

// ValidateCache reconciles the signed-in user's cache with the backend.
//
// A user with no timestamps gets every standard table refreshed
// concurrently, and ValidateCache returns once all of them finished.
// Otherwise the backend is sent the timestamps and, for each cache type it
// reports invalid, the inline payload is applied or, lacking a usable one,
// a background refresh is started. Either way a profile-picture refresh pass
// is started afterwards.
//
// Failures are logged and leave the cache as it was. Without a signed-in
// user this is a no-op.
func (c *Cache) ValidateCache(ctx context.Context) {
	userID, ok := c.currentUser()
	if !ok {
		metrics.CacheValidations.WithLabelValues("skipped").Inc()
		return
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("user_id", userID.String()).Logger()

	if err := c.client.ClearCalendarCaches(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("Failed to clear calendar caches")
	}

	timestamps := c.Timestamps(userID)
	if len(timestamps) == 0 {
		log.Info().Int("tables", len(StandardTables)).Msg("No cache timestamps, refreshing all tables")
		p := pool.New()
		for _, name := range StandardTables {
			refresh := c.ops[name].refresh
			p.Go(func() {
				_ = refresh(ctx, userID)
			})
		}
		p.Wait()
		metrics.CacheValidations.WithLabelValues("initial").Inc()
	} else {
		c.applyValidation(ctx, userID, timestamps)
	}

	c.startPicturePass(ctx, userID)
}

func (c *Cache) applyValidation(ctx context.Context, userID uuid.UUID, timestamps map[string]time.Time) {
	log := logging.Ctx(ctx).With().Str("user_id", userID.String()).Logger()

	results, err := c.client.ValidateCache(ctx, userID, timestamps)
	if err != nil {
		metrics.CacheValidations.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("Cache validation failed, keeping cached data")
		return
	}
	metrics.CacheValidations.WithLabelValues("incremental").Inc()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results[name]
		if !res.Invalidate {
			continue
		}
		ops, known := c.ops[name]
		if !known {
			log.Debug().Str("cache_type", name).Msg("Ignoring unknown cache type")
			continue
		}

		if hasItems(res.UpdatedItems) {
			err := ops.apply(userID, res.UpdatedItems)
			if err == nil {
				metrics.CacheInvalidations.WithLabelValues(name, "inline").Inc()
				log.Debug().Str("cache_type", name).Msg("Applied inline cache update")
				continue
			}
			log.Warn().Err(err).Str("cache_type", name).Msg("Inline update unusable, refreshing")
		}

		metrics.CacheInvalidations.WithLabelValues(name, "refresh").Inc()
		refreshCtx := context.WithoutCancel(ctx)
		c.goBackground(func() {
			_ = ops.refresh(refreshCtx, userID)
		})
	}
}

// hasItems reports whether raw holds a payload. A JSON null counts as none.
func hasItems(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// startPicturePass refreshes stale avatars of everyone cached for userID,
// one at a time, in the background. A pass already running for the same user
// is not doubled; passes for different users run side by side.
func (c *Cache) startPicturePass(ctx context.Context, userID uuid.UUID) {
	if c.images == nil {
		return
	}
	c.passMu.Lock()
	if _, running := c.passes[userID]; running {
		c.passMu.Unlock()
		logging.Ctx(ctx).Debug().Str("user_id", userID.String()).Msg("Profile picture pass already running")
		return
	}
	c.passes[userID] = struct{}{}
	c.passMu.Unlock()

	people := c.cachedPeople(userID)
	passCtx := context.WithoutCancel(ctx)
	c.goBackground(func() {
		defer func() {
			c.passMu.Lock()
			delete(c.passes, userID)
			c.passMu.Unlock()
		}()
		for _, p := range people {
			if err := c.limiter.Wait(passCtx); err != nil {
				return
			}
			c.images.GetWithRefresh(passCtx, p.PersonID(), p.AvatarURL(), c.cfg.PictureMaxAge)
		}
		logging.Ctx(passCtx).Debug().Int("people", len(people)).Msg("Profile picture pass finished")
	})
}

// cachedPeople lists the people with avatars cached around userID: friends,
// recommendations, request counterparts, cached profiles and the user.
// Each person appears once.
func (c *Cache) cachedPeople(userID uuid.UUID) []models.Person {
	var refs []models.PeopleReferencer
	friends, _ := c.friends.get(userID)
	for _, f := range friends {
		refs = append(refs, f)
	}
	recommended, _ := c.recommendedFriends.get(userID)
	for _, r := range recommended {
		refs = append(refs, r)
	}
	incoming, _ := c.friendRequests.get(userID)
	for _, r := range incoming {
		refs = append(refs, r)
	}
	sent, _ := c.sentFriendRequests.get(userID)
	for _, r := range sent {
		refs = append(refs, r)
	}
	for _, id := range c.otherProfiles.owners() {
		if p, ok := c.otherProfiles.get(id); ok {
			refs = append(refs, p)
		}
	}
	return models.CollectPeople(refs)
}
