// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package appcache is the per-user cache of backend collections.
//
// Each cache type (friends, activities, profile stats, ...) is a table keyed
// by owner id. Reads are synchronous and served from memory; refreshes and
// validation call the backend and replace whole values, so readers always
// see either the old or the new collection. Writes are last-writer-wins per
// (owner, cache type); there are no cross-table transactions.
//
// Updates fire side effects: avatars of referenced people are preloaded into
// the image cache and activities get their colors assigned.
//
// Expected failures (network, bad payloads, no signed-in user) never surface
// as errors from reads or updates. They are logged and the cached data stays
// as it was.
package appcache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/tomtom215/huddle/internal/api"
	"github.com/tomtom215/huddle/internal/colors"
	"github.com/tomtom215/huddle/internal/imagecache"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/models"
	"github.com/tomtom215/huddle/internal/session"
	"github.com/tomtom215/huddle/internal/store"
)

// Cache type names. They name the store keys and the entries exchanged with
// the backend validation endpoint.
const (
	Friends            = "friends"
	Activities         = "activities"
	ActivityTypes      = "activityTypes"
	RecommendedFriends = "recommendedFriends"
	FriendRequests     = "friendRequests"
	SentFriendRequests = "sentFriendRequests"
	OtherProfiles      = "otherProfiles"
	ProfileStats       = "profileStats"
	ProfileInterests   = "profileInterests"
	ProfileSocialMedia = "profileSocialMedia"
	ProfileActivities  = "profileActivities"

	timestampsName = "timestamps"
)

// StandardTables are refreshed together the first time a user validates.
var StandardTables = []string{
	Friends, Activities, ActivityTypes, RecommendedFriends, FriendRequests, SentFriendRequests,
}

// globalOwner keys the activity types table, which is shared by all users.
var globalOwner = uuid.Nil

const (
	sourceUpdate     = "update"
	sourceRefresh    = "refresh"
	sourceValidation = "validation"
)

// Images is the image cache surface the entity cache drives.
// *imagecache.Cache implements it.
type Images interface {
	DownloadAndCache(ctx context.Context, url string, ownerID uuid.UUID) (*imagecache.Image, error)
	GetWithRefresh(ctx context.Context, ownerID uuid.UUID, url string, maxAge time.Duration) *imagecache.Image
	Remove(ownerID uuid.UUID)
	ClearAll(ctx context.Context)
}

var _ Images = (*imagecache.Cache)(nil)

// Config tunes background work.
type Config struct {
	// PictureMaxAge is the age after which the profile-picture pass
	// re-downloads an avatar. Default 6h.
	PictureMaxAge time.Duration

	// PictureRate paces the profile-picture pass in avatars per second.
	// Zero means unpaced.
	PictureRate float64

	// PreloadWorkers bounds concurrent avatar preloads per update. Default 4.
	PreloadWorkers int

	Now func() time.Time
}

// Cache is the process-wide entity cache. Construct it once in the
// composition root with New; it is safe for concurrent use.
type Cache struct {
	cfg     Config
	now     func() time.Time
	client  api.Client
	session session.Provider
	store   store.Store
	colors  *colors.Assigner
	images  Images
	limiter *rate.Limiter

	friends            *table[[]models.FriendUser]
	activities         *table[[]models.Activity]
	activityTypes      *table[[]models.ActivityType]
	recommendedFriends *table[[]models.RecommendedFriend]
	friendRequests     *table[[]models.FriendRequest]
	sentFriendRequests *table[[]models.SentFriendRequest]
	otherProfiles      *table[models.BaseUser]
	profileStats       *table[models.UserStats]
	profileInterests   *table[[]string]
	profileSocialMedia *table[models.SocialMedia]
	profileActivities  *table[[]models.ProfileActivity]
	timestamps         *table[map[string]time.Time]

	tables []persisted
	ops    map[string]tableOps

	wg sync.WaitGroup

	passMu sync.Mutex
	passes map[uuid.UUID]struct{} // users with a picture pass running
}

// New creates an empty Cache. st and images may be nil; a nil store keeps
// everything in memory and a nil image cache disables avatar work. A nil
// color assigner is replaced by an in-memory one.
func New(cfg Config, client api.Client, sess session.Provider, st store.Store, col *colors.Assigner, images Images) *Cache {
	if cfg.PictureMaxAge <= 0 {
		cfg.PictureMaxAge = 6 * time.Hour
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if col == nil {
		col = colors.New(nil, nil)
	}
	limit := rate.Inf
	if cfg.PictureRate > 0 {
		limit = rate.Limit(cfg.PictureRate)
	}

	c := &Cache{
		cfg:     cfg,
		now:     cfg.Now,
		client:  client,
		session: sess,
		store:   st,
		colors:  col,
		images:  images,
		limiter: rate.NewLimiter(limit, 1),
		passes:  make(map[uuid.UUID]struct{}),

		friends:            newTable(Friends, listSize[models.FriendUser]),
		activities:         newTable(Activities, listSize[models.Activity]),
		activityTypes:      newTable(ActivityTypes, listSize[models.ActivityType]),
		recommendedFriends: newTable(RecommendedFriends, listSize[models.RecommendedFriend]),
		friendRequests:     newTable(FriendRequests, listSize[models.FriendRequest]),
		sentFriendRequests: newTable(SentFriendRequests, listSize[models.SentFriendRequest]),
		otherProfiles:      newTable(OtherProfiles, one[models.BaseUser]),
		profileStats:       newTable(ProfileStats, one[models.UserStats]),
		profileInterests:   newTable(ProfileInterests, listSize[string]),
		profileSocialMedia: newTable(ProfileSocialMedia, one[models.SocialMedia]),
		profileActivities:  newTable(ProfileActivities, listSize[models.ProfileActivity]),
		timestamps:         newTable(timestampsName, func(m map[string]time.Time) int { return len(m) }),
	}
	c.tables = []persisted{
		c.friends, c.activities, c.activityTypes, c.recommendedFriends,
		c.friendRequests, c.sentFriendRequests, c.otherProfiles, c.profileStats,
		c.profileInterests, c.profileSocialMedia, c.profileActivities, c.timestamps,
	}
	c.ops = c.buildOps()
	return c
}

// currentUser resolves the signed-in user.
func (c *Cache) currentUser() (uuid.UUID, bool) {
	if c.session == nil {
		return uuid.Nil, false
	}
	return c.session.CurrentUserID()
}

// Load hydrates every table and the timestamps from the store. Each key is
// loaded independently; a missing or malformed key leaves only that table
// empty.
func (c *Cache) Load(ctx context.Context) {
	if c.store == nil {
		return
	}
	for _, t := range c.tables {
		t.load(ctx, c.store)
	}
	logging.Debug().Int("tables", len(c.tables)).Msg("Entity cache loaded")
}

// Flush writes every table and the timestamps to the store, whether or not
// they changed. It keeps going past failures and returns them joined.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	start := time.Now()
	var errs []error
	for _, t := range c.tables {
		if err := t.save(ctx, c.store); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.CacheFlushDuration.Observe(time.Since(start).Seconds())
	return errors.Join(errs...)
}

// persist saves the touched table and the timestamps. Failures are logged.
func (c *Cache) persist(t persisted) {
	if c.store == nil {
		return
	}
	ctx := context.Background()
	for _, p := range []persisted{t, c.timestamps} {
		if err := p.save(ctx, c.store); err != nil {
			logging.Warn().Err(err).Str("cache_type", p.Name()).Msg("Failed to persist cache table")
		}
	}
}

// stamp records that owner's cacheType was validated now.
func (c *Cache) stamp(owner uuid.UUID, cacheType string) {
	now := c.now()
	c.timestamps.mutate(owner, func(cur map[string]time.Time, _ bool) map[string]time.Time {
		next := make(map[string]time.Time, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[cacheType] = now
		return next
	})
}

// unstampAll forgets cacheTypes for every user.
func (c *Cache) unstampAll(cacheTypes ...string) {
	c.timestamps.rewriteAll(func(_ uuid.UUID, cur map[string]time.Time) (map[string]time.Time, bool) {
		next := make(map[string]time.Time, len(cur))
		for k, v := range cur {
			if !slices.Contains(cacheTypes, k) {
				next[k] = v
			}
		}
		return next, len(next) > 0
	})
}

// Timestamps returns a copy of the last-validated instants for userID.
func (c *Cache) Timestamps(userID uuid.UUID) map[string]time.Time {
	cur, _ := c.timestamps.get(userID)
	out := make(map[string]time.Time, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// ClearDataForUser removes everything cached for userID: every table entry
// keyed by the user, the shared activity types, all profile activities
// (their participation flags are relative to the viewer), the user's
// timestamps, the user's avatar and the user's color preferences. Other
// users' entries are kept, minus their stamps for the two shared tables.
func (c *Cache) ClearDataForUser(ctx context.Context, userID uuid.UUID) {
	if userID == uuid.Nil {
		return
	}
	for _, t := range c.tables {
		t.remove(userID)
	}
	c.activityTypes.clear()
	c.profileActivities.clear()
	// the shared tables are now empty for every user; a missing stamp makes
	// the next validation refetch them
	c.unstampAll(ActivityTypes, ProfileActivities)

	if c.store != nil {
		for _, t := range c.tables {
			if err := t.save(ctx, c.store); err != nil {
				logging.Warn().Err(err).Str("cache_type", t.Name()).Str("user_id", userID.String()).Msg("Failed to persist cleared table")
			}
		}
	}

	c.colors.ClearForUser(userID)
	if c.images != nil {
		c.images.Remove(userID)
	}
	metrics.CacheInvalidations.WithLabelValues("all", "clear_user").Inc()
	logging.Info().Str("user_id", userID.String()).Msg("Cleared cached data for user")
}

// ClearAll empties every table and the timestamps, deletes their persisted
// keys and clears the image cache. Color assignments are kept.
func (c *Cache) ClearAll(ctx context.Context) {
	for _, t := range c.tables {
		t.clear()
		if c.store != nil {
			if err := t.drop(ctx, c.store); err != nil {
				logging.Warn().Err(err).Str("cache_type", t.Name()).Msg("Failed to delete persisted table")
			}
		}
	}
	if c.images != nil {
		c.images.ClearAll(ctx)
	}
	metrics.CacheInvalidations.WithLabelValues("all", "clear_all").Inc()
	logging.Info().Msg("Cleared all cached data")
}

// Wait blocks until background work started by the cache (avatar preloads,
// fire-and-forget refreshes, profile-picture passes) has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// goBackground runs fn detached from any caller and tracks it for Wait.
func (c *Cache) goBackground(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// preload schedules avatar downloads for people. It never blocks the caller.
func (c *Cache) preload(people []models.Person) {
	if c.images == nil || len(people) == 0 {
		return
	}
	c.goBackground(func() {
		ctx := context.Background()
		p := pool.New().WithMaxGoroutines(c.cfg.PreloadWorkers)
		for _, person := range people {
			p.Go(func() {
				if _, err := c.images.DownloadAndCache(ctx, person.AvatarURL(), person.PersonID()); err != nil {
					logging.Debug().Err(err).Str("owner_id", person.PersonID().String()).Msg("Avatar preload failed")
				}
			})
		}
		p.Wait()
	})
}

// Stats is a summary of what is cached for one user.
type Stats struct {
	UserID     uuid.UUID            `json:"userId"`
	Entries    map[string]int       `json:"entries"`
	Timestamps map[string]time.Time `json:"timestamps"`
}

// Stats returns per-table entry counts and timestamps for userID. Activity
// types are counted from the shared table.
func (c *Cache) Stats(userID uuid.UUID) Stats {
	s := Stats{
		UserID:     userID,
		Entries:    make(map[string]int, len(c.tables)-1),
		Timestamps: c.Timestamps(userID),
	}
	for _, t := range c.tables {
		switch t.Name() {
		case timestampsName:
			continue
		case ActivityTypes:
			s.Entries[t.Name()] = t.count(globalOwner)
		default:
			s.Entries[t.Name()] = t.count(userID)
		}
	}
	return s
}
