// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package appcache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/models"
)

// readList returns a copy of owner's list, or nil.
func readList[T any](t *table[[]T], owner uuid.UUID) []T {
	v, ok := t.get(owner)
	metrics.RecordTableRead(t.name, ok)
	return slices.Clone(v)
}

// readOne returns a copy of owner's value, or nil.
func readOne[T any](t *table[T], owner uuid.UUID) *T {
	v, ok := t.get(owner)
	metrics.RecordTableRead(t.name, ok)
	if !ok {
		return nil
	}
	return &v
}

// write stores v for owner, stamps the owner's timestamp for the table and
// persists both.
func write[V any](c *Cache, t *table[V], owner, stampOwner uuid.UUID, v V, source string) {
	t.set(owner, v)
	c.stamp(stampOwner, t.name)
	metrics.CacheTableUpdates.WithLabelValues(t.name, source).Inc()
	c.persist(t)
}

// refresh fetches one table for the signed-in user and writes it. Without a
// user it does nothing. On failure the cached value is left alone and the
// logged error is returned.
func refresh[V any](ctx context.Context, c *Cache, name string, fetch func(context.Context, uuid.UUID) (V, error), apply func(uuid.UUID, V)) error {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	start := time.Now()
	v, err := fetch(ctx, userID)
	metrics.RecordRefresh(name, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache_type", name).Str("user_id", userID.String()).Msg("Cache refresh failed, keeping cached data")
		return fmt.Errorf("refresh %s: %w", name, err)
	}
	apply(userID, v)
	return nil
}

// Friends

// Friends returns the signed-in user's friends.
func (c *Cache) Friends() []models.FriendUser {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	return readList(c.friends, userID)
}

// UpdateFriends replaces userID's friends.
func (c *Cache) UpdateFriends(userID uuid.UUID, friends []models.FriendUser) {
	c.updateFriends(userID, friends, sourceUpdate)
}

func (c *Cache) updateFriends(userID uuid.UUID, friends []models.FriendUser, source string) {
	if userID == uuid.Nil {
		return
	}
	friends = dedupKeepLast(friends)
	write(c, c.friends, userID, userID, friends, source)
	c.preload(models.CollectPeople(friends))
}

// RefreshFriends fetches the signed-in user's friends.
func (c *Cache) RefreshFriends(ctx context.Context) error {
	return refresh(ctx, c, Friends, c.client.FetchFriends, func(id uuid.UUID, v []models.FriendUser) {
		c.updateFriends(id, v, sourceRefresh)
	})
}

// Activities

// Activities returns the signed-in user's activities.
func (c *Cache) Activities() []models.Activity {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	return readList(c.activities, userID)
}

// UpdateActivities replaces userID's activities and assigns their colors.
func (c *Cache) UpdateActivities(userID uuid.UUID, activities []models.Activity) {
	c.updateActivities(userID, activities, sourceUpdate)
}

func (c *Cache) updateActivities(userID uuid.UUID, activities []models.Activity, source string) {
	if userID == uuid.Nil {
		return
	}
	activities = dedupKeepLast(activities)
	write(c, c.activities, userID, userID, activities, source)
	c.colors.Preassign(entityIDs(activities))
	c.preload(models.CollectPeople(activities))
}

// RefreshActivities fetches the signed-in user's activities.
func (c *Cache) RefreshActivities(ctx context.Context) error {
	return refresh(ctx, c, Activities, c.client.FetchActivities, func(id uuid.UUID, v []models.Activity) {
		c.updateActivities(id, v, sourceRefresh)
	})
}

// AddOrUpdateActivity upserts one activity into the signed-in user's list by
// id, for optimistic local edits. A new activity is appended.
func (c *Cache) AddOrUpdateActivity(activity models.Activity) {
	userID, ok := c.currentUser()
	if !ok || activity.ID == uuid.Nil {
		return
	}
	c.activities.mutate(userID, func(cur []models.Activity, _ bool) []models.Activity {
		next := slices.Clone(cur)
		if i := slices.IndexFunc(next, func(a models.Activity) bool { return a.ID == activity.ID }); i >= 0 {
			next[i] = activity
			return next
		}
		return append(next, activity)
	})
	c.colors.ColorFor(activity.ID)
	c.stamp(userID, Activities)
	metrics.CacheTableUpdates.WithLabelValues(Activities, "upsert").Inc()
	c.persist(c.activities)
}

// RemoveActivity removes an activity from the signed-in user's list.
func (c *Cache) RemoveActivity(activityID uuid.UUID) {
	userID, ok := c.currentUser()
	if !ok {
		return
	}
	c.activities.mutate(userID, func(cur []models.Activity, _ bool) []models.Activity {
		return slices.DeleteFunc(slices.Clone(cur), func(a models.Activity) bool { return a.ID == activityID })
	})
	c.stamp(userID, Activities)
	metrics.CacheTableUpdates.WithLabelValues(Activities, "remove").Inc()
	c.persist(c.activities)
}

// Activity types (shared by all users)

// ActivityTypes returns the cached activity types. The table is shared, but
// reads still require a signed-in user.
func (c *Cache) ActivityTypes() []models.ActivityType {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readList(c.activityTypes, globalOwner)
}

// UpdateActivityTypes replaces the activity types. userID is stamped as
// having validated them.
func (c *Cache) UpdateActivityTypes(userID uuid.UUID, types []models.ActivityType) {
	c.updateActivityTypes(userID, types, sourceUpdate)
}

func (c *Cache) updateActivityTypes(userID uuid.UUID, types []models.ActivityType, source string) {
	if userID == uuid.Nil {
		return
	}
	types = dedupKeepLast(types)
	write(c, c.activityTypes, globalOwner, userID, types, source)
	c.preload(models.CollectPeople(types))
}

// RefreshActivityTypes fetches the activity types for the signed-in user.
func (c *Cache) RefreshActivityTypes(ctx context.Context) error {
	return refresh(ctx, c, ActivityTypes, c.client.FetchActivityTypes, func(id uuid.UUID, v []models.ActivityType) {
		c.updateActivityTypes(id, v, sourceRefresh)
	})
}

// Recommended friends

// RecommendedFriends returns the signed-in user's friend recommendations.
func (c *Cache) RecommendedFriends() []models.RecommendedFriend {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	return readList(c.recommendedFriends, userID)
}

// UpdateRecommendedFriends replaces userID's recommendations.
func (c *Cache) UpdateRecommendedFriends(userID uuid.UUID, friends []models.RecommendedFriend) {
	c.updateRecommendedFriends(userID, friends, sourceUpdate)
}

func (c *Cache) updateRecommendedFriends(userID uuid.UUID, friends []models.RecommendedFriend, source string) {
	if userID == uuid.Nil {
		return
	}
	friends = dedupKeepLast(friends)
	write(c, c.recommendedFriends, userID, userID, friends, source)
	c.preload(models.CollectPeople(friends))
}

// RefreshRecommendedFriends fetches the signed-in user's recommendations.
func (c *Cache) RefreshRecommendedFriends(ctx context.Context) error {
	return refresh(ctx, c, RecommendedFriends, c.client.FetchRecommendedFriends, func(id uuid.UUID, v []models.RecommendedFriend) {
		c.updateRecommendedFriends(id, v, sourceRefresh)
	})
}

// Incoming friend requests

// FriendRequests returns the signed-in user's incoming friend requests.
func (c *Cache) FriendRequests() []models.FriendRequest {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	return readList(c.friendRequests, userID)
}

// UpdateFriendRequests replaces userID's incoming requests. Requests with
// the nil id are dropped and duplicates keep their first occurrence.
func (c *Cache) UpdateFriendRequests(userID uuid.UUID, requests []models.FriendRequest) {
	c.updateFriendRequests(userID, requests, sourceUpdate)
}

func (c *Cache) updateFriendRequests(userID uuid.UUID, requests []models.FriendRequest, source string) {
	if userID == uuid.Nil {
		return
	}
	requests = normalizeRequests(requests)
	write(c, c.friendRequests, userID, userID, requests, source)
	c.preload(models.CollectPeople(requests))
}

// RefreshFriendRequests fetches the signed-in user's incoming requests.
func (c *Cache) RefreshFriendRequests(ctx context.Context) error {
	return refresh(ctx, c, FriendRequests, c.client.FetchIncomingFriendRequests, func(id uuid.UUID, v []models.FriendRequest) {
		c.updateFriendRequests(id, v, sourceRefresh)
	})
}

// Sent friend requests

// SentFriendRequests returns the signed-in user's sent friend requests.
func (c *Cache) SentFriendRequests() []models.SentFriendRequest {
	userID, ok := c.currentUser()
	if !ok {
		return nil
	}
	return readList(c.sentFriendRequests, userID)
}

// UpdateSentFriendRequests replaces userID's sent requests, normalized like
// UpdateFriendRequests.
func (c *Cache) UpdateSentFriendRequests(userID uuid.UUID, requests []models.SentFriendRequest) {
	c.updateSentFriendRequests(userID, requests, sourceUpdate)
}

func (c *Cache) updateSentFriendRequests(userID uuid.UUID, requests []models.SentFriendRequest, source string) {
	if userID == uuid.Nil {
		return
	}
	requests = normalizeRequests(requests)
	write(c, c.sentFriendRequests, userID, userID, requests, source)
	c.preload(models.CollectPeople(requests))
}

// RefreshSentFriendRequests fetches the signed-in user's sent requests.
func (c *Cache) RefreshSentFriendRequests(ctx context.Context) error {
	return refresh(ctx, c, SentFriendRequests, c.client.FetchSentFriendRequests, func(id uuid.UUID, v []models.SentFriendRequest) {
		c.updateSentFriendRequests(id, v, sourceRefresh)
	})
}

// Profiles. These tables are keyed by the profile's own id, not by viewer.

// OtherProfile returns the cached profile of profileID, or nil.
func (c *Cache) OtherProfile(profileID uuid.UUID) *models.BaseUser {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readOne(c.otherProfiles, profileID)
}

// UpdateOtherProfile stores profileID's profile.
func (c *Cache) UpdateOtherProfile(profileID uuid.UUID, profile models.BaseUser) {
	c.updateOtherProfile(profileID, profile, sourceUpdate)
}

func (c *Cache) updateOtherProfile(profileID uuid.UUID, profile models.BaseUser, source string) {
	if profileID == uuid.Nil {
		return
	}
	write(c, c.otherProfiles, profileID, profileID, profile, source)
	c.preload(models.CollectPeople([]models.BaseUser{profile}))
}

// RefreshOtherProfile fetches profileID's profile.
func (c *Cache) RefreshOtherProfile(ctx context.Context, profileID uuid.UUID) error {
	return refresh(ctx, c, OtherProfiles, fetchFor(profileID, c.client.FetchProfile), func(_ uuid.UUID, v *models.BaseUser) {
		if v != nil {
			c.updateOtherProfile(profileID, *v, sourceRefresh)
		}
	})
}

// ProfileStats returns the cached stats of profileID, or nil.
func (c *Cache) ProfileStats(profileID uuid.UUID) *models.UserStats {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readOne(c.profileStats, profileID)
}

// UpdateProfileStats stores profileID's stats.
func (c *Cache) UpdateProfileStats(profileID uuid.UUID, stats models.UserStats) {
	c.updateProfileStats(profileID, stats, sourceUpdate)
}

func (c *Cache) updateProfileStats(profileID uuid.UUID, stats models.UserStats, source string) {
	if profileID == uuid.Nil {
		return
	}
	write(c, c.profileStats, profileID, profileID, stats, source)
}

// RefreshProfileStats fetches profileID's stats.
func (c *Cache) RefreshProfileStats(ctx context.Context, profileID uuid.UUID) error {
	return refresh(ctx, c, ProfileStats, fetchFor(profileID, c.client.FetchProfileStats), func(_ uuid.UUID, v *models.UserStats) {
		if v != nil {
			c.updateProfileStats(profileID, *v, sourceRefresh)
		}
	})
}

// ProfileInterests returns the cached interests of profileID.
func (c *Cache) ProfileInterests(profileID uuid.UUID) []string {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readList(c.profileInterests, profileID)
}

// UpdateProfileInterests stores profileID's interests.
func (c *Cache) UpdateProfileInterests(profileID uuid.UUID, interests []string) {
	c.updateProfileInterests(profileID, interests, sourceUpdate)
}

func (c *Cache) updateProfileInterests(profileID uuid.UUID, interests []string, source string) {
	if profileID == uuid.Nil {
		return
	}
	write(c, c.profileInterests, profileID, profileID, slices.Clone(interests), source)
}

// RefreshProfileInterests fetches profileID's interests.
func (c *Cache) RefreshProfileInterests(ctx context.Context, profileID uuid.UUID) error {
	return refresh(ctx, c, ProfileInterests, fetchFor(profileID, c.client.FetchProfileInterests), func(_ uuid.UUID, v []string) {
		c.updateProfileInterests(profileID, v, sourceRefresh)
	})
}

// ProfileSocialMedia returns the cached social links of profileID, or nil.
func (c *Cache) ProfileSocialMedia(profileID uuid.UUID) *models.SocialMedia {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readOne(c.profileSocialMedia, profileID)
}

// UpdateProfileSocialMedia stores profileID's social links.
func (c *Cache) UpdateProfileSocialMedia(profileID uuid.UUID, sm models.SocialMedia) {
	c.updateProfileSocialMedia(profileID, sm, sourceUpdate)
}

func (c *Cache) updateProfileSocialMedia(profileID uuid.UUID, sm models.SocialMedia, source string) {
	if profileID == uuid.Nil {
		return
	}
	write(c, c.profileSocialMedia, profileID, profileID, sm, source)
}

// RefreshProfileSocialMedia fetches profileID's social links.
func (c *Cache) RefreshProfileSocialMedia(ctx context.Context, profileID uuid.UUID) error {
	return refresh(ctx, c, ProfileSocialMedia, fetchFor(profileID, c.client.FetchProfileSocialMedia), func(_ uuid.UUID, v *models.SocialMedia) {
		if v != nil {
			c.updateProfileSocialMedia(profileID, *v, sourceRefresh)
		}
	})
}

// ProfileActivities returns the cached activities shown on profileID.
func (c *Cache) ProfileActivities(profileID uuid.UUID) []models.ProfileActivity {
	if _, ok := c.currentUser(); !ok {
		return nil
	}
	return readList(c.profileActivities, profileID)
}

// UpdateProfileActivities stores profileID's activities and assigns their
// colors.
func (c *Cache) UpdateProfileActivities(profileID uuid.UUID, activities []models.ProfileActivity) {
	c.updateProfileActivities(profileID, activities, sourceUpdate)
}

func (c *Cache) updateProfileActivities(profileID uuid.UUID, activities []models.ProfileActivity, source string) {
	if profileID == uuid.Nil {
		return
	}
	activities = dedupKeepLast(activities)
	write(c, c.profileActivities, profileID, profileID, activities, source)
	c.colors.Preassign(entityIDs(activities))
	c.preload(models.CollectPeople(activities))
}

// RefreshProfileActivities fetches the activities on profileID as seen by
// the signed-in user.
func (c *Cache) RefreshProfileActivities(ctx context.Context, profileID uuid.UUID) error {
	fetch := func(ctx context.Context, viewerID uuid.UUID) ([]models.ProfileActivity, error) {
		return c.client.FetchProfileActivities(ctx, profileID, viewerID)
	}
	return refresh(ctx, c, ProfileActivities, fetch, func(_ uuid.UUID, v []models.ProfileActivity) {
		c.updateProfileActivities(profileID, v, sourceRefresh)
	})
}

// fetchFor adapts a profile fetch to the signed-in-user fetch signature.
func fetchFor[V any](profileID uuid.UUID, fetch func(context.Context, uuid.UUID) (V, error)) func(context.Context, uuid.UUID) (V, error) {
	return func(ctx context.Context, _ uuid.UUID) (V, error) {
		return fetch(ctx, profileID)
	}
}

func entityIDs[T models.Identifiable](items []T) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.EntityID()
	}
	return ids
}
