// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package api is the client for the Huddle backend REST API.
//
// Every method takes a context for cancellation and returns typed DTOs from
// internal/models. Calls go through a circuit breaker so an unavailable
// backend fails fast instead of piling up requests; the cache layer above
// treats any error as "keep what is cached".
package api

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/models"
)

// ErrNoUser is returned when a user-scoped call is made without a user id.
var ErrNoUser = errors.New("api: no user id")

// ValidationResult is the backend verdict for one cache type.
type ValidationResult struct {
	Invalidate bool `json:"invalidate"`

	// UpdatedItems optionally carries the fresh collection as raw JSON so the
	// client can apply it without a second request. Empty or null means the
	// backend sent none.
	UpdatedItems json.RawMessage `json:"updatedItems,omitempty"`
}

// Client is the backend surface the cache layer depends on.
type Client interface {
	FetchFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendUser, error)
	FetchActivities(ctx context.Context, userID uuid.UUID) ([]models.Activity, error)
	FetchActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error)
	FetchRecommendedFriends(ctx context.Context, userID uuid.UUID) ([]models.RecommendedFriend, error)
	FetchIncomingFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	FetchSentFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.SentFriendRequest, error)

	FetchProfile(ctx context.Context, profileID uuid.UUID) (*models.BaseUser, error)
	FetchProfileStats(ctx context.Context, profileID uuid.UUID) (*models.UserStats, error)
	FetchProfileInterests(ctx context.Context, profileID uuid.UUID) ([]string, error)
	FetchProfileSocialMedia(ctx context.Context, profileID uuid.UUID) (*models.SocialMedia, error)
	FetchProfileActivities(ctx context.Context, profileID, viewerID uuid.UUID) ([]models.ProfileActivity, error)

	// ValidateCache sends the last-validated instant per cache type and
	// returns the backend verdict per cache type.
	ValidateCache(ctx context.Context, userID uuid.UUID, timestamps map[string]time.Time) (map[string]ValidationResult, error)

	// ClearCalendarCaches asks the backend to drop calendar data it caches
	// for the user.
	ClearCalendarCaches(ctx context.Context, userID uuid.UUID) error
}

// TokenSource supplies the bearer token for requests. An empty token sends
// no Authorization header.
type TokenSource interface {
	Token() string
}
