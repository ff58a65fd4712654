// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/models"
)

// ErrStatus matches every *StatusError.
var ErrStatus = errors.New("api: unexpected status")

// maxErrorBodySize limits how much of an error response is kept for diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// maxImageSize limits an avatar download.
const maxImageSize = 10 << 20 // 10MiB

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

// Is reports ErrStatus as a match.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// HTTPClient implements Client over HTTP. It is safe for concurrent use.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	tokens    TokenSource
	userAgent string
	backend   *breaker
	cdn       *breaker
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg.BaseURL. tokens may be nil.
func NewHTTPClient(cfg *config.APIConfig, tokens TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		tokens:    tokens,
		userAgent: cfg.UserAgent,
		backend:   newBreaker(backendBreakerName, cfg),
		cdn:       newBreaker(cdnBreakerName, cfg),
	}
}

// do performs one backend request. body, when non-nil, is sent as JSON; out,
// when non-nil, receives the decoded response.
func (c *HTTPClient) do(ctx context.Context, method, endpoint, path string, body, out interface{}) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		recordRequest(endpoint, 0, start)
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	recordRequest(endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// getJSON GETs path through the backend breaker and decodes a T.
func getJSON[T any](ctx context.Context, c *HTTPClient, endpoint, path string) (T, error) {
	return castResult[T](c.backend.execute(func() (interface{}, error) {
		var out T
		if err := c.do(ctx, http.MethodGet, endpoint, path, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}))
}

func userPath(format string, id uuid.UUID) (string, error) {
	if id == uuid.Nil {
		return "", ErrNoUser
	}
	return fmt.Sprintf(format, id.String()), nil
}

func fetchList[T any](ctx context.Context, c *HTTPClient, endpoint, format string, id uuid.UUID) ([]T, error) {
	path, err := userPath(format, id)
	if err != nil {
		return nil, err
	}
	return getJSON[[]T](ctx, c, endpoint, path)
}

// FetchFriends implements Client.
func (c *HTTPClient) FetchFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendUser, error) {
	return fetchList[models.FriendUser](ctx, c, "friends", "/friends/%s", userID)
}

// FetchActivities implements Client.
func (c *HTTPClient) FetchActivities(ctx context.Context, userID uuid.UUID) ([]models.Activity, error) {
	return fetchList[models.Activity](ctx, c, "activities", "/activities/%s", userID)
}

// FetchActivityTypes implements Client.
func (c *HTTPClient) FetchActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error) {
	return fetchList[models.ActivityType](ctx, c, "activity_types", "/activity-types/%s", userID)
}

// FetchRecommendedFriends implements Client.
func (c *HTTPClient) FetchRecommendedFriends(ctx context.Context, userID uuid.UUID) ([]models.RecommendedFriend, error) {
	return fetchList[models.RecommendedFriend](ctx, c, "recommended_friends", "/recommended-friends/%s", userID)
}

// FetchIncomingFriendRequests implements Client.
func (c *HTTPClient) FetchIncomingFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	return fetchList[models.FriendRequest](ctx, c, "friend_requests", "/friend-requests/incoming/%s", userID)
}

// FetchSentFriendRequests implements Client.
func (c *HTTPClient) FetchSentFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.SentFriendRequest, error) {
	return fetchList[models.SentFriendRequest](ctx, c, "sent_friend_requests", "/friend-requests/sent/%s", userID)
}

// FetchProfile implements Client.
func (c *HTTPClient) FetchProfile(ctx context.Context, profileID uuid.UUID) (*models.BaseUser, error) {
	path, err := userPath("/users/%s", profileID)
	if err != nil {
		return nil, err
	}
	return getJSON[*models.BaseUser](ctx, c, "profile", path)
}

// FetchProfileStats implements Client.
func (c *HTTPClient) FetchProfileStats(ctx context.Context, profileID uuid.UUID) (*models.UserStats, error) {
	path, err := userPath("/users/%s/stats", profileID)
	if err != nil {
		return nil, err
	}
	return getJSON[*models.UserStats](ctx, c, "profile_stats", path)
}

// FetchProfileInterests implements Client.
func (c *HTTPClient) FetchProfileInterests(ctx context.Context, profileID uuid.UUID) ([]string, error) {
	return fetchList[string](ctx, c, "profile_interests", "/users/%s/interests", profileID)
}

// FetchProfileSocialMedia implements Client.
func (c *HTTPClient) FetchProfileSocialMedia(ctx context.Context, profileID uuid.UUID) (*models.SocialMedia, error) {
	path, err := userPath("/users/%s/social-media", profileID)
	if err != nil {
		return nil, err
	}
	return getJSON[*models.SocialMedia](ctx, c, "profile_social_media", path)
}

// FetchProfileActivities implements Client. viewerID decides which
// activities the backend reveals and how participation is reported.
func (c *HTTPClient) FetchProfileActivities(ctx context.Context, profileID, viewerID uuid.UUID) ([]models.ProfileActivity, error) {
	path, err := userPath("/users/%s/activities", profileID)
	if err != nil {
		return nil, err
	}
	if viewerID != uuid.Nil {
		path += "?" + url.Values{"requestingUserId": {viewerID.String()}}.Encode()
	}
	return getJSON[[]models.ProfileActivity](ctx, c, "profile_activities", path)
}

type validateRequest struct {
	Timestamps map[string]time.Time `json:"timestamps"`
}

// ValidateCache implements Client.
func (c *HTTPClient) ValidateCache(ctx context.Context, userID uuid.UUID, timestamps map[string]time.Time) (map[string]ValidationResult, error) {
	path, err := userPath("/cache/validate/%s", userID)
	if err != nil {
		return nil, err
	}
	return castResult[map[string]ValidationResult](c.backend.execute(func() (interface{}, error) {
		var out map[string]ValidationResult
		if err := c.do(ctx, http.MethodPost, "validate_cache", path, validateRequest{Timestamps: timestamps}, &out); err != nil {
			return nil, err
		}
		return out, nil
	}))
}

// ClearCalendarCaches implements Client.
func (c *HTTPClient) ClearCalendarCaches(ctx context.Context, userID uuid.UUID) error {
	path, err := userPath("/cache/calendar/%s", userID)
	if err != nil {
		return err
	}
	_, err = c.backend.execute(func() (interface{}, error) {
		return nil, c.do(ctx, http.MethodDelete, "clear_calendar", path, nil, nil)
	})
	return err
}

// FetchImage downloads the raw bytes at rawURL through the CDN breaker. It
// satisfies imagecache.Fetcher. No credentials are sent; avatar URLs may
// point at third-party hosts.
func (c *HTTPClient) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	return castResult[[]byte](c.cdn.execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request failed: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			recordRequest("avatar", 0, start)
			return nil, fmt.Errorf("avatar request failed: %w", err)
		}
		defer resp.Body.Close()
		recordRequest("avatar", resp.StatusCode, start)

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
		if err != nil {
			return nil, fmt.Errorf("read avatar: %w", err)
		}
		if len(data) > maxImageSize {
			return nil, fmt.Errorf("avatar exceeds %d bytes", maxImageSize)
		}
		return data, nil
	}))
}

func recordRequest(endpoint string, code int, start time.Time) {
	status := "error"
	if code > 0 {
		status = strconv.Itoa(code)
	}
	metrics.RecordAPIRequest(endpoint, status, time.Since(start))
}
