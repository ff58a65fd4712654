// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package session tracks the signed-in user.
//
// The cache layer never authenticates anyone. It only asks a Provider who the
// current user is; when nobody is signed in every user-scoped cache operation
// is a no-op.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/logging"
)

// ErrInvalidToken is returned when an access token cannot identify a user.
var ErrInvalidToken = errors.New("session: invalid access token")

// Provider supplies the current user id.
type Provider interface {
	// CurrentUserID returns the signed-in user, or false when nobody is.
	CurrentUserID() (uuid.UUID, bool)
}

// Session holds the current user and the bearer token used for API calls.
// It is safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	userID uuid.UUID
	token  string
	now    func() time.Time
}

// New returns a signed-out Session.
func New() *Session {
	return &Session{now: time.Now}
}

// Login signs in userID with an opaque bearer token.
func (s *Session) Login(userID uuid.UUID, token string) {
	s.mu.Lock()
	s.userID = userID
	s.token = token
	s.mu.Unlock()
	logging.Info().Str("user_id", userID.String()).Msg("Session started")
}

// LoginWithToken signs in the user named by the subject of a JWT access
// token. The signature is not checked here; the backend verifies it on every
// request. Expired tokens and subjects that are not UUIDs are rejected.
func (s *Session) LoginWithToken(token string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
		return uuid.Nil, fmt.Errorf("%w: expired at %s", ErrInvalidToken, claims.ExpiresAt.Time.Format(time.RFC3339))
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, claims.Subject)
	}

	s.Login(userID, token)
	return userID, nil
}

// Logout signs the current user out and returns who it was.
func (s *Session) Logout() (uuid.UUID, bool) {
	s.mu.Lock()
	prev := s.userID
	s.userID = uuid.Nil
	s.token = ""
	s.mu.Unlock()

	if prev == uuid.Nil {
		return uuid.Nil, false
	}
	logging.Info().Str("user_id", prev.String()).Msg("Session ended")
	return prev, true
}

// CurrentUserID implements Provider.
func (s *Session) CurrentUserID() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != uuid.Nil
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Static is a fixed Provider. The zero value has no user.
type Static uuid.UUID

// CurrentUserID implements Provider.
func (p Static) CurrentUserID() (uuid.UUID, bool) {
	id := uuid.UUID(p)
	return id, id != uuid.Nil
}
