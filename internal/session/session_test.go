// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-at-least-32-characters"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestSession_LoginLogout(t *testing.T) {
	s := New()
	if _, ok := s.CurrentUserID(); ok {
		t.Fatal("new session should be signed out")
	}

	user := uuid.New()
	s.Login(user, "opaque")
	if got, ok := s.CurrentUserID(); !ok || got != user {
		t.Errorf("CurrentUserID = %v, %v; want %v", got, ok, user)
	}
	if s.Token() != "opaque" {
		t.Errorf("Token = %q", s.Token())
	}

	prev, ok := s.Logout()
	if !ok || prev != user {
		t.Errorf("Logout = %v, %v; want %v", prev, ok, user)
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Error("session should be signed out after Logout")
	}
	if s.Token() != "" {
		t.Error("token should be cleared on Logout")
	}
	if _, ok := s.Logout(); ok {
		t.Error("second Logout should report no user")
	}
}

func TestSession_LoginWithToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := uuid.New()

	tests := []struct {
		name    string
		claims  jwt.RegisteredClaims
		raw     string
		wantErr bool
	}{
		{
			name:   "valid subject",
			claims: jwt.RegisteredClaims{Subject: user.String(), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		},
		{
			name:   "no expiry",
			claims: jwt.RegisteredClaims{Subject: user.String()},
		},
		{
			name:    "expired",
			claims:  jwt.RegisteredClaims{Subject: user.String(), ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))},
			wantErr: true,
		},
		{
			name:    "subject not a uuid",
			claims:  jwt.RegisteredClaims{Subject: "alice"},
			wantErr: true,
		},
		{
			name:    "nil subject",
			claims:  jwt.RegisteredClaims{Subject: uuid.Nil.String()},
			wantErr: true,
		},
		{
			name:    "malformed token",
			raw:     "not.a.jwt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.now = func() time.Time { return now }

			token := tt.raw
			if token == "" {
				token = signToken(t, tt.claims)
			}

			got, err := s.LoginWithToken(token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("err = %v, want ErrInvalidToken", err)
				}
				if _, ok := s.CurrentUserID(); ok {
					t.Error("failed login must leave the session signed out")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoginWithToken failed: %v", err)
			}
			if got != user {
				t.Errorf("user = %v, want %v", got, user)
			}
			if s.Token() != token {
				t.Error("token should be kept for API calls")
			}
		})
	}
}

func TestStatic(t *testing.T) {
	if _, ok := Static(uuid.Nil).CurrentUserID(); ok {
		t.Error("zero Static should have no user")
	}
	user := uuid.New()
	if got, ok := Static(user).CurrentUserID(); !ok || got != user {
		t.Errorf("Static = %v, %v", got, ok)
	}
}
