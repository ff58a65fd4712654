// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/appcache"
	"github.com/tomtom215/huddle/internal/colors"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/imagecache"
	"github.com/tomtom215/huddle/internal/models"
	"github.com/tomtom215/huddle/internal/session"
)

type readiness bool

func (r readiness) Initialized() bool { return bool(r) }

type fakeImages struct{}

func (fakeImages) Stats() imagecache.Stats {
	return imagecache.Stats{MemoryEntries: 2, DiskEntries: 3, DiskBytes: 1024, MaxDiskBytes: 4096}
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{Addr: "127.0.0.1:0", RateLimitRequests: 100, RateLimitWindow: time.Minute}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{"loaded", true, http.StatusOK, `"status":"ok"`},
		{"loading", false, http.StatusServiceUnavailable, `"status":"loading"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(testServerConfig(), Deps{Ready: readiness(tt.ready), Session: session.Static(uuid.New())})
			rec := get(t, router, "/healthz")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", rec.Body, tt.wantBody)
			}
			if !strings.Contains(rec.Body.String(), `"signedIn":true`) {
				t.Errorf("body = %s, want signedIn", rec.Body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewRouter(testServerConfig(), Deps{}), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output should include the default collectors")
	}
}

func TestCacheStats(t *testing.T) {
	me := uuid.New()
	sess := session.New()
	sess.Login(me, "")

	cache := appcache.New(appcache.Config{}, nil, sess, nil, nil, nil)
	cache.UpdateFriends(me, []models.FriendUser{{BaseUser: models.BaseUser{ID: uuid.New()}}})
	col := colors.New(nil, nil)
	col.Preassign([]uuid.UUID{uuid.New(), uuid.New()})

	router := NewRouter(testServerConfig(), Deps{Session: sess, Entities: cache, Colors: col, Images: fakeImages{}})

	rec := get(t, router, "/debug/cache")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Entities struct {
			UserID  uuid.UUID      `json:"userId"`
			Entries map[string]int `json:"entries"`
		} `json:"entities"`
		Colors struct {
			Assigned int `json:"assigned"`
		} `json:"colors"`
		Images imagecache.Stats `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Entities.UserID != me || body.Entities.Entries[appcache.Friends] != 1 {
		t.Errorf("entities = %+v", body.Entities)
	}
	if body.Colors.Assigned != 2 {
		t.Errorf("colors assigned = %d, want 2", body.Colors.Assigned)
	}
	if body.Images.DiskBytes != 1024 {
		t.Errorf("images = %+v", body.Images)
	}

	other := uuid.New()
	rec = get(t, router, "/debug/cache?user="+other.String())
	if !strings.Contains(rec.Body.String(), other.String()) {
		t.Errorf("explicit user not honored: %s", rec.Body)
	}

	if rec = get(t, router, "/debug/cache?user=nope"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad user id status = %d, want 400", rec.Code)
	}
}

func TestCacheStats_SignedOut(t *testing.T) {
	cache := appcache.New(appcache.Config{}, nil, session.New(), nil, nil, nil)
	rec := get(t, NewRouter(testServerConfig(), Deps{Session: session.New(), Entities: cache}), "/debug/cache")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "entities") {
		t.Errorf("signed out should omit entity stats: %s", rec.Body)
	}
}

func TestDebugRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimitRequests = 2
	router := NewRouter(cfg, Deps{})

	for i := 0; i < 2; i++ {
		if rec := get(t, router, "/debug/cache"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := get(t, router, "/debug/cache"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
	if rec := get(t, router, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("health is not rate limited, got %d", rec.Code)
	}
}

func TestNewHTTPServer(t *testing.T) {
	cfg := testServerConfig()
	cfg.ReadTimeout = 3 * time.Second
	srv := NewHTTPServer(cfg, http.NotFoundHandler())
	if srv.Addr != cfg.Addr || srv.ReadTimeout != 3*time.Second || srv.ReadHeaderTimeout != 3*time.Second {
		t.Errorf("server = %+v", srv)
	}
}
