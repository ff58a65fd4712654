// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package server is the agent's debug HTTP surface: liveness, Prometheus
// metrics and a JSON view of what is cached.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/huddle/internal/appcache"
	"github.com/tomtom215/huddle/internal/colors"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/imagecache"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/session"
)

// Readiness reports whether the caches were loaded. *bootstrap.Bootstrap
// implements it.
type Readiness interface {
	Initialized() bool
}

// EntityStats is implemented by *appcache.Cache.
type EntityStats interface {
	Stats(userID uuid.UUID) appcache.Stats
}

// ColorStats is implemented by *colors.Assigner.
type ColorStats interface {
	DistributionStats() map[colors.Color]int
	Len() int
}

// ImageStats is implemented by *imagecache.Cache.
type ImageStats interface {
	Stats() imagecache.Stats
}

// Deps are the components the debug surface reads. Nil components are
// left out of the responses.
type Deps struct {
	Ready    Readiness
	Session  session.Provider
	Entities EntityStats
	Colors   ColorStats
	Images   ImageStats
}

// Handler serves the debug routes.
type Handler struct {
	deps Deps
}

// NewRouter builds the chi router for the debug surface.
func NewRouter(cfg *config.ServerConfig, deps Deps) http.Handler {
	h := &Handler{deps: deps}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/debug", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Get("/cache", h.CacheStats)
	})
	return r
}

// NewHTTPServer returns the *http.Server for cfg.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Initialized bool   `json:"initialized"`
	SignedIn    bool   `json:"signedIn"`
}

// Health answers 200 once the caches are loaded and 503 before.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Initialized: true}
	if h.deps.Ready != nil {
		resp.Initialized = h.deps.Ready.Initialized()
	}
	if h.deps.Session != nil {
		_, resp.SignedIn = h.deps.Session.CurrentUserID()
	}
	status := http.StatusOK
	if !resp.Initialized {
		resp.Status = "loading"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

type cacheResponse struct {
	Entities *appcache.Stats   `json:"entities,omitempty"`
	Colors   *colorsResponse   `json:"colors,omitempty"`
	Images   *imagecache.Stats `json:"images,omitempty"`
}

type colorsResponse struct {
	Assigned     int                  `json:"assigned"`
	Distribution map[colors.Color]int `json:"distribution"`
}

// CacheStats describes what is cached. Entity counts are for the signed-in
// user, or for the user named by the "user" query parameter.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	var resp cacheResponse

	if h.deps.Entities != nil {
		userID, ok := uuid.Nil, false
		if q := r.URL.Query().Get("user"); q != "" {
			id, err := uuid.Parse(q)
			if err != nil {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
				return
			}
			userID, ok = id, true
		} else if h.deps.Session != nil {
			userID, ok = h.deps.Session.CurrentUserID()
		}
		if ok {
			s := h.deps.Entities.Stats(userID)
			resp.Entities = &s
		}
	}
	if h.deps.Colors != nil {
		resp.Colors = &colorsResponse{
			Assigned:     h.deps.Colors.Len(),
			Distribution: h.deps.Colors.DistributionStats(),
		}
	}
	if h.deps.Images != nil {
		s := h.deps.Images.Stats()
		resp.Images = &s
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
