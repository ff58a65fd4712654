// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/huddle/internal/logging"
)

const (
	defaultHTTPName            = "http-server"
	defaultHTTPShutdownTimeout = 10 * time.Second
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server under a supervisor.
//
//	srv := server.NewHTTPServer(&cfg.Server, router)
//	tree.Add(supervisor.DebugLayer, services.NewHTTPServerService("debug-http", srv, 10*time.Second))
type HTTPServerService struct {
	name            string
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. An empty name becomes "http-server" and
// a non-positive shutdownTimeout becomes 10s.
func NewHTTPServerService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if name == "" {
		name = defaultHTTPName
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultHTTPShutdownTimeout
	}
	return &HTTPServerService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
//
// A listen failure (port in use) is returned so the supervisor retries with
// backoff. A server closed by someone else stops the service for good. On
// cancellation the server is shut down within shutdownTimeout.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- h.server.ListenAndServe() }()

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Str("service", h.name).Msg("HTTP server closed outside the supervisor")
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("%s: listen: %w", h.name, err)
	case <-ctx.Done():
	}

	// ctx is done; Shutdown needs its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", h.name, err)
	}
	<-done

	logging.Debug().Str("service", h.name).Msg("HTTP server stopped")
	return ctx.Err()
}

// String names the service in supervisor events.
func (h *HTTPServerService) String() string {
	return h.name
}
