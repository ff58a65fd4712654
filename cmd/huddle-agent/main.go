// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package main is huddle-agent, a headless process that keeps a signed-in
// user's Huddle cache warm.
//
// Startup order:
//
//  1. Configuration: defaults, optional YAML, HUDDLE_* environment (Koanf v2)
//  2. Store: BadgerDB for tables, timestamps, colors and image metadata
//  3. Session: the current user from HUDDLE_SESSION_ACCESS_TOKEN
//  4. Caches: colors, images (disk tier under images.dir) and entities
//  5. Bootstrap: one load from the store, then a first ValidateCache
//  6. Supervisor: periodic flush, optional periodic validation and the
//     optional debug HTTP server
//
// SIGINT or SIGTERM stops the supervisor, drains background work and
// flushes every cache before the store is closed.
//
// Example:
//
//	export HUDDLE_API_BASE_URL=https://api.huddle.example/v1
//	export HUDDLE_SESSION_ACCESS_TOKEN=eyJhbGciOi...
//	export HUDDLE_SERVER_ENABLED=true
//	./huddle-agent
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/tomtom215/huddle/internal/api"
	"github.com/tomtom215/huddle/internal/appcache"
	"github.com/tomtom215/huddle/internal/bootstrap"
	"github.com/tomtom215/huddle/internal/colors"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/imagecache"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/server"
	"github.com/tomtom215/huddle/internal/session"
	"github.com/tomtom215/huddle/internal/store"
	"github.com/tomtom215/huddle/internal/supervisor"
	"github.com/tomtom215/huddle/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("huddle-agent failed")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("huddle-agent stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("api", cfg.API.BaseURL).
		Str("store", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Str("images", cfg.Images.Dir).
		Msg("Starting huddle-agent")

	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
		KeyPrefix:  cfg.Store.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	sess := session.New()
	if cfg.Session.AccessToken != "" {
		id, err := sess.LoginWithToken(cfg.Session.AccessToken)
		if err != nil {
			logging.Warn().Err(err).Msg("Access token rejected, starting signed out")
		} else {
			logging.Info().Str("user_id", id.String()).Msg("Signed in")
		}
	} else {
		logging.Info().Msg("No access token configured, starting signed out")
	}

	client := api.NewHTTPClient(&cfg.API, sess)

	palette := make([]colors.Color, len(cfg.Colors.Palette))
	for i, c := range cfg.Colors.Palette {
		palette[i] = colors.Color(c)
	}
	if len(palette) == 0 {
		palette = nil
	}
	col := colors.New(st, palette)

	images, err := imagecache.New(ctx, imagecache.Config{
		MaxDiskBytes:    cfg.Images.MaxDiskBytes,
		MaxAge:          cfg.Images.MaxAge,
		MemoryEntries:   cfg.Images.MemoryEntries,
		DownloadTimeout: cfg.Images.DownloadTimeout,
	}, osfs.New(cfg.Images.Dir), st, client)
	if err != nil {
		return fmt.Errorf("open image cache: %w", err)
	}

	entities := appcache.New(appcache.Config{
		PictureMaxAge: cfg.Images.RefreshMaxAge,
		PictureRate:   cfg.Images.RefreshRate,
	}, client, sess, st, col, images)

	boot := bootstrap.New(entities, col, images)
	boot.Initialize(ctx)
	entities.ValidateCache(ctx)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.Add(supervisor.CacheLayer, bootstrap.NewFlushService(boot, cfg.Cache.FlushInterval))
	if cfg.Cache.ValidateInterval > 0 {
		tree.Add(supervisor.CacheLayer, bootstrap.NewValidationService(entities, cfg.Cache.ValidateInterval))
	}
	if cfg.Server.Enabled {
		router := server.NewRouter(&cfg.Server, server.Deps{
			Ready:    boot,
			Session:  sess,
			Entities: entities,
			Colors:   col,
			Images:   images,
		})
		srv := server.NewHTTPServer(&cfg.Server, router)
		tree.Add(supervisor.DebugLayer, services.NewHTTPServerService("debug-http", srv, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("Debug HTTP server enabled")
	}

	logging.Info().Msg("Starting supervisor tree")
	var treeErr error
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
		treeErr = err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Shutdown(flushCtx); err != nil {
		logging.Error().Err(err).Msg("Final cache flush failed")
	}
	return treeErr
}
