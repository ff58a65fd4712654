// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

/*
Package supervisor runs huddle-agent's long-lived services under suture v4.

The tree has two layers so a crashing debug server never stops cache upkeep:

	RootSupervisor ("huddle-agent")
	├── CacheSupervisor ("cache-layer")
	│   ├── FlushService        periodic persistence of every cache
	│   └── ValidationService   periodic ValidateCache (if enabled)
	└── DebugSupervisor ("debug-layer")
	    └── HTTPServerService   /healthz, /metrics, /debug/cache (if enabled)

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog, bridged to zerolog by logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: cfg.Supervisor.FailureThreshold,
	    ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.Add(supervisor.CacheLayer, bootstrap.NewFlushService(boot, cfg.Cache.FlushInterval))
	tree.Add(supervisor.DebugLayer, services.NewHTTPServerService("debug-http", srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
