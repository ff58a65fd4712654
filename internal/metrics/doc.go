// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

/*
Package metrics provides the Prometheus collectors for the client caches.

All collectors are registered on the default registry at package init and are
served by the agent's debug server at /metrics.

# Available Metrics

Entity cache:
  - huddle_cache_table_reads_total{table,result}
  - huddle_cache_table_updates_total{table,source}
  - huddle_cache_refreshes_total{table,result}
  - huddle_cache_refresh_duration_seconds{table}
  - huddle_cache_validations_total{mode}
  - huddle_cache_invalidations_total{table,action}
  - huddle_cache_flush_duration_seconds
  - huddle_cache_persist_errors_total{key,op}

Entity colors:
  - huddle_color_assignments_total
  - huddle_color_assigned_entities

Image cache:
  - huddle_image_cache_hits_total{tier}
  - huddle_image_cache_misses_total
  - huddle_image_downloads_total{result}
  - huddle_image_download_duration_seconds
  - huddle_image_evictions_total{reason}
  - huddle_image_cache_bytes
  - huddle_image_cache_entries{tier}

Backend:
  - huddle_api_requests_total{endpoint,status}
  - huddle_api_request_duration_seconds{endpoint}
  - huddle_circuit_breaker_state{name}
  - huddle_circuit_breaker_requests_total{name,result}
  - huddle_circuit_breaker_state_transitions_total{name,from_state,to_state}

# Usage

	metrics.RecordRefresh("friends", time.Since(start), err)
	metrics.ImageCacheHits.WithLabelValues("memory").Inc()
*/
package metrics
