// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Entity cache tables
	CacheTableReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_table_reads_total",
			Help: "Total reads of cached entity tables",
		},
		[]string{"table", "result"}, // result: "hit", "miss"
	)

	CacheTableUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_table_updates_total",
			Help: "Total writes to cached entity tables",
		},
		[]string{"table", "source"}, // source: "update", "refresh", "validation"
	)

	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_refreshes_total",
			Help: "Total table refreshes from the backend",
		},
		[]string{"table", "result"}, // result: "success", "failure"
	)

	CacheRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_cache_refresh_duration_seconds",
			Help:    "Duration of table refreshes from the backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	CacheValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_validations_total",
			Help: "Total cache validation rounds",
		},
		[]string{"mode"}, // mode: "skipped", "initial", "incremental", "failed"
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_invalidations_total",
			Help: "Tables invalidated by the backend, by how they were reconciled",
		},
		[]string{"table", "action"}, // action: "inline", "refresh"
	)

	CacheFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_cache_flush_duration_seconds",
			Help:    "Duration of flushing all cache tables to the store",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	CachePersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_cache_persist_errors_total",
			Help: "Failures to load or save cache state",
		},
		[]string{"key", "op"}, // op: "load", "save", "delete"
	)

	// Entity colors
	ColorAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_color_assignments_total",
			Help: "Total new entity color assignments",
		},
	)

	ColorAssignedEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_color_assigned_entities",
			Help: "Number of entities with an assigned color",
		},
	)

	// Image cache
	ImageCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_image_cache_hits_total",
			Help: "Image cache hits by tier",
		},
		[]string{"tier"}, // tier: "memory", "disk"
	)

	ImageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_image_cache_misses_total",
			Help: "Image cache misses",
		},
	)

	ImageDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_image_downloads_total",
			Help: "Image downloads by result",
		},
		[]string{"result"}, // result: "success", "failure", "deduplicated"
	)

	ImageDownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_image_download_duration_seconds",
			Help:    "Duration of image downloads",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImageEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_image_evictions_total",
			Help: "Images removed from the cache by reason",
		},
		[]string{"reason"}, // reason: "size", "age", "orphan", "memory"
	)

	ImageCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_image_cache_bytes",
			Help: "Total bytes of images held on disk",
		},
	)

	ImageCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "huddle_image_cache_entries",
			Help: "Number of images held by tier",
		},
		[]string{"tier"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "huddle_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Backend API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_api_requests_total",
			Help: "Total requests made to the Huddle backend",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_api_request_duration_seconds",
			Help:    "Latency of requests to the Huddle backend",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Application info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "huddle_app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordTableRead records a cache table read.
func RecordTableRead(table string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheTableReads.WithLabelValues(table, result).Inc()
}

// RecordRefresh records a table refresh from the backend.
func RecordRefresh(table string, duration time.Duration, err error) {
	CacheRefreshDuration.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		CacheRefreshes.WithLabelValues(table, "failure").Inc()
		return
	}
	CacheRefreshes.WithLabelValues(table, "success").Inc()
}

// RecordImageDownload records an image download.
func RecordImageDownload(duration time.Duration, err error) {
	ImageDownloadDuration.Observe(duration.Seconds())
	if err != nil {
		ImageDownloads.WithLabelValues("failure").Inc()
		return
	}
	ImageDownloads.WithLabelValues("success").Inc()
}

// RecordAPIRequest records a backend request.
func RecordAPIRequest(endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
