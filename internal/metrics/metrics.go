// Package metrics provides Prometheus metrics for the market tracker.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tibia_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Scan Metrics
	ItemsScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tibia_items_scanned_total",
			Help: "Total number of market items queried",
		},
	)

	PoisonedQuotesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tibia_poisoned_quotes_total",
			Help: "Item queries that failed outright and were recorded with every field unreadable",
		},
	)

	UnreadableFieldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_unreadable_fields_total",
			Help: "Market fields OCR could not read",
		},
		[]string{"field"},
	)

	SessionRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_session_restarts_total",
			Help: "Session restarts performed to avoid the idle kick",
		},
		[]string{"strategy"}, // "light" or "relaunch"
	)

	ScanProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tibia_scan_progress_items",
			Help: "Items written to the in-progress snapshot",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tibia_scan_duration_seconds",
			Help:    "Time taken by a full market scan",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)

	ItemQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tibia_item_query_duration_seconds",
			Help:    "Time taken to search one item and read both market tabs",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16},
		},
	)

	// Locator Metrics
	LocatorWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_locator_waits_total",
			Help: "Blocking UI element lookups by outcome",
		},
		[]string{"result"}, // "cached", "found", "timeout"
	)

	LocatorWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tibia_locator_wait_seconds",
			Help:    "Time until a UI element appeared on screen",
			Buckets: []float64{0.05, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// OCR Metrics
	OCRRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_ocr_requests_total",
			Help: "Total number of OCR field reads",
		},
		[]string{"result"}, // "success" or "failed"
	)

	OCRProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tibia_ocr_processing_duration_seconds",
			Help:    "Time taken to capture, preprocess and recognize one field",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Snapshot API Metrics
	SnapshotReloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tibia_snapshot_reloads_total",
			Help: "Times the query API reloaded the snapshot file",
		},
	)

	SnapshotRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tibia_snapshot_rows",
			Help: "Rows in the currently loaded snapshot",
		},
	)

	// Wiki Metrics
	WikiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_wiki_requests_total",
			Help: "Requests made to the wiki API",
		},
		[]string{"result"},
	)

	// Publishing Metrics
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tibia_publish_total",
			Help: "Attempts to publish scan results by outcome",
		},
		[]string{"result"},
	)
)
