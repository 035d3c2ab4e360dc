package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	StreamsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_streams_started_total",
			Help: "Total number of generation streams started",
		},
		[]string{"provider", "report_kind"},
	)

	StreamsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_streams_completed_total",
			Help: "Total number of generation streams completed",
		},
		[]string{"provider", "report_kind", "status"},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factlens_stream_duration_seconds",
			Help:    "Generation stream duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"provider", "report_kind"},
	)

	ChunksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_stream_chunks_received_total",
			Help: "Total number of chunk events received across all streams",
		},
	)

	// Reconciliation metrics
	ReconcileBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_reconcile_batches_total",
			Help: "Total number of source batches reconciled",
		},
	)

	SourcesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factlens_sources_tracked",
			Help: "Number of source assessments currently tracked",
		},
	)

	// Link validation metrics
	LinksChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_links_checked_total",
			Help: "Total number of link probes by outcome",
		},
		[]string{"outcome"},
	)

	LinkCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factlens_link_check_duration_seconds",
			Help:    "Link probe duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8},
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_report_cache_hits_total",
			Help: "Total number of report cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_report_cache_misses_total",
			Help: "Total number of report cache misses",
		},
	)

	CacheCorruptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_report_cache_corrupt_entries_total",
			Help: "Total number of corrupt cache entries deleted on read",
		},
	)

	// Session metrics
	SessionSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_session_saves_total",
			Help: "Total number of session save attempts",
		},
		[]string{"status"},
	)

	SessionSaveStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factlens_session_save_ok",
			Help: "Whether the most recent session save succeeded (1) or failed (0)",
		},
	)

	// Archive metrics
	ReportsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_reports_archived_total",
			Help: "Total number of completed reports written to the archive",
		},
		[]string{"status"},
	)

	// Delivery metrics
	SSESubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factlens_sse_subscribers",
			Help: "Number of currently connected event-stream subscribers",
		},
	)
)
