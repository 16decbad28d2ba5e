package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner metrics
var (
	ScannerFilesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_scanner_files_seen_total",
			Help: "Total number of files discovered during directory scans",
		},
	)

	ScannerEnrichTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_scanner_enrich_total",
			Help: "Total number of metadata enrichment attempts",
		},
		[]string{"status"},
	)

	ScannerEnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_organizer_scanner_enrich_duration_seconds",
			Help:    "Duration of a single metadata probe",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ScannerWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_organizer_scanner_workers",
			Help: "Number of enrichment workers in the scan pool",
		},
	)

	ScannerWatcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_scanner_watcher_events_total",
			Help: "Total number of filesystem watcher events processed",
		},
		[]string{"type"},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_cache_hits_total",
			Help: "Total number of cache lookups served from the cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_cache_misses_total",
			Help: "Total number of cache lookups that invoked the generator",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
	)

	CacheGenerationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_cache_generation_errors_total",
			Help: "Total number of failed cache payload generations",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_organizer_cache_size_bytes",
			Help: "Total size of all cached payloads in bytes",
		},
	)

	CacheEntryCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_organizer_cache_entries",
			Help: "Number of entries currently in the cache",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_organizer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Filesystem operation metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_fs_retry_attempts_total",
			Help: "Total number of retry attempts for flaky filesystem operations",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_fs_stale_errors_total",
			Help: "Total number of NFS stale file handle errors encountered",
		},
		[]string{"operation"},
	)

	CopyBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_fs_copy_bytes_total",
			Help: "Total number of bytes copied by chunked copy operations",
		},
	)

	CopyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_organizer_fs_copy_duration_seconds",
			Help:    "Duration of chunked copy operations",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)
)

// Batch engine metrics
var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_organizer_operations_total",
			Help: "Total number of committed file operations",
		},
		[]string{"kind", "status"},
	)

	BatchesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_batches_committed_total",
			Help: "Total number of committed batches",
		},
	)

	BatchesUndone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_organizer_batches_undone_total",
			Help: "Total number of undone batches",
		},
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_organizer_commit_duration_seconds",
			Help:    "Duration of batch commits",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
	)
)
