package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionscan_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analysis Metrics
	AnalysesStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motionscan_analyses_started_total",
			Help: "Total number of analyses started",
		},
	)

	AnalysesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_analyses_completed_total",
			Help: "Total number of finished analyses by outcome",
		},
		[]string{"status"},
	)

	AnalysesInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionscan_analyses_in_progress",
			Help: "Number of analyses currently being processed",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionscan_queue_depth",
			Help: "Number of analysis jobs waiting in queue",
		},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "motionscan_analysis_duration_seconds",
			Help:    "Analysis processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
	)

	AnalysisFrameRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "motionscan_analysis_frames_per_second",
			Help:    "Analysis throughput in frames per second",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1fps to ~4000fps
		},
	)

	// Frame Metrics
	FramesAnalyzedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_frames_analyzed_total",
			Help: "Total number of frames analyzed by coding type",
		},
		[]string{"type"},
	)

	FrameComplexity = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionscan_frame_complexity",
			Help:    "Distribution of unified frame complexity scores",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21), // 0.0 to 1.0
		},
		[]string{"type"},
	)

	FrameEstimatedBits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionscan_frame_estimated_bits",
			Help:    "Distribution of per-frame estimated bit costs",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 16), // 1Kbit to 32Mbit
		},
		[]string{"type"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionscan_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionscan_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionscan_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAnalysisStarted records the start of an analysis
func RecordAnalysisStarted() {
	AnalysesStartedTotal.Inc()
	AnalysesInProgress.Inc()
}

// RecordAnalysisCompleted records a finished analysis
func RecordAnalysisCompleted(status string, duration float64, frames int) {
	AnalysesCompletedTotal.WithLabelValues(status).Inc()
	AnalysesInProgress.Dec()
	AnalysisDuration.Observe(duration)
	if duration > 0 && frames > 0 {
		AnalysisFrameRate.Observe(float64(frames) / duration)
	}
}

// RecordFrameAnalyzed records one analyzed frame
func RecordFrameAnalyzed(frameType string, complexity float64, estimatedBits int64) {
	FramesAnalyzedTotal.WithLabelValues(frameType).Inc()
	FrameComplexity.WithLabelValues(frameType).Observe(complexity)
	FrameEstimatedBits.WithLabelValues(frameType).Observe(float64(estimatedBits))
}

// UpdateQueueDepth updates the queued job gauge
func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
