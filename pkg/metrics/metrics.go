package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Changeset lifecycle metrics
	ChangesetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katalog_changesets_total",
			Help: "Total number of changesets by final status",
		},
		[]string{"status"},
	)

	ChangesetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "katalog_changeset_duration_seconds",
			Help:    "Time from begin to finalize for a changeset in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	ChangesetsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "katalog_changesets_in_progress",
			Help: "Whether a changeset is currently in progress (0 or 1)",
		},
	)

	// Metadata row metrics
	MetadataRowsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katalog_metadata_rows_appended_total",
			Help: "Total number of metadata rows appended, including tombstones",
		},
		[]string{"tombstone"},
	)

	// Asset metrics
	AssetsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katalog_assets_scanned_total",
			Help: "Total number of assets observed by a scan, by outcome status",
		},
		[]string{"status"},
	)

	AssetsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "katalog_assets_lost_total",
			Help: "Total number of assets tombstoned because a changeset did not observe them",
		},
	)

	// Scan metrics
	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "katalog_scan_duration_seconds",
			Help:    "Time taken for a source plugin's scan in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"actor"},
	)

	ScanAssetLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "katalog_scan_asset_latency_seconds",
			Help:    "Time taken to process a single discovered asset in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Processor metrics
	ProcessorStageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "katalog_processor_stage_duration_seconds",
			Help:    "Time taken to dispatch and run a single processor in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProcessorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katalog_processor_outcomes_total",
			Help: "Total number of processor runs by outcome status",
		},
		[]string{"status"},
	)

	// Query metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "katalog_query_duration_seconds",
			Help:    "Time taken to execute a catalog query in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Store metrics
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "katalog_store_operation_duration_seconds",
			Help:    "Time taken for a persistent store operation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BlobCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katalog_blobcache_hits_total",
			Help: "Total number of blob cache lookups by hit or miss",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ChangesetsTotal)
	prometheus.MustRegister(ChangesetDuration)
	prometheus.MustRegister(ChangesetsInProgress)
	prometheus.MustRegister(MetadataRowsAppended)
	prometheus.MustRegister(AssetsScanned)
	prometheus.MustRegister(AssetsLost)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScanAssetLatency)
	prometheus.MustRegister(ProcessorStageDuration)
	prometheus.MustRegister(ProcessorOutcomesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(BlobCacheHits)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
