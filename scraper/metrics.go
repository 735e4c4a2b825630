package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RecordsTotal      *prometheus.CounterVec
	RecordsSkipped    prometheus.Counter
	AssetsTotal       *prometheus.CounterVec
	AssetFailures     *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	DiscoveryStrategy *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_requests_total",
			Help: "Total HTTP requests issued, by pipeline phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_fetched_total",
			Help: "Records obtained, by source (api, dom, cache).",
		},
		[]string{"source"},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_records_skipped_total",
			Help: "Identifiers for which no data could be obtained.",
		},
	)
	assets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_assets_downloaded_total",
			Help: "Assets downloaded, by role.",
		},
		[]string{"role"},
	)
	assetFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_asset_failures_total",
			Help: "Assets omitted after failed downloads, by role.",
		},
		[]string{"role"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_retries_total",
			Help: "Total number of asset retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)
	strategy := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_discovery_strategy_total",
			Help: "Discovery runs, by the strategy that produced identifiers.",
		},
		[]string{"strategy"},
	)

	registry.MustRegister(requests, requestDuration, records, skipped, assets, assetFailures, retries, errorsTotal, strategy)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RecordsTotal:      records,
		RecordsSkipped:    skipped,
		AssetsTotal:       assets,
		AssetFailures:     assetFailures,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		DiscoveryStrategy: strategy,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecord counts a record obtained from source.
func (m *Metrics) IncRecord(source string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(source).Inc()
}

// IncSkipped counts an identifier that produced no record.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.RecordsSkipped.Inc()
}

// IncAsset counts a downloaded asset.
func (m *Metrics) IncAsset(role string) {
	if m == nil {
		return
	}
	m.AssetsTotal.WithLabelValues(role).Inc()
}

// IncAssetFailure counts an omitted asset.
func (m *Metrics) IncAssetFailure(role string) {
	if m == nil {
		return
	}
	m.AssetFailures.WithLabelValues(role).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncStrategy records which discovery strategy succeeded.
func (m *Metrics) IncStrategy(name string) {
	if m == nil {
		return
	}
	m.DiscoveryStrategy.WithLabelValues(name).Inc()
}
