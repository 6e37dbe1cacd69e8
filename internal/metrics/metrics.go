package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of a catalog run.
type Metrics struct {
	Registry              *prometheus.Registry
	DetailRequestsTotal   *prometheus.CounterVec
	DetailRequestDuration prometheus.Histogram
	RetriesTotal          prometheus.Counter
	CandidatesTotal       *prometheus.CounterVec
	RecordsTotal          *prometheus.CounterVec
	ExpansionsTotal       prometheus.Counter
	CategoryFailuresTotal *prometheus.CounterVec
	SnapshotRecords       prometheus.Gauge
	RunsTotal             *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	detailRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surtiapp_detail_requests_total",
			Help: "Product detail API requests by outcome.",
		},
		[]string{"outcome"},
	)
	detailDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "surtiapp_detail_request_duration_seconds",
			Help:    "Latency of product detail API requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surtiapp_detail_retries_total",
			Help: "Retry attempts scheduled for failed detail requests.",
		},
	)
	candidates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surtiapp_candidates_discovered_total",
			Help: "Products discovered on category pages.",
		},
		[]string{"category"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surtiapp_records_collected_total",
			Help: "Product records collected per category.",
		},
		[]string{"category"},
	)
	expansions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surtiapp_listing_expansions_total",
			Help: "Clicks on the load more control.",
		},
	)
	categoryFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surtiapp_category_failures_total",
			Help: "Categories that yielded no records because discovery failed.",
		},
		[]string{"category"},
	)
	snapshotRecords := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "surtiapp_snapshot_records",
			Help: "Records in the most recent snapshot.",
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surtiapp_runs_total",
			Help: "Catalog runs by final status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(detailRequests, detailDuration, retries, candidates, records,
		expansions, categoryFailures, snapshotRecords, runs)

	return &Metrics{
		Registry:              registry,
		DetailRequestsTotal:   detailRequests,
		DetailRequestDuration: detailDuration,
		RetriesTotal:          retries,
		CandidatesTotal:       candidates,
		RecordsTotal:          records,
		ExpansionsTotal:       expansions,
		CategoryFailuresTotal: categoryFailures,
		SnapshotRecords:       snapshotRecords,
		RunsTotal:             runs,
	}
}

func (m *Metrics) ObserveDetailRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.DetailRequestsTotal.WithLabelValues(outcome).Inc()
	m.DetailRequestDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) AddCandidates(category string, n int) {
	if m == nil {
		return
	}
	m.CandidatesTotal.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) AddRecords(category string, n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) IncExpansions() {
	if m == nil {
		return
	}
	m.ExpansionsTotal.Inc()
}

func (m *Metrics) IncCategoryFailure(category string) {
	if m == nil {
		return
	}
	m.CategoryFailuresTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) SetSnapshotRecords(n int) {
	if m == nil {
		return
	}
	m.SnapshotRecords.Set(float64(n))
}

func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}
