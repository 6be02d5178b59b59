package observability

import (
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the CRM API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	computations    *prometheus.CounterVec
	clientStatus    *prometheus.CounterVec
	skippedInvoices prometheus.Counter
	importedRows    *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_store_errors_total",
				Help: "Total errors returned by the record store.",
			},
			[]string{"store"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		computations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_analytics_computations_total",
				Help: "Total analytics computations by outcome.",
			},
			[]string{"result"},
		),
		clientStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_client_status_total",
				Help: "Client statuses produced by analytics computations.",
			},
			[]string{"status"},
		),
		skippedInvoices: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_skipped_invoices_total",
				Help: "Invoices left out of analytics because they were malformed.",
			},
		),
		importedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_import_invoices_total",
				Help: "Invoices processed by CSV imports by outcome.",
			},
			[]string{"result"},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_rate_limited_requests_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the record-store error counter.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrComputation counts one analytics computation; result is "success" or "error".
func (m *Metrics) IncrComputation(result string) {
	m.computations.WithLabelValues(result).Inc()
}

// IncrClientStatus counts a produced client status.
func (m *Metrics) IncrClientStatus(status domain.ClientStatus) {
	m.clientStatus.WithLabelValues(string(status)).Inc()
}

// AddSkippedInvoices adds n malformed invoices.
func (m *Metrics) AddSkippedInvoices(n int) {
	if n > 0 {
		m.skippedInvoices.Add(float64(n))
	}
}

// AddImport records the outcome of a CSV import.
func (m *Metrics) AddImport(imported, failed int) {
	m.importedRows.WithLabelValues("imported").Add(float64(imported))
	m.importedRows.WithLabelValues("failed").Add(float64(failed))
}

// IncrRateLimited counts a rejected request.
func (m *Metrics) IncrRateLimited() {
	m.rateLimited.Inc()
}

// GetAnalyticsSnapshot returns a snapshot of analytics-related metrics
// suitable for the GET /v1/metrics/analytics endpoint.
func (m *Metrics) GetAnalyticsSnapshot() *domain.AnalyticsMetrics {
	success := getCounterValue(m.computations, "success")
	errorCount := getCounterValue(m.computations, "error")
	total := success + errorCount
	cacheHits := getCounterValue(m.cacheHits, "invoices")
	cacheMisses := getCounterValue(m.cacheMisses, "invoices")

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		errorRate = errorCount / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	statusCounts := make(map[string]int64, 5)
	for _, s := range []domain.ClientStatus{
		domain.StatusInactive, domain.StatusAtRisk, domain.StatusDeclining, domain.StatusGrowing, domain.StatusStable,
	} {
		statusCounts[string(s)] = int64(getCounterValue(m.clientStatus, string(s)))
	}

	return &domain.AnalyticsMetrics{
		Computations:    int64(total),
		Errors:          int64(errorCount),
		ErrorRate:       errorRate,
		CacheHitRate:    cacheHitRate,
		SkippedInvoices: int64(readCounter(m.skippedInvoices)),
		ImportedRows:    int64(getCounterValue(m.importedRows, "imported")),
		StatusCounts:    statusCounts,
		Period:          "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
