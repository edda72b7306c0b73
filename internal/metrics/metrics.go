package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "staffpresence"

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter

	ClockEventsTotal     *prometheus.CounterVec
	PostingsTotal        *prometheus.CounterVec
	ConflictRetriesTotal *prometheus.CounterVec
	StorageErrorsTotal   *prometheus.CounterVec

	SummaryHeadcount   *prometheus.GaugeVec
	SummaryStatusCount *prometheus.GaugeVec
	SummaryAvgHours    prometheus.Gauge

	logger *zap.Logger
}

// New registers all metrics with the default registry.
func New(logger *zap.Logger) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry registers all metrics with a custom registry.
func NewWithRegistry(registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	factory := promauto.With(registerer)
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "endpoint"},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
		ClockEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clock_events_total",
				Help:      "Clock events appended to daily time records",
			},
			[]string{"kind"},
		),
		PostingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "location_postings_total",
				Help:      "Location postings accepted, by role family",
			},
			[]string{"role"},
		),
		ConflictRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflict_retries_total",
				Help:      "Read-modify-write attempts retried after a concurrent update",
			},
			[]string{"component"},
		),
		StorageErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Storage failures surfaced to callers",
			},
			[]string{"component"},
		),
		SummaryHeadcount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_headcount",
				Help:      "Directory headcount by role from the latest summary",
			},
			[]string{"role"},
		),
		SummaryStatusCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_status_count",
				Help:      "Persons per presence status from the latest summary",
			},
			[]string{"status"},
		),
		SummaryAvgHours: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_average_worked_hours",
				Help:      "Average worked hours from the latest summary",
			},
		),
		logger: logger,
	}
}

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.safeExecute("RecordHTTPRequest", func() {
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}

// IncRateLimited counts a rejected request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.safeExecute("IncRateLimited", func() { m.RateLimitedTotal.Inc() })
}

// IncClockEvent counts an appended clock event.
func (m *Metrics) IncClockEvent(kind string) {
	if m == nil {
		return
	}
	m.safeExecute("IncClockEvent", func() { m.ClockEventsTotal.WithLabelValues(kind).Inc() })
}

// IncPosting counts an accepted location posting.
func (m *Metrics) IncPosting(role string) {
	if m == nil {
		return
	}
	m.safeExecute("IncPosting", func() { m.PostingsTotal.WithLabelValues(role).Inc() })
}

// IncConflictRetry counts a retried read-modify-write.
func (m *Metrics) IncConflictRetry(component string) {
	if m == nil {
		return
	}
	m.safeExecute("IncConflictRetry", func() { m.ConflictRetriesTotal.WithLabelValues(component).Inc() })
}

// IncStorageError counts a storage failure returned to a caller.
func (m *Metrics) IncStorageError(component string) {
	if m == nil {
		return
	}
	m.safeExecute("IncStorageError", func() { m.StorageErrorsTotal.WithLabelValues(component).Inc() })
}

// SetSummary publishes the latest daily summary as gauges.
func (m *Metrics) SetSummary(headcount map[string]int, statuses map[string]int, avgHours float64) {
	if m == nil {
		return
	}
	m.safeExecute("SetSummary", func() {
		m.SummaryHeadcount.Reset()
		for role, n := range headcount {
			m.SummaryHeadcount.WithLabelValues(role).Set(float64(n))
		}
		m.SummaryStatusCount.Reset()
		for status, n := range statuses {
			m.SummaryStatusCount.WithLabelValues(status).Set(float64(n))
		}
		m.SummaryAvgHours.Set(avgHours)
	})
}

// ShouldSkipEndpoint reports paths excluded from HTTP metrics.
func ShouldSkipEndpoint(path string) bool {
	return path == "/metrics" || path == "/healthz" || strings.HasPrefix(path, "/debug/")
}

// safeExecute wraps metric operations with panic recovery
func (m *Metrics) safeExecute(operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in metrics operation",
				zap.String("operation", operation),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
