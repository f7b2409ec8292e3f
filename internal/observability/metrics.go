package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and ingest flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	arrivalsTotal         *prometheus.CounterVec
	duplicateArrivals     *prometheus.CounterVec
	unknownMemberTotal    *prometheus.CounterVec
	rejectedRecordsTotal  *prometheus.CounterVec
	batchesCompletedTotal prometheus.Counter
	triggerFailuresTotal  prometheus.Counter
	alertsEmittedTotal    *prometheus.CounterVec
	convertDuration       *prometheus.HistogramVec
	ingestInflight        prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ingest_gate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		arrivalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "arrivals_total",
				Help:      "Total number of arrival events recorded, by member.",
			},
			[]string{"member"},
		),
		duplicateArrivals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "duplicate_arrivals_total",
				Help:      "Total number of arrival events absorbed as duplicates, by member.",
			},
			[]string{"member"},
		),
		unknownMemberTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "unknown_member_total",
				Help:      "Total number of arrivals rejected for members outside the expected set.",
			},
			[]string{"member"},
		),
		rejectedRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "rejected_records_total",
				Help:      "Total number of malformed positional records dropped during conversion.",
			},
			[]string{"member"},
		),
		batchesCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "batches_completed_total",
				Help:      "Total number of batches that reached completeness and were triggered.",
			},
		),
		triggerFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "trigger_failures_total",
				Help:      "Total number of transform job launches that failed.",
			},
		),
		alertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest_gate",
				Name:      "alerts_emitted_total",
				Help:      "Total number of deadline alerts emitted, by kind.",
			},
			[]string{"kind"},
		),
		convertDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ingest_gate",
				Name:      "convert_duration_seconds",
				Help:      "Positional to columnar conversion duration in seconds, by member.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"member"},
		),
		ingestInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ingest_gate",
				Name:      "ingest_inflight",
				Help:      "Current number of in-flight arrival messages being processed.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.arrivalsTotal,
		m.duplicateArrivals,
		m.unknownMemberTotal,
		m.rejectedRecordsTotal,
		m.batchesCompletedTotal,
		m.triggerFailuresTotal,
		m.alertsEmittedTotal,
		m.convertDuration,
		m.ingestInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncArrival(member string) {
	if m == nil {
		return
	}
	m.arrivalsTotal.WithLabelValues(normalizeMember(member)).Inc()
}

func (m *Metrics) IncDuplicateArrival(member string) {
	if m == nil {
		return
	}
	m.duplicateArrivals.WithLabelValues(normalizeMember(member)).Inc()
}

func (m *Metrics) IncUnknownMember(member string) {
	if m == nil {
		return
	}
	m.unknownMemberTotal.WithLabelValues(normalizeMember(member)).Inc()
}

func (m *Metrics) AddRejectedRecords(member string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rejectedRecordsTotal.WithLabelValues(normalizeMember(member)).Add(float64(count))
}

func (m *Metrics) IncBatchCompleted() {
	if m == nil {
		return
	}
	m.batchesCompletedTotal.Inc()
}

func (m *Metrics) IncTriggerFailure() {
	if m == nil {
		return
	}
	m.triggerFailuresTotal.Inc()
}

func (m *Metrics) IncAlertEmitted(kind string) {
	if m == nil {
		return
	}
	kindLabel := strings.TrimSpace(strings.ToLower(kind))
	if kindLabel == "" {
		kindLabel = "unknown"
	}
	m.alertsEmittedTotal.WithLabelValues(kindLabel).Inc()
}

func (m *Metrics) ObserveConvertDuration(member string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.convertDuration.WithLabelValues(normalizeMember(member)).Observe(seconds)
}

func (m *Metrics) IncIngestInFlight() {
	if m == nil {
		return
	}
	m.ingestInflight.Inc()
}

func (m *Metrics) DecIngestInFlight() {
	if m == nil {
		return
	}
	m.ingestInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeMember(member string) string {
	normalized := strings.ToLower(strings.TrimSpace(member))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
