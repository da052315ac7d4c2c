package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SearchMetrics holds the API server's Prometheus registry: generic
// HTTP counters plus search-pipeline observations.
type SearchMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal         *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	laneConfidenceTotal *prometheus.CounterVec
	laneResultCount     *prometheus.HistogramVec
	laneDegradedTotal   *prometheus.CounterVec
}

func NewSearchMetrics(service string) *SearchMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kerberus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kerberus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kerberus",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kerberus",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed triad searches by overall confidence.",
		},
		[]string{"service", "confidence"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kerberus",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Triad search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	laneConfidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kerberus",
			Subsystem: "search",
			Name:      "lane_confidence_total",
			Help:      "Per-lane confidence classifications.",
		},
		[]string{"service", "lane", "confidence"},
	)
	laneResultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kerberus",
			Subsystem: "search",
			Name:      "lane_results",
			Help:      "Distribution of result counts per lane.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
		[]string{"service", "lane"},
	)
	laneDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kerberus",
			Subsystem: "search",
			Name:      "lane_degraded_total",
			Help:      "Lanes answered through a degraded path.",
		},
		[]string{"service", "lane"},
	)
	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchDuration,
		laneConfidenceTotal,
		laneResultCount,
		laneDegradedTotal,
	)

	return &SearchMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchTotal:         searchTotal,
		searchDuration:      searchDuration,
		laneConfidenceTotal: laneConfidenceTotal,
		laneResultCount:     laneResultCount,
		laneDegradedTotal:   laneDegradedTotal,
	}
}

func (m *SearchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SearchMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *SearchMetrics) RecordSearch(service, confidence string, duration time.Duration) {
	if confidence == "" {
		confidence = "unknown"
	}
	m.searchTotal.WithLabelValues(service, confidence).Inc()
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *SearchMetrics) RecordLane(service, lane, confidence string, results int) {
	if confidence == "" {
		confidence = "unknown"
	}
	m.laneConfidenceTotal.WithLabelValues(service, lane, confidence).Inc()
	m.laneResultCount.WithLabelValues(service, lane).Observe(float64(results))
}

func (m *SearchMetrics) RecordLaneDegraded(service, lane string) {
	m.laneDegradedTotal.WithLabelValues(service, lane).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
