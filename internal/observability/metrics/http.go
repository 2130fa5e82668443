package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics carries the API server's request metrics plus the
// analysis pipeline observations. Each process owns its registry so api and
// worker never fight over collector registration.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	analysesTotal      *prometheus.CounterVec
	analysisDuration   *prometheus.HistogramVec
	unitResultsTotal   *prometheus.CounterVec
	cacheLookupsTotal  *prometheus.CounterVec
	retrievedDocuments *prometheus.HistogramVec
	retrievalMode      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	analysesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total analysis runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spa",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end analysis duration in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"service"},
	)
	unitResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "analysis",
			Name:      "unit_results_total",
			Help:      "Total unit outcomes by unit name and status.",
		},
		[]string{"service", "unit", "status"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "analysis",
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	retrievedDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spa",
			Subsystem: "retrieval",
			Name:      "documents_per_analysis",
			Help:      "Distribution of retrieved context documents per analysis.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	retrievalMode := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spa",
			Subsystem: "retrieval",
			Name:      "backend_mode",
			Help:      "Active retrieval backend mode (1 for the selected mode).",
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		analysesTotal,
		analysisDuration,
		unitResultsTotal,
		cacheLookupsTotal,
		retrievedDocuments,
		retrievalMode,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		analysesTotal:      analysesTotal,
		analysisDuration:   analysisDuration,
		unitResultsTotal:   unitResultsTotal,
		cacheLookupsTotal:  cacheLookupsTotal,
		retrievedDocuments: retrievedDocuments,
		retrievalMode:      retrievalMode,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordAnalysis observes one finished run. Degraded runs count separately so
// a cluster running on fallback reports is visible on a dashboard.
func (m *HTTPServerMetrics) RecordAnalysis(service string, degraded bool, duration time.Duration, documentsRetrieved int) {
	outcome := "complete"
	if degraded {
		outcome = "degraded"
	}
	m.analysesTotal.WithLabelValues(service, outcome).Inc()
	m.analysisDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.retrievedDocuments.WithLabelValues(service).Observe(float64(documentsRetrieved))
}

func (m *HTTPServerMetrics) RecordUnitResult(service, unit string, complete bool) {
	status := "complete"
	if !complete {
		status = "failed"
	}
	m.unitResultsTotal.WithLabelValues(service, unit, status).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(service, result).Inc()
}

// SetRetrievalMode pins the selected backend mode gauge at startup.
func (m *HTTPServerMetrics) SetRetrievalMode(service, mode string) {
	for _, known := range []string{"sharded", "filtered", "null"} {
		value := 0.0
		if known == mode {
			value = 1.0
		}
		m.retrievalMode.WithLabelValues(service, known).Set(value)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
