package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics bundles the API server metrics with the retrieval engine
// observations. One instance backs both the HTTP middleware and the use-case
// metric sinks.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pathResults       *prometheus.HistogramVec
	pathDuration      *prometheus.HistogramVec
	rerankFallbacks   prometheus.Counter
	augmentationTotal prometheus.Counter
	consultTotal      *prometheus.CounterVec
	consultSources    *prometheus.HistogramVec
	consultDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pathResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "retrieval",
			Name:      "path_results",
			Help:      "Distribution of candidate counts per retrieval path.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "path"},
	)
	pathDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "retrieval",
			Name:      "path_duration_seconds",
			Help:      "Retrieval path duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "path"},
	)
	rerankFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medrag",
			Subsystem: "retrieval",
			Name:      "rerank_fallback_total",
			Help:      "Total reranks that fell back to score ordering.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	augmentationTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medrag",
			Subsystem: "consult",
			Name:      "augmentation_total",
			Help:      "Total consults where the confidence gate triggered augmentation.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	consultTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medrag",
			Subsystem: "consult",
			Name:      "requests_total",
			Help:      "Total completed consults by status.",
		},
		[]string{"service", "endpoint", "status"},
	)
	consultSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "consult",
			Name:      "sources",
			Help:      "Distribution of evidence sources per successful consult.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service", "endpoint"},
	)
	consultDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "consult",
			Name:      "duration_seconds",
			Help:      "End-to-end consult duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		pathResults,
		pathDuration,
		rerankFallbacks,
		augmentationTotal,
		consultTotal,
		consultSources,
		consultDuration,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		pathResults:       pathResults,
		pathDuration:      pathDuration,
		rerankFallbacks:   rerankFallbacks,
		augmentationTotal: augmentationTotal,
		consultTotal:      consultTotal,
		consultSources:    consultSources,
		consultDuration:   consultDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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

// EngineSink adapts the server metrics to the use-case metric interfaces.
type EngineSink struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) EngineSink(service string) *EngineSink {
	return &EngineSink{metrics: m, service: service}
}

func (s *EngineSink) ObservePath(path string, results int, duration time.Duration) {
	s.metrics.pathResults.WithLabelValues(s.service, path).Observe(float64(results))
	s.metrics.pathDuration.WithLabelValues(s.service, path).Observe(duration.Seconds())
}

func (s *EngineSink) RerankFallback() {
	s.metrics.rerankFallbacks.Inc()
}

func (s *EngineSink) AugmentationTriggered() {
	s.metrics.augmentationTotal.Inc()
}

func (m *HTTPServerMetrics) RecordConsult(service, endpoint string, sourceCount int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.consultTotal.WithLabelValues(service, endpoint, status).Inc()
	if err == nil {
		m.consultSources.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	}
	m.consultDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
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
