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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	searchResultCount   *prometheus.HistogramVec
	searchNoResultTotal *prometheus.CounterVec
	fallbackTotal       *prometheus.CounterVec
	rerankDegradedTotal *prometheus.CounterVec
	degradedModeTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gsearch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsearch",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful search requests by strategy.",
		},
		[]string{"service", "endpoint", "strategy"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	searchResultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "result_count",
			Help:      "Distribution of ranked results per successful search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service", "endpoint"},
	)
	searchNoResultTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "no_result_total",
			Help:      "Total searches that matched nothing after filtering.",
		},
		[]string{"service", "endpoint"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "answer_fallback_total",
			Help:      "Total answers replaced by the refusal response.",
		},
		[]string{"service", "endpoint"},
	)
	rerankDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "rerank_degraded_total",
			Help:      "Total searches that kept fusion order after judge failure.",
		},
		[]string{"service", "endpoint"},
	)
	degradedModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "search",
			Name:      "degraded_mode_total",
			Help:      "Total hybrid searches that lost a retrieval mode.",
		},
		[]string{"service", "endpoint", "mode"},
	)
	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchDuration,
		searchResultCount,
		searchNoResultTotal,
		fallbackTotal,
		rerankDegradedTotal,
		degradedModeTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchDuration:      searchDuration,
		searchResultCount:   searchResultCount,
		searchNoResultTotal: searchNoResultTotal,
		fallbackTotal:       fallbackTotal,
		rerankDegradedTotal: rerankDegradedTotal,
		degradedModeTotal:   degradedModeTotal,
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
	case strings.HasPrefix(path, "/v1/records/"):
		return "/v1/records/{record_id}"
	default:
		return path
	}
}

// SearchObservation summarizes one completed pipeline run for recording.
type SearchObservation struct {
	Strategy          string
	ResultCount       int
	Duration          time.Duration
	FallbackTriggered bool
	RerankDegraded    bool
	DegradedModes     []string
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint string, obs SearchObservation) {
	strategy := obs.Strategy
	if strategy == "" {
		strategy = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, endpoint, strategy).Inc()
	m.searchDuration.WithLabelValues(service, endpoint).Observe(obs.Duration.Seconds())
	m.searchResultCount.WithLabelValues(service, endpoint).Observe(float64(obs.ResultCount))

	if obs.ResultCount == 0 {
		m.searchNoResultTotal.WithLabelValues(service, endpoint).Inc()
	}
	if obs.FallbackTriggered {
		m.fallbackTotal.WithLabelValues(service, endpoint).Inc()
	}
	if obs.RerankDegraded {
		m.rerankDegradedTotal.WithLabelValues(service, endpoint).Inc()
	}
	for _, mode := range obs.DegradedModes {
		m.degradedModeTotal.WithLabelValues(service, endpoint, mode).Inc()
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
