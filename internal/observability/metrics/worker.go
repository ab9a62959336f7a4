package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	batchTotal     *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	batchInFlight  prometheus.Gauge
	recordsIndexed *prometheus.CounterVec
	batchSize      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "indexer",
			Name:      "batch_total",
			Help:      "Total processed index batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gsearch",
			Subsystem: "indexer",
			Name:      "batch_duration_seconds",
			Help:      "Index batch processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsearch",
			Subsystem: "indexer",
			Name:      "batch_in_flight",
			Help:      "Number of in-flight index batches.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	recordsIndexed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsearch",
			Subsystem: "indexer",
			Name:      "records_indexed_total",
			Help:      "Total records embedded and written to the vector store.",
		},
		[]string{"service"},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gsearch",
			Subsystem: "indexer",
			Name:      "batch_size",
			Help:      "Distribution of record counts per index batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(batchTotal, batchDuration, batchInFlight, recordsIndexed, batchSize)

	return &WorkerMetrics{
		registry:       registry,
		batchTotal:     batchTotal,
		batchDuration:  batchDuration,
		batchInFlight:  batchInFlight,
		recordsIndexed: recordsIndexed,
		batchSize:      batchSize,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch(service string, size int) {
	m.batchInFlight.Inc()
	m.batchSize.WithLabelValues(service).Observe(float64(size))
}

func (m *WorkerMetrics) FinishBatch(service string, indexed int, duration time.Duration, err error) {
	m.batchInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.batchTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if indexed > 0 {
		m.recordsIndexed.WithLabelValues(service).Add(float64(indexed))
	}
}
