package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "grsindex"

// PrometheusRecorder records pipeline metrics into its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	records      prometheus.Counter
	observations prometheus.Counter
	lastSuccess  prometheus.Gauge
}

// NewPrometheusRecorder builds a recorder with a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Pipeline operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Pipeline operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_indexed_total",
			Help:      "Entity records written to the document store.",
		}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "observations_indexed_total",
			Help:      "Dated observations carried by indexed records.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(r.operations, r.durations, r.records, r.observations, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, outcome(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddIndexed counts records and their observations written to the store.
func (r *PrometheusRecorder) AddIndexed(records, observations int) {
	r.records.Add(float64(records))
	r.observations.Add(float64(observations))
}

// MarkSuccess sets the last-success gauge.
func (r *PrometheusRecorder) MarkSuccess(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
