package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

// BusinessMetrics tracks the report pipeline
type BusinessMetrics struct {
	AnalysesTotal     *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	InferenceErrors   *prometheus.CounterVec
	ExportsTotal      *prometheus.CounterVec
	ExportDuration    *prometheus.HistogramVec
	BraggingTotal     *prometheus.CounterVec
}

// NewBusinessMetrics registers the pipeline metrics under the given namespace
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return &BusinessMetrics{
		AnalysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of analysis submissions by outcome",
		}, []string{"status"}),
		InferenceDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of upstream inference calls",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider", "status"}),
		InferenceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Inference failures by error kind",
		}, []string{"provider", "kind"}),
		ExportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Report exports by format and outcome",
		}, []string{"format", "status"}),
		ExportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent rasterizing and encoding exports",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		BraggingTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bragging_total",
			Help:      "Bragging generations by style and outcome",
		}, []string{"style", "status"}),
	}
}

// ObserveDurationWithExemplar records a duration, attaching the trace id as an exemplar when one is present
func (m *BusinessMetrics) ObserveDurationWithExemplar(ctx context.Context, h *prometheus.HistogramVec, d time.Duration, labels ...string) {
	observer := h.WithLabelValues(labels...)
	sc := trace.SpanContextFromContext(ctx)
	if eo, ok := observer.(prometheus.ExemplarObserver); ok && sc.HasTraceID() {
		eo.ObserveWithExemplar(d.Seconds(), prometheus.Labels{"trace_id": sc.TraceID().String()})
		return
	}
	observer.Observe(d.Seconds())
}

// DatabaseMetrics exposes connection pool statistics
type DatabaseMetrics struct {
	OpenConnections prometheus.Gauge
	InUse           prometheus.Gauge
	Idle            prometheus.Gauge
	WaitCount       prometheus.Gauge
}

// NewDatabaseMetrics registers pool gauges under the given namespace
func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		OpenConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "open_connections",
			Help: "Number of established connections",
		}),
		InUse: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "in_use_connections",
			Help: "Number of connections currently in use",
		}),
		Idle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "idle_connections",
			Help: "Number of idle connections",
		}),
		WaitCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "wait_count",
			Help: "Total number of connections waited for",
		}),
	}
}

// UpdateDBStats copies the current pool statistics into the gauges
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	m.OpenConnections.Set(float64(stats.OpenConnections))
	m.InUse.Set(float64(stats.InUse))
	m.Idle.Set(float64(stats.Idle))
	m.WaitCount.Set(float64(stats.WaitCount))
}
