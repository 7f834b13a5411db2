package metrics

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

func newRegistry(t *testing.T) {
	t.Helper()
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	t.Cleanup(func() { prometheus.DefaultRegisterer = prev })
}

func TestBusinessMetricsCounters(t *testing.T) {
	newRegistry(t)
	m := NewBusinessMetrics("litmatrix_test")

	m.AnalysesTotal.WithLabelValues("success").Inc()
	m.AnalysesTotal.WithLabelValues("success").Inc()
	m.ExportsTotal.WithLabelValues("pdf", "failed").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsTotal.WithLabelValues("pdf", "failed")))
}

func TestObserveDurationWithExemplar(t *testing.T) {
	newRegistry(t)
	m := NewBusinessMetrics("litmatrix_exemplar")

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	m.ObserveDurationWithExemplar(ctx, m.InferenceDuration, 2*time.Second, "deepseek", "success")
	m.ObserveDurationWithExemplar(context.Background(), m.InferenceDuration, time.Second, "deepseek", "success")

	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceDuration))
}

func TestUpdateDBStats(t *testing.T) {
	newRegistry(t)
	m := NewDatabaseMetrics("litmatrix_db")

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	m.UpdateDBStats(db)
	m.UpdateDBStats(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenConnections))
}
