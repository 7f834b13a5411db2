package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/zombar/litmatrix/internal/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	reg.MustRegister(collectors.NewGoCollector())

	m := metrics.NewBusinessMetrics(serviceName)
	m.AnalysesTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	body := w.Body.String()
	for _, metric := range []string{
		"go_goroutines",
		"go_threads",
		"litmatrix_analyses_total",
	} {
		assert.Contains(t, body, metric)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("LITMATRIX_TEST_VALUE", "set")
	assert.Equal(t, "set", getEnv("LITMATRIX_TEST_VALUE", "default"))
	assert.Equal(t, "default", getEnv("LITMATRIX_TEST_UNSET", "default"))
}
