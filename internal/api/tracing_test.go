package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zombar/litmatrix/internal/tracing"
)

// TestAnalyzeTracing tests that an analyze request produces a server span with the pipeline span beneath it
func TestAnalyzeTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	env := setupTestHandler(t, false)
	env.do(t, http.MethodPut, "/api/sessions/traced/settings", `{"api_key":"sk"}`)
	exporter.Reset()

	handler := tracing.HTTPMiddleware("litmatrix")(env.handler.mux)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/traced/analyze", strings.NewReader(loanCase))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()

	var server, submit *tracetest.SpanStub
	for i := range spans {
		switch spans[i].Name {
		case "session.submit_analysis":
			submit = &spans[i]
		default:
			if spans[i].Parent.IsValid() {
				continue
			}
			server = &spans[i]
		}
	}
	require.NotNil(t, server, "server span recorded")
	require.NotNil(t, submit, "pipeline span recorded")

	assert.Equal(t, server.SpanContext.TraceID(), submit.SpanContext.TraceID())
	assert.Equal(t, server.SpanContext.SpanID(), submit.Parent.SpanID())
	assert.Contains(t, server.Attributes, attribute.String("session.id", "traced"))
	assert.Contains(t, submit.Attributes, attribute.String("session.id", "traced"))
}

// TestErrorResponseTracing tests that a failed analysis records the error on its span
func TestErrorResponseTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	env := setupTestHandler(t, false)
	handler := tracing.HTTPMiddleware("litmatrix")(env.handler.mux)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/nokey/analyze", strings.NewReader(loanCase))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	var submit *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "session.submit_analysis" {
			submit = &spans[i]
		}
	}
	require.NotNil(t, submit)
	require.NotEmpty(t, submit.Events, "error recorded on span")
	assert.Equal(t, "exception", submit.Events[0].Name)
}
