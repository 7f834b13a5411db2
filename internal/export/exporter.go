package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/litmatrix/internal/metrics"
	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/tracing"
)

// ErrNoReport is returned when there is nothing to export
var ErrNoReport = errors.New("no report to export")

// Exporter renders, rasterizes and encodes reports
type Exporter struct {
	rasterizer Rasterizer
	metrics    *metrics.BusinessMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewExporter builds an exporter; m may be nil
func NewExporter(r Rasterizer, m *metrics.BusinessMetrics) *Exporter {
	return &Exporter{
		rasterizer: r,
		metrics:    m,
		logger:     slog.Default().With("component", "export"),
		now:        time.Now,
	}
}

// Export produces a png or pdf file for the report
func (e *Exporter) Export(ctx context.Context, r *models.AnalysisResult, format string) (*File, error) {
	if r == nil {
		return nil, ErrNoReport
	}
	if format != FormatPNG && format != FormatPDF {
		return nil, &ExportError{Op: "encode", Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)}
	}

	ctx, span := tracing.StartSpan(ctx, "report.export", attribute.String("export.format", format))
	defer span.End()

	start := time.Now()
	file, err := e.export(ctx, r, format)

	status := "success"
	if err != nil {
		status = "failed"
		tracing.RecordError(ctx, err)
		e.logger.WarnContext(ctx, "export failed", "format", format, "error", err)
	}
	if e.metrics != nil {
		e.metrics.ExportsTotal.WithLabelValues(format, status).Inc()
		e.metrics.ObserveDurationWithExemplar(ctx, e.metrics.ExportDuration, time.Since(start), format)
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("export.bytes", len(file.Data)))
	return file, nil
}

func (e *Exporter) export(ctx context.Context, r *models.AnalysisResult, format string) (*File, error) {
	now := e.now()

	region, err := RenderRegion(r, now)
	if err != nil {
		return nil, err
	}

	bitmap, err := e.rasterizer.Rasterize(ctx, region)
	if err != nil {
		var exportErr *ExportError
		if !errors.As(err, &exportErr) {
			err = &ExportError{Op: "rasterize", Err: err}
		}
		return nil, err
	}

	file, err := Encode(format, bitmap, now)
	if err != nil {
		return nil, err
	}
	return &file, nil
}
