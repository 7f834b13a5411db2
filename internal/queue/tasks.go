package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/litmatrix/internal/artifacts"
	"github.com/zombar/litmatrix/internal/session"
	"github.com/zombar/litmatrix/internal/tracing"
)

// JobStore records the outcome of export jobs
type JobStore interface {
	CompleteExportJob(id, storagePath, fileName string) error
	FailExportJob(id, reason string) error
}

// Processor renders queued exports
type Processor struct {
	sessions *session.Manager
	jobs     JobStore
	storage  artifacts.Storage
	logger   *slog.Logger
}

// NewProcessor creates a processor over the shared session manager
func NewProcessor(sessions *session.Manager, jobs JobStore, storage artifacts.Storage) *Processor {
	return &Processor{
		sessions: sessions,
		jobs:     jobs,
		storage:  storage,
		logger:   slog.Default().With("component", "export_worker"),
	}
}

// HandleRenderExport renders the session's current report, stores the file and completes the job
func (p *Processor) HandleRenderExport(ctx context.Context, t *asynq.Task) error {
	var payload RenderExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, payload.EnqueuedAt))
	}

	if payload.TraceID != "" && payload.SpanID != "" {
		ctx = tracing.ContextWithRemoteParent(ctx, payload.TraceID, payload.SpanID)
	}
	ctx, span := tracing.StartSpan(ctx, "asynq.task.render_export",
		attribute.String("task.type", TypeRenderExport),
		attribute.String("job.id", payload.JobID),
		attribute.String("session.id", payload.SessionID),
		attribute.String("export.format", payload.Format),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
	)
	defer span.End()

	logger := p.logger.With("job_id", payload.JobID, "session_id", payload.SessionID, "format", payload.Format)
	logger.InfoContext(ctx, "rendering export", "queue_wait_seconds", queueWaitTime.Seconds())

	file, err := p.sessions.Get(payload.SessionID).Export(ctx, payload.Format)
	if err != nil {
		_, text := session.UserMessage(err)
		return p.fail(ctx, logger, payload.JobID, text, err)
	}

	path, err := p.storage.Upload(ctx, payload.JobID, file.Name, bytes.NewReader(file.Data))
	if err != nil {
		return p.fail(ctx, logger, payload.JobID, "Export failed, your report is unaffected: the file could not be stored.", err)
	}

	if err := p.jobs.CompleteExportJob(payload.JobID, path, file.Name); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to complete export job: %v: %w", err, asynq.SkipRetry)
	}

	logger.InfoContext(ctx, "export completed", "file_name", file.Name, "bytes", len(file.Data))
	return nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, jobID, reason string, cause error) error {
	tracing.RecordError(ctx, cause)
	logger.WarnContext(ctx, "export failed", "error", cause)

	if err := p.jobs.FailExportJob(jobID, reason); err != nil {
		logger.ErrorContext(ctx, "failed to record export failure", "error", err)
	}
	return fmt.Errorf("export job %s: %v: %w", jobID, cause, asynq.SkipRetry)
}
