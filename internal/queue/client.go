package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeRenderExport = "litmatrix:render_export"
)

// QueueExports is the asynq queue export tasks are placed on
const QueueExports = "exports"

// RenderExportPayload represents the payload for rendering a session's report to a file
type RenderExportPayload struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// newRenderExportTask builds the task, capturing the trace context of ctx
func newRenderExportTask(ctx context.Context, jobID, sessionID, format string) (*asynq.Task, RenderExportPayload, error) {
	payload := RenderExportPayload{
		JobID:      jobID,
		SessionID:  sessionID,
		Format:     format,
		EnqueuedAt: time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeRenderExport),
			attribute.String("task.id", jobID),
			attribute.String("session.id", sessionID),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, payload, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	return asynq.NewTask(TypeRenderExport, payloadBytes, asynq.TaskID(jobID)), payload, nil
}

// EnqueueRenderExport enqueues an export of the session's current report.
// Exports are never retried automatically; a failed job is reported and the user asks again.
func (c *Client) EnqueueRenderExport(ctx context.Context, jobID, sessionID, format string) (string, error) {
	task, _, err := newRenderExportTask(ctx, jobID, sessionID, format)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue(QueueExports),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue render export task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
