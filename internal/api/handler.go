package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/litmatrix/internal/artifacts"
	"github.com/zombar/litmatrix/internal/database"
	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/session"
	"github.com/zombar/litmatrix/internal/tracing"
	"github.com/zombar/litmatrix/pkg/logging"
)

// maxBodyBytes bounds request bodies; evidence may carry base64 payloads
const maxBodyBytes = 16 << 20

// ExportQueue enqueues asynchronous exports
type ExportQueue interface {
	EnqueueRenderExport(ctx context.Context, jobID, sessionID, format string) (string, error)
}

// JobStore persists export job records
type JobStore interface {
	CreateExportJob(job *models.ExportJob) error
	GetExportJob(id string) (*models.ExportJob, error)
	FailExportJob(id, reason string) error
	DeleteExportJobsForSession(sessionID string) ([]models.ExportJob, error)
}

// Options configures optional parts of the API
type Options struct {
	// Queue, Jobs and Storage together enable asynchronous exports
	Queue       ExportQueue
	Jobs        JobStore
	Storage     artifacts.Storage
	CORSOrigins []string
}

// Handler handles HTTP requests
type Handler struct {
	sessions *session.Manager
	jobs     JobStore
	storage  artifacts.Storage
	queue    ExportQueue
	mux      *http.ServeMux
	logger   *slog.Logger
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(sessions *session.Manager, opts Options) http.Handler {
	h := newHandler(sessions, opts)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
	})

	return c.Handler(h.mux)
}

func newHandler(sessions *session.Manager, opts Options) *Handler {
	h := &Handler{
		sessions: sessions,
		jobs:     opts.Jobs,
		storage:  opts.Storage,
		queue:    opts.Queue,
		mux:      http.NewServeMux(),
		logger:   slog.Default().With("component", "api"),
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("GET /api/sessions/{sid}/draft", h.handleGetDraft)
	h.mux.HandleFunc("PUT /api/sessions/{sid}/draft", h.handleSaveDraft)
	h.mux.HandleFunc("POST /api/sessions/{sid}/evidence", h.handleAddEvidence)
	h.mux.HandleFunc("PATCH /api/sessions/{sid}/evidence/{eid}", h.handleUpdateEvidence)
	h.mux.HandleFunc("DELETE /api/sessions/{sid}/evidence/{eid}", h.handleRemoveEvidence)

	h.mux.HandleFunc("POST /api/sessions/{sid}/analyze", h.handleAnalyze)
	h.mux.HandleFunc("GET /api/sessions/{sid}/report", h.handleGetReport)
	h.mux.HandleFunc("DELETE /api/sessions/{sid}/report", h.handleClearReport)
	h.mux.HandleFunc("GET /api/sessions/{sid}/report.md", h.handleMarkdownReport)

	h.mux.HandleFunc("POST /api/sessions/{sid}/exports", h.handleExport)
	h.mux.HandleFunc("GET /api/exports/{id}", h.handleExportStatus)
	h.mux.HandleFunc("GET /api/exports/{id}/file", h.handleExportFile)

	h.mux.HandleFunc("GET /api/sessions/{sid}/settings", h.handleGetSettings)
	h.mux.HandleFunc("PUT /api/sessions/{sid}/settings", h.handleUpdateSettings)
	h.mux.HandleFunc("POST /api/sessions/{sid}/bragging", h.handleBragging)
	h.mux.HandleFunc("DELETE /api/sessions/{sid}", h.handleResetSession)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

// controller resolves the session named in the path and tags the request span with it
func (h *Handler) controller(r *http.Request) *session.Controller {
	sid := r.PathValue("sid")
	tracing.SetSpanAttributes(r.Context(), attribute.String("session.id", sid))
	return h.sessions.Get(sid)
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.controller(r).Draft(), http.StatusOK)
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var d models.Draft
	if !decodeBody(w, r, &d) {
		return
	}
	c := h.controller(r)
	c.SaveDraft(d)
	respondJSON(w, c.Draft(), http.StatusOK)
}

func (h *Handler) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var item models.EvidenceItem
	if !decodeBody(w, r, &item) {
		return
	}
	if item.Name == "" {
		respondError(w, "Evidence name is required", session.KindValidation, http.StatusBadRequest)
		return
	}
	respondJSON(w, h.controller(r).AddEvidence(item), http.StatusCreated)
}

func (h *Handler) handleUpdateEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProvedFact  string             `json:"provedFact"`
		Reliability models.Reliability `json:"reliability"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.controller(r).UpdateEvidence(r.PathValue("eid"), req.ProvedFact, req.Reliability)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, item, http.StatusOK)
}

func (h *Handler) handleRemoveEvidence(w http.ResponseWriter, r *http.Request) {
	if err := h.controller(r).RemoveEvidence(r.PathValue("eid")); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnalyze runs one analysis synchronously and returns the new report
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var in models.CaseInput
	if !decodeBody(w, r, &in) {
		return
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("case.info_length", len(in.CaseInfo)),
		attribute.Int("case.evidence_count", len(in.Evidence)),
	)

	result, err := h.controller(r).SubmitAnalysis(r.Context(), in)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	result := h.controller(r).Report()
	if result == nil {
		h.respondFailure(w, r, export.ErrNoReport)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleClearReport(w http.ResponseWriter, r *http.Request) {
	h.controller(r).ClearReport()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkdownReport(w http.ResponseWriter, r *http.Request) {
	md, err := h.controller(r).MarkdownReport()
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, md)
}

// handleExport renders the report as png or pdf: inline when no queue is configured, otherwise as a job
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Format != export.FormatPNG && req.Format != export.FormatPDF {
		h.respondFailure(w, r, fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, req.Format))
		return
	}

	c := h.controller(r)
	tracing.SetSpanAttributes(r.Context(), attribute.String("export.format", req.Format))

	if h.queue == nil || h.jobs == nil || h.storage == nil {
		file, err := c.Export(r.Context(), req.Format)
		if err != nil {
			h.respondFailure(w, r, err)
			return
		}
		respondFile(w, file.Name, file.ContentType, file.Data)
		return
	}

	if c.Report() == nil {
		h.respondFailure(w, r, export.ErrNoReport)
		return
	}

	now := time.Now().Unix()
	job := &models.ExportJob{
		ID:        uuid.NewString(),
		SessionID: c.ID(),
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.jobs.CreateExportJob(job); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	taskID, err := h.queue.EnqueueRenderExport(r.Context(), job.ID, c.ID(), req.Format)
	if err != nil {
		if ferr := h.jobs.FailExportJob(job.ID, "Export could not be queued."); ferr != nil {
			h.logger.ErrorContext(r.Context(), "failed to record export failure", "job_id", job.ID, "error", ferr)
		}
		logging.HTTPErrorLogger(h.logger, http.StatusServiceUnavailable, err, r)
		respondError(w, "Export could not be queued, please try again.", session.KindExport, http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, map[string]any{
		"job_id":  job.ID,
		"task_id": taskID,
		"status":  job.Status,
	}, http.StatusAccepted)
}

func (h *Handler) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, job, http.StatusOK)
}

func (h *Handler) handleExportFile(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != models.ExportStatusCompleted {
		respondError(w, fmt.Sprintf("Export is %s", job.Status), "not_ready", http.StatusConflict)
		return
	}

	rc, err := h.storage.Download(r.Context(), job.StoragePath)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			respondError(w, "Export file has expired", session.KindNotFound, http.StatusNotFound)
			return
		}
		h.respondFailure(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", artifacts.ContentType(job.FileName))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "export download interrupted", "job_id", job.ID, "error", err)
	}
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request) (*models.ExportJob, bool) {
	if h.jobs == nil {
		respondError(w, "Asynchronous exports are not enabled", session.KindNotFound, http.StatusNotFound)
		return nil, false
	}
	job, err := h.jobs.GetExportJob(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, "Export job not found", session.KindNotFound, http.StatusNotFound)
			return nil, false
		}
		h.respondFailure(w, r, err)
		return nil, false
	}
	return job, true
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.controller(r).Settings(), http.StatusOK)
}

// handleUpdateSettings applies only the fields present in the body
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey     *string `json:"api_key"`
		ExpertMode *bool   `json:"expert_mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	c := h.controller(r)
	if req.APIKey != nil {
		c.SetCredential(*req.APIKey)
	}
	if req.ExpertMode != nil {
		c.SetExpertMode(*req.ExpertMode)
	}
	respondJSON(w, c.Settings(), http.StatusOK)
}

func (h *Handler) handleBragging(w http.ResponseWriter, r *http.Request) {
	var req models.BraggingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lines, err := h.controller(r).GenerateBragging(r.Context(), req)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, map[string]any{"lines": lines}, http.StatusOK)
}

// handleResetSession wipes the session and any export artifacts it produced
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	tracing.SetSpanAttributes(r.Context(), attribute.String("session.id", sid))
	h.sessions.Reset(sid)

	if h.jobs != nil {
		jobs, err := h.jobs.DeleteExportJobsForSession(sid)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to delete export jobs", "session_id", sid, "error", err)
		}
		for _, job := range jobs {
			if job.StoragePath == "" || h.storage == nil {
				continue
			}
			if err := h.storage.Delete(r.Context(), job.StoragePath); err != nil {
				h.logger.WarnContext(r.Context(), "failed to delete export artifact", "job_id", job.ID, "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps an error kind onto an HTTP status
func statusFor(kind string) int {
	switch kind {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindConfiguration:
		return http.StatusPreconditionFailed
	case session.KindAuth:
		return http.StatusUnauthorized
	case session.KindBalance:
		return http.StatusPaymentRequired
	case session.KindRateLimit:
		return http.StatusTooManyRequests
	case session.KindUpstream, session.KindTransport, session.KindParse:
		return http.StatusBadGateway
	case session.KindSuperseded:
		return http.StatusConflict
	case session.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondFailure reports err with its user facing text and kind
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind, text := session.UserMessage(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.HTTPErrorLogger(h.logger, status, err, r)
	}
	respondError(w, text, kind, status)
}

// decodeBody reads a JSON body into v, answering 400 itself on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", session.KindValidation, http.StatusBadRequest)
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message, kind string, statusCode int) {
	respondJSON(w, map[string]string{
		"error": message,
		"kind":  kind,
	}, statusCode)
}

// respondFile sends a downloadable file
func respondFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
