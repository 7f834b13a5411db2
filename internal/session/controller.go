package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/llm"
	"github.com/zombar/litmatrix/internal/metrics"
	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/normalizer"
	"github.com/zombar/litmatrix/internal/prompt"
	"github.com/zombar/litmatrix/internal/report"
	"github.com/zombar/litmatrix/internal/store"
	"github.com/zombar/litmatrix/internal/tracing"
)

var (
	// ErrIncompleteInput means case facts or claims were blank
	ErrIncompleteInput = errors.New("case facts and claims are required")
	// ErrSuperseded means a newer submission replaced this one before it finished
	ErrSuperseded = errors.New("analysis superseded by a newer submission")
	// ErrEvidenceNotFound means no evidence item has the given id
	ErrEvidenceNotFound = errors.New("evidence not found")
	// ErrInvalidStyle means the bragging style is unknown
	ErrInvalidStyle = errors.New("unknown bragging style")
)

// Inferer performs one model call
type Inferer interface {
	Infer(ctx context.Context, req llm.Request) (string, error)
	RequiresCredential() bool
}

// Exporter turns a report into a downloadable file
type Exporter interface {
	Export(ctx context.Context, r *models.AnalysisResult, format string) (*export.File, error)
}

// Deps are shared by every controller of a manager
type Deps struct {
	Inferer     Inferer
	Exporter    Exporter
	EmbeddedKey string
	Metrics     *metrics.BusinessMetrics
}

// Controller owns the state of one session: draft, settings and the current report
type Controller struct {
	// mu serializes draft writes and reset
	mu sync.Mutex

	id     string
	deps   Deps
	store  *store.Store
	report *report.State
	logger *slog.Logger
	now    func() time.Time
}

// NewController loads the session's persisted state from kv
func NewController(id string, kv store.KV, deps Deps) *Controller {
	s := store.New(kv, id)
	return &Controller{
		id:     id,
		deps:   deps,
		store:  s,
		report: report.New(s),
		logger: slog.Default().With("component", "session", "session_id", id),
		now:    time.Now,
	}
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.id
}

// Draft returns the saved draft
func (c *Controller) Draft() models.Draft {
	return c.store.Draft()
}

// SaveDraft replaces the saved draft
func (c *Controller) SaveDraft(d models.Draft) {
	d.Evidence = withEvidenceIDs(d.Evidence)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SaveDraft(d)
}

// withEvidenceIDs copies items, giving a fresh id to any item whose id is empty or repeated
func withEvidenceIDs(items []models.EvidenceItem) []models.EvidenceItem {
	out := make([]models.EvidenceItem, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.ID == "" || seen[item.ID] {
			item.ID = uuid.NewString()
		}
		seen[item.ID] = true
		item.Reliability = models.ParseReliability(string(item.Reliability))
		out[i] = item
	}
	return out
}

// AddEvidence attaches an item to the draft, assigning it a fresh id
func (c *Controller) AddEvidence(item models.EvidenceItem) models.EvidenceItem {
	item.ID = uuid.NewString()
	item.Reliability = models.ParseReliability(string(item.Reliability))

	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.store.Draft()
	d.Evidence = append(d.Evidence, item)
	c.store.SaveDraft(d)
	return item
}

// UpdateEvidence edits the annotation of an attached item
func (c *Controller) UpdateEvidence(id, provedFact string, reliability models.Reliability) (models.EvidenceItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.store.Draft()
	for i := range d.Evidence {
		if d.Evidence[i].ID != id {
			continue
		}
		d.Evidence[i].ProvedFact = provedFact
		if reliability != "" {
			d.Evidence[i].Reliability = models.ParseReliability(string(reliability))
		}
		c.store.SaveDraft(d)
		return d.Evidence[i], nil
	}
	return models.EvidenceItem{}, fmt.Errorf("evidence %s: %w", id, ErrEvidenceNotFound)
}

// RemoveEvidence detaches an item from the draft
func (c *Controller) RemoveEvidence(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.store.Draft()
	for i := range d.Evidence {
		if d.Evidence[i].ID == id {
			d.Evidence = append(d.Evidence[:i], d.Evidence[i+1:]...)
			c.store.SaveDraft(d)
			return nil
		}
	}
	return fmt.Errorf("evidence %s: %w", id, ErrEvidenceNotFound)
}

// credential resolves the key for the next call, or "" for backends that need none
func (c *Controller) credential() (string, error) {
	if !c.deps.Inferer.RequiresCredential() {
		return "", nil
	}
	return llm.ResolveCredential(c.store.Credential(), c.deps.EmbeddedKey)
}

// SubmitAnalysis runs the pipeline once and installs the result as the current report.
// Evidence omitted from in is taken from the saved draft. On any failure the current report is left as it was.
func (c *Controller) SubmitAnalysis(ctx context.Context, in models.CaseInput) (*models.AnalysisResult, error) {
	ctx, span := tracing.StartSpan(ctx, "session.submit_analysis",
		attribute.String("session.id", c.id),
		attribute.Int("case.evidence_count", len(in.Evidence)),
	)
	defer span.End()

	result, err := c.submit(ctx, in)

	status := "success"
	if err != nil {
		status, _ = UserMessage(err)
		tracing.RecordError(ctx, err)
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.AnalysesTotal.WithLabelValues(status).Inc()
	}
	return result, err
}

func (c *Controller) submit(ctx context.Context, in models.CaseInput) (*models.AnalysisResult, error) {
	key, err := c.credential()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.CaseInfo) == "" || strings.TrimSpace(in.Claims) == "" {
		return nil, ErrIncompleteInput
	}

	c.mu.Lock()
	if in.Evidence == nil {
		in.Evidence = c.store.Draft().Evidence
	}
	in.Evidence = withEvidenceIDs(in.Evidence)
	c.store.SaveDraft(models.Draft{CaseInfo: in.CaseInfo, Claims: in.Claims, Evidence: in.Evidence})
	ticket := c.report.Begin()
	c.mu.Unlock()

	p := prompt.BuildAnalysis(in)

	raw, err := c.deps.Inferer.Infer(ctx, llm.Request{
		System:     p.System,
		User:       p.User,
		Credential: key,
		Options:    llm.AnalysisOptions,
	})
	if err != nil {
		return nil, err
	}

	result, err := normalizer.Normalize(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "discarding malformed analysis", "error", err, "response_chars", len(raw))
		return nil, err
	}

	if !c.report.ReplaceIfLatest(ticket, result) {
		c.logger.InfoContext(ctx, "dropping superseded analysis", "ticket", uint64(ticket))
		return nil, ErrSuperseded
	}

	c.logger.InfoContext(ctx, "analysis completed",
		"evidence", len(result.EvidenceList),
		"risks", len(result.Risks),
		"case_law", len(result.CaseLaw),
	)
	return result, nil
}

// Report returns the current report, or nil
func (c *Controller) Report() *models.AnalysisResult {
	return c.report.Current()
}

// ClearReport forgets the current report
func (c *Controller) ClearReport() {
	c.report.Clear()
}

// MarkdownReport renders the current report as Markdown
func (c *Controller) MarkdownReport() (string, error) {
	r := c.report.Current()
	if r == nil {
		return "", export.ErrNoReport
	}
	return export.Markdown(r, c.now()), nil
}

// Export renders the current report into a png or pdf file
func (c *Controller) Export(ctx context.Context, format string) (*export.File, error) {
	r := c.report.Current()
	if r == nil {
		return nil, export.ErrNoReport
	}
	if c.deps.Exporter == nil {
		return nil, &export.ExportError{Op: "rasterize", Err: errors.New("export is not available on this server")}
	}
	return c.deps.Exporter.Export(ctx, r, format)
}

// GenerateBragging asks the model for a handful of one-liners in the requested style
func (c *Controller) GenerateBragging(ctx context.Context, req models.BraggingRequest) ([]string, error) {
	if req.Style == "" {
		req.Style = models.StyleRandom
	}
	if !req.Style.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStyle, req.Style)
	}

	lines, err := c.bragging(ctx, req)

	status := "success"
	if err != nil {
		status = "failed"
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.BraggingTotal.WithLabelValues(string(req.Style), status).Inc()
	}
	return lines, err
}

func (c *Controller) bragging(ctx context.Context, req models.BraggingRequest) ([]string, error) {
	key, err := c.credential()
	if err != nil {
		return nil, err
	}

	p := prompt.BuildBragging(req)
	raw, err := c.deps.Inferer.Infer(ctx, llm.Request{
		System:     p.System,
		User:       p.User,
		Credential: key,
		Options:    llm.BraggingOptions,
	})
	if err != nil {
		return nil, err
	}
	return normalizer.NormalizeBragging(raw)
}

// SetCredential stores the user's API key; an empty key clears it
func (c *Controller) SetCredential(key string) {
	c.store.SetCredential(strings.TrimSpace(key))
}

// SetExpertMode stores the expert display flag
func (c *Controller) SetExpertMode(on bool) {
	c.store.SetExpertMode(on)
}

// Settings describes the configuration without revealing the key
func (c *Controller) Settings() models.Settings {
	source := llm.ResolveCredentialSource(c.store.Credential(), c.deps.EmbeddedKey)
	if !c.deps.Inferer.RequiresCredential() {
		source = "not_required"
	}
	return models.Settings{
		HasCredential:    source != llm.SourceNone,
		CredentialSource: source,
		ExpertMode:       c.store.ExpertMode(),
	}
}

// ResetSession wipes every persisted entry and the in-memory report
func (c *Controller) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// in-flight submissions must not repopulate a wiped session
	c.report.Begin()
	c.store.ClearAll()
	c.report.Clear()
	c.logger.Info("session reset")
}
