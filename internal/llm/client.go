package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/litmatrix/internal/metrics"
	"github.com/zombar/litmatrix/internal/tracing"
)

// Provider names
const (
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
	ProviderGemini   = "gemini"
)

// Options are the sampling parameters for one call
type Options struct {
	Temperature float64
	TopP        float64
	JSON        bool
	MaxTokens   int
}

var (
	// AnalysisOptions are used for the legal analysis call
	AnalysisOptions = Options{Temperature: 0.7, TopP: 0.95, JSON: true, MaxTokens: 4096}
	// BraggingOptions favour variety over precision
	BraggingOptions = Options{Temperature: 1.0, TopP: 0.95, JSON: true, MaxTokens: 1024}
)

// Request is one system/user exchange
type Request struct {
	System     string
	User       string
	Credential string
	Options    Options
}

// Backend performs exactly one upstream call
type Backend interface {
	Complete(ctx context.Context, model string, req Request) (string, error)
}

// Config selects and configures a backend
type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// DefaultTimeout bounds a single upstream call
const DefaultTimeout = 120 * time.Second

// Client sends prompts to the configured provider
type Client struct {
	backend  Backend
	provider string
	model    string
	logger   *slog.Logger
	metrics  *metrics.BusinessMetrics
}

// New builds a client for cfg.Provider
func New(cfg Config, m *metrics.BusinessMetrics) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderDeepSeek
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var backend Backend
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderDeepSeek:
		backend = NewDeepSeek(cfg.BaseURL, httpClient)
		if cfg.Model == "" {
			cfg.Model = DeepSeekModel
		}
	case ProviderOllama:
		backend, err = NewOllama(cfg.BaseURL, httpClient)
		if cfg.Model == "" {
			cfg.Model = OllamaModel
		}
	case ProviderGemini:
		backend = NewGemini(cfg.BaseURL, httpClient)
		if cfg.Model == "" {
			cfg.Model = GeminiModel
		}
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
	if err != nil {
		return nil, err
	}

	return NewWithBackend(cfg.Provider, cfg.Model, backend, m), nil
}

// NewWithBackend wraps an existing backend
func NewWithBackend(provider, model string, backend Backend, m *metrics.BusinessMetrics) *Client {
	return &Client{
		backend:  backend,
		provider: provider,
		model:    model,
		logger:   slog.Default().With("component", "llm", "provider", provider),
		metrics:  m,
	}
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return c.provider
}

// RequiresCredential reports whether calls need an API key
func (c *Client) RequiresCredential() bool {
	return c.provider != ProviderOllama
}

// Infer performs exactly one upstream request and returns the raw text content
func (c *Client) Infer(ctx context.Context, req Request) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.infer",
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_length", len(req.System)+len(req.User)),
	)
	defer span.End()

	c.logger.InfoContext(ctx, "sending inference request",
		"model", c.model,
		"prompt_chars", len(req.User),
		"json", req.Options.JSON,
	)

	start := time.Now()
	content, err := c.backend.Complete(ctx, c.model, req)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.ObserveDurationWithExemplar(ctx, c.metrics.InferenceDuration, duration, c.provider, status)
		if err != nil {
			c.metrics.InferenceErrors.WithLabelValues(c.provider, Kind(err)).Inc()
		}
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.WarnContext(ctx, "inference failed",
			"error", err,
			"kind", Kind(err),
			"duration_ms", duration.Milliseconds(),
		)
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.response_length", len(content)))
	c.logger.InfoContext(ctx, "inference response received",
		"response_chars", len(content),
		"duration_ms", duration.Milliseconds(),
	)
	return content, nil
}
