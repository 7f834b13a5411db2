package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const GeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API. A client is built per call since the key belongs to the request.
type Gemini struct {
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini backend; an empty baseURL uses the public endpoint
func NewGemini(baseURL string, httpClient *http.Client) *Gemini {
	return &Gemini{baseURL: baseURL, httpClient: httpClient}
}

// Complete issues one GenerateContent call
func (g *Gemini) Complete(ctx context.Context, model string, req Request) (string, error) {
	if req.Credential == "" {
		return "", &ConfigurationError{Reason: "no API key configured"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      req.Credential,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return "", &ConfigurationError{Reason: fmt.Sprintf("failed to create Gemini client: %v", err)}
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Options.Temperature)),
		TopP:              genai.Ptr(float32(req.Options.TopP)),
		MaxOutputTokens:   int32(req.Options.MaxTokens),
	}
	if req.Options.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.Code, apiErr.Message)
		}
		return "", &TransportError{Err: err}
	}

	return resp.Text(), nil
}
