package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	OllamaBaseURL = "http://localhost:11434"
	OllamaModel   = "gpt-oss:20b"
)

// Ollama calls a self-hosted Ollama server through its chat endpoint
type Ollama struct {
	client *api.Client
}

// NewOllama creates an Ollama backend
func NewOllama(ollamaURL string, httpClient *http.Client) (*Ollama, error) {
	if ollamaURL == "" {
		ollamaURL = OllamaBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid Ollama URL: %v", err)}
	}

	return &Ollama{client: api.NewClient(baseURL, httpClient)}, nil
}

// Complete runs one non-streaming chat; the credential is ignored
func (o *Ollama) Complete(ctx context.Context, model string, req Request) (string, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Options.Temperature,
			"top_p":       req.Options.TopP,
		},
	}
	if req.Options.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.Options.MaxTokens
	}
	if req.Options.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var response strings.Builder
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			msg := statusErr.ErrorMessage
			if msg == "" {
				msg = statusErr.Status
			}
			return "", classifyStatus(statusErr.StatusCode, msg)
		}
		return "", &TransportError{Err: err}
	}

	return strings.TrimSpace(response.String()), nil
}
