package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	DeepSeekModel   = "deepseek-chat"
)

// DeepSeek speaks the OpenAI compatible chat completions protocol
type DeepSeek struct {
	baseURL    string
	httpClient *http.Client
}

// NewDeepSeek creates a chat completions backend rooted at baseURL
func NewDeepSeek(baseURL string, httpClient *http.Client) *DeepSeek {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DeepSeek{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete posts one chat completion and returns choices[0].message.content
func (d *DeepSeek) Complete(ctx context.Context, model string, req Request) (string, error) {
	if req.Credential == "" {
		return "", &ConfigurationError{Reason: "no API key configured"}
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
		Stream:      false,
	}
	if req.Options.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", classifyStatus(resp.StatusCode, upstreamMessage(raw, resp.Status))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("undecodable response envelope: %v", err)}
	}
	if len(decoded.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode, Message: "response contained no choices"}
	}

	return decoded.Choices[0].Message.Content, nil
}

// upstreamMessage prefers error.message from a JSON body, then the raw text, then the status line
func upstreamMessage(raw []byte, status string) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return status
}
