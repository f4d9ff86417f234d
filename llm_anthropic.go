package engram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnthropicLLM generates text completions via the Anthropic Messages API.
// Implements LLMProvider.
type AnthropicLLM struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// AnthropicOption configures an AnthropicLLM.
type AnthropicOption func(*AnthropicLLM)

// WithAnthropicModel sets the model (default: claude-3-5-haiku-latest).
func WithAnthropicModel(model string) AnthropicOption {
	return func(l *AnthropicLLM) { l.model = model }
}

// WithAnthropicMaxTokens sets the response token budget (default: 512).
func WithAnthropicMaxTokens(n int) AnthropicOption {
	return func(l *AnthropicLLM) { l.maxTokens = n }
}

// WithAnthropicBaseURL sets the API base URL (default: https://api.anthropic.com).
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(l *AnthropicLLM) { l.baseURL = url }
}

// NewAnthropicLLM creates an LLM provider backed by Anthropic's API.
func NewAnthropicLLM(apiKey string, opts ...AnthropicOption) *AnthropicLLM {
	l := &AnthropicLLM{
		apiKey:    apiKey,
		model:     "claude-3-5-haiku-latest",
		maxTokens: 512,
		baseURL:   "https://api.anthropic.com",
		client:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Generate requests a completion via POST /v1/messages, authenticated with
// the x-api-key header and the required anthropic-version header.
func (l *AnthropicLLM) Generate(ctx context.Context, prompt, system string) (string, error) {
	if l.apiKey == "" {
		return "", fmt.Errorf("no API key")
	}

	url := l.baseURL + "/v1/messages"

	reqBody := anthropicRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic generate %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var msgResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return msgResp.Content[0].Text, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}
