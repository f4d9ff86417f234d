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

// LocalLLM generates text completions via a local HTTP model server shaped
// like Ollama's generate endpoint. Implements LLMProvider. No API key
// required.
type LocalLLM struct {
	host   string
	model  string
	client *http.Client
}

// LocalLLMOption configures a LocalLLM.
type LocalLLMOption func(*LocalLLM)

// WithLocalLLMHost sets the server URL (default: http://localhost:11434).
func WithLocalLLMHost(host string) LocalLLMOption {
	return func(l *LocalLLM) { l.host = host }
}

// NewLocalLLM creates an LLM provider for a local generate-capable server.
func NewLocalLLM(model string, opts ...LocalLLMOption) *LocalLLM {
	l := &LocalLLM{
		host:   "http://localhost:11434",
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Generate requests a completion via POST /api/generate:
// {model, prompt, system, stream:false} -> {response}.
func (l *LocalLLM) Generate(ctx context.Context, prompt, system string) (string, error) {
	url := l.host + "/api/generate"

	reqBody := localGenerateRequest{
		Model:  l.model,
		Prompt: prompt,
		System: system,
		Stream: false,
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

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("local generate %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var genResp localGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return genResp.Response, nil
}

type localGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type localGenerateResponse struct {
	Response string `json:"response"`
}
