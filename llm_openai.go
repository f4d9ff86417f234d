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

// OpenAILLM generates text completions via OpenAI's chat completions API.
// Implements LLMProvider.
type OpenAILLM struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// OpenAILLMOption configures an OpenAILLM.
type OpenAILLMOption func(*OpenAILLM)

// WithOpenAILLMModel sets the model (default: gpt-4o-mini).
func WithOpenAILLMModel(model string) OpenAILLMOption {
	return func(l *OpenAILLM) { l.model = model }
}

// WithOpenAILLMMaxTokens sets the response token budget (default: 512).
func WithOpenAILLMMaxTokens(n int) OpenAILLMOption {
	return func(l *OpenAILLM) { l.maxTokens = n }
}

// WithOpenAILLMBaseURL sets the API base URL (default: https://api.openai.com).
func WithOpenAILLMBaseURL(url string) OpenAILLMOption {
	return func(l *OpenAILLM) { l.baseURL = url }
}

// NewOpenAILLM creates an LLM provider backed by OpenAI's chat completions API.
func NewOpenAILLM(apiKey string, opts ...OpenAILLMOption) *OpenAILLM {
	l := &OpenAILLM{
		apiKey:    apiKey,
		model:     "gpt-4o-mini",
		maxTokens: 512,
		baseURL:   "https://api.openai.com",
		client:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Generate requests a completion via POST /v1/chat/completions,
// bearer-authenticated with the configured API key.
func (l *OpenAILLM) Generate(ctx context.Context, prompt, system string) (string, error) {
	if l.apiKey == "" {
		return "", fmt.Errorf("no API key")
	}

	url := l.baseURL + "/v1/chat/completions"

	var messages []openAIChatMessage
	if system != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: prompt})

	reqBody := openAIChatRequest{
		Model:     l.model,
		Messages:  messages,
		MaxTokens: l.maxTokens,
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai generate %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var chatResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model     string              `json:"model"`
	Messages  []openAIChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}
