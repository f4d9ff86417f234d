package engram

import "fmt"

// buildEmbedder constructs the EmbeddingProvider named by cfg. Validated
// already by Config.ApplyDefaults; an unrecognized provider here indicates
// a Config built without ApplyDefaults.
func buildEmbedder(cfg EmbedderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalEmbedder(384), nil
	case "ollama":
		var opts []OllamaOption
		if cfg.URL != "" {
			opts = append(opts, WithOllamaHost(cfg.URL))
		}
		return NewOllamaEmbedder(cfg.Model, 384, opts...), nil
	case "openai":
		var opts []OpenAIOption
		if cfg.URL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.URL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithOpenAIModel(cfg.Model))
		}
		return NewOpenAIEmbedder(cfg.APIKey, opts...), nil
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown embedder provider %q", cfg.Provider)}
	}
}

// buildLLM constructs the optional LLMProvider named by cfg. An empty
// Provider disables Phase 4 and returns (nil, nil).
func buildLLM(cfg LLMConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		var opts []LocalLLMOption
		if cfg.URL != "" {
			opts = append(opts, WithLocalLLMHost(cfg.URL))
		}
		return NewLocalLLM(cfg.Model, opts...), nil
	case "anthropic":
		var opts []AnthropicOption
		if cfg.Model != "" {
			opts = append(opts, WithAnthropicModel(cfg.Model))
		}
		if cfg.MaxTokens != 0 {
			opts = append(opts, WithAnthropicMaxTokens(cfg.MaxTokens))
		}
		if cfg.URL != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.URL))
		}
		return NewAnthropicLLM(cfg.APIKey, opts...), nil
	case "openai":
		var opts []OpenAILLMOption
		if cfg.Model != "" {
			opts = append(opts, WithOpenAILLMModel(cfg.Model))
		}
		if cfg.MaxTokens != 0 {
			opts = append(opts, WithOpenAILLMMaxTokens(cfg.MaxTokens))
		}
		if cfg.URL != "" {
			opts = append(opts, WithOpenAILLMBaseURL(cfg.URL))
		}
		return NewOpenAILLM(cfg.APIKey, opts...), nil
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown llm provider %q", cfg.Provider)}
	}
}
