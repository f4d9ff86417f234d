package engram

import "context"

// EmbeddingProvider generates dense vector embeddings from text. All
// vectors returned by a single provider share the same length, the store's
// fixed dimension D. Built-in providers: the local hashing embedder,
// OllamaEmbedder, OpenAIEmbedder.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// LLMProvider generates text completions, used only by Phase 4
// (Summarize) of consolidation. Built-in providers: the local HTTP
// generator, AnthropicLLM, OpenAILLM.
type LLMProvider interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}
