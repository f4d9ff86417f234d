// engram-mcp exposes an engram store as an MCP stdio server.
//
// Environment variables:
//
//	ENGRAM_FILE           — store file path (default: ./data/engram.json)
//	ENGRAM_EMBEDDER       — embedder provider: local (default), ollama, openai
//	ENGRAM_EMBEDDER_MODEL — embedder model name, provider-dependent
//	ENGRAM_EMBEDDER_URL   — embedder base URL override
//	ENGRAM_EMBEDDER_KEY   — embedder API key (openai)
//	ENGRAM_LLM            — summarization provider: "" (disabled, default), local, anthropic, openai
//	ENGRAM_LLM_MODEL      — summarization model name
//	ENGRAM_LLM_URL        — summarization base URL override
//	ENGRAM_LLM_KEY        — summarization API key (anthropic, openai)
//	ENGRAM_DEBUG          — "1" for verbose logging
//
// Usage:
//
//	go install github.com/fennel-labs/engram/cmd/engram-mcp
//	engram-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	engram "github.com/fennel-labs/engram"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	cfg := configFromEnv()

	store, err := engram.New(cfg)
	if err != nil {
		log.Fatalf("engram init: %v", err)
	}
	defer store.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "engram-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a fact directly as a HOT memory, bypassing the classifier. Returns the stored memory.",
	}, rememberHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "process",
		Description: "Classify a conversation turn (user + assistant) and store it only if the classifier decides it's worth remembering.",
	}, processHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Search memories by semantic similarity, with optional tier/tag filters and decay-aware boosting.",
	}, recallHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "forget",
		Description: "Delete every memory whose similarity to a query exceeds a threshold (default 0.8). Returns the count removed.",
	}, forgetHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "consolidate",
		Description: "Run the five-phase consolidation pass now (decay, deduplicate, cluster, summarize, archive) instead of waiting for the next automatic trigger.",
	}, consolidateHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Report memory counts by tier, file size, and consolidation bookkeeping.",
	}, statsHandler(store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bootstrap",
		Description: "Run the four canned identity/priorities/decisions/preferences recall queries and return a primer for a new conversation.",
	}, bootstrapHandler(store))

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("engram-mcp: %v", err)
	}
}

func configFromEnv() engram.Config {
	file := os.Getenv("ENGRAM_FILE")
	if file == "" {
		file = "./data/engram.json"
	}
	return engram.Config{
		File: file,
		Embedder: engram.EmbedderConfig{
			Provider: os.Getenv("ENGRAM_EMBEDDER"),
			Model:    os.Getenv("ENGRAM_EMBEDDER_MODEL"),
			URL:      os.Getenv("ENGRAM_EMBEDDER_URL"),
			APIKey:   os.Getenv("ENGRAM_EMBEDDER_KEY"),
		},
		LLM: engram.LLMConfig{
			Provider: os.Getenv("ENGRAM_LLM"),
			Model:    os.Getenv("ENGRAM_LLM_MODEL"),
			URL:      os.Getenv("ENGRAM_LLM_URL"),
			APIKey:   os.Getenv("ENGRAM_LLM_KEY"),
		},
		Debug: os.Getenv("ENGRAM_DEBUG") == "1",
	}
}

// --- Input types ---

type rememberInput struct {
	Content    string   `json:"content"               jsonschema:"The fact to remember"`
	Importance float64  `json:"importance,omitempty"  jsonschema:"Importance 0.0-1.0 (default 0.5)"`
	Tags       []string `json:"tags,omitempty"        jsonschema:"Tags to attach"`
	SessionID  string   `json:"session_id,omitempty"  jsonschema:"Optional conversation session ID for threading"`
}

type processInput struct {
	UserMessage      string `json:"user_message"          jsonschema:"What the user said"`
	AssistantMessage string `json:"assistant_message"     jsonschema:"What the assistant replied"`
	SessionID        string `json:"session_id,omitempty"  jsonschema:"Optional conversation session ID for threading"`
}

type recallInput struct {
	Query    string   `json:"query"               jsonschema:"Search query to find relevant memories"`
	Limit    int      `json:"limit,omitempty"     jsonschema:"Max results to return (default 8)"`
	MinScore float64  `json:"min_score,omitempty" jsonschema:"Minimum score cutoff (default 0.15)"`
	Tiers    []string `json:"tiers,omitempty"     jsonschema:"Filter to specific tiers: hot, warm, cold, archive"`
	Tags     []string `json:"tags,omitempty"      jsonschema:"Filter to memories carrying any of these tags"`
}

type forgetInput struct {
	Query     string  `json:"query"               jsonschema:"Query describing memories to remove"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Similarity threshold above which memories are removed (default 0.8)"`
}

type emptyInput struct{}

// --- Handlers ---

func rememberHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, rememberInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input rememberInput) (*mcp.CallToolResult, any, error) {
		m, err := s.Remember(ctx, input.Content, engram.RememberOptions{
			Importance: input.Importance,
			Tags:       input.Tags,
			SessionID:  input.SessionID,
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(memoryToMap(m))), nil, nil
	}
}

func processHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, processInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input processInput) (*mcp.CallToolResult, any, error) {
		verdict, m, err := s.Process(ctx, input.UserMessage, input.AssistantMessage, engram.ProcessOptions{
			SessionID: input.SessionID,
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		out := map[string]any{
			"should_remember": verdict.ShouldRemember,
			"importance":      verdict.Importance,
			"reason":          verdict.Reason,
			"tags":            verdict.SuggestedTags,
		}
		if m != nil {
			out["memory"] = memoryToMap(*m)
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func recallHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, recallInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input recallInput) (*mcp.CallToolResult, any, error) {
		opts := engram.NewRecallOptions()
		if input.Limit > 0 {
			opts.Limit = input.Limit
		}
		if input.MinScore > 0 {
			opts.MinScore = input.MinScore
		}
		opts.Tags = input.Tags
		for _, t := range input.Tiers {
			opts.Tiers = append(opts.Tiers, engram.Tier(t))
		}

		results, err := s.Recall(ctx, input.Query, opts)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}

		out := make([]map[string]any, len(results))
		for i, r := range results {
			entry := memoryToMap(r.Memory)
			entry["score"] = r.Score
			out[i] = entry
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func forgetHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, forgetInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input forgetInput) (*mcp.CallToolResult, any, error) {
		removed, err := s.Forget(ctx, input.Query, input.Threshold)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{"removed": removed})), nil, nil
	}
}

func consolidateHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		report, err := s.Consolidate(ctx)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"clusters_found":     report.ClustersFound,
			"memories_merged":    report.MemoriesMerged,
			"memories_decayed":   report.MemoriesDecayed,
			"memories_archived":  report.MemoriesArchived,
			"duplicates_removed": report.DuplicatesRemoved,
			"tier_histogram":     report.TierHistogramAfter,
			"duration_ms":        report.Duration.Milliseconds(),
		})), nil, nil
	}
}

func statsHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		stats, err := s.Stats()
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"total_memories":             stats.TotalMemories,
			"by_tier":                    stats.ByTier,
			"oldest_created_at":          stats.OldestCreatedAt,
			"newest_created_at":          stats.NewestCreatedAt,
			"file_size":                  stats.FormattedSize(),
			"last_consolidation":         stats.LastConsolidation,
			"writes_since_consolidation": stats.WritesSinceConsolidation,
		})), nil, nil
	}
}

func bootstrapHandler(s *engram.Store) func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		_, text, err := s.Bootstrap(ctx)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(text), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func memoryToMap(m engram.Memory) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"content":       m.Content,
		"tags":          m.Tags,
		"importance":    m.Importance,
		"tier":          m.Tier,
		"created_at":    m.CreatedAt,
		"last_accessed": m.LastAccessed,
		"access_count":  m.AccessCount,
		"source":        m.Source,
		"session_id":    m.SessionID,
	}
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
