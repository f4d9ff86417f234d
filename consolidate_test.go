package engram

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubLLM is a deterministic LLMProvider for exercising summarizePhase
// without a real backend.
type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) Generate(ctx context.Context, prompt, system string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func vec(dims int, lead float32) []float32 {
	v := make([]float32, dims)
	v[0] = lead
	for i := 1; i < dims; i++ {
		v[i] = 0.01
	}
	return v
}

func TestDeduplicatePhaseRemovesHigherSimilarityLoser(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "a", Content: "alpha", Embedding: vec(8, 1.0), Importance: 0.5, CreatedAt: now},
		{ID: "b", Content: "beta", Embedding: vec(8, 1.0), Importance: 0.3, CreatedAt: now},
		{ID: "c", Content: "gamma", Embedding: vec(8, -1.0), Importance: 0.2, CreatedAt: now},
	}

	out, removed := deduplicatePhase(memories, 0.9)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
	for _, m := range out {
		if m.ID == "b" {
			t.Error("expected lower-keepScore duplicate 'b' to be removed, but it survived")
		}
	}
}

func TestDeduplicatePhaseNoPairsBelowThreshold(t *testing.T) {
	memories := []Memory{
		{ID: "a", Content: "alpha", Embedding: vec(8, 1.0), Importance: 0.5},
		{ID: "b", Content: "beta", Embedding: vec(8, -1.0), Importance: 0.3},
	}
	out, removed := deduplicatePhase(memories, 0.9)
	if removed != 0 || len(out) != 2 {
		t.Fatalf("expected no removals, got removed=%d len=%d", removed, len(out))
	}
}

func TestClusterPhaseBelowMinClusterSizeYieldsNoClusters(t *testing.T) {
	memories := []Memory{
		{ID: "a", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "b", Tier: TierWarm, Embedding: vec(8, 1.0)},
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}

	clusters := clusterPhase(memories, cfg)
	if len(clusters) != 0 {
		t.Fatalf("expected no clusters below minClusterSize, got %d", len(clusters))
	}
}

func TestClusterPhaseGroupsSimilarWarmAndColdMemories(t *testing.T) {
	memories := []Memory{
		{ID: "a", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "b", Tier: TierCold, Embedding: vec(8, 1.0)},
		{ID: "c", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "d", Tier: TierHot, Embedding: vec(8, 1.0)},      // excluded: HOT never clusters
		{ID: "e", Tier: TierArchive, Embedding: vec(8, 1.0)}, // excluded: ARCHIVE never clusters
		{ID: "f", Tier: TierWarm, Embedding: vec(8, -1.0)},   // excluded: not similar enough
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}

	clusters := clusterPhase(memories, cfg)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if len(clusters[0].indices) != 3 {
		t.Fatalf("expected 3 members, got %d", len(clusters[0].indices))
	}
	for _, idx := range clusters[0].indices {
		if memories[idx].Tier == TierHot || memories[idx].Tier == TierArchive {
			t.Errorf("cluster wrongly includes tier %s", memories[idx].Tier)
		}
	}
}

func TestSummarizePhaseNilLLMIsNoOp(t *testing.T) {
	memories := []Memory{
		{ID: "a", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "b", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "c", Tier: TierWarm, Embedding: vec(8, 1.0)},
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}
	clusters := clusterPhase(memories, cfg)

	out, merged := summarizePhase(context.Background(), memories, clusters, nil, time.Now())
	if merged != 0 || len(out) != 3 {
		t.Fatalf("expected pass-through with nil llm, got merged=%d len=%d", merged, len(out))
	}
}

func TestSummarizePhaseMergesClusterWithWorkingLLM(t *testing.T) {
	memories := []Memory{
		{ID: "a", Content: "we use postgres", Tier: TierWarm, Embedding: vec(8, 1.0), Importance: 0.4, AccessCount: 0},
		{ID: "b", Content: "the db is postgres", Tier: TierWarm, Embedding: vec(8, 1.0), Importance: 0.7, AccessCount: 2},
		{ID: "c", Content: "postgres is the database", Tier: TierWarm, Embedding: vec(8, 1.0), Importance: 0.5, AccessCount: 0},
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}
	clusters := clusterPhase(memories, cfg)
	if len(clusters) != 1 {
		t.Fatalf("setup: expected 1 cluster, got %d", len(clusters))
	}

	fixedNow := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	llm := &stubLLM{response: "The project's database is Postgres."}
	out, merged := summarizePhase(context.Background(), memories, clusters, llm, fixedNow)

	if merged != 2 {
		t.Fatalf("expected 2 merged (3 members - 1 survivor), got %d", merged)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call, got %d", llm.calls)
	}

	survivor := out[0]
	if survivor.ID != "b" {
		t.Fatalf("expected highest-keepScore member 'b' to survive, got %q", survivor.ID)
	}
	if survivor.Content != "The project's database is Postgres." {
		t.Errorf("expected survivor content to be the LLM summary, got %q", survivor.Content)
	}
	if !survivor.hasTag("consolidated") {
		t.Error("expected survivor to carry the 'consolidated' tag")
	}
	if survivor.Importance != 0.7 {
		t.Errorf("expected survivor importance to be the cluster max (0.7), got %f", survivor.Importance)
	}
	if survivor.ConsolidatedFrom != 3 {
		t.Errorf("expected ConsolidatedFrom=3, got %d", survivor.ConsolidatedFrom)
	}
	if !survivor.ConsolidatedAt.Equal(fixedNow) {
		t.Errorf("expected ConsolidatedAt to equal the now passed to summarizePhase, got %v", survivor.ConsolidatedAt)
	}
}

func TestSummarizePhaseSkipsClusterOnLLMError(t *testing.T) {
	memories := []Memory{
		{ID: "a", Content: "alpha", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "b", Content: "beta", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "c", Content: "gamma", Tier: TierWarm, Embedding: vec(8, 1.0)},
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}
	clusters := clusterPhase(memories, cfg)

	llm := &stubLLM{err: fmt.Errorf("backend unavailable")}
	out, merged := summarizePhase(context.Background(), memories, clusters, llm, time.Now())
	if merged != 0 || len(out) != 3 {
		t.Fatalf("expected cluster left untouched on LLM error, got merged=%d len=%d", merged, len(out))
	}
}

func TestSummarizePhaseSkipsClusterOnTooShortSummary(t *testing.T) {
	memories := []Memory{
		{ID: "a", Content: "alpha", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "b", Content: "beta", Tier: TierWarm, Embedding: vec(8, 1.0)},
		{ID: "c", Content: "gamma", Tier: TierWarm, Embedding: vec(8, 1.0)},
	}
	cfg := consolidatorConfig{ClusterThreshold: 0.8, MinClusterSize: 3}
	clusters := clusterPhase(memories, cfg)

	llm := &stubLLM{response: "ok"}
	out, merged := summarizePhase(context.Background(), memories, clusters, llm, time.Now())
	if merged != 0 || len(out) != 3 {
		t.Fatalf("expected cluster left untouched for a too-short summary, got merged=%d len=%d", merged, len(out))
	}
}
