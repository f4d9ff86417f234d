package engram

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// consolidatorConfig carries the tunables the five phases need, independent
// of the rest of Config.
type consolidatorConfig struct {
	DeduplicateThreshold float64
	MinClusterSize       int
	ClusterThreshold     float64
	HotDays              float64
	WarmDays             float64
	ColdDays             float64
}

// consolidate runs the five-phase curation pass over memories and returns
// the rewritten set plus a report. Pure over its inputs except for the one
// LLM call per cluster in Phase 4; llm may be nil, which disables that
// phase only. Grounded on the teacher's RunDecaySweep (exponential decay +
// prune) and deduplicateReflections (embedding-similarity dedup),
// generalized from a single-sector sweep into the full pipeline.
func consolidate(ctx context.Context, memories []Memory, cfg consolidatorConfig, now time.Time, llm LLMProvider) ([]Memory, ConsolidationReport) {
	start := now
	report := ConsolidationReport{
		Timestamp:           now,
		TierHistogramBefore: tierHistogram(memories),
	}

	working := append([]Memory(nil), memories...)

	working, report.MemoriesDecayed = decayPhase(working, cfg, now)
	working, report.DuplicatesRemoved = deduplicatePhase(working, cfg.DeduplicateThreshold)
	clusters := clusterPhase(working, cfg)
	report.ClustersFound = len(clusters)
	working, report.MemoriesMerged = summarizePhase(ctx, working, clusters, llm, now)
	working, report.MemoriesArchived = archivePhase(working)

	report.TierHistogramAfter = tierHistogram(working)
	report.Duration = time.Since(start)
	return working, report
}

func tierHistogram(memories []Memory) map[Tier]int {
	h := map[Tier]int{TierHot: 0, TierWarm: 0, TierCold: 0, TierArchive: 0}
	for i := range memories {
		h[memories[i].Tier]++
	}
	return h
}

// decayPhase advances tiers at most one step per pass, per §4.4 Phase 1.
func decayPhase(memories []Memory, cfg consolidatorConfig, now time.Time) ([]Memory, int) {
	transitions := 0
	for i := range memories {
		m := &memories[i]
		ageDays := now.Sub(m.CreatedAt).Hours() / 24.0
		accessBoost := math.Min(float64(m.AccessCount)*0.5, 5)
		effectiveAge := ageDays - accessBoost
		importanceMul := 1 + 2*m.Importance
		adjustedAge := effectiveAge / importanceMul

		var threshold float64
		switch m.Tier {
		case TierHot:
			threshold = cfg.HotDays
		case TierWarm:
			threshold = cfg.WarmDays
		case TierCold:
			threshold = cfg.ColdDays
		default:
			continue
		}

		if adjustedAge > threshold {
			m.Tier = m.Tier.next()
			transitions++
		}
	}
	return memories, transitions
}

// deduplicatePhase removes the lower-keep-score member of every pair whose
// cosine similarity exceeds threshold, repeating until none remain, per
// §4.4 Phase 2.
func deduplicatePhase(memories []Memory, threshold float64) ([]Memory, int) {
	removed := make([]bool, len(memories))
	removedCount := 0

	for {
		foundPair := false
		for i := 0; i < len(memories); i++ {
			if removed[i] {
				continue
			}
			for j := i + 1; j < len(memories); j++ {
				if removed[j] {
					continue
				}
				sim := CosineSimilarity(memories[i].Embedding, memories[j].Embedding)
				if sim > threshold {
					foundPair = true
					if memories[i].keepScore() >= memories[j].keepScore() {
						removed[j] = true
					} else {
						removed[i] = true
					}
					removedCount++
					break
				}
			}
			if foundPair {
				break
			}
		}
		if !foundPair {
			break
		}
	}

	out := make([]Memory, 0, len(memories)-removedCount)
	for i, r := range removed {
		if !r {
			out = append(out, memories[i])
		}
	}
	return out, removedCount
}

// cluster is a maximal greedy group of WARM/COLD memories, carrying the
// indices into the slice passed to clusterPhase.
type cluster struct {
	indices []int
}

// clusterPhase groups WARM/COLD memories via a greedy single pass, per
// §4.4 Phase 3. HOT and ARCHIVE memories never participate.
func clusterPhase(memories []Memory, cfg consolidatorConfig) []cluster {
	eligible := make([]int, 0, len(memories))
	for i := range memories {
		if memories[i].Tier == TierWarm || memories[i].Tier == TierCold {
			eligible = append(eligible, i)
		}
	}

	assigned := make(map[int]bool)
	var clusters []cluster

	for _, ci := range eligible {
		if assigned[ci] {
			continue
		}
		members := []int{ci}
		for _, oi := range eligible {
			if oi <= ci || assigned[oi] {
				continue
			}
			if CosineSimilarity(memories[ci].Embedding, memories[oi].Embedding) >= cfg.ClusterThreshold {
				members = append(members, oi)
			}
		}

		if len(members) < cfg.MinClusterSize {
			continue
		}
		for _, m := range members {
			assigned[m] = true
		}
		clusters = append(clusters, cluster{indices: members})
	}

	return clusters
}

const summarizeSystemPrompt = "You are a memory consolidation system. Output only the consolidated summary, nothing else. Be concise but preserve all key information."
const summarizeUserPrefix = "Consolidate these related memories into a single concise summary. Preserve all important facts, decisions, and details. Remove redundancy."

// summarizePhase asks the LLM (if configured) to compress each cluster
// into its best member, per §4.4 Phase 4. A nil llm disables this phase
// entirely: memories pass through unchanged and mergedCount is 0. now is the
// timestamp the rest of the pass runs against, keeping ConsolidatedAt
// reproducible for a given (memories, now) input like decayPhase's ageDays.
func summarizePhase(ctx context.Context, memories []Memory, clusters []cluster, llm LLMProvider, now time.Time) ([]Memory, int) {
	if llm == nil || len(clusters) == 0 {
		return memories, 0
	}

	removed := make(map[int]bool)
	merged := 0

	for _, c := range clusters {
		var parts []string
		for _, idx := range c.indices {
			parts = append(parts, memories[idx].Content)
		}
		prompt := summarizeUserPrefix + "\n\n" + strings.Join(parts, "\n---\n")

		summary, err := llm.Generate(ctx, prompt, summarizeSystemPrompt)
		if err != nil || len(strings.TrimSpace(summary)) < 10 {
			continue
		}

		bestIdx := c.indices[0]
		for _, idx := range c.indices[1:] {
			if memories[idx].keepScore() > memories[bestIdx].keepScore() {
				bestIdx = idx
			}
		}

		maxImportance := memories[bestIdx].Importance
		for _, idx := range c.indices {
			if memories[idx].Importance > maxImportance {
				maxImportance = memories[idx].Importance
			}
		}

		best := &memories[bestIdx]
		best.Content = summary
		best.addTag("consolidated")
		best.Importance = maxImportance
		best.ConsolidatedFrom = len(c.indices)
		best.ConsolidatedAt = now

		for _, idx := range c.indices {
			if idx != bestIdx {
				removed[idx] = true
			}
		}
		merged += len(c.indices) - 1
	}

	if len(removed) == 0 {
		return memories, 0
	}

	out := make([]Memory, 0, len(memories)-len(removed))
	for i := range memories {
		if !removed[i] {
			out = append(out, memories[i])
		}
	}
	return out, merged
}

// evictOverflow is the last-resort size bound backing §8 invariant 5: when
// the five phases still leave the set over maxMemories (nothing to dedup or
// cluster, nothing old enough to archive), drop the lowest-keepScore
// memories until the bound holds. Ties favor evicting the older memory.
// Survivors keep their original relative order: the victim set is chosen by
// a keepScore sort over a copy, but the output is built by filtering
// memories in its original insertion order, per §3's ordered-sequence
// invariant and the recall stable-sort tie-break it feeds.
func evictOverflow(memories []Memory, maxMemories int) []Memory {
	if maxMemories <= 0 || len(memories) <= maxMemories {
		return memories
	}
	ranked := append([]Memory(nil), memories...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].keepScore(), ranked[j].keepScore()
		if si != sj {
			return si > sj
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})

	survivors := make(map[string]bool, maxMemories)
	for _, m := range ranked[:maxMemories] {
		survivors[m.ID] = true
	}

	out := make([]Memory, 0, maxMemories)
	for _, m := range memories {
		if survivors[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// archivePhase truncates over-length ARCHIVE-tier content, per §4.4 Phase 5.
func archivePhase(memories []Memory) ([]Memory, int) {
	changed := 0
	for i := range memories {
		m := &memories[i]
		if m.Tier != TierArchive || m.hasTag("consolidated") {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) <= 200 {
			continue
		}
		m.OriginalLength = len(runes)
		m.Content = string(runes[:200]) + "..."
		m.Truncated = true
		changed++
	}
	return memories, changed
}
