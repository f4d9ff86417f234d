package engram

import "sort"

// tierBoost returns the multiplicative recall-time boost for a tier.
func tierBoost(t Tier) float64 {
	switch t {
	case TierHot:
		return 1.10
	case TierWarm:
		return 1.00
	case TierCold:
		return 0.95
	case TierArchive:
		return 0.85
	default:
		return 1.00
	}
}

// hasAnyTag reports whether m carries at least one tag from wanted.
func hasAnyTag(m *Memory, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if m.hasTag(w) {
			return true
		}
	}
	return false
}

func inTierSet(t Tier, tiers []Tier) bool {
	if len(tiers) == 0 {
		return true
	}
	for _, want := range tiers {
		if t == want {
			return true
		}
	}
	return false
}

// scoreAndRank implements the recall engine's candidate filter, scoring,
// and stable ranking, per §4.3: cosine similarity against the query, a
// tier boost, then an importance boost, a minScore cutoff, and a stable
// descending sort (ties broken by insertion order).
func scoreAndRank(memories []Memory, queryEmbedding []float32, opts RecallOptions) []RecallResult {
	type candidate struct {
		idx   int
		score float64
	}

	var candidates []candidate
	for i := range memories {
		m := &memories[i]
		if !inTierSet(m.Tier, opts.Tiers) || !hasAnyTag(m, opts.Tags) {
			continue
		}
		score := CosineSimilarity(queryEmbedding, m.Embedding)
		if opts.DecayBoost {
			score *= tierBoost(m.Tier)
		}
		score *= 1 + m.Importance*0.2
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, candidate{idx: i, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	limit := opts.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]RecallResult, 0, limit)
	for _, c := range candidates[:limit] {
		results = append(results, RecallResult{Memory: memories[c.idx], Score: c.score})
	}
	return results
}
