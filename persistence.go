package engram

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const fileFormatTag = "engram-trace"
const fileFormatVersion = 1

// persistedFile is the on-disk JSON fallback container, used because no
// dedicated engram-container adapter library was found in the retrieved
// pack (see DESIGN.md). Shape matches §6 of the specification exactly:
// top-level temporal/quality fields mirror a per-memory custom-metadata
// sub-object, which fromPersisted prefers on conflict.
type persistedFile struct {
	Version  int               `json:"version"`
	Format   string            `json:"format"`
	Memories []persistedMemory `json:"memories"`
}

type persistedTemporal struct {
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Accessed  time.Time `json:"accessed"`
	DecayTier string    `json:"decayTier"`
}

type persistedQuality struct {
	Score float64 `json:"score"`
}

type persistedMemory struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding"`
	Temporal  persistedTemporal `json:"temporal"`
	Quality   persistedQuality  `json:"quality"`
	Metadata  map[string]any    `json:"metadata"`
}

// toPersisted renders a Memory as its on-disk form.
func toPersisted(m Memory) persistedMemory {
	metadata := map[string]any{
		"tags":         m.Tags,
		"importance":   m.Importance,
		"tier":         string(m.Tier),
		"createdAt":    m.CreatedAt,
		"lastAccessed": m.LastAccessed,
		"accessCount":  m.AccessCount,
	}
	if m.Source != "" {
		metadata["source"] = m.Source
	}
	if m.Reason != "" {
		metadata["reason"] = m.Reason
	}
	if m.ConsolidatedFrom != 0 {
		metadata["consolidatedFrom"] = m.ConsolidatedFrom
		metadata["consolidatedAt"] = m.ConsolidatedAt
	}
	if m.Truncated {
		metadata["truncated"] = true
		metadata["originalLength"] = m.OriginalLength
	}
	if m.SessionID != "" {
		metadata["sessionId"] = m.SessionID
	}
	for k, v := range m.Metadata {
		metadata[k] = v
	}

	return persistedMemory{
		ID:        m.ID,
		Content:   m.Content,
		Embedding: m.Embedding,
		Temporal: persistedTemporal{
			Created:   m.CreatedAt,
			Modified:  m.LastAccessed,
			Accessed:  m.LastAccessed,
			DecayTier: string(m.Tier),
		},
		Quality: persistedQuality{Score: m.Importance},
		Metadata: metadata,
	}
}

// fromPersisted reconstructs a Memory, preferring the custom-metadata
// values over the mirrored top-level temporal/quality fields wherever
// both are present. expectedDim is the embedding length established by
// earlier records in the same file, or 0 if none has been seen yet.
// Returns a non-nil *CorruptInputError for a record with no ID/content,
// no embedding, or an embedding whose length disagrees with expectedDim
// — the caller (loadFromFile) silently skips such records per §7.
func fromPersisted(pm persistedMemory, expectedDim int) (Memory, *CorruptInputError) {
	if pm.ID == "" || pm.Content == "" {
		return Memory{}, &CorruptInputError{ID: pm.ID, Reason: "missing id or content"}
	}
	if len(pm.Embedding) == 0 {
		return Memory{}, &CorruptInputError{ID: pm.ID, Reason: "missing embedding"}
	}
	if expectedDim > 0 && len(pm.Embedding) != expectedDim {
		return Memory{}, &CorruptInputError{
			ID:     pm.ID,
			Reason: fmt.Sprintf("embedding length %d, expected %d", len(pm.Embedding), expectedDim),
		}
	}

	m := Memory{
		ID:           pm.ID,
		Content:      pm.Content,
		Embedding:    pm.Embedding,
		Tier:         Tier(pm.Temporal.DecayTier),
		CreatedAt:    pm.Temporal.Created,
		LastAccessed: pm.Temporal.Accessed,
		Importance:   pm.Quality.Score,
		Metadata:     map[string]any{},
	}

	known := map[string]bool{
		"tags": true, "importance": true, "tier": true, "createdAt": true,
		"lastAccessed": true, "accessCount": true, "source": true, "reason": true,
		"consolidatedFrom": true, "consolidatedAt": true, "truncated": true,
		"originalLength": true, "sessionId": true,
	}

	if v, ok := pm.Metadata["tags"]; ok {
		m.Tags = toStringSlice(v)
	}
	if v, ok := pm.Metadata["importance"]; ok {
		m.Importance = toFloat(v, m.Importance)
	}
	if v, ok := pm.Metadata["tier"]; ok {
		if s, ok := v.(string); ok {
			m.Tier = Tier(s)
		}
	}
	if v, ok := pm.Metadata["createdAt"]; ok {
		m.CreatedAt = toTime(v, m.CreatedAt)
	}
	if v, ok := pm.Metadata["lastAccessed"]; ok {
		m.LastAccessed = toTime(v, m.LastAccessed)
	}
	if v, ok := pm.Metadata["accessCount"]; ok {
		m.AccessCount = int(toFloat(v, 0))
	}
	if v, ok := pm.Metadata["source"]; ok {
		if s, ok := v.(string); ok {
			m.Source = s
		}
	}
	if v, ok := pm.Metadata["reason"]; ok {
		if s, ok := v.(string); ok {
			m.Reason = s
		}
	}
	if v, ok := pm.Metadata["consolidatedFrom"]; ok {
		m.ConsolidatedFrom = int(toFloat(v, 0))
	}
	if v, ok := pm.Metadata["consolidatedAt"]; ok {
		m.ConsolidatedAt = toTime(v, time.Time{})
	}
	if v, ok := pm.Metadata["truncated"]; ok {
		if b, ok := v.(bool); ok {
			m.Truncated = b
		}
	}
	if v, ok := pm.Metadata["originalLength"]; ok {
		m.OriginalLength = int(toFloat(v, 0))
	}
	if v, ok := pm.Metadata["sessionId"]; ok {
		if s, ok := v.(string); ok {
			m.SessionID = s
		}
	}

	for k, v := range pm.Metadata {
		if !known[k] {
			m.Metadata[k] = v
		}
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}

	return m, nil
}

func toStringSlice(v any) []string {
	if ss, ok := v.([]string); ok {
		return append([]string(nil), ss...)
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toFloat(v any, fallback float64) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case int:
		return float64(f)
	}
	return fallback
}

func toTime(v any, fallback time.Time) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return fallback
}

// saveToFile writes the current memory set to path as the JSON fallback
// container. Never returns a fatal error to the caller's mutation path;
// the facade wraps this in PersistenceFailure and keeps serving from
// memory.
func saveToFile(path string, memories []Memory) error {
	pf := persistedFile{
		Version:  fileFormatVersion,
		Format:   fileFormatTag,
		Memories: make([]persistedMemory, len(memories)),
	}
	for i, m := range memories {
		pf.Memories[i] = toPersisted(m)
	}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// loadFromFile reads the JSON fallback container at path. A missing or
// empty file yields a nil slice and no error. A file that cannot be read
// or fails to parse yields an error, which the caller logs as a warning
// before starting with an empty store. Individual
// CorruptInput records (missing content, or an embedding whose length
// disagrees with the dimension established by the first valid record) are
// skipped rather than failing the whole load, preserving §8 invariant 6
// (every stored embedding shares length D).
func loadFromFile(path string) ([]Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}

	memories := make([]Memory, 0, len(pf.Memories))
	dim := 0
	for _, pm := range pf.Memories {
		m, cerr := fromPersisted(pm, dim)
		if cerr != nil {
			continue
		}
		if dim == 0 {
			dim = len(m.Embedding)
		}
		memories = append(memories, m)
	}
	return memories, nil
}
