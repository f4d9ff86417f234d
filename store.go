package engram

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the self-curating memory engine: a single-file persistent set
// of embedded text memories, its classifier, recall engine, and five-phase
// consolidator, all serialized under one exclusive lock, per §5.
type Store struct {
	mu sync.Mutex

	cfg      Config
	memories []Memory
	dirty    bool

	writesSinceConsolidation int
	lastConsolidation        time.Time

	embedder   EmbeddingProvider
	llm        LLMProvider
	classifier *Classifier
	logger     *zap.Logger
	metrics    *storeMetrics

	cancelTimer context.CancelFunc
	initialized bool
}

// New constructs and initializes a Store from cfg: applies defaults,
// builds the embedder/LLM providers, loads any existing file, and arms
// the auto-consolidation timer. Idempotent in the sense that calling it
// twice against the same file produces two independent, consistent Store
// handles (no cross-process coordination is attempted, per the Non-goals).
func New(cfg Config) (*Store, error) {
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:        cfg,
		embedder:   embedder,
		llm:        llm,
		classifier: NewClassifier(cfg.AutoRemember.MinImportance, cfg.DeduplicateThreshold),
		logger:     cfg.Logger.With(zap.String("component", "store")),
		metrics:    newStoreMetrics(cfg.Metrics),
	}

	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.File), 0755); err != nil {
		return &ConfigError{Reason: "mkdir " + filepath.Dir(s.cfg.File) + ": " + err.Error()}
	}

	memories, err := loadFromFile(s.cfg.File)
	if err != nil {
		s.logger.Warn("load failed, starting with an empty store", zap.Error(err))
		memories = nil
	}
	s.memories = memories
	s.metrics.setTierHistogram(tierHistogram(s.memories))

	if s.cfg.AutoConsolidate.Enabled && s.cfg.AutoConsolidate.IntervalMs != 0 {
		s.startAutoConsolidate(s.cfg.AutoConsolidate.Interval)
	}

	s.initialized = true
	return nil
}

// Remember stores content directly as a HOT memory, with no dedup check:
// callers that want deduplication use Process instead.
func (s *Store) Remember(ctx context.Context, content string, opts RememberOptions) (Memory, error) {
	if !s.initialized {
		return Memory{}, &NotInitializedError{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return Memory{}, &EmbedderFailure{Err: err}
	}
	emb = Normalize(emb)

	importance := opts.Importance
	if importance == 0 {
		importance = 0.5
	}
	source := opts.Source
	if source == "" {
		source = "manual"
	}

	now := time.Now()
	m := Memory{
		ID:           uuid.NewString(),
		Content:      content,
		Embedding:    emb,
		Tags:         append([]string(nil), opts.Tags...),
		Importance:   importance,
		Tier:         TierHot,
		CreatedAt:    now,
		LastAccessed: now,
		Source:       source,
		SessionID:    opts.SessionID,
	}
	s.memories = append(s.memories, m)
	s.dirty = true
	s.writesSinceConsolidation++
	s.metrics.writes.Inc()

	if err := s.enforceLimitLocked(ctx); err != nil {
		return m, err
	}
	if err := s.maybeAutoConsolidateLocked(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// Process builds the combined "User: ...\nAssistant: ..." representation
// of a conversation turn, embeds it once, classifies it against the
// existing-embedding snapshot, and stores it only if the verdict accepts.
func (s *Store) Process(ctx context.Context, userUtterance, assistantUtterance string, opts ProcessOptions) (Verdict, *Memory, error) {
	if !s.initialized {
		return Verdict{}, nil, &NotInitializedError{}
	}

	truncatedAssistant := assistantUtterance
	if len(truncatedAssistant) > 500 {
		truncatedAssistant = truncatedAssistant[:500] + " (…)"
	}
	combined := "User: " + userUtterance + "\nAssistant: " + truncatedAssistant

	s.mu.Lock()
	defer s.mu.Unlock()

	emb, err := s.embedder.Embed(ctx, combined)
	if err != nil {
		return Verdict{}, nil, &EmbedderFailure{Err: err}
	}
	emb = Normalize(emb)

	existing := make([][]float32, len(s.memories))
	for i, m := range s.memories {
		existing[i] = m.Embedding
	}

	verdict := s.classifier.Classify(userUtterance, assistantUtterance, emb, existing)
	if !verdict.ShouldRemember {
		s.metrics.rejects.Inc()
		return verdict, nil, nil
	}

	tags := append([]string(nil), verdict.SuggestedTags...)
	for _, want := range s.cfg.AutoRemember.DefaultTags {
		present := false
		for _, t := range tags {
			if t == want {
				present = true
				break
			}
		}
		if !present {
			tags = append(tags, want)
		}
	}

	now := time.Now()
	m := Memory{
		ID:           uuid.NewString(),
		Content:      combined,
		Embedding:    emb,
		Tags:         tags,
		Importance:   verdict.Importance,
		Tier:         TierHot,
		CreatedAt:    now,
		LastAccessed: now,
		Source:       "auto",
		Reason:       verdict.Reason,
		SessionID:    opts.SessionID,
	}
	s.memories = append(s.memories, m)
	s.dirty = true
	s.writesSinceConsolidation++
	s.metrics.writes.Inc()

	if err := s.enforceLimitLocked(ctx); err != nil {
		return verdict, &m, err
	}
	if err := s.maybeAutoConsolidateLocked(ctx); err != nil {
		return verdict, &m, err
	}
	return verdict, &m, nil
}

// Recall embeds query, scores and ranks the in-memory set per §4.3, and
// bumps access bookkeeping on every returned memory before returning.
func (s *Store) Recall(ctx context.Context, query string, opts RecallOptions) ([]RecallResult, error) {
	if !s.initialized {
		return nil, &NotInitializedError{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &EmbedderFailure{Err: err}
	}
	emb = Normalize(emb)

	results := scoreAndRank(s.memories, emb, opts)
	s.metrics.recalls.Inc()
	if len(results) == 0 {
		return results, nil
	}

	now := time.Now()
	wanted := make(map[string]bool, len(results))
	for _, r := range results {
		wanted[r.ID] = true
	}
	for i := range s.memories {
		if wanted[s.memories[i].ID] {
			s.memories[i].AccessCount++
			s.memories[i].LastAccessed = now
		}
	}
	for i := range results {
		results[i].AccessCount++
		results[i].LastAccessed = now
	}
	s.dirty = true

	return results, nil
}

// Forget embeds query and deletes every memory whose cosine similarity to
// it exceeds threshold (default 0.8 when threshold is 0), returning the
// count removed.
func (s *Store) Forget(ctx context.Context, query string, threshold float64) (int, error) {
	if !s.initialized {
		return 0, &NotInitializedError{}
	}
	if threshold == 0 {
		threshold = 0.8
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return 0, &EmbedderFailure{Err: err}
	}
	emb = Normalize(emb)

	kept := make([]Memory, 0, len(s.memories))
	removed := 0
	for _, m := range s.memories {
		if CosineSimilarity(emb, m.Embedding) > threshold {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.memories = kept
	if removed > 0 {
		s.dirty = true
	}
	return removed, nil
}

// Consolidate runs the five-phase curation pass and persists the result.
func (s *Store) Consolidate(ctx context.Context) (ConsolidationReport, error) {
	if !s.initialized {
		return ConsolidationReport{}, &NotInitializedError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consolidateLocked(ctx)
}

func (s *Store) consolidateLocked(ctx context.Context) (ConsolidationReport, error) {
	cc := consolidatorConfig{
		DeduplicateThreshold: s.cfg.DeduplicateThreshold,
		MinClusterSize:       s.cfg.AutoConsolidate.MinClusterSize,
		ClusterThreshold:     s.cfg.AutoConsolidate.ClusterThreshold,
		HotDays:              s.cfg.AutoConsolidate.HotDays,
		WarmDays:             s.cfg.AutoConsolidate.WarmDays,
		ColdDays:             s.cfg.AutoConsolidate.ColdDays,
	}

	memories, report := consolidate(ctx, s.memories, cc, time.Now(), s.llm)
	memories = evictOverflow(memories, s.cfg.MaxMemories)
	s.memories = memories
	s.dirty = true
	s.writesSinceConsolidation = 0
	s.lastConsolidation = report.Timestamp

	s.metrics.consolidations.Inc()
	s.metrics.consolidateSecs.Observe(report.Duration.Seconds())
	s.metrics.setTierHistogram(report.TierHistogramAfter)

	if err := s.saveLocked(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Store) enforceLimitLocked(ctx context.Context) error {
	if len(s.memories) <= s.cfg.MaxMemories {
		return nil
	}
	_, err := s.consolidateLocked(ctx)
	return err
}

func (s *Store) maybeAutoConsolidateLocked(ctx context.Context) error {
	if !s.cfg.AutoConsolidate.Enabled || s.cfg.AutoConsolidate.EveryNWrites <= 0 {
		return nil
	}
	if s.writesSinceConsolidation < s.cfg.AutoConsolidate.EveryNWrites {
		return nil
	}
	_, err := s.consolidateLocked(ctx)
	return err
}

func (s *Store) saveLocked() error {
	if !s.dirty {
		return nil
	}
	if err := saveToFile(s.cfg.File, s.memories); err != nil {
		s.logger.Warn("persist failed", zap.Error(err))
		return &PersistenceFailure{Op: "save", Err: err}
	}
	s.dirty = false
	return nil
}

// Save flushes the store to disk if dirty, independent of Close/Consolidate.
func (s *Store) Save() error {
	if !s.initialized {
		return &NotInitializedError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

var bootstrapQueries = []string{"identity", "priorities", "decisions", "preferences"}

// Bootstrap runs the four canned recall queries in parallel via
// errgroup.Group and returns their concatenated contents plus the raw
// per-query result arrays, in fixed query order.
func (s *Store) Bootstrap(ctx context.Context) (map[string][]RecallResult, string, error) {
	if !s.initialized {
		return nil, "", &NotInitializedError{}
	}

	results := make(map[string][]RecallResult, len(bootstrapQueries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range bootstrapQueries {
		q := q
		g.Go(func() error {
			r, err := s.Recall(gctx, q, RecallOptions{Limit: 4, MinScore: 0.15, DecayBoost: true})
			if err != nil {
				return err
			}
			mu.Lock()
			results[q] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	var sb strings.Builder
	for _, q := range bootstrapQueries {
		for _, r := range results[q] {
			sb.WriteString(r.Content)
			sb.WriteString("\n")
		}
	}
	return results, sb.String(), nil
}

// Stats summarizes the current store state for operators.
func (s *Store) Stats() (Stats, error) {
	if !s.initialized {
		return Stats{}, &NotInitializedError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest, newest time.Time
	for i, m := range s.memories {
		if i == 0 || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}

	var size int64
	if info, err := os.Stat(s.cfg.File); err == nil {
		size = info.Size()
	}

	return Stats{
		TotalMemories:            len(s.memories),
		ByTier:                   tierHistogram(s.memories),
		OldestCreatedAt:          oldest,
		NewestCreatedAt:          newest,
		FileSizeBytes:            size,
		LastConsolidation:        s.lastConsolidation,
		WritesSinceConsolidation: s.writesSinceConsolidation,
	}, nil
}

// FormattedSize renders Stats.FileSizeBytes as a human-readable string
// ("1.2 MB"), for the CLI and operator-facing surfaces.
func (st Stats) FormattedSize() string {
	return humanize.Bytes(uint64(st.FileSizeBytes))
}

// Export serializes every memory without its embedding (length only).
func (s *Store) Export() ([]ExportedMemory, error) {
	if !s.initialized {
		return nil, &NotInitializedError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ExportedMemory, len(s.memories))
	for i, m := range s.memories {
		out[i] = ExportedMemory{
			ID:              m.ID,
			Content:         m.Content,
			EmbeddingLength: len(m.Embedding),
			Tags:            m.Tags,
			Importance:      m.Importance,
			Tier:            m.Tier,
			CreatedAt:       m.CreatedAt,
			LastAccessed:    m.LastAccessed,
			AccessCount:     m.AccessCount,
			Source:          m.Source,
			SessionID:       m.SessionID,
			Metadata:        m.Metadata,
		}
	}
	return out, nil
}

// Session returns every memory tagged with sessionID, in insertion order.
func (s *Store) Session(sessionID string) ([]Memory, error) {
	if !s.initialized {
		return nil, &NotInitializedError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Memory
	for _, m := range s.memories {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

// LastSession returns the memories from the most recently seen non-empty
// session id, or nil if no memory carries one.
func (s *Store) LastSession() ([]Memory, error) {
	if !s.initialized {
		return nil, &NotInitializedError{}
	}
	s.mu.Lock()
	var lastID string
	for i := len(s.memories) - 1; i >= 0; i-- {
		if s.memories[i].SessionID != "" {
			lastID = s.memories[i].SessionID
			break
		}
	}
	s.mu.Unlock()

	if lastID == "" {
		return nil, nil
	}
	return s.Session(lastID)
}

// Dimension returns the embedding width in effect for this store.
func (s *Store) Dimension() int {
	return s.embedder.Dimension()
}

// Close stops the auto-consolidation timer and persists if dirty.
func (s *Store) Close() error {
	if !s.initialized {
		return &NotInitializedError{}
	}
	if s.cancelTimer != nil {
		s.cancelTimer()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}
