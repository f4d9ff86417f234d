package engram

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		File:   filepath.Join(dir, "test.engram"),
		Logger: zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRememberAssignsHotTier(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	m, err := s.Remember(ctx, "the deploy window is Tuesday mornings", RememberOptions{})
	require.NoError(t, err)
	assert.Equal(t, TierHot, m.Tier)
	assert.InDelta(t, 0.5, m.Importance, 1e-9)
	assert.Equal(t, "manual", m.Source)
	assert.NotEmpty(t, m.ID)
	assert.Len(t, m.Embedding, s.Dimension())
}

func TestStoreIDUniqueness(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		m, err := s.Remember(ctx, "distinct memory content number", RememberOptions{})
		require.NoError(t, err)
		assert.False(t, seen[m.ID], "duplicate id generated")
		seen[m.ID] = true
	}
}

// Scenario 1 (literal): classifier – decision, exercised through Process.
func TestProcessDecisionScenario(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	verdict, m, err := s.Process(ctx, "We decided to use MIT license for all repos", "MIT license it is.", ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, verdict.ShouldRemember)
	assert.GreaterOrEqual(t, verdict.Importance, 0.85)
	assert.Contains(t, verdict.SuggestedTags, "decision")
	assert.Equal(t, "contains decision", verdict.Reason)
	require.NotNil(t, m)
}

// Scenario 2 (literal): classifier – skip.
func TestProcessSkipScenario(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	verdict, m, err := s.Process(ctx, "Thank you!", "You're welcome.", ProcessOptions{})
	require.NoError(t, err)
	assert.False(t, verdict.ShouldRemember)
	assert.InDelta(t, 0.0, verdict.Importance, 1e-9)
	assert.Equal(t, "acknowledgment/filler", verdict.Reason)
	assert.Nil(t, m)
}

// Scenario 3 (literal): dedup guard.
func TestProcessDedupGuardScenario(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	_, first, err := s.Process(ctx, "We decided to use MIT license for all repos", "MIT license it is.", ProcessOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)

	verdict, second, err := s.Process(ctx, "We decided to use MIT license for all repos", "MIT license it is.", ProcessOptions{})
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.False(t, verdict.ShouldRemember)
	assert.Contains(t, verdict.Reason, "duplicate")

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories)
}

// Scenario 4 (literal): recall ordering on tag filter and tie.
func TestRecallOrderingByTagAndInsertionTie(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	a1, err := s.Remember(ctx, "apple banana cherry", RememberOptions{Tags: []string{"A"}})
	require.NoError(t, err)
	_, err = s.Remember(ctx, "apple banana cherry", RememberOptions{Tags: []string{"B"}})
	require.NoError(t, err)
	a2, err := s.Remember(ctx, "apple banana cherry", RememberOptions{Tags: []string{"A"}})
	require.NoError(t, err)

	results, err := s.Recall(ctx, "apple banana cherry", RecallOptions{Limit: 10, MinScore: 0, Tags: []string{"A"}, DecayBoost: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a1.ID, results[0].ID)
	assert.Equal(t, a2.ID, results[1].ID)
}

func TestRecallEmptyStoreReturnsEmpty(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	results, err := s.Recall(ctx, "anything", NewRecallOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecallBumpsAccessBookkeeping(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	m, err := s.Remember(ctx, "a fact worth recalling twice", RememberOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.AccessCount)

	before := time.Now()
	results, err := s.Recall(ctx, "a fact worth recalling twice", RecallOptions{Limit: 5, MinScore: 0})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].AccessCount)
	assert.False(t, results[0].LastAccessed.Before(before))

	results, err = s.Recall(ctx, "a fact worth recalling twice", RecallOptions{Limit: 5, MinScore: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].AccessCount)
}

func TestForgetOnMissReturnsZero(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()
	_, err := s.Remember(ctx, "completely unrelated subject matter here", RememberOptions{})
	require.NoError(t, err)

	removed, err := s.Forget(ctx, "something about astrophysics and black holes", 0.99)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestForgetRemovesSimilarMemories(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()
	_, err := s.Remember(ctx, "the quick brown fox jumps", RememberOptions{})
	require.NoError(t, err)

	removed, err := s.Forget(ctx, "the quick brown fox jumps", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)
}

// Scenario 5 (literal): decay advances exactly one tier per pass.
func TestConsolidateDecayAdvancesOneTierPerPass(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	m, err := s.Remember(ctx, "an old memory about something unimportant", RememberOptions{Importance: 0.1})
	require.NoError(t, err)

	s.mu.Lock()
	for i := range s.memories {
		if s.memories[i].ID == m.ID {
			s.memories[i].CreatedAt = time.Now().Add(-15 * 24 * time.Hour)
			s.memories[i].AccessCount = 0
		}
	}
	s.mu.Unlock()

	_, err = s.Consolidate(ctx)
	require.NoError(t, err)

	s.mu.Lock()
	var tierAfterFirst Tier
	for _, mem := range s.memories {
		if mem.ID == m.ID {
			tierAfterFirst = mem.Tier
		}
	}
	s.mu.Unlock()
	assert.Equal(t, TierWarm, tierAfterFirst)

	_, err = s.Consolidate(ctx)
	require.NoError(t, err)

	s.mu.Lock()
	var tierAfterSecond Tier
	for _, mem := range s.memories {
		if mem.ID == m.ID {
			tierAfterSecond = mem.Tier
		}
	}
	s.mu.Unlock()
	assert.Equal(t, TierWarm, tierAfterSecond, "a second pass in the same instant should not advance further without crossing warmDays")
}

// Scenario 6 (literal): archive truncation.
func TestConsolidateArchiveTruncation(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	longContent := ""
	for i := 0; i < 1000; i++ {
		longContent += "x"
	}

	m, err := s.Remember(ctx, longContent, RememberOptions{})
	require.NoError(t, err)

	s.mu.Lock()
	for i := range s.memories {
		if s.memories[i].ID == m.ID {
			s.memories[i].Tier = TierArchive
		}
	}
	s.mu.Unlock()

	_, err = s.Consolidate(ctx)
	require.NoError(t, err)

	s.mu.Lock()
	var found Memory
	for _, mem := range s.memories {
		if mem.ID == m.ID {
			found = mem
		}
	}
	s.mu.Unlock()

	assert.Len(t, []rune(found.Content), 203)
	assert.True(t, found.Truncated)
	assert.Equal(t, 1000, found.OriginalLength)
}

func TestConsolidateIdempotentOnSecondCall(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()
	_, err := s.Remember(ctx, "one single stable memory", RememberOptions{})
	require.NoError(t, err)

	_, err = s.Consolidate(ctx)
	require.NoError(t, err)
	report2, err := s.Consolidate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, report2.MemoriesMerged)
	assert.Equal(t, 0, report2.DuplicatesRemoved)
}

func TestConsolidatePhase4AbsentLeavesMergedZero(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Remember(ctx, "clustered content about the same topic repeated", RememberOptions{})
		require.NoError(t, err)
	}

	report, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.MemoriesMerged)
}

func TestSizeBoundEnforcedOnOverflow(t *testing.T) {
	s := testStore(t, func(c *Config) { c.MaxMemories = 3 })
	ctx := context.Background()

	contents := []string{
		"alpha bravo charlie delta echo",
		"foxtrot golf hotel india juliet",
		"kilo lima mike november oscar",
		"papa quebec romeo sierra tango",
		"uniform victor whiskey xray yankee",
		"zulu alpha bravo charlie delta",
	}
	for _, c := range contents {
		_, err := s.Remember(ctx, c, RememberOptions{})
		require.NoError(t, err)
	}

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.TotalMemories, 3)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "roundtrip.engram")

	s1, err := New(Config{File: file, Logger: zap.NewNop()})
	require.NoError(t, err)
	_, err = s1.Remember(context.Background(), "a memory that should survive a round trip", RememberOptions{Tags: []string{"x"}, Importance: 0.7})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(Config{File: file, Logger: zap.NewNop()})
	require.NoError(t, err)
	stats, err := s2.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories)
	require.NoError(t, s2.Close())
}

func TestNotInitializedBeforeNew(t *testing.T) {
	var s Store
	_, err := s.Remember(context.Background(), "x", RememberOptions{})
	var niErr *NotInitializedError
	assert.ErrorAs(t, err, &niErr)
}

func TestBootstrapRunsFourQueries(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()
	_, err := s.Remember(ctx, "my identity is a backend engineer who loves Go", RememberOptions{Tags: []string{"identity"}})
	require.NoError(t, err)

	results, text, err := s.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.NotNil(t, text)
}

func TestSessionThreading(t *testing.T) {
	s := testStore(t, nil)
	ctx := context.Background()

	_, err := s.Remember(ctx, "first session memory content here", RememberOptions{SessionID: "s1"})
	require.NoError(t, err)
	_, err = s.Remember(ctx, "second session memory content here", RememberOptions{SessionID: "s2"})
	require.NoError(t, err)

	session1, err := s.Session("s1")
	require.NoError(t, err)
	assert.Len(t, session1, 1)

	last, err := s.LastSession()
	require.NoError(t, err)
	assert.Len(t, last, 1)
	assert.Equal(t, "s2", last[0].SessionID)
}
