package engram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClassifier() *Classifier {
	return NewClassifier(0.3, 0.92)
}

func TestClassifyTooShort(t *testing.T) {
	v := newTestClassifier().Classify("hi", "hello", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "too short", v.Reason)
}

func TestClassifyAcknowledgmentSkipped(t *testing.T) {
	v := newTestClassifier().Classify("Thank you!", "You're welcome.", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "acknowledgment/filler", v.Reason)
}

func TestClassifyGreetingSkipped(t *testing.T) {
	v := newTestClassifier().Classify("Good morning!", "hi there", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "greeting", v.Reason)
}

func TestClassifyFillerSkipped(t *testing.T) {
	v := newTestClassifier().Classify("one moment", "ok", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "filler", v.Reason)
}

func TestClassifyExplicitRemember(t *testing.T) {
	v := newTestClassifier().Classify(
		"Please remember that my deploy window is always Tuesday mornings.",
		"Got it, I'll keep that in mind.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.95, v.Importance, 1e-9)
	assert.Equal(t, "explicit remember command", v.Reason)
	assert.Contains(t, v.SuggestedTags, "explicit")
}

func TestClassifyDecision(t *testing.T) {
	v := newTestClassifier().Classify(
		"After going back and forth, we decided to go with Postgres over MySQL for this service.",
		"Sounds reasonable given your replication needs.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.85, v.Importance, 1e-9)
	assert.Equal(t, "contains decision", v.Reason)
	assert.Contains(t, v.SuggestedTags, "decision")
}

func TestClassifyLesson(t *testing.T) {
	v := newTestClassifier().Classify(
		"Turns out the problem was a stale cache entry that never expired.",
		"Good catch, that explains the flaky behavior.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.85, v.Importance, 1e-9)
	assert.Contains(t, v.SuggestedTags, "lesson")
}

func TestClassifyPreference(t *testing.T) {
	v := newTestClassifier().Classify(
		"I prefer tabs over spaces in every repo I maintain, no exceptions.",
		"Noted, I'll format accordingly.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.80, v.Importance, 1e-9)
	assert.Contains(t, v.SuggestedTags, "preference")
}

func TestClassifyIdentity(t *testing.T) {
	v := newTestClassifier().Classify(
		"My name is Priya and I work at a small fintech startup downtown.",
		"Nice to meet you, Priya.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.80, v.Importance, 1e-9)
	assert.Contains(t, v.SuggestedTags, "identity")
}

func TestClassifyFactual(t *testing.T) {
	v := newTestClassifier().Classify(
		"The staging endpoint is https://staging.example.com and it runs v2.3.1.",
		"Thanks, I'll point the client at that.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.60, v.Importance, 1e-9)
	assert.Contains(t, v.SuggestedTags, "factual")
}

func TestClassifyTechnical(t *testing.T) {
	v := newTestClassifier().Classify(
		"We should revisit the database schema before the next migration.",
		"Agreed, the current architecture won't scale well.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.InDelta(t, 0.50, v.Importance, 1e-9)
	assert.Contains(t, v.SuggestedTags, "technical")
}

func TestClassifyCodeBlock(t *testing.T) {
	v := newTestClassifier().Classify(
		"Here's the fix:\n```go\nfunc add(a, b int) int {\n    return a + b\n}\n```",
		"That looks correct.", nil, nil)
	assert.True(t, v.ShouldRemember)
	assert.Contains(t, v.SuggestedTags, "code")
	assert.Contains(t, v.SuggestedTags, "technical")
}

func TestClassifyWordCountFallbackBelowThreshold(t *testing.T) {
	v := newTestClassifier().Classify(
		"Do you think it will rain tomorrow afternoon near the lake?",
		"It might, the forecast mentioned scattered showers in the late afternoon, so you may want to bring a light jacket and maybe an umbrella just in case the clouds roll in early.", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "general conversation", v.Reason)
	assert.InDelta(t, 0.2, v.Importance, 1e-9)
}

func TestClassifyNoImportanceSignalsRejected(t *testing.T) {
	v := newTestClassifier().Classify("what time is it", "it's three", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.Equal(t, "no importance signals", v.Reason)
}

func TestClassifyDeduplicateGuard(t *testing.T) {
	existing := [][]float32{{1, 0, 0}}
	newEmb := []float32{1, 0, 0}
	v := newTestClassifier().Classify(
		"Please remember that my deploy window is always Tuesday mornings.",
		"Got it.", newEmb, existing)
	assert.False(t, v.ShouldRemember)
	assert.Contains(t, v.Reason, "duplicate")
}

func TestClassifyMinImportanceCutoff(t *testing.T) {
	strict := NewClassifier(0.9, 0.92)
	v := strict.Classify(
		"We should revisit the database schema before the next migration.",
		"Agreed, the current architecture won't scale well.", nil, nil)
	assert.False(t, v.ShouldRemember)
	assert.InDelta(t, 0.50, v.Importance, 1e-9)
}
