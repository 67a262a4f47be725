package aging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kittclouds/memoryd/internal/types"
)

const millisPerDay = 24 * 60 * 60 * 1000

func TestClassifyUsesTagHintsFirst(t *testing.T) {
	m := &types.Memory{Content: "irrelevant body text", Tags: []string{"config"}}
	assert.Equal(t, types.ClassConfiguration, Classify(m))
}

func TestClassifyFallsBackToContentKeywords(t *testing.T) {
	m := &types.Memory{Content: "remember this workflow pattern for releases", Scope: types.ScopeGlobal}
	assert.Equal(t, types.ClassWorkflowPattern, Classify(m))
}

func TestClassifyDefaultsByScope(t *testing.T) {
	project := &types.Memory{Content: "plain note with nothing special", Scope: types.ScopeProject}
	assert.Equal(t, types.ClassProjectContext, Classify(project))

	global := &types.Memory{Content: "plain note with nothing special", Scope: types.ScopeGlobal}
	assert.Equal(t, types.ClassDocumentation, Classify(global))
}

// TestTemporaryNoteAgesToStaleOrDeclining mirrors spec scenario 4: a
// temporary_note created 10 days ago with zero accesses and no tags must
// never be fresh or active.
func TestTemporaryNoteAgesToStaleOrDeclining(t *testing.T) {
	m := &types.Memory{
		ID: "m1", Content: "temp scratch note to self",
		Scope: types.ScopeGlobal, CreatedAt: 0, AccessedAt: 0, AccessCount: 0,
	}
	in := Input{
		Memory:    m,
		AgeHours:  10 * 24,
		DaysAlive: 10,
		AgeDays:   10,
	}
	profile := Evaluate(in, 10*millisPerDay)
	assert.Equal(t, types.ClassTemporaryNote, profile.ContentClass)
	assert.Contains(t, []types.Phase{types.PhaseStale, types.PhaseDeclining}, profile.Phase)
	assert.NotEqual(t, types.PhaseFresh, profile.Phase)
	assert.NotEqual(t, types.PhaseActive, profile.Phase)
}

func TestFreshPhaseForNewMemory(t *testing.T) {
	m := &types.Memory{ID: "m1", Content: "brand new thought", CreatedAt: 0}
	in := Input{Memory: m, AgeHours: 1, DaysAlive: 1.0 / 24, AgeDays: 0}
	profile := Evaluate(in, millisPerDay/24)
	assert.Equal(t, types.PhaseFresh, profile.Phase)
}

func TestDeprecatedTagWinsOverAge(t *testing.T) {
	m := &types.Memory{ID: "m1", Content: "old api usage", Tags: []string{"deprecated"}, AccessCount: 50}
	in := Input{Memory: m, AgeHours: 400 * 24, DaysAlive: 400, AgeDays: 400}
	profile := Evaluate(in, 400*millisPerDay)
	assert.Equal(t, types.PhaseDeprecated, profile.Phase)
}

// TestPhaseStability mirrors testable property 7: re-running evaluation
// for an unchanged memory at a fixed now yields the same phase and score.
func TestPhaseStability(t *testing.T) {
	m := &types.Memory{ID: "m1", Content: "stable content about the project architecture", AccessCount: 5, CreatedAt: 0}
	in := Input{Memory: m, AgeHours: 48, DaysAlive: 2, AgeDays: 2}

	first := Evaluate(in, 2*millisPerDay)
	second := Evaluate(in, 2*millisPerDay)

	assert.Equal(t, first.Phase, second.Phase)
	assert.Equal(t, first.CompositeScore, second.CompositeScore)
}

func TestRecommendDemotesLowScoringCoreMemory(t *testing.T) {
	m := &types.Memory{ID: "m1", Tier: types.TierCore}
	rec := Recommend(m, 0.3, types.PhaseStable)
	assert.NotNil(t, rec)
	assert.Equal(t, types.TierCore, rec.From)
	assert.Equal(t, types.TierLongterm, rec.To)
}

func TestRecommendPromotesActiveLongtermMemory(t *testing.T) {
	m := &types.Memory{ID: "m1", Tier: types.TierLongterm}
	rec := Recommend(m, 0.9, types.PhaseActive)
	assert.NotNil(t, rec)
	assert.Equal(t, types.TierLongterm, rec.From)
	assert.Equal(t, types.TierCore, rec.To)
}

func TestRecommendReturnsNilWhenNoThresholdCrossed(t *testing.T) {
	m := &types.Memory{ID: "m1", Tier: types.TierCore}
	assert.Nil(t, Recommend(m, 0.7, types.PhaseStable))
}

func TestNextEvaluationAtClampsToOneDay(t *testing.T) {
	got := NextEvaluationAt(0, 1) // half_life_days/4 = 0.25, clamp to 1 day
	assert.Equal(t, int64(millisPerDay), got)
}

func TestAgingRateFloorsAtOneTenth(t *testing.T) {
	assert.InDelta(t, 0.1, AgingRate(1.0), 1e-9)
	assert.InDelta(t, 0.5, AgingRate(0.5), 1e-9)
}
