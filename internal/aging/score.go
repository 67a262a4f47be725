package aging

import (
	"strings"

	"github.com/kittclouds/memoryd/internal/types"
)

// Weights are the fixed composite-score coefficients from spec §4.4.
const (
	weightTemporal     = 0.25
	weightUsage        = 0.30
	weightContextual   = 0.20
	weightSemantic     = 0.10
	weightRelationship = 0.10
	weightSystem       = 0.05
)

// Factors bundles the six relevance factors computed for one memory at one
// instant, before they are combined into a composite score.
type Factors struct {
	Temporal     float64
	Usage        float64
	Contextual   float64
	Semantic     float64
	Relationship float64
	System       float64
}

// Composite combines f's six factors into spec §4.4's fixed weighted sum.
func (f Factors) Composite() float64 {
	return f.Temporal*weightTemporal +
		f.Usage*weightUsage +
		f.Contextual*weightContextual +
		f.Semantic*weightSemantic +
		f.Relationship*weightRelationship +
		f.System*weightSystem
}

// AgingRate implements spec §4.4: max(0.1, 1 - composite_score).
func AgingRate(composite float64) float64 {
	rate := 1 - composite
	if rate < 0.1 {
		return 0.1
	}
	return rate
}

// AdaptiveHalfLife implements spec §4.4's adaptive half-life formula:
// base_half_life · (1 + (usage−0.5)·usage_sensitivity) · (1 + (context−0.5)·context_importance).
func AdaptiveHalfLife(baseHalfLifeDays, usage, usageSensitivity, context, contextImportance float64) float64 {
	adjusted := baseHalfLifeDays *
		(1 + (usage-0.5)*usageSensitivity) *
		(1 + (context-0.5)*contextImportance)
	if adjusted < 0.1 {
		return 0.1
	}
	return adjusted
}

// Input is everything Evaluate needs about one memory at evaluation
// time; the engine assembles it from the storage, cache, and relationship
// layers so this package stays storage-agnostic.
type Input struct {
	Memory           *types.Memory
	AgeHours         float64
	DaysAlive        float64
	AgeDays          float64
	CurrentContext   string
	AccessedRecently bool
	Related          []RelatedEdge
}

// Evaluate runs the full pipeline for one memory: classify, compute
// factors, combine into a composite score, assign a phase, and derive the
// next evaluation time. now is unix millis.
func Evaluate(in Input, now int64) *types.AgingProfile {
	class := Classify(in.Memory)
	profile := ProfileFor(class)

	f := Factors{
		Temporal:     TemporalFactor(in.AgeHours, profile.BaseHalfLifeDays),
		Usage:        UsageFactor(in.Memory.AccessCount, in.DaysAlive, profile.UsageSensitivity),
		Contextual:   ContextualFactor(in.Memory.Content, in.CurrentContext, in.AccessedRecently),
		Semantic:     SemanticFactor(in.Memory.Content),
		Relationship: RelationshipFactorScore(in.Related),
		System:       SystemFactor(in.Memory.Scope == types.ScopeGlobal, in.Memory.Tags),
	}
	composite := f.Composite()

	halfLife := AdaptiveHalfLife(profile.BaseHalfLifeDays, f.Usage, profile.UsageSensitivity, f.Contextual, profile.ContextImportance)
	phase := AssignPhase(in.Memory, in.AgeDays, composite, f.Usage, f.Semantic)

	return &types.AgingProfile{
		MemoryID:         in.Memory.ID,
		ContentClass:     class,
		AgingRate:        AgingRate(composite),
		HalfLifeDays:     halfLife,
		CompositeScore:   composite,
		Phase:            phase,
		NextEvaluationAt: NextEvaluationAt(now, halfLife),
	}
}

// AssignPhase implements spec §4.4's phase rules, evaluated in the order
// given (first match wins).
func AssignPhase(m *types.Memory, ageDays, composite, usage, semantic float64) types.Phase {
	if ageDays < 1 {
		return types.PhaseFresh
	}
	if hasDeprecatedTag(m.Tags) {
		return types.PhaseDeprecated
	}
	if composite < 0.2 || (ageDays > 180 && m.AccessCount == 0) {
		return types.PhaseStale
	}
	if usage < 0.3 && semantic > 0.6 {
		return types.PhaseDormant
	}
	if usage < 0.4 && ageDays > 30 {
		return types.PhaseDeclining
	}
	if usage > 0.6 && composite > 0.5 {
		return types.PhaseActive
	}
	return types.PhaseStable
}

func hasDeprecatedTag(tags []string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, "deprecated") {
			return true
		}
	}
	return false
}

// NextEvaluationAt implements spec §4.4's evaluation cadence:
// now + half_life_days/4, clamped to at least 1 day out. now and the
// result are unix millis.
func NextEvaluationAt(now int64, halfLifeDays float64) int64 {
	intervalDays := halfLifeDays / 4
	if intervalDays < 1 {
		intervalDays = 1
	}
	const millisPerDay = 24 * 60 * 60 * 1000
	return now + int64(intervalDays*millisPerDay)
}

// Recommend implements spec §4.4's migration recommendations: demote a
// core memory whose composite has fallen below 0.4; promote a longterm,
// active memory whose composite exceeds 0.8. Returns nil when neither
// applies.
func Recommend(m *types.Memory, composite float64, phase types.Phase) *types.MigrationRecommendation {
	switch {
	case m.Tier == types.TierCore && composite < 0.4:
		return &types.MigrationRecommendation{
			MemoryID: m.ID, From: types.TierCore, To: types.TierLongterm,
			Reason: "composite score below demotion threshold",
		}
	case m.Tier == types.TierLongterm && composite > 0.8 && phase == types.PhaseActive:
		return &types.MigrationRecommendation{
			MemoryID: m.ID, From: types.TierLongterm, To: types.TierCore,
			Reason: "active memory with high composite score is a promotion candidate",
		}
	default:
		return nil
	}
}
