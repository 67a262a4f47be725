package aging

import (
	"math"
	"strings"

	"github.com/kittclouds/memoryd/internal/query"
)

const (
	hoursPerDay       = 24.0
	accessSaturation  = 20.0 // accesses at which the usage factor saturates
	structuredMarkers = "{}[]:=->"
)

// TemporalFactor implements spec §4.4: 0.5^(age_hours / (half_life_days·24)).
func TemporalFactor(ageHours, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 0.01
	}
	return math.Pow(0.5, ageHours/(halfLifeDays*hoursPerDay))
}

// UsageFactor combines a saturating access-count term with an
// access-frequency term (accesses per day alive), then raises the blend to
// the power (1 - usageSensitivity) per spec §4.4.
func UsageFactor(accessCount int64, daysAlive float64, usageSensitivity float64) float64 {
	normalizedCount := math.Min(float64(accessCount), accessSaturation) / accessSaturation

	if daysAlive <= 0 {
		daysAlive = 1.0 / 24 // at least one hour old
	}
	frequency := float64(accessCount) / daysAlive
	frequencyScore := math.Min(frequency, 1.0)

	combined := (normalizedCount + frequencyScore) / 2
	exponent := 1 - usageSensitivity
	if exponent < 0 {
		exponent = 0
	}
	return math.Pow(combined, exponent)
}

// ContextualFactor implements spec §4.4's contextual relevance: when no
// current context is supplied, the neutral 0.5. Otherwise it blends a
// recency presence boost (the memory was read within the last 24h, the
// closest proxy this engine has to "accesses whose recorded context
// overlaps" without a persisted per-access context log) with the Jaccard
// token overlap between content and context.
func ContextualFactor(content, currentContext string, accessedRecently bool) float64 {
	if strings.TrimSpace(currentContext) == "" {
		return 0.5
	}
	overlap := jaccardOverlap(query.TokenizeSignificant(content), query.TokenizeSignificant(currentContext))
	presence := 0.0
	if accessedRecently {
		presence = 1.0
	}
	return 0.5*presence + 0.5*overlap
}

func jaccardOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// SemanticFactor implements spec §4.4's information-density measure: the
// unique/total token ratio plus a small bonus for structured markers.
func SemanticFactor(content string) float64 {
	tokens := query.Tokenize(content)
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	density := float64(len(unique)) / float64(len(tokens))

	bonus := 0.0
	for _, r := range structuredMarkers {
		if strings.ContainsRune(content, r) {
			bonus += 0.02
		}
	}
	score := density + bonus
	if score > 1 {
		score = 1
	}
	return score
}

// RelatedEdge pairs a related memory's composite score with the edge
// strength connecting it to the memory being scored.
type RelatedEdge struct {
	Strength       float64
	CompositeScore float64
}

// RelationshipFactorScore implements spec §4.4: weighted average of
// related memories' composite scores, weighted by edge strengths > 0.3.
func RelationshipFactorScore(related []RelatedEdge) float64 {
	var weightedSum, weightTotal float64
	for _, e := range related {
		if e.Strength <= 0.3 {
			continue
		}
		weightedSum += e.Strength * e.CompositeScore
		weightTotal += e.Strength
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

// SystemFactor gives a small baseline boost for global-scope memories and
// for memories tagged "system" or "config", per spec §4.4.
func SystemFactor(isGlobal bool, tags []string) float64 {
	score := 0.0
	if isGlobal {
		score += 0.5
	}
	for _, t := range tags {
		lt := strings.ToLower(t)
		if lt == "system" || lt == "config" {
			score += 0.5
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}
