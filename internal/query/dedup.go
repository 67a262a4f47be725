package query

import (
	"sort"

	"github.com/kittclouds/memoryd/internal/types"
)

// DefaultSimilarityThreshold is check_duplicate_memory's default
// similarity_threshold (spec §4.5 / §6).
const DefaultSimilarityThreshold = 0.8

// Similar is one existing memory found to resemble a candidate, with the
// score that earned it a place in the result.
type Similar struct {
	Memory *types.Memory
	Score  float64
}

// FindSimilar scores content against existing, candidates already narrowed
// to the same (tier, scope, project_id) partition, and returns those at or
// above threshold sorted by descending score, capped at topK. A threshold
// of 0 falls back to DefaultSimilarityThreshold.
func FindSimilar(content string, tags []string, existing []*types.Memory, idf map[string]float64, threshold float64, topK int) []Similar {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	contentTokens := Tokenize(content)
	if len(contentTokens) == 0 || len(existing) == 0 {
		return nil
	}

	var out []Similar
	for _, m := range existing {
		score := similarityScore(contentTokens, tags, m, idf)
		if score >= threshold {
			out = append(out, Similar{Memory: m, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// similarityScore blends TF-IDF cosine similarity with tag-set overlap into
// a single [0,1] figure. Unlike Rank's scoreCandidate, which weighs exact
// substrings and priority/access boosts for relevance ordering,
// deduplication cares only about how alike the two pieces of content are.
func similarityScore(contentTokens, candidateTags []string, m *types.Memory, idf map[string]float64) float64 {
	existingTokens := Tokenize(m.Content)
	tfidfSim := CosineTermOverlap(contentTokens, existingTokens, idf)
	tagSim := tagOverlap(candidateTags, m.Tags)
	return 0.8*tfidfSim + 0.2*tagSim
}

func tagOverlap(a, b []string) float64 {
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
