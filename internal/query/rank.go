package query

import (
	"sort"
	"strings"

	"github.com/kittclouds/memoryd/internal/types"
)

// Scoring weights fixed by spec §4.5 step 3.
const (
	exactSubstringBonus  = 100.0
	tagMatchBonus         = 80.0
	termOverlapWeight     = 60.0
	priorityBoostPerPoint = 2.0
	accessBoostCap        = 20.0
	semanticContribution  = 40.0 // scale for the combined TF-IDF/lexical "semantic" term
	minRelevanceScore     = 20.0

	semanticTFIDFWeight = 0.4
	semanticLexicalWeight = 0.6
)

// MatchType labels which scoring component dominated a result, surfaced to
// callers in search_memory's response shape (spec §6).
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchTag      MatchType = "tag"
	MatchTerm     MatchType = "term"
	MatchSemantic MatchType = "semantic"
)

// Result is one ranked candidate.
type Result struct {
	Memory    *types.Memory
	Score     float64
	MatchType MatchType
}

// Rank implements spec §4.5 steps 1-5 minus the final access-recording side
// effect (the caller records accesses after truncating to limit). idf is an
// optional corpus-wide inverse-document-frequency table; pass nil to fall
// back to uniform term weights.
func Rank(queryStr string, candidates []*types.Memory, idf map[string]float64, limit int) []Result {
	queryTokens := Tokenize(queryStr)
	if len(queryTokens) == 0 || len(candidates) == 0 {
		return nil
	}
	lowerQuery := strings.ToLower(queryStr)

	results := make([]Result, 0, len(candidates))
	for _, m := range candidates {
		score, matchType := scoreCandidate(queryTokens, lowerQuery, m, idf)
		if score <= minRelevanceScore {
			continue
		}
		results = append(results, Result{Memory: m, Score: score, MatchType: matchType})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.AccessedAt != b.Memory.AccessedAt {
			return a.Memory.AccessedAt > b.Memory.AccessedAt
		}
		if a.Memory.AccessCount != b.Memory.AccessCount {
			return a.Memory.AccessCount > b.Memory.AccessCount
		}
		return a.Memory.ID < b.Memory.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreCandidate(queryTokens []string, lowerQuery string, m *types.Memory, idf map[string]float64) (float64, MatchType) {
	lowerContent := strings.ToLower(m.Content)

	exact := 0.0
	if lowerQuery != "" && strings.Contains(lowerContent, lowerQuery) {
		exact = exactSubstringBonus
	}

	tagHit := 0.0
	for _, token := range queryTokens {
		matched := false
		for _, tag := range m.Tags {
			if strings.EqualFold(tag, token) {
				matched = true
				break
			}
		}
		if matched {
			tagHit = tagMatchBonus
			break
		}
	}

	contentTokens := Tokenize(m.Content)
	matching := countMatchingTokens(queryTokens, contentTokens)
	termOverlap := termOverlapWeight * (float64(matching) / float64(len(queryTokens)))

	priorityBoost := float64(m.Priority) * priorityBoostPerPoint
	accessBoost := float64(m.AccessCount)
	if accessBoost > accessBoostCap {
		accessBoost = accessBoostCap
	}

	tfidfSim := CosineTermOverlap(queryTokens, contentTokens, idf)
	lexicalScore := lexicalSubstringScore(lowerQuery, lowerContent)
	semantic := (semanticTFIDFWeight*tfidfSim + semanticLexicalWeight*lexicalScore) * semanticContribution

	total := exact + tagHit + termOverlap + priorityBoost + accessBoost + semantic

	matchType := MatchSemantic
	switch {
	case exact > 0:
		matchType = MatchExact
	case tagHit > 0:
		matchType = MatchTag
	case termOverlap > 0:
		matchType = MatchTerm
	}
	return total, matchType
}

func countMatchingTokens(query, content []string) int {
	contentSet := make(map[string]struct{}, len(content))
	for _, t := range content {
		contentSet[t] = struct{}{}
	}
	count := 0
	for _, t := range query {
		if _, ok := contentSet[t]; ok {
			count++
		}
	}
	return count
}

// lexicalSubstringScore approximates how much of query appears contiguous
// in content, as the longest-common-substring length over the query
// length, the "lexical substring score" spec §4.5 blends into the semantic
// contribution.
func lexicalSubstringScore(query, content string) float64 {
	if query == "" {
		return 0
	}
	longest := longestCommonSubstring(query, content)
	return float64(longest) / float64(len(query))
}

func longestCommonSubstring(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}
