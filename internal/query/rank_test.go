package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoryd/internal/types"
)

func TestRankExactSubstringOutranksLooseMatch(t *testing.T) {
	exact := &types.Memory{ID: "exact", Content: "the database connection pool is leaking handles"}
	loose := &types.Memory{ID: "loose", Content: "remember to check handles and pools occasionally"}

	results := Rank("database connection pool", []*types.Memory{exact, loose}, nil, 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "exact", results[0].Memory.ID)
	assert.Equal(t, MatchExact, results[0].MatchType)
}

func TestRankTagMatchBoostsScore(t *testing.T) {
	tagged := &types.Memory{ID: "tagged", Content: "unrelated body", Tags: []string{"golang"}}
	plain := &types.Memory{ID: "plain", Content: "unrelated body"}

	results := Rank("golang", []*types.Memory{tagged, plain}, nil, 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "tagged", results[0].Memory.ID)
}

func TestRankAppliesMinimumRelevanceThreshold(t *testing.T) {
	irrelevant := &types.Memory{ID: "m1", Content: "completely unrelated sentence about weather"}
	results := Rank("database migration tooling", []*types.Memory{irrelevant}, nil, 10)
	assert.Empty(t, results)
}

func TestRankTieBreaksOnAccessedAtThenAccessCountThenID(t *testing.T) {
	base := "shared keyword appears here for overlap scoring purposes"
	a := &types.Memory{ID: "b-memory", Content: base, AccessedAt: 100, AccessCount: 5, Priority: 5}
	b := &types.Memory{ID: "a-memory", Content: base, AccessedAt: 100, AccessCount: 5, Priority: 5}

	results := Rank("shared keyword overlap", []*types.Memory{a, b}, nil, 10)
	require.Len(t, results, 2)
	assert.Equal(t, "a-memory", results[0].Memory.ID)
}

func TestRankTruncatesToLimit(t *testing.T) {
	var candidates []*types.Memory
	for i := 0; i < 5; i++ {
		candidates = append(candidates, &types.Memory{
			ID:      string(rune('a' + i)),
			Content: "repeated keyword content for overlap scoring",
			Priority: 5,
		})
	}
	results := Rank("repeated keyword overlap", candidates, nil, 2)
	assert.Len(t, results, 2)
}

func TestRankUsesIDFWhenProvided(t *testing.T) {
	m := &types.Memory{ID: "m1", Content: "rare uncommon terminology appears precisely once"}
	idf := IDFFromCorpus([][]string{Tokenize(m.Content), {"common", "common", "words"}})
	results := Rank("rare uncommon terminology", []*types.Memory{m}, idf, 10)
	require.NotEmpty(t, results)
	assert.Greater(t, results[0].Score, minRelevanceScore)
}

func TestLongestCommonSubstring(t *testing.T) {
	assert.Equal(t, 6, longestCommonSubstring("hello world", "say hello there"))
	assert.Equal(t, 0, longestCommonSubstring("abc", "xyz"))
	assert.Equal(t, 0, longestCommonSubstring("", "abc"))
}
