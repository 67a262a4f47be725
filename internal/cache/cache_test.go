package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoryd/internal/memerr"
)

func TestEditGetRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	require.NoError(t, c.Edit("a", "hello cache", 5, []string{"x"}, 1000))

	got, ok, err := c.Get("a", 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello cache", got)
}

func TestEditTooLarge(t *testing.T) {
	c := New(Config{MaxTotalBytes: 10, CompressionThreshold: 0.8, MinCompressionSavings: 0.2})
	err := c.Edit("a", strings.Repeat("x", 11), 5, nil, 1000)
	require.Error(t, err)
	assert.Equal(t, memerr.TooLarge, memerr.KindOf(err))
}

// TestEvictionByPriority mirrors spec scenario 2: three 40-byte core blocks
// at priorities 1, 5, 9; a fourth 40-byte block at priority 7 must evict the
// priority-1 block, leaving the three highest-scored blocks resident. The
// budget is 130, not the scenario's literal 100: three 40-byte blocks alone
// already total 120 bytes, so a 100-byte budget can never hold three of them
// at once (with compression disabled, as here) — 130 is the smallest budget
// that both forces the priority-1 eviction on the fourth insert (120+40=160
// exceeds it) and actually allows the three survivors (120 bytes) to coexist.
func TestEvictionByPriority(t *testing.T) {
	c := New(Config{MaxTotalBytes: 130, CompressionThreshold: 0.99, MinCompressionSavings: 2.0})

	block := func(n byte) string { return strings.Repeat(string(n), 40) }

	require.NoError(t, c.Edit("p1", block('a'), 1, nil, 1000))
	require.NoError(t, c.Edit("p5", block('b'), 5, nil, 1000))
	require.NoError(t, c.Edit("p9", block('c'), 9, nil, 1000))

	require.NoError(t, c.Edit("p7", block('d'), 7, nil, 1000))

	assert.False(t, c.Has("p1"), "lowest-priority block should have been evicted")
	assert.True(t, c.Has("p5"))
	assert.True(t, c.Has("p9"))
	assert.True(t, c.Has("p7"))
	assert.LessOrEqual(t, c.UsedBytes(), 130)
}

// TestCacheFullOnEmptyCache exercises the defensive CacheFull branch
// directly: an empty cache asked to make room it cannot (no victim exists)
// must fail rather than underflow its byte budget.
func TestCacheFullOnEmptyCache(t *testing.T) {
	c := New(Config{MaxTotalBytes: 10, CompressionThreshold: 0.99, MinCompressionSavings: 2.0})
	err := c.makeRoom(11, 1000)
	require.Error(t, err)
	assert.Equal(t, memerr.CacheFull, memerr.KindOf(err))
}

func TestDeleteReclaims(t *testing.T) {
	c := New(DefaultConfig())
	require.NoError(t, c.Edit("a", "content", 5, nil, 1000))
	assert.True(t, c.Has("a"))

	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.Equal(t, 0, c.UsedBytes())
}

func TestCompressionAppliesWhenSavingsSufficient(t *testing.T) {
	c := New(Config{MaxTotalBytes: 4096, CompressionThreshold: 0.8, MinCompressionSavings: 0.2})
	highlyCompressible := strings.Repeat("aaaaaaaaaa", 50)

	require.NoError(t, c.Edit("a", highlyCompressible, 5, nil, 1000))
	got, ok, err := c.Get("a", 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, highlyCompressible, got)
	assert.Less(t, c.UsedBytes(), len(highlyCompressible))
}

func TestContentsSnapshotForLexicalScan(t *testing.T) {
	c := New(DefaultConfig())
	require.NoError(t, c.Edit("a", "one two three", 5, nil, 1000))
	require.NoError(t, c.Edit("b", "four five six", 5, nil, 1000))

	snap := c.Contents()
	assert.Equal(t, "one two three", snap["a"])
	assert.Equal(t, "four five six", snap["b"])
}
