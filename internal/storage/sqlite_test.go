package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

func openTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	m := &types.Memory{
		Content:   "the quick brown fox",
		Tier:      types.TierCore,
		Scope:     types.ScopeGlobal,
		Tags:      []string{"Fox", "fox", "animal"},
		Metadata:  map[string]interface{}{"source": "test"},
		CreatedAt: 1000,
		Priority:  types.DefaultPriority,
	}

	id, err := b.Put(ctx, m, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := b.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", got.Content)
	assert.Equal(t, types.TierCore, got.Tier)
	assert.ElementsMatch(t, []string{"Fox", "fox", "animal"}, got.Tags)
}

func TestGetNotFound(t *testing.T) {
	b := openTestBackend(t)
	_, err := b.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestPutDuplicateConflict(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	m1 := &types.Memory{Content: "dup", Tier: types.TierLongterm, Scope: types.ScopeGlobal, CreatedAt: 1}
	_, err := b.Put(ctx, m1, false)
	require.NoError(t, err)

	m2 := &types.Memory{Content: "dup", Tier: types.TierLongterm, Scope: types.ScopeGlobal, CreatedAt: 2}
	_, err = b.Put(ctx, m2, false)
	require.Error(t, err)
	assert.Equal(t, memerr.Conflict, memerr.KindOf(err))

	// allowDuplicate bypasses the check entirely
	_, err = b.Put(ctx, m2, true)
	require.NoError(t, err)
}

func TestDeleteCascade(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	aID, err := b.Put(ctx, &types.Memory{Content: "a", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)
	bID, err := b.Put(ctx, &types.Memory{Content: "b", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)

	require.NoError(t, b.UpsertRelationship(ctx, aID, bID, 0.9, 10))

	removed, err := b.Delete(ctx, aID, true, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = b.Get(ctx, bID)
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

// TestDeleteCascadeSkipsDecayedEdge mirrors spec §4.6's "at deletion time"
// wording: an edge whose persisted strength was above CascadeStrength at
// last reinforcement but has since decayed below it must not cascade.
func TestDeleteCascadeSkipsDecayedEdge(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	aID, err := b.Put(ctx, &types.Memory{Content: "a", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)
	bID, err := b.Put(ctx, &types.Memory{Content: "b", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)

	require.NoError(t, b.UpsertRelationship(ctx, aID, bID, 0.9, 10))

	const millisPerDay = 24 * 60 * 60 * 1000
	tenDaysLater := int64(10) + 10*millisPerDay

	removed, err := b.Delete(ctx, aID, true, tenDaysLater)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "decayed-below-threshold edge must not cascade")

	_, err = b.Get(ctx, bID)
	require.NoError(t, err, "related memory should survive an edge that decayed below CascadeStrength")
}

func TestDeleteNoCascadeLeavesRelated(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	aID, err := b.Put(ctx, &types.Memory{Content: "a", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)
	bID, err := b.Put(ctx, &types.Memory{Content: "b", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1}, false)
	require.NoError(t, err)
	require.NoError(t, b.UpsertRelationship(ctx, aID, bID, 0.9, 10))

	removed, err := b.Delete(ctx, aID, false, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = b.Get(ctx, bID)
	require.NoError(t, err)
}

func TestRecordAccessMonotonic(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	id, err := b.Put(ctx, &types.Memory{Content: "x", Tier: types.TierCore, Scope: types.ScopeGlobal, CreatedAt: 1, AccessedAt: 100}, false)
	require.NoError(t, err)

	require.NoError(t, b.RecordAccess(ctx, id, 200))
	got, err := b.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.AccessedAt)
	assert.Equal(t, int64(1), got.AccessCount)

	// an earlier timestamp must not regress accessed_at or bump the counter
	require.NoError(t, b.RecordAccess(ctx, id, 50))
	got, err = b.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.AccessedAt)
	assert.Equal(t, int64(1), got.AccessCount)
}

func TestScanFiltersByTierScopeAndTag(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	_, err := b.Put(ctx, &types.Memory{Content: "core global", Tier: types.TierCore, Scope: types.ScopeGlobal, Tags: []string{"alpha"}, CreatedAt: 1}, false)
	require.NoError(t, err)
	_, err = b.Put(ctx, &types.Memory{Content: "longterm project", Tier: types.TierLongterm, Scope: types.ScopeProject, ProjectID: "proj-a", Tags: []string{"beta"}, CreatedAt: 2}, false)
	require.NoError(t, err)

	var seen []string
	err = b.Scan(ctx, ScanFilter{Tier: types.TierCore}, func(m *types.Memory) bool {
		seen = append(seen, m.ID)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, 1)

	seen = nil
	err = b.Scan(ctx, ScanFilter{Tag: "beta"}, func(m *types.Memory) bool {
		seen = append(seen, m.ID)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestRelationshipSaturatesAtOne(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertRelationship(ctx, "a", "b", 0.8, 1))
	require.NoError(t, b.UpsertRelationship(ctx, "b", "a", 0.9, 2))

	r, err := b.GetRelationship(ctx, "a", "b")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 0.9, r.Strength)

	require.NoError(t, b.UpsertRelationship(ctx, "a", "b", 5.0, 3))
	r, err = b.GetRelationship(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Strength)
}

func TestAgingProfileRoundTripAndDue(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertAgingProfile(ctx, &types.AgingProfile{
		MemoryID: "m1", ContentClass: types.ClassUserPreference, AgingRate: 0.1,
		HalfLifeDays: 30, CompositeScore: 0.5, Phase: types.PhaseActive, NextEvaluationAt: 100,
	}))

	got, err := b.GetAgingProfile(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.ClassUserPreference, got.ContentClass)

	due, err := b.DueAgingProfiles(ctx, 200, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "m1", due[0].MemoryID)

	due, err = b.DueAgingProfiles(ctx, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	id, err := b.Put(ctx, &types.Memory{Content: "export me", Tier: types.TierCore, Scope: types.ScopeGlobal, Tags: []string{"keep"}, CreatedAt: 1}, false)
	require.NoError(t, err)
	require.NoError(t, b.UpsertRelationship(ctx, id, "ghost", 0.5, 1))
	require.NoError(t, b.UpsertAgingProfile(ctx, &types.AgingProfile{
		MemoryID: id, ContentClass: types.ClassUserPreference, AgingRate: 0.1,
		HalfLifeDays: 30, CompositeScore: 0.5, Phase: types.PhaseActive, NextEvaluationAt: 999,
	}))

	data, err := b.Export(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	b2 := openTestBackend(t)
	require.NoError(t, b2.Import(ctx, data))

	restored, err := b2.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "export me", restored.Content)

	profile, err := b2.GetAgingProfile(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, types.ClassUserPreference, profile.ContentClass)

	ids, err := b2.TagLookup(ctx, "keep")
	require.NoError(t, err)
	_, ok := ids[id]
	assert.True(t, ok)
}

func TestStatsAggregates(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	_, err := b.Put(ctx, &types.Memory{Content: "a", Tier: types.TierCore, Scope: types.ScopeGlobal, Tags: []string{"t1"}, CreatedAt: 1, ContentSizeBytes: 10}, false)
	require.NoError(t, err)
	_, err = b.Put(ctx, &types.Memory{Content: "b", Tier: types.TierLongterm, Scope: types.ScopeProject, ProjectID: "p1", Tags: []string{"t1"}, CreatedAt: 2, ContentSizeBytes: 20}, false)
	require.NoError(t, err)

	agg, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.TotalMemories)
	assert.Equal(t, int64(10), agg.BytesByTier[types.TierCore])
	assert.Equal(t, int64(20), agg.BytesByTier[types.TierLongterm])
	assert.Equal(t, 2, agg.TopTags["t1"])
	assert.Contains(t, agg.ActiveProjects, "p1")
}
