package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

func TestStoreMemoryRejectsEmptyContent(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.StoreMemory(context.Background(), "", types.TierCore, types.ScopeGlobal, "", nil, nil, 0, false)
	require.Error(t, err)
	assert.Equal(t, memerr.InvalidParams, memerr.KindOf(err))
}

func TestStoreMemoryRejectsOversizedCoreContent(t *testing.T) {
	eng := newTestEngine(t)
	huge := strings.Repeat("x", eng.cache.Capacity()+1)
	_, err := eng.StoreMemory(context.Background(), huge, types.TierCore, types.ScopeGlobal, "", nil, nil, 0, false)
	require.Error(t, err)
	assert.Equal(t, memerr.TooLarge, memerr.KindOf(err))
}

func TestStoreMemoryWarmsCoreCache(t *testing.T) {
	eng := newTestEngine(t)
	id, err := eng.StoreMemory(context.Background(), "remember this fact", types.TierCore, types.ScopeGlobal, "", []string{"fact"}, nil, 0, false)
	require.NoError(t, err)
	assert.True(t, eng.cache.Has(id))
}

func TestStoreMemoryLongtermDoesNotWarmCache(t *testing.T) {
	eng := newTestEngine(t)
	id, err := eng.StoreMemory(context.Background(), "archived note", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)
	assert.False(t, eng.cache.Has(id))
}

func TestSearchMemoryFindsExactSubstringHit(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	_, err := eng.StoreMemory(ctx, "the build pipeline uses bazel", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)
	_, err = eng.StoreMemory(ctx, "unrelated note about lunch", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)

	results, err := eng.SearchMemory(ctx, "bazel", "", types.ScopeGlobal, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Memory.Content, "bazel")
}

func TestSearchMemoryValidatesLimit(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.SearchMemory(context.Background(), "q", "", types.ScopeGlobal, "", 51)
	require.Error(t, err)
	assert.Equal(t, memerr.InvalidParams, memerr.KindOf(err))
}

func TestSearchMemoryIncludesActiveProjectWhenProjectIDOmitted(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.SetActiveProject("demo-project")

	_, err := eng.StoreMemory(ctx, "project-scoped kubernetes config", types.TierLongterm, types.ScopeProject, "demo-project", nil, nil, 0, false)
	require.NoError(t, err)

	results, err := eng.SearchMemory(ctx, "kubernetes", "", types.ScopeProject, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestDeleteMemoryRemovesFromGlobal(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	id, err := eng.StoreMemory(ctx, "ephemeral scratch note", types.TierCore, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)

	deleted, _, err := eng.DeleteMemory(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, err = eng.DeleteMemory(ctx, id, false)
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestCheckDuplicateMemoryDetectsNearIdenticalContent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	_, err := eng.StoreMemory(ctx, "the deployment runs on kubernetes clusters", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)

	isDup, similars, err := eng.CheckDuplicateMemory(ctx, "the deployment runs on kubernetes clusters", types.TierLongterm, types.ScopeGlobal, "", nil, 0)
	require.NoError(t, err)
	assert.True(t, isDup)
	assert.NotEmpty(t, similars)
}

func TestMigrateMemoryTierMovesMemoryAndUpdatesCache(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	id, err := eng.StoreMemory(ctx, "promote me to core", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)
	assert.False(t, eng.cache.Has(id))

	migrated, from, err := eng.MigrateMemoryTier(ctx, id, types.TierCore, "hot path")
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, types.TierLongterm, from)
	assert.True(t, eng.cache.Has(id))
}

func TestMigrateMemoryTierNotFound(t *testing.T) {
	eng := newTestEngine(t)
	_, _, err := eng.MigrateMemoryTier(context.Background(), "does-not-exist", types.TierCore, "")
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestGetMemoryStatsMergesGlobalAndActiveProject(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.SetActiveProject("stats-project")

	_, err := eng.StoreMemory(ctx, "global fact", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)
	_, err = eng.StoreMemory(ctx, "project fact", types.TierLongterm, types.ScopeProject, "stats-project", nil, nil, 0, false)
	require.NoError(t, err)

	agg, err := eng.GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.TotalMemories)
}

func TestGetMemoryAnalyticsCountsPhases(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	_, err := eng.StoreMemory(ctx, "brand new memory", types.TierLongterm, types.ScopeGlobal, "", nil, nil, 0, false)
	require.NoError(t, err)

	snap, err := eng.GetMemoryAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PhaseCounts[types.PhaseFresh])
}
