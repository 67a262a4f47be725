package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkspaceManagerOpensAndCachesBackend(t *testing.T) {
	wm, err := newWorkspaceManager(t.TempDir(), 2, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(wm.CloseAll)

	ctx := context.Background()
	s1, err := wm.Get(ctx, "proj-a")
	require.NoError(t, err)
	s2, err := wm.Get(ctx, "proj-a")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, wm.Len())
}

func TestWorkspaceManagerEvictsOldestOverLimit(t *testing.T) {
	wm, err := newWorkspaceManager(t.TempDir(), 2, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(wm.CloseAll)

	ctx := context.Background()
	_, err = wm.Get(ctx, "a")
	require.NoError(t, err)
	_, err = wm.Get(ctx, "b")
	require.NoError(t, err)
	_, err = wm.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, wm.Len())
	assert.NotContains(t, wm.Keys(), "a")
}

func TestWorkspaceManagerCloseAllEmptiesCache(t *testing.T) {
	wm, err := newWorkspaceManager(t.TempDir(), 4, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = wm.Get(ctx, "a")
	require.NoError(t, err)

	wm.CloseAll()
	assert.Equal(t, 0, wm.Len())
}
