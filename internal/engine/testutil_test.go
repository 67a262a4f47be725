package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoryd/internal/config"
	"github.com/kittclouds/memoryd/internal/metrics"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, _, err := config.Load("")
	require.NoError(t, err)
	cfg.Cache.MaxTotalBytes = 8192
	cfg.Workspace.MaxOpen = 4

	eng, err := New(cfg, t.TempDir(), nil, metrics.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown() })
	return eng
}
