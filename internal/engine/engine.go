// Package engine implements Concurrency & Lifecycle (spec §4.8): it wires
// every other component into one Engine, bounds simultaneously open
// per-project backends, and runs background maintenance.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/cache"
	"github.com/kittclouds/memoryd/internal/config"
	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/metrics"
	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/scope"
	"github.com/kittclouds/memoryd/internal/storage"
	"github.com/kittclouds/memoryd/internal/types"
)

// Engine is the single entry point the Request Dispatcher calls into. One
// Engine instance owns the global backend, the bounded set of per-project
// backends, the Core Cache, and the scope registry.
type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	cache     *cache.Cache
	scopeReg  *scope.Registry
	global    storage.Store
	workspace *workspaceManager

	dedupThreshold  float64
	activeProjectID string // set by SetActiveProject from the CLI's --workspace flag

	stopMaintenance context.CancelFunc
}

// New wires every component from cfg and opens the global backend. root is
// the storage root directory (spec §6: "<root>/memory/global.db",
// "<root>/projects/<slug>.db").
func New(cfg *config.Config, root string, log *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	globalDir := filepath.Join(root, "memory")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "create global storage directory", err)
	}
	global, err := storage.Open(filepath.Join(globalDir, "global.db"), log)
	if err != nil {
		return nil, err
	}

	wm, err := newWorkspaceManager(root, cfg.Workspace.MaxOpen, log)
	if err != nil {
		global.Close()
		return nil, err
	}

	cacheCfg := cache.Config{
		MaxTotalBytes:         cfg.Cache.MaxTotalBytes,
		CompressionThreshold:  cfg.Cache.CompressionThreshold,
		MinCompressionSavings: cfg.Cache.MinCompressionSavings,
	}

	return &Engine{
		cfg:            cfg,
		log:            log,
		metrics:        m,
		cache:          cache.New(cacheCfg),
		scopeReg:       scope.NewRegistry(),
		global:         global,
		workspace:      wm,
		dedupThreshold: cfg.Dedup.SimilarityThreshold,
	}, nil
}

// storeFor resolves the backend owning (scope, project_id), normalizing and
// fuzzy-matching the project id through the scope registry (spec §4.3).
func (e *Engine) storeFor(ctx context.Context, scopeVal types.Scope, rawProjectID string) (storage.Store, scope.Key, error) {
	if scopeVal == types.ScopeGlobal {
		return e.global, scope.Key{Scope: types.ScopeGlobal}, nil
	}
	canonical, _ := e.scopeReg.Resolve(rawProjectID)
	key, err := scope.ResolveKey(scopeVal, canonical)
	if err != nil {
		return nil, scope.Key{}, err
	}
	s, err := e.workspace.Get(ctx, key.ProjectID)
	if err != nil {
		return nil, scope.Key{}, err
	}
	return s, key, nil
}

// idfForPartition builds a corpus-wide IDF table from every memory
// currently in the same (tier, scope, project) partition, used by both
// ranking and deduplication. Collecting the whole partition keeps the
// corpus honest for small stores; the table is rebuilt on every call and
// is neither sampled nor cached.
func (e *Engine) idfForPartition(ctx context.Context, store storage.Store, filter storage.ScanFilter) (map[string]float64, []*types.Memory, error) {
	var docs [][]string
	var all []*types.Memory
	err := store.Scan(ctx, filter, func(m *types.Memory) bool {
		all = append(all, m)
		docs = append(docs, query.Tokenize(m.Content))
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	return query.IDFFromCorpus(docs), all, nil
}

// Shutdown stops the maintenance loop, flushes nothing extra (the Core
// Cache holds no durable state by design), and closes every backend in
// deterministic order: project backends first, then the global backend. It
// does not wait for in-flight operations; the caller stops accepting new
// requests before calling it.
func (e *Engine) Shutdown() error {
	if e.stopMaintenance != nil {
		e.stopMaintenance()
	}
	e.workspace.CloseAll()
	return e.global.Close()
}
