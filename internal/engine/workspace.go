package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/storage"
)

// workspaceManager bounds the number of simultaneously open per-project
// backends (spec §4.8: default 10), closing the oldest-unused backend when
// the limit is reached. The global backend is held separately and is never
// subject to this eviction.
type workspaceManager struct {
	mu    sync.Mutex
	root  string
	log   *zap.Logger
	cache *lru.Cache[string, storage.Store]
}

func newWorkspaceManager(root string, maxOpen int, log *zap.Logger) (*workspaceManager, error) {
	wm := &workspaceManager{root: root, log: log}
	c, err := lru.NewWithEvict[string, storage.Store](maxOpen, wm.onEvict)
	if err != nil {
		return nil, err
	}
	wm.cache = c
	return wm, nil
}

func (wm *workspaceManager) onEvict(projectID string, store storage.Store) {
	wm.log.Info("closing idle project backend", zap.String("project_id", projectID))
	if err := store.Close(); err != nil {
		wm.log.Warn("error closing evicted project backend", zap.String("project_id", projectID), zap.Error(err))
	}
}

// Get returns the backend for the normalized projectID, opening it (and
// evicting the LRU's oldest entry if full) on first use.
func (wm *workspaceManager) Get(ctx context.Context, projectID string) (storage.Store, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if s, ok := wm.cache.Get(projectID); ok {
		return s, nil
	}

	dir := filepath.Join(wm.root, "projects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "create project directory", err)
	}
	// a normalized id may contain "/"; flatten it so every project gets one
	// file directly under projects/.
	slug := strings.ReplaceAll(projectID, "/", "_")
	path := filepath.Join(dir, slug+".db")
	s, err := storage.Open(path, wm.log)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "open project backend", err)
	}
	wm.cache.Add(projectID, s)
	return s, nil
}

// Len reports how many project backends are currently open.
func (wm *workspaceManager) Len() int {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.cache.Len()
}

// Keys returns every currently open project id, for maintenance sweeps.
func (wm *workspaceManager) Keys() []string {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.cache.Keys()
}

// CloseAll closes every open backend, in the order the LRU evicts them
// (oldest first), for deterministic shutdown.
func (wm *workspaceManager) CloseAll() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	for _, key := range wm.cache.Keys() {
		if s, ok := wm.cache.Peek(key); ok {
			if err := s.Close(); err != nil {
				wm.log.Warn("error closing project backend on shutdown", zap.String("project_id", key), zap.Error(err))
			}
		}
	}
	wm.cache.Purge()
}
