package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/aging"
	"github.com/kittclouds/memoryd/internal/storage"
)

// agingSweepInterval is how often the maintenance loop checks for due aging
// profiles. Each profile's own NextEvaluationAt (set to roughly half_life/4
// by aging.NextEvaluationAt) is what actually paces its reevaluation; this
// just bounds how stale that can get between checks.
const agingSweepInterval = 1 * time.Hour

const idleWorkspaceCleanupInterval = 24 * time.Hour

const dueAgingProfileBatch = 100

// StartMaintenance launches the background maintenance loop (spec §4.8):
// periodic resource sampling, aging reevaluation, and idle-workspace
// cleanup. It replaces any previously running loop. Callers must eventually
// call Shutdown, which stops it.
func (e *Engine) StartMaintenance(ctx context.Context) {
	if e.stopMaintenance != nil {
		e.stopMaintenance()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.stopMaintenance = cancel

	sampleInterval := time.Duration(e.cfg.Maintenance.ResourceSampleIntervalSeconds) * time.Second
	if sampleInterval <= 0 {
		sampleInterval = 30 * time.Second
	}

	go e.runMaintenanceLoop(loopCtx, sampleInterval)
}

func (e *Engine) runMaintenanceLoop(ctx context.Context, sampleInterval time.Duration) {
	resourceTicker := time.NewTicker(sampleInterval)
	agingTicker := time.NewTicker(agingSweepInterval)
	idleTicker := time.NewTicker(idleWorkspaceCleanupInterval)
	defer resourceTicker.Stop()
	defer agingTicker.Stop()
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-resourceTicker.C:
			e.sampleResources()
		case <-agingTicker.C:
			e.sweepAgingProfiles(ctx)
		case <-idleTicker.C:
			e.cleanupIdleWorkspaces(ctx)
		}
	}
}

// sampleResources feeds the cache and workspace gauges (spec §4.8/§10.6),
// the "every 30s" resource sample.
func (e *Engine) sampleResources() {
	e.metrics.SampleCache(e.cache.UsedBytes(), e.cache.Len())
	e.metrics.SampleWorkspaces(e.workspace.Len())
}

// sweepAgingProfiles re-evaluates every due aging profile across the global
// backend and every currently open project backend. Profiles are never held
// under a write lock longer than the single UpsertAgingProfile call that
// persists them (spec §4.8: "never hold write locks longer than a single
// operation").
func (e *Engine) sweepAgingProfiles(ctx context.Context) {
	now := nowMillis()
	for _, store := range e.maintenanceStores() {
		if err := ctx.Err(); err != nil {
			return
		}
		due, err := store.DueAgingProfiles(ctx, now, dueAgingProfileBatch)
		if err != nil {
			e.log.Warn("aging sweep: failed to list due profiles", zap.Error(err))
			continue
		}
		for _, profile := range due {
			m, err := store.Get(ctx, profile.MemoryID)
			if err != nil {
				continue
			}
			ageMillis := float64(now - m.CreatedAt)
			updated := aging.Evaluate(aging.Input{
				Memory:    m,
				AgeHours:  ageMillis / 3600000,
				DaysAlive: ageMillis / 86400000,
				AgeDays:   ageMillis / 86400000,
				Related:   e.relatedEdgesFor(ctx, store, m.ID, now),
			}, now)
			if err := store.UpsertAgingProfile(ctx, updated); err != nil {
				e.log.Warn("aging sweep: failed to persist profile",
					zap.String("memory_id", profile.MemoryID), zap.Error(err))
			}
		}
	}
}

// cleanupIdleWorkspaces stamps a cleanup timestamp on every open backend
// (the 24h idle-workspace cleanup cadence). Actually closing idle backends
// is the workspace LRU's job on eviction; this tick only records that a
// cleanup pass happened, for get_memory_stats' last_cleanup_at.
func (e *Engine) cleanupIdleWorkspaces(ctx context.Context) {
	now := nowMillis()
	for _, store := range e.maintenanceStores() {
		if err := store.RecordCleanup(ctx, now); err != nil {
			e.log.Warn("idle workspace cleanup: failed to record cleanup", zap.Error(err))
		}
	}
}

// maintenanceStores returns the global backend plus every project backend
// currently open, without opening new ones (unlike candidateStores, this
// must not implicitly evict/reopen workspaces during a sweep).
func (e *Engine) maintenanceStores() []storage.Store {
	stores := []storage.Store{e.global}
	for _, projectID := range e.workspace.Keys() {
		if s, ok := e.workspace.cache.Peek(projectID); ok {
			stores = append(stores, s)
		}
	}
	return stores
}
