package rpc

import (
	"context"
	"encoding/json"

	"github.com/kittclouds/memoryd/internal/engine"
	"github.com/kittclouds/memoryd/internal/memerr"
)

type handlerFunc func(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	"store_memory":           handleStoreMemory,
	"search_memory":          handleSearchMemory,
	"get_memory_stats":       handleGetMemoryStats,
	"delete_memory":          handleDeleteMemory,
	"check_duplicate_memory": handleCheckDuplicateMemory,
	"migrate_memory_tier":    handleMigrateMemoryTier,
	"get_memory_analytics":   handleGetMemoryAnalytics,
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return memerr.Wrap(memerr.InvalidParams, "malformed params", err)
	}
	return nil
}

func handleStoreMemory(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	var p storeMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := eng.StoreMemory(ctx, p.Content, p.Tier, p.Scope, p.ProjectID, p.Tags, p.Metadata, p.Priority, p.AllowDuplicate)
	if err != nil {
		return nil, err
	}
	return storeMemoryResult{ID: id}, nil
}

func handleSearchMemory(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	var p searchMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit := 10
	if p.Limit != nil {
		limit = *p.Limit
	}
	hits, err := eng.SearchMemory(ctx, p.Query, p.Tier, p.Scope, p.ProjectID, limit)
	if err != nil {
		return nil, err
	}
	results := make([]searchHit, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchHit{Memory: h.Memory, Score: h.Score, MatchType: h.MatchType})
	}
	return searchMemoryResult{Results: results}, nil
}

func handleGetMemoryStats(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	agg, err := eng.GetMemoryStats(ctx)
	if err != nil {
		return nil, err
	}
	return statsToWire(agg), nil
}

func handleDeleteMemory(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	var p deleteMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, memerr.New(memerr.InvalidParams, "id must not be empty")
	}
	deleted, relatedDeleted, err := eng.DeleteMemory(ctx, p.ID, p.CascadeRelated)
	if err != nil {
		return nil, err
	}
	msg := "memory deleted"
	if relatedDeleted > 0 {
		msg = "memory and related memories deleted"
	}
	return deleteMemoryResult{Deleted: deleted, RelatedDeleted: relatedDeleted, Message: msg}, nil
}

func handleCheckDuplicateMemory(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	var p checkDuplicateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	isDup, similars, err := eng.CheckDuplicateMemory(ctx, p.Content, p.Tier, p.Scope, p.ProjectID, nil, p.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	hits := make([]similarHit, 0, len(similars))
	for _, s := range similars {
		hits = append(hits, similarHit{Memory: s.Memory, Score: s.Score})
	}
	rec := "no action needed"
	if isDup {
		rec = "consider reusing the closest match instead of storing a new memory"
	}
	return checkDuplicateResult{IsDuplicate: isDup, Duplicates: hits, Recommendation: rec}, nil
}

func handleMigrateMemoryTier(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	var p migrateMemoryTierParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, memerr.New(memerr.InvalidParams, "id must not be empty")
	}
	migrated, from, err := eng.MigrateMemoryTier(ctx, p.ID, p.TargetTier, p.Reason)
	if err != nil {
		return nil, err
	}
	return migrateMemoryTierResult{
		Migrated: migrated,
		FromTier: from,
		ToTier:   p.TargetTier,
		Message:  "tier migration complete",
	}, nil
}

func handleGetMemoryAnalytics(ctx context.Context, eng *engine.Engine, raw json.RawMessage) (any, error) {
	snap, err := eng.GetMemoryAnalytics(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]recommendationWire, 0, len(snap.Recommendations))
	for _, r := range snap.Recommendations {
		recs = append(recs, recommendationWire{MemoryID: r.MemoryID, From: r.From, To: r.To, Reason: r.Reason})
	}
	return memoryAnalyticsResult{
		Stats:           statsToWire(snap.Aggregate),
		PhaseCounts:     snap.PhaseCounts,
		Recommendations: recs,
	}, nil
}
