package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/aging"
	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/relate"
	"github.com/kittclouds/memoryd/internal/scope"
	"github.com/kittclouds/memoryd/internal/storage"
	"github.com/kittclouds/memoryd/internal/types"
)

// SetActiveProject records the project the CLI's --workspace flag resolved
// to, the implicit scope used by every method whose wire arguments (spec
// §6) carry no project_id of their own: delete_memory, migrate_memory_tier,
// get_memory_stats, get_memory_analytics. A request's own project_id, when
// present, still takes precedence over this default.
func (e *Engine) SetActiveProject(rawProjectID string) {
	if rawProjectID == "" {
		return
	}
	canonical, _ := e.scopeReg.Resolve(rawProjectID)
	e.activeProjectID = canonical
}

// StoreMemory implements store_memory (spec §6). Content exceeding the
// cache budget is rejected with TooLarge only for tier=core, since that
// budget is the Core Cache's, not the Long-term Store's.
func (e *Engine) StoreMemory(ctx context.Context, content string, tier types.Tier, scopeVal types.Scope, projectID string, tags []string, metadata map[string]interface{}, priority int, allowDuplicate bool) (string, error) {
	if content == "" {
		return "", memerr.New(memerr.InvalidParams, "content must not be empty")
	}
	if !tier.Valid() {
		return "", memerr.New(memerr.InvalidParams, "tier must be \"core\" or \"longterm\"")
	}
	if !scopeVal.Valid() {
		return "", memerr.New(memerr.InvalidParams, "scope must be \"global\" or \"project\"")
	}
	if tier == types.TierCore && len(content) > e.cache.Capacity() {
		return "", memerr.New(memerr.TooLarge, "content exceeds the core cache budget")
	}
	if priority == 0 {
		priority = types.DefaultPriority
	}

	store, key, err := e.storeFor(ctx, scopeVal, projectID)
	if err != nil {
		return "", err
	}

	now := nowMillis()
	m := &types.Memory{
		ID:               "", // assigned by storage on insert; Put generates one if empty
		Content:          content,
		Tier:             tier,
		Scope:            scopeVal,
		ProjectID:        key.ProjectID,
		Tags:             tags,
		Metadata:         metadata,
		CreatedAt:        now,
		AccessedAt:       now,
		ContentSizeBytes: len(content),
		Priority:         priority,
	}

	id, err := store.Put(ctx, m, allowDuplicate)
	if err != nil {
		return "", err
	}
	m.ID = id

	if tier == types.TierCore {
		if err := e.cache.Edit(id, content, priority, tags, now); err != nil {
			e.log.Warn("best-effort cache write failed after durable store", zap.String("memory_id", id), zap.Error(err))
		}
	}

	e.reinforceRelationships(ctx, store, m, storage.ScanFilter{Tier: tier, Scope: scopeVal, ProjectID: key.ProjectID})
	return id, nil
}

// reinforceRelationships scores m against its partition and upserts edges
// for similar pairs (spec §4.6). Failures are logged, not surfaced: a
// relationship edge is advisory, never part of the write's durability
// contract.
func (e *Engine) reinforceRelationships(ctx context.Context, store storage.Store, m *types.Memory, filter storage.ScanFilter) {
	idf, candidates, err := e.idfForPartition(ctx, store, filter)
	if err != nil {
		e.log.Warn("failed to build partition for relationship scoring", zap.Error(err))
		return
	}
	if _, err := relate.ReinforceFromSimilarity(ctx, store, m, candidates, idf, nowMillis()); err != nil {
		e.log.Warn("failed to reinforce relationships", zap.String("memory_id", m.ID), zap.Error(err))
	}
}

// relatedEdgesFor loads id's decayed relationship edges and pairs each with
// its neighbor's already-persisted composite score (spec §4.4's
// Relationship factor: a weighted average of related memories' composite
// scores). It deliberately reads each neighbor's existing aging profile
// rather than recursively calling aging.Evaluate on it, so scoring one
// memory never cascades into scoring its whole neighborhood. A neighbor with
// no profile yet contributes a neutral 0, same as having no edge weight.
func (e *Engine) relatedEdgesFor(ctx context.Context, store storage.Store, id string, now int64) []aging.RelatedEdge {
	rels, err := relate.RelationshipsWithDecay(ctx, store, id, now)
	if err != nil {
		e.log.Warn("failed to load relationships for aging", zap.String("memory_id", id), zap.Error(err))
		return nil
	}
	edges := make([]aging.RelatedEdge, 0, len(rels))
	for _, r := range rels {
		otherID := r.AID
		if otherID == id {
			otherID = r.BID
		}
		composite := 0.0
		if profile, err := store.GetAgingProfile(ctx, otherID); err == nil && profile != nil {
			composite = profile.CompositeScore
		}
		edges = append(edges, aging.RelatedEdge{Strength: r.Strength, CompositeScore: composite})
	}
	return edges
}

// SearchResult is one ranked hit returned by SearchMemory.
type SearchResult struct {
	Memory    *types.Memory
	Score     float64
	MatchType query.MatchType
}

// SearchMemory implements search_memory (spec §4.5/§6). Global memories are
// visible from every scope; a project-scoped search also includes the
// caller's project partition unless scope is explicitly restricted to
// "global".
func (e *Engine) SearchMemory(ctx context.Context, queryStr string, tier types.Tier, scopeVal types.Scope, projectID string, limit int) ([]SearchResult, error) {
	if limit < 0 || limit > 50 {
		return nil, memerr.New(memerr.InvalidParams, "limit must be between 0 and 50")
	}
	if limit == 0 {
		return nil, nil
	}

	effectiveProject := projectID
	if effectiveProject == "" {
		effectiveProject = e.activeProjectID
	}

	var candidates []*types.Memory
	owner := make(map[string]storage.Store)

	includeGlobal := true // global memories are visible from every scope
	includeProject := scopeVal != types.ScopeGlobal && effectiveProject != ""

	if includeGlobal {
		if err := ctx.Err(); err != nil {
			return nil, memerr.Wrap(memerr.Cancelled, "search cancelled", err)
		}
		if err := e.global.Scan(ctx, storage.ScanFilter{Tier: tier}, func(m *types.Memory) bool {
			candidates = append(candidates, m)
			owner[m.ID] = e.global
			return true
		}); err != nil {
			return nil, err
		}
	}
	if includeProject {
		key, err := scope.ResolveKey(types.ScopeProject, effectiveProject)
		if err != nil {
			return nil, err
		}
		projectStore, err := e.workspace.Get(ctx, key.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, memerr.Wrap(memerr.Cancelled, "search cancelled", err)
		}
		if err := projectStore.Scan(ctx, storage.ScanFilter{Tier: tier, Scope: types.ScopeProject, ProjectID: key.ProjectID}, func(m *types.Memory) bool {
			candidates = append(candidates, m)
			owner[m.ID] = projectStore
			return true
		}); err != nil {
			return nil, err
		}
	}

	docs := make([][]string, 0, len(candidates))
	for _, m := range candidates {
		docs = append(docs, query.Tokenize(m.Content))
	}
	idf := query.IDFFromCorpus(docs)

	ranked := query.Rank(queryStr, candidates, idf, limit)

	results := make([]SearchResult, 0, len(ranked))
	now := nowMillis()
	for _, r := range ranked {
		if st, ok := owner[r.Memory.ID]; ok {
			if err := st.RecordAccess(ctx, r.Memory.ID, now); err != nil {
				e.log.Warn("failed to record access", zap.String("memory_id", r.Memory.ID), zap.Error(err))
			}
		}
		results = append(results, SearchResult{Memory: r.Memory, Score: r.Score, MatchType: r.MatchType})
	}
	return results, nil
}

// GetMemoryStats implements get_memory_stats (spec §6): the global backend
// merged with the active project's, if any.
func (e *Engine) GetMemoryStats(ctx context.Context) (*storage.Aggregate, error) {
	agg, err := e.global.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if e.activeProjectID == "" {
		return agg, nil
	}
	projectStore, err := e.workspace.Get(ctx, e.activeProjectID)
	if err != nil {
		return agg, nil // active project unavailable; global stats still valid
	}
	projAgg, err := projectStore.Stats(ctx)
	if err != nil {
		return agg, nil
	}
	return mergeAggregates(agg, projAgg), nil
}

func mergeAggregates(a, b *storage.Aggregate) *storage.Aggregate {
	out := &storage.Aggregate{
		TotalMemories:    a.TotalMemories + b.TotalMemories,
		BytesByTier:      map[types.Tier]int64{},
		CountByTierScope: map[string]int{},
		TopTags:          map[string]int{},
	}
	for _, agg := range []*storage.Aggregate{a, b} {
		for tier, bytes := range agg.BytesByTier {
			out.BytesByTier[tier] += bytes
		}
		for k, count := range agg.CountByTierScope {
			out.CountByTierScope[k] += count
		}
		for tag, count := range agg.TopTags {
			out.TopTags[tag] += count
		}
	}
	out.ActiveProjects = append(append([]string{}, a.ActiveProjects...), b.ActiveProjects...)
	if a.LastCleanupAt > b.LastCleanupAt {
		out.LastCleanupAt = a.LastCleanupAt
	} else {
		out.LastCleanupAt = b.LastCleanupAt
	}
	return out
}

// DeleteMemory implements delete_memory (spec §6/§4.6): id is looked up in
// the global backend first, then the active project's, since the wire
// contract carries no scope hint.
func (e *Engine) DeleteMemory(ctx context.Context, id string, cascadeRelated bool) (deleted bool, relatedDeleted int, err error) {
	if id == "" {
		return false, 0, memerr.New(memerr.InvalidParams, "id must not be empty")
	}
	for _, store := range e.candidateStores(ctx) {
		if _, getErr := store.Get(ctx, id); getErr != nil {
			continue
		}
		removed, delErr := store.Delete(ctx, id, cascadeRelated, nowMillis())
		if delErr != nil {
			return false, 0, delErr
		}
		return true, removed - 1, nil
	}
	return false, 0, memerr.New(memerr.NotFound, "no memory with that id")
}

// candidateStores returns every backend a scope-less request should be
// checked against: global, then the active project if one is set.
func (e *Engine) candidateStores(ctx context.Context) []storage.Store {
	stores := []storage.Store{e.global}
	if e.activeProjectID != "" {
		if s, err := e.workspace.Get(ctx, e.activeProjectID); err == nil {
			stores = append(stores, s)
		}
	}
	return stores
}

// CheckDuplicateMemory implements check_duplicate_memory (spec §4.5/§6).
func (e *Engine) CheckDuplicateMemory(ctx context.Context, content string, tier types.Tier, scopeVal types.Scope, projectID string, tags []string, threshold float64) (isDuplicate bool, duplicates []query.Similar, err error) {
	if content == "" {
		return false, nil, memerr.New(memerr.InvalidParams, "content must not be empty")
	}
	if threshold == 0 {
		threshold = e.dedupThreshold
	}
	if threshold < 0 || threshold > 1 {
		return false, nil, memerr.New(memerr.InvalidParams, "similarity_threshold must be between 0 and 1")
	}

	store, key, err := e.storeFor(ctx, scopeVal, projectID)
	if err != nil {
		return false, nil, err
	}
	idf, candidates, err := e.idfForPartition(ctx, store, storage.ScanFilter{Tier: tier, Scope: scopeVal, ProjectID: key.ProjectID})
	if err != nil {
		return false, nil, err
	}
	similars := query.FindSimilar(content, tags, candidates, idf, threshold, 5)
	return len(similars) > 0, similars, nil
}

// MigrateMemoryTier implements migrate_memory_tier (spec §6): moves a
// memory between core and longterm. Put replaces the stored row under the
// same id inside one transaction (INSERT OR REPLACE) rather than issuing an
// in-place UPDATE, so a crash mid-migration cannot leave the memory
// attributed to neither tier.
func (e *Engine) MigrateMemoryTier(ctx context.Context, id string, targetTier types.Tier, reason string) (migrated bool, fromTier types.Tier, err error) {
	if !targetTier.Valid() {
		return false, "", memerr.New(memerr.InvalidParams, "target_tier must be \"core\" or \"longterm\"")
	}
	for _, store := range e.candidateStores(ctx) {
		m, getErr := store.Get(ctx, id)
		if getErr != nil {
			continue
		}
		from := m.Tier
		if from == targetTier {
			return true, from, nil
		}
		if targetTier == types.TierCore && len(m.Content) > e.cache.Capacity() {
			return false, from, memerr.New(memerr.TooLarge, "content exceeds the core cache budget")
		}

		m.Tier = targetTier
		if _, putErr := store.Put(ctx, m, true); putErr != nil {
			return false, from, putErr
		}
		if targetTier == types.TierCore {
			if err := e.cache.Edit(m.ID, m.Content, m.Priority, m.Tags, nowMillis()); err != nil {
				e.log.Warn("best-effort cache warm failed after promotion", zap.String("memory_id", m.ID), zap.Error(err))
			}
		} else {
			e.cache.Delete(m.ID)
		}
		return true, from, nil
	}
	return false, "", memerr.New(memerr.NotFound, "no memory with that id")
}

// AnalyticsSnapshot is the shape get_memory_analytics reports.
type AnalyticsSnapshot struct {
	Aggregate       *storage.Aggregate
	PhaseCounts     map[types.Phase]int
	Recommendations []*types.MigrationRecommendation
}

// GetMemoryAnalytics implements get_memory_analytics (spec §6): tier
// distribution plus aging-derived phase counts and migration hints, over
// the same implicit scope as GetMemoryStats.
func (e *Engine) GetMemoryAnalytics(ctx context.Context) (*AnalyticsSnapshot, error) {
	agg, err := e.GetMemoryStats(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &AnalyticsSnapshot{Aggregate: agg, PhaseCounts: map[types.Phase]int{}}
	now := nowMillis()

	for _, store := range e.candidateStores(ctx) {
		err := store.Scan(ctx, storage.ScanFilter{}, func(m *types.Memory) bool {
			profile, err := store.GetAgingProfile(ctx, m.ID)
			if err != nil || profile == nil {
				profile = aging.Evaluate(aging.Input{
					Memory:    m,
					AgeHours:  float64(now-m.CreatedAt) / 3600000,
					DaysAlive: float64(now-m.CreatedAt) / 86400000,
					AgeDays:   float64(now-m.CreatedAt) / 86400000,
					Related:   e.relatedEdgesFor(ctx, store, m.ID, now),
				}, now)
			}
			snapshot.PhaseCounts[profile.Phase]++
			if rec := aging.Recommend(m, profile.CompositeScore, profile.Phase); rec != nil {
				snapshot.Recommendations = append(snapshot.Recommendations, rec)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
