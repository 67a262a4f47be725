package rpc

import (
	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/storage"
	"github.com/kittclouds/memoryd/internal/types"
)

// Methods is the static list advertised on handshake (spec §6: "The server
// advertises a static method list on handshake").
var Methods = []string{
	"store_memory",
	"search_memory",
	"get_memory_stats",
	"delete_memory",
	"check_duplicate_memory",
	"migrate_memory_tier",
	"get_memory_analytics",
}

// confirmRequired names methods that must carry confirm:true to actually
// execute their destructive effect. Only delete_memory is gated;
// migrate_memory_tier runs without confirm:true.
var confirmRequired = map[string]bool{
	"delete_memory": true,
}

type storeMemoryParams struct {
	Content        string                 `json:"content"`
	Tier           types.Tier             `json:"tier"`
	Scope          types.Scope            `json:"scope"`
	ProjectID      string                 `json:"project_id,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Priority       int                    `json:"priority,omitempty"`
	AllowDuplicate bool                   `json:"allow_duplicate,omitempty"`
}

type storeMemoryResult struct {
	ID string `json:"id"`
}

type searchMemoryParams struct {
	Query     string      `json:"query"`
	Tier      types.Tier  `json:"tier,omitempty"`
	Scope     types.Scope `json:"scope,omitempty"`
	ProjectID string      `json:"project_id,omitempty"`
	// Limit is a pointer so an explicit limit:0 (spec §8: "limit=0 returns
	// an empty result") is distinguishable from an omitted field, which
	// defaults to 10.
	Limit *int `json:"limit,omitempty"`
}

type searchHit struct {
	Memory    *types.Memory   `json:"memory"`
	Score     float64         `json:"score"`
	MatchType query.MatchType `json:"match_type"`
}

type searchMemoryResult struct {
	Results []searchHit `json:"results"`
}

type memoryStatsResult struct {
	TotalMemories    int              `json:"total_memories"`
	BytesByTier      map[string]int64 `json:"bytes_by_tier"`
	CountByTierScope map[string]int   `json:"count_by_tier_scope"`
	TopTags          map[string]int   `json:"top_tags"`
	ActiveProjects   []string         `json:"active_projects"`
	LastCleanupAt    int64            `json:"last_cleanup_at"`
}

func statsToWire(a *storage.Aggregate) memoryStatsResult {
	bytesByTier := make(map[string]int64, len(a.BytesByTier))
	for tier, n := range a.BytesByTier {
		bytesByTier[string(tier)] = n
	}
	return memoryStatsResult{
		TotalMemories:    a.TotalMemories,
		BytesByTier:      bytesByTier,
		CountByTierScope: a.CountByTierScope,
		TopTags:          a.TopTags,
		ActiveProjects:   a.ActiveProjects,
		LastCleanupAt:    a.LastCleanupAt,
	}
}

type deleteMemoryParams struct {
	ID             string `json:"id"`
	CascadeRelated bool   `json:"cascade_related,omitempty"`
	Confirm        bool   `json:"confirm,omitempty"`
}

type deleteMemoryResult struct {
	Deleted        bool   `json:"deleted"`
	RelatedDeleted int    `json:"related_deleted,omitempty"`
	Message        string `json:"message"`
}

type checkDuplicateParams struct {
	Content             string      `json:"content"`
	Tier                types.Tier  `json:"tier,omitempty"`
	Scope               types.Scope `json:"scope,omitempty"`
	ProjectID           string      `json:"project_id,omitempty"`
	SimilarityThreshold float64     `json:"similarity_threshold,omitempty"`
}

type similarHit struct {
	Memory *types.Memory `json:"memory"`
	Score  float64       `json:"score"`
}

type checkDuplicateResult struct {
	IsDuplicate    bool         `json:"is_duplicate"`
	Duplicates     []similarHit `json:"duplicates"`
	Recommendation string       `json:"recommendation"`
}

type migrateMemoryTierParams struct {
	ID         string     `json:"id"`
	TargetTier types.Tier `json:"target_tier"`
	Reason     string     `json:"reason,omitempty"`
	Confirm    bool       `json:"confirm,omitempty"`
}

type migrateMemoryTierResult struct {
	Migrated bool       `json:"migrated"`
	FromTier types.Tier `json:"from_tier"`
	ToTier   types.Tier `json:"to_tier"`
	Message  string     `json:"message"`
}

type recommendationWire struct {
	MemoryID string     `json:"memory_id"`
	From     types.Tier `json:"from"`
	To       types.Tier `json:"to"`
	Reason   string     `json:"reason"`
}

type memoryAnalyticsResult struct {
	Stats           memoryStatsResult    `json:"stats"`
	PhaseCounts     map[types.Phase]int  `json:"phase_counts"`
	Recommendations []recommendationWire `json:"migration_recommendations"`
}
