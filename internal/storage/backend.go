package storage

import (
	"context"

	"github.com/kittclouds/memoryd/internal/types"
)

// Store is the public contract of the Storage Backend (spec §4.1). One
// Store instance owns exactly one scope-domain database file: the global
// file, or a single project's file. *SQLiteBackend is the sole
// implementation; the interface exists so the engine and its tests can be
// written against a narrow seam, the way the teacher's Storer interface
// decouples chat/memory services from SQLiteStore.
type Store interface {
	// Put atomically upserts a memory. If dedup is enabled and a
	// byte-identical memory already exists in the same (tier, scope,
	// project), Put returns a *memerr.Error with Kind Conflict and the
	// existing memory's ID.
	Put(ctx context.Context, m *types.Memory, allowDuplicate bool) (id string, err error)

	// Get retrieves a memory by ID. Returns a NotFound *memerr.Error if
	// absent. Does not record an access by itself; callers needing access
	// tracking call RecordAccess explicitly.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Delete removes a memory. When cascade is true, also removes every
	// memory whose relationship strength, decayed to now, is still >= 0.7
	// (spec §4.6: decay is applied lazily, so the check happens at deletion
	// time rather than against the last-persisted strength). Returns the
	// total number of memories removed (including the target).
	Delete(ctx context.Context, id string, cascade bool, now int64) (removed int, err error)

	// Scan lazily visits memories matching filter, calling fn for each. If
	// fn returns false, the scan stops early. The scan is not restartable
	// mid-flight: a caller who needs to resume must reissue Scan.
	Scan(ctx context.Context, filter ScanFilter, fn func(*types.Memory) bool) error

	// FindByHash returns every memory in the given partition whose content
	// hash matches, used by the dedup path to detect byte-identical writes.
	FindByHash(ctx context.Context, key DedupKey, contentHash string) ([]*types.Memory, error)

	// TermIndexLookup returns the set of memory IDs whose term index
	// contains any of the given terms, the lexical prefilter of §4.5 step 2.
	TermIndexLookup(ctx context.Context, terms []string) (map[string]struct{}, error)

	// TagLookup returns the set of memory IDs tagged with the given tag.
	TagLookup(ctx context.Context, tag string) (map[string]struct{}, error)

	// RecordAccess atomically advances accessed_at and increments
	// access_count for id.
	RecordAccess(ctx context.Context, id string, at int64) error

	// UpsertRelationship creates or updates the undirected edge between a
	// and b, saturating strength at 1.0.
	UpsertRelationship(ctx context.Context, a, b string, strength float64, now int64) error

	// GetRelationship returns the edge between a and b, or nil if none.
	GetRelationship(ctx context.Context, a, b string) (*types.Relationship, error)

	// RelationshipsFor returns every edge touching id.
	RelationshipsFor(ctx context.Context, id string) ([]*types.Relationship, error)

	// DeleteRelationshipsFor removes every edge touching id.
	DeleteRelationshipsFor(ctx context.Context, id string) error

	// UpsertAgingProfile writes a's aging profile under the same lock as the
	// memory it describes (spec §5).
	UpsertAgingProfile(ctx context.Context, p *types.AgingProfile) error

	// GetAgingProfile returns id's aging profile, or nil if none exists yet.
	GetAgingProfile(ctx context.Context, id string) (*types.AgingProfile, error)

	// DueAgingProfiles returns up to limit profiles whose next_evaluation_at
	// has passed, for the background sweep.
	DueAgingProfiles(ctx context.Context, now int64, limit int) ([]*types.AgingProfile, error)

	// Stats returns the raw aggregate counters the dispatcher's
	// get_memory_stats / get_memory_analytics methods assemble into a
	// response.
	Stats(ctx context.Context) (*Aggregate, error)

	// Export serializes every table to portable JSON, the logical half of
	// the backup mechanism in spec §6.
	Export(ctx context.Context) ([]byte, error)

	// Import replaces the database contents with a prior Export's output.
	Import(ctx context.Context, data []byte) error

	// Close releases the underlying database handle.
	Close() error
}

// Aggregate holds the raw counters Stats reports; the dispatcher shapes
// these into the wire response for get_memory_stats/get_memory_analytics.
type Aggregate struct {
	TotalMemories      int
	BytesByTier        map[types.Tier]int64
	CountByTierScope   map[string]int // "tier/scope" -> count
	TopTags            map[string]int
	ActiveProjects     []string
	LastCleanupAt      int64
}
