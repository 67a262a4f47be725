package storage

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// Stats implements Store.
func (b *SQLiteBackend) Stats(ctx context.Context) (*Aggregate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agg := &Aggregate{
		BytesByTier:      map[types.Tier]int64{},
		CountByTierScope: map[string]int{},
		TopTags:          map[string]int{},
	}

	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&agg.TotalMemories); err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: total", err)
	}

	rows, err := b.db.QueryContext(ctx, `SELECT tier, scope, COUNT(*), COALESCE(SUM(content_size_bytes), 0) FROM memories GROUP BY tier, scope`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: by tier/scope", err)
	}
	for rows.Next() {
		var tier, scope string
		var count int
		var bytes int64
		if err := rows.Scan(&tier, &scope, &count, &bytes); err != nil {
			rows.Close()
			return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: by tier/scope row", err)
		}
		agg.CountByTierScope[tier+"/"+scope] = count
		agg.BytesByTier[types.Tier(tier)] += bytes
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: by tier/scope rows", err)
	}
	rows.Close()

	tagRows, err := b.db.QueryContext(ctx, `SELECT tag, COUNT(*) c FROM tag_index GROUP BY tag ORDER BY c DESC LIMIT 20`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: top tags", err)
	}
	for tagRows.Next() {
		var tag string
		var count int
		if err := tagRows.Scan(&tag, &count); err != nil {
			tagRows.Close()
			return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: top tags row", err)
		}
		agg.TopTags[tag] = count
	}
	if err := tagRows.Err(); err != nil {
		tagRows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: top tags rows", err)
	}
	tagRows.Close()

	projRows, err := b.db.QueryContext(ctx, `
		SELECT DISTINCT project_id FROM memories WHERE scope = 'project' AND project_id != ''`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: active projects", err)
	}
	for projRows.Next() {
		var pid string
		if err := projRows.Scan(&pid); err != nil {
			projRows.Close()
			return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: active projects row", err)
		}
		agg.ActiveProjects = append(agg.ActiveProjects, pid)
	}
	if err := projRows.Err(); err != nil {
		projRows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "stats: active projects rows", err)
	}
	projRows.Close()

	var lastCleanup sql.NullString
	_ = b.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_cleanup_at'`).Scan(&lastCleanup)
	if lastCleanup.Valid {
		agg.LastCleanupAt, _ = strconv.ParseInt(lastCleanup.String, 10, 64)
	}

	return agg, nil
}

// RecordCleanup stamps the last-cleanup meta key, used by the idle-workspace
// sweep so get_memory_stats can report it.
func (b *SQLiteBackend) RecordCleanup(ctx context.Context, at int64) error {
	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES ('last_cleanup_at', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.FormatInt(at, 10))
		return err
	})
}
