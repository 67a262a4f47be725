package storage

import (
	"context"
	"strings"

	"github.com/kittclouds/memoryd/internal/memerr"
)

// TermIndexLookup implements Store.
func (b *SQLiteBackend) TermIndexLookup(ctx context.Context, terms []string) (map[string]struct{}, error) {
	if len(terms) == 0 {
		return map[string]struct{}{}, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	placeholders := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		placeholders[i] = "?"
		args[i] = t
	}
	q := `SELECT DISTINCT memory_id FROM term_index WHERE term IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "term index lookup", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, "term index row", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// TagLookup implements Store.
func (b *SQLiteBackend) TagLookup(ctx context.Context, tag string) (map[string]struct{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.QueryContext(ctx, `SELECT memory_id FROM tag_index WHERE tag = ?`, tag)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "tag lookup", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, "tag lookup row", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
