package storage

import (
	"context"
	"database/sql"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// UpsertRelationship implements Store. strength saturates at 1.0 (spec §4.6:
// "pairs ... create or update relationship edges, saturating at 1.0").
func (b *SQLiteBackend) UpsertRelationship(ctx context.Context, a, bID string, strength float64, now int64) error {
	aID, bID2 := types.RelationshipKey(a, bID)
	if strength > 1.0 {
		strength = 1.0
	}
	if strength < 0 {
		strength = 0
	}
	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		_, err := b.db.ExecContext(ctx, `
			INSERT INTO relationships (a_id, b_id, strength, last_reinforced)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(a_id, b_id) DO UPDATE SET
				strength = MIN(1.0, excluded.strength),
				last_reinforced = excluded.last_reinforced`,
			aID, bID2, strength, now)
		return err
	})
}

// GetRelationship implements Store.
func (b *SQLiteBackend) GetRelationship(ctx context.Context, a, bID string) (*types.Relationship, error) {
	aID, bID2 := types.RelationshipKey(a, bID)
	b.mu.RLock()
	defer b.mu.RUnlock()

	var r types.Relationship
	err := b.db.QueryRowContext(ctx, `
		SELECT a_id, b_id, strength, last_reinforced FROM relationships
		WHERE a_id = ? AND b_id = ?`, aID, bID2).
		Scan(&r.AID, &r.BID, &r.Strength, &r.LastReinforced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "get relationship", err)
	}
	return &r, nil
}

// RelationshipsFor implements Store.
func (b *SQLiteBackend) RelationshipsFor(ctx context.Context, id string) ([]*types.Relationship, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.QueryContext(ctx, `
		SELECT a_id, b_id, strength, last_reinforced FROM relationships
		WHERE a_id = ? OR b_id = ?`, id, id)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "relationships for", err)
	}
	defer rows.Close()

	var out []*types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.AID, &r.BID, &r.Strength, &r.LastReinforced); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, "relationships for row", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteRelationshipsFor implements Store.
func (b *SQLiteBackend) DeleteRelationshipsFor(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, err := b.db.ExecContext(ctx, `DELETE FROM relationships WHERE a_id = ? OR b_id = ?`, id, id)
		return err
	})
}
