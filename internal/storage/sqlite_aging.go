package storage

import (
	"context"
	"database/sql"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// UpsertAgingProfile implements Store.
func (b *SQLiteBackend) UpsertAgingProfile(ctx context.Context, p *types.AgingProfile) error {
	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO aging_profiles (memory_id, content_class, aging_rate, half_life_days, composite_score, phase, next_evaluation_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(memory_id) DO UPDATE SET
				content_class = excluded.content_class,
				aging_rate = excluded.aging_rate,
				half_life_days = excluded.half_life_days,
				composite_score = excluded.composite_score,
				phase = excluded.phase,
				next_evaluation_at = excluded.next_evaluation_at`,
			p.MemoryID, string(p.ContentClass), p.AgingRate, p.HalfLifeDays, p.CompositeScore, string(p.Phase), p.NextEvaluationAt)
		return err
	})
}

// GetAgingProfile implements Store.
func (b *SQLiteBackend) GetAgingProfile(ctx context.Context, id string) (*types.AgingProfile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var p types.AgingProfile
	var class, phase string
	err := b.db.QueryRowContext(ctx, `
		SELECT memory_id, content_class, aging_rate, half_life_days, composite_score, phase, next_evaluation_at
		FROM aging_profiles WHERE memory_id = ?`, id).
		Scan(&p.MemoryID, &class, &p.AgingRate, &p.HalfLifeDays, &p.CompositeScore, &phase, &p.NextEvaluationAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "get aging profile", err)
	}
	p.ContentClass = types.ContentClass(class)
	p.Phase = types.Phase(phase)
	return &p, nil
}

// DueAgingProfiles implements Store.
func (b *SQLiteBackend) DueAgingProfiles(ctx context.Context, now int64, limit int) ([]*types.AgingProfile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := `SELECT memory_id, content_class, aging_rate, half_life_days, composite_score, phase, next_evaluation_at
		FROM aging_profiles WHERE next_evaluation_at <= ? ORDER BY next_evaluation_at ASC`
	args := []interface{}{now}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "due aging profiles", err)
	}
	defer rows.Close()

	var out []*types.AgingProfile
	for rows.Next() {
		var p types.AgingProfile
		var class, phase string
		if err := rows.Scan(&p.MemoryID, &class, &p.AgingRate, &p.HalfLifeDays, &p.CompositeScore, &phase, &p.NextEvaluationAt); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, "due aging profiles row", err)
		}
		p.ContentClass = types.ContentClass(class)
		p.Phase = types.Phase(phase)
		out = append(out, &p)
	}
	return out, rows.Err()
}
