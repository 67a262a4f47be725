package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// exportData is the portable JSON shape produced by Export and consumed by
// Import, generalized from the teacher's notes/entities/edges ExportData to
// the tiered memory substrate: memories replace notes, relationships replace
// edges, and the two indices are rebuilt rather than carried verbatim.
type exportData struct {
	SchemaVersion int                   `json:"schema_version"`
	Memories      []*types.Memory       `json:"memories"`
	Relationships []*types.Relationship `json:"relationships"`
	AgingProfiles []*types.AgingProfile `json:"aging_profiles"`
}

// Export implements Store. It serializes every current row to JSON; the
// term/tag indices are not carried since Import rebuilds them from content.
func (b *SQLiteBackend) Export(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var data exportData
	data.SchemaVersion = schemaVersion

	rows, err := b.db.QueryContext(ctx, `SELECT `+memorySelectColumns+` FROM memories`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export memories", err)
	}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		data.Memories = append(data.Memories, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export memories rows", err)
	}
	rows.Close()

	relRows, err := b.db.QueryContext(ctx, `SELECT a_id, b_id, strength, last_reinforced FROM relationships`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export relationships", err)
	}
	for relRows.Next() {
		var r types.Relationship
		if err := relRows.Scan(&r.AID, &r.BID, &r.Strength, &r.LastReinforced); err != nil {
			relRows.Close()
			return nil, memerr.Wrap(memerr.StorageUnavailable, "export relationships row", err)
		}
		data.Relationships = append(data.Relationships, &r)
	}
	if err := relRows.Err(); err != nil {
		relRows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export relationships rows", err)
	}
	relRows.Close()

	agingRows, err := b.db.QueryContext(ctx, `
		SELECT memory_id, content_class, aging_rate, half_life_days, composite_score, phase, next_evaluation_at
		FROM aging_profiles`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export aging profiles", err)
	}
	for agingRows.Next() {
		var p types.AgingProfile
		var class, phase string
		if err := agingRows.Scan(&p.MemoryID, &class, &p.AgingRate, &p.HalfLifeDays, &p.CompositeScore, &phase, &p.NextEvaluationAt); err != nil {
			agingRows.Close()
			return nil, memerr.Wrap(memerr.StorageUnavailable, "export aging profiles row", err)
		}
		p.ContentClass = types.ContentClass(class)
		p.Phase = types.Phase(phase)
		data.AgingProfiles = append(data.AgingProfiles, &p)
	}
	if err := agingRows.Err(); err != nil {
		agingRows.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "export aging profiles rows", err)
	}
	agingRows.Close()

	out, err := json.Marshal(&data)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "export marshal", err)
	}
	return out, nil
}

// Import implements Store. It replaces the database contents with a prior
// Export's output, then rebuilds the term/tag indices from content so a
// restored database is immediately searchable.
func (b *SQLiteBackend) Import(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}

	var data exportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return memerr.Wrap(memerr.InvalidParams, "import unmarshal", err)
	}
	if data.SchemaVersion != 0 && data.SchemaVersion != schemaVersion {
		return memerr.New(memerr.SchemaMismatch, "import: incompatible schema version")
	}

	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, "import begin tx", err)
		}
		defer tx.Rollback()

		for _, table := range []string{"term_index", "tag_index", "relationships", "aging_profiles", "memories"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return errors.Wrapf(err, "import: clear %s", table)
			}
		}

		for _, m := range data.Memories {
			if err := insertMemoryRow(ctx, tx, m, contentHash(m.Content)); err != nil {
				return errors.Wrap(err, "import memory")
			}
			if err := indexTerms(ctx, tx, m.ID, m.Content); err != nil {
				return err
			}
			if err := indexTags(ctx, tx, m.ID, m.Tags); err != nil {
				return err
			}
		}

		for _, r := range data.Relationships {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relationships (a_id, b_id, strength, last_reinforced) VALUES (?, ?, ?, ?)`,
				r.AID, r.BID, r.Strength, r.LastReinforced); err != nil {
				return errors.Wrap(err, "import relationship")
			}
		}

		for _, p := range data.AgingProfiles {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO aging_profiles (memory_id, content_class, aging_rate, half_life_days, composite_score, phase, next_evaluation_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.MemoryID, string(p.ContentClass), p.AgingRate, p.HalfLifeDays, p.CompositeScore, string(p.Phase), p.NextEvaluationAt); err != nil {
				return errors.Wrap(err, "import aging profile")
			}
		}

		if err := tx.Commit(); err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, "import commit", err)
		}
		return nil
	})
}
