// Package storage provides SQLite-backed persistence for the memory engine.
// Each scope domain (the global store, or a single project) gets its own
// database file via Open, following the teacher's one-file,
// one-schema-block pattern (internal/store.SQLiteStore in the teacher) but
// generalized from a temporal note store to the tiered memory substrate.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/types"
)

// SQLiteBackend is the sole implementation of Store. It is safe for
// concurrent use: reads run under the database's own MVCC, writes are
// serialized by mu, mirroring the teacher's SQLiteStore mutex discipline.
type SQLiteBackend struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *zap.Logger
}

var _ Store = (*SQLiteBackend)(nil)

// Open creates or opens a scope-domain database at dsn (":memory:" for
// ephemeral/test stores, or a file path for persistent ones).
func Open(dsn string, log *zap.Logger) (*SQLiteBackend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "open database", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes anyway

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.StorageUnavailable, "create schema", err)
	}

	b := &SQLiteBackend{db: db, log: log}
	if err := b.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) checkSchemaVersion() error {
	var raw string
	err := b.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		_, err = b.db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprintf("%d", schemaVersion))
		if err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, "record schema version", err)
		}
		return nil
	}
	if err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, "read schema version", err)
	}
	if raw != fmt.Sprintf("%d", schemaVersion) {
		return memerr.New(memerr.SchemaMismatch, fmt.Sprintf("on-disk schema version %s unsupported (want %d)", raw, schemaVersion))
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Put implements Store.
func (b *SQLiteBackend) Put(ctx context.Context, m *types.Memory, allowDuplicate bool) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	hash := contentHash(m.Content)

	var existingID string
	err := withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !allowDuplicate {
			row := b.db.QueryRowContext(ctx, `
				SELECT id FROM memories
				WHERE content_hash = ? AND tier = ? AND scope = ? AND project_id = ?
				LIMIT 1`,
				hash, string(m.Tier), string(m.Scope), m.ProjectID)
			var id string
			switch scanErr := row.Scan(&id); scanErr {
			case nil:
				existingID = id
				return nil
			case sql.ErrNoRows:
				// fall through to insert
			default:
				return scanErr
			}
		}

		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := insertMemoryRow(ctx, tx, m, hash); err != nil {
			return err
		}
		if err := indexTerms(ctx, tx, m.ID, m.Content); err != nil {
			return err
		}
		if err := indexTags(ctx, tx, m.ID, types.NormalizeTags(m.Tags)); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		if me, ok := err.(*memerr.Error); ok {
			return "", me
		}
		return "", memerr.Wrap(memerr.StorageUnavailable, "put memory", err)
	}
	if existingID != "" {
		return existingID, memerr.New(memerr.Conflict, "byte-identical memory already exists in this (tier, scope, project)")
	}
	return m.ID, nil
}

// insertMemoryRow writes m's row using the given content hash, replacing any
// existing row with the same id.
// Shared by Put (fresh writes) and Import (restoring an export) so the two
// paths can never drift on column order.
func insertMemoryRow(ctx context.Context, tx *sql.Tx, m *types.Memory, hash string) error {
	tags, err := json.Marshal(types.NormalizeTags(m.Tags))
	if err != nil {
		return err
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (id, content, content_hash, tier, scope, project_id, tags, metadata,
			created_at, accessed_at, access_count, content_size_bytes, is_compressed, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, hash, string(m.Tier), string(m.Scope), m.ProjectID, string(tags), string(meta),
		m.CreatedAt, m.AccessedAt, m.AccessCount, m.ContentSizeBytes, boolToInt(m.IsCompressed), m.Priority)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func indexTerms(ctx context.Context, tx *sql.Tx, id, content string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM term_index WHERE memory_id = ?`, id); err != nil {
		return err
	}
	freq := query.TermFrequencies(query.Tokenize(content))
	for term, count := range freq {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO term_index (term, memory_id, term_freq) VALUES (?, ?, ?)
			ON CONFLICT(term, memory_id) DO UPDATE SET term_freq = excluded.term_freq`,
			term, id, count); err != nil {
			return err
		}
	}
	return nil
}

func indexTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_index WHERE memory_id = ?`, id); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tag_index (tag, memory_id) VALUES (?, ?)
			ON CONFLICT(tag, memory_id) DO NOTHING`, tag, id); err != nil {
			return err
		}
	}
	return nil
}

// Get implements Store.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (*types.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, err := scanMemory(b.db.QueryRowContext(ctx, memorySelectByID, id))
	if err == sql.ErrNoRows {
		return nil, memerr.New(memerr.NotFound, "memory not found: "+id)
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "get memory", err)
	}
	return m, nil
}

const memorySelectColumns = `id, content, tier, scope, project_id, tags, metadata,
	created_at, accessed_at, access_count, content_size_bytes, is_compressed, priority`

const memorySelectByID = `SELECT ` + memorySelectColumns + ` FROM memories WHERE id = ?`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var tier, scope, tags, meta string
	var compressed int
	err := row.Scan(&m.ID, &m.Content, &tier, &scope, &m.ProjectID, &tags, &meta,
		&m.CreatedAt, &m.AccessedAt, &m.AccessCount, &m.ContentSizeBytes, &compressed, &m.Priority)
	if err != nil {
		return nil, err
	}
	m.Tier = types.Tier(tier)
	m.Scope = types.Scope(scope)
	m.IsCompressed = compressed != 0
	_ = json.Unmarshal([]byte(tags), &m.Tags)
	_ = json.Unmarshal([]byte(meta), &m.Metadata)
	return &m, nil
}

// Delete implements Store.
func (b *SQLiteBackend) Delete(ctx context.Context, id string, cascade bool, now int64) (int, error) {
	removed := 0
	err := withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		targets := []string{id}
		if cascade {
			// strength is read raw and decayed here rather than filtered in SQL:
			// the stored value only reflects strength as of its last
			// reinforcement, and spec §4.6 decay is lazy, so an edge that
			// decayed below CascadeStrength since then must not still trigger
			// a cascade delete.
			rows, err := tx.QueryContext(ctx, `
				SELECT a_id, b_id, strength, last_reinforced FROM relationships
				WHERE a_id = ? OR b_id = ?`, id, id)
			if err != nil {
				return err
			}
			var related []string
			for rows.Next() {
				var a, bID string
				var strength float64
				var lastReinforced int64
				if err := rows.Scan(&a, &bID, &strength, &lastReinforced); err != nil {
					rows.Close()
					return err
				}
				rel := types.Relationship{AID: a, BID: bID, Strength: strength, LastReinforced: lastReinforced}
				if rel.Decayed(now) < types.CascadeStrength {
					continue
				}
				if a == id {
					related = append(related, bID)
				} else {
					related = append(related, a)
				}
			}
			if err := rows.Err(); err != nil {
				return err
			}
			rows.Close()
			targets = append(targets, related...)
		}

		for _, tid := range targets {
			if err := deleteOneMemory(ctx, tx, tid); err != nil {
				return err
			}
			removed++
		}
		return tx.Commit()
	})
	if err != nil {
		if me, ok := err.(*memerr.Error); ok {
			return 0, me
		}
		return 0, memerr.Wrap(memerr.StorageUnavailable, "delete memory", err)
	}
	return removed, nil
}

func deleteOneMemory(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM term_index WHERE memory_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_index WHERE memory_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE a_id = ? OR b_id = ?`, id, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM aging_profiles WHERE memory_id = ?`, id); err != nil {
		return err
	}
	return nil
}

// Scan implements Store.
func (b *SQLiteBackend) Scan(ctx context.Context, filter ScanFilter, fn func(*types.Memory) bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := `SELECT ` + memorySelectColumns + ` FROM memories m WHERE 1=1`
	var args []interface{}
	if filter.Tier != "" {
		q += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	if filter.Scope != "" {
		q += ` AND scope = ?`
		args = append(args, string(filter.Scope))
		if filter.Scope == types.ScopeProject && filter.ProjectID != "" {
			q += ` AND project_id = ?`
			args = append(args, filter.ProjectID)
		}
	}
	if filter.Tag != "" {
		q += ` AND id IN (SELECT memory_id FROM tag_index WHERE tag = ?)`
		args = append(args, filter.Tag)
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, "scan memories", err)
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			return memerr.New(memerr.Cancelled, "scan cancelled")
		default:
		}
		m, err := scanMemory(rows)
		if err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, "scan row", err)
		}
		if !fn(m) {
			break
		}
	}
	return rows.Err()
}

// FindByHash implements Store.
func (b *SQLiteBackend) FindByHash(ctx context.Context, key DedupKey, hash string) ([]*types.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+` FROM memories
		WHERE content_hash = ? AND tier = ? AND scope = ? AND project_id = ?`,
		hash, string(key.Tier), string(key.Scope), key.ProjectID)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, "find by hash", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, "find by hash row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordAccess implements Store.
func (b *SQLiteBackend) RecordAccess(ctx context.Context, id string, at int64) error {
	return withRetry(ctx, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		res, err := b.db.ExecContext(ctx, `
			UPDATE memories SET accessed_at = ?, access_count = access_count + 1
			WHERE id = ? AND accessed_at <= ?`, at, id, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Either the id doesn't exist, or accessed_at is already >= at
			// (monotonicity guard, spec invariant 3); check which.
			var exists int
			if scanErr := b.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&exists); scanErr == sql.ErrNoRows {
				return memerr.New(memerr.NotFound, "memory not found: "+id)
			}
		}
		return nil
	})
}
