package storage

// schemaVersion is recorded in the meta table on first open. A mismatch
// between this constant and the recorded value surfaces SchemaMismatch
// rather than attempting an implicit migration.
const schemaVersion = 1

// schema defines every table for a single scope-domain database file (one
// global.db, or one projects/<slug>.db). It follows the teacher's pattern of
// a single embedded CREATE TABLE IF NOT EXISTS block run once per open,
// generalized from the teacher's temporal-notes schema to the tiered memory
// substrate: memories replace notes, relationships replace edges, and the
// term/tag indices are new (the teacher had no full-text search).
const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
    id                  TEXT PRIMARY KEY,
    content             TEXT NOT NULL,
    content_hash        TEXT NOT NULL,
    tier                TEXT NOT NULL,
    scope               TEXT NOT NULL,
    project_id          TEXT NOT NULL DEFAULT '',
    tags                TEXT NOT NULL DEFAULT '[]',
    metadata            TEXT NOT NULL DEFAULT '{}',
    created_at          INTEGER NOT NULL,
    accessed_at         INTEGER NOT NULL,
    access_count        INTEGER NOT NULL DEFAULT 0,
    content_size_bytes  INTEGER NOT NULL DEFAULT 0,
    is_compressed       INTEGER NOT NULL DEFAULT 0,
    priority            INTEGER NOT NULL DEFAULT 5
);

CREATE INDEX IF NOT EXISTS idx_memories_tier_scope ON memories(tier, scope, project_id);
CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(content_hash, tier, scope, project_id);
CREATE INDEX IF NOT EXISTS idx_memories_accessed ON memories(accessed_at);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

-- Inverted index over tokenized content: term -> memory, with a raw
-- occurrence count used both as a term frequency and as a cheap prefilter.
CREATE TABLE IF NOT EXISTS term_index (
    term       TEXT NOT NULL,
    memory_id  TEXT NOT NULL,
    term_freq  INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (term, memory_id)
);

CREATE INDEX IF NOT EXISTS idx_term_index_term ON term_index(term);
CREATE INDEX IF NOT EXISTS idx_term_index_memory ON term_index(memory_id);

CREATE TABLE IF NOT EXISTS tag_index (
    tag        TEXT NOT NULL,
    memory_id  TEXT NOT NULL,
    PRIMARY KEY (tag, memory_id)
);

CREATE INDEX IF NOT EXISTS idx_tag_index_tag ON tag_index(tag);

CREATE TABLE IF NOT EXISTS relationships (
    a_id             TEXT NOT NULL,
    b_id             TEXT NOT NULL,
    strength         REAL NOT NULL,
    last_reinforced  INTEGER NOT NULL,
    PRIMARY KEY (a_id, b_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_b ON relationships(b_id);

CREATE TABLE IF NOT EXISTS aging_profiles (
    memory_id           TEXT PRIMARY KEY,
    content_class        TEXT NOT NULL,
    aging_rate           REAL NOT NULL,
    half_life_days        REAL NOT NULL,
    composite_score       REAL NOT NULL,
    phase                 TEXT NOT NULL,
    next_evaluation_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aging_next_eval ON aging_profiles(next_evaluation_at);
`
