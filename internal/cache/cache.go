// Package cache implements the Core Cache: a bounded, byte-capped in-memory
// block store with compression and weighted eviction, generalized from the
// teacher's pkg/docstore.Store (an unbounded in-memory document map) to the
// byte-budgeted, evicting hot tier the memory engine requires.
package cache

import (
	"bytes"
	"compress/flate"
	"io"
	"sync"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// Config holds the cache's only tunable knobs (spec §4.2: "these are the
// only knobs").
type Config struct {
	MaxTotalBytes         int
	CompressionThreshold  float64 // fraction of MaxTotalBytes
	MinCompressionSavings float64 // fraction, e.g. 0.20
}

// DefaultConfig mirrors the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxTotalBytes:         2048,
		CompressionThreshold:  0.8,
		MinCompressionSavings: 0.20,
	}
}

// block is the cache's resident unit. Exactly one of Compressed/Raw is
// materialized at any time, mirroring the spec's "compressed_payload? /
// uncompressed_content?" mutual exclusion.
type block struct {
	id               string
	raw              []byte // nil once compressed
	compressed       []byte // nil until compression triggers
	uncompressedSize int    // original byte length, kept even when compressed
	tier             types.Tier
	scope            types.Scope
	projectID        string
	tags             []string
	priority         int
	accessCount      int64
	lastModified     int64 // unix millis

	residentBytes int // bytes actually charged against the budget
}

func (b *block) isCompressed() bool { return b.compressed != nil }

// Cache is the Core Cache. Safe for concurrent use: every mutation runs
// under mu, matching the spec's "single critical section" shared-resource
// policy (§5) and the teacher's own single-mutex docstore discipline.
type Cache struct {
	mu     sync.Mutex
	cfg    Config
	blocks map[string]*block
	used   int
}

// New creates an empty cache under cfg.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, blocks: make(map[string]*block)}
}

// Edit implements Store.edit (spec §4.2): inserts or replaces a block,
// evicting as needed, compressing only when it saves enough bytes.
func (c *Cache) Edit(id, content string, priority int, tags []string, now int64) error {
	rawSize := len(content)
	if rawSize > c.cfg.MaxTotalBytes {
		return memerr.New(memerr.TooLarge, "content exceeds cache budget")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.blocks[id]; ok {
		c.used -= existing.residentBytes
		delete(c.blocks, id)
	}

	if err := c.makeRoom(rawSize, now); err != nil {
		return err
	}

	b := &block{
		id: id, raw: []byte(content), uncompressedSize: rawSize,
		priority: priority, tags: types.NormalizeTags(tags), lastModified: now,
	}
	c.maybeCompress(b)
	c.blocks[id] = b
	c.used += b.residentBytes

	c.compressIfOverThreshold()
	return nil
}

// makeRoom evicts blocks by ascending eviction score until needed bytes are
// free, then falls back to CacheFull if eviction alone cannot make room.
func (c *Cache) makeRoom(needed int, now int64) error {
	for c.used+needed > c.cfg.MaxTotalBytes {
		victim := c.lowestScoringBlock(now)
		if victim == "" {
			return memerr.New(memerr.CacheFull, "cache cannot make room even after eviction")
		}
		c.evictLocked(victim)
	}
	return nil
}

// lowestScoringBlock returns the id of the block with the lowest eviction
// score (priority·10 + access_count·2 − days_since_last_modified·5), ties
// broken by oldest last_modified.
func (c *Cache) lowestScoringBlock(now int64) string {
	var victim string
	var victimScore float64
	var victimAge int64
	first := true
	for id, b := range c.blocks {
		score := evictionScore(b, now)
		age := b.lastModified
		if first || score < victimScore || (score == victimScore && age < victimAge) {
			victim, victimScore, victimAge, first = id, score, age, false
		}
	}
	return victim
}

func evictionScore(b *block, now int64) float64 {
	daysSinceModified := float64(now-b.lastModified) / (24 * 60 * 60 * 1000)
	if daysSinceModified < 0 {
		daysSinceModified = 0
	}
	return float64(b.priority)*10 + float64(b.accessCount)*2 - daysSinceModified*5
}

func (c *Cache) evictLocked(id string) {
	if b, ok := c.blocks[id]; ok {
		c.used -= b.residentBytes
		delete(c.blocks, id)
	}
}

// maybeCompress compresses b in place only if doing so saves at least
// MinCompressionSavings of bytes; otherwise leaves it raw.
func (c *Cache) maybeCompress(b *block) {
	compressed, err := deflate(b.raw)
	if err != nil {
		b.residentBytes = len(b.raw)
		return
	}
	savings := 1 - float64(len(compressed))/float64(len(b.raw))
	if len(b.raw) > 0 && savings >= c.cfg.MinCompressionSavings {
		b.compressed = compressed
		b.raw = nil
		b.residentBytes = len(compressed)
		return
	}
	b.residentBytes = len(b.raw)
}

// compressIfOverThreshold compresses every remaining uncompressed block
// whose compression would save enough bytes, when projected usage still
// exceeds compression_threshold · max_total_bytes (spec §4.2).
func (c *Cache) compressIfOverThreshold() {
	limit := c.cfg.CompressionThreshold * float64(c.cfg.MaxTotalBytes)
	if float64(c.used) <= limit {
		return
	}
	for _, b := range c.blocks {
		if b.isCompressed() {
			continue
		}
		before := b.residentBytes
		c.maybeCompress(b)
		c.used += b.residentBytes - before
	}
}

// Get implements Store.get: returns content (decompressing on demand),
// increments access_count, and updates last_modified.
func (c *Cache) Get(id string, now int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blocks[id]
	if !ok {
		return "", false, nil
	}
	b.accessCount++
	b.lastModified = now

	if !b.isCompressed() {
		return string(b.raw), true, nil
	}
	raw, err := inflate(b.compressed, b.uncompressedSize)
	if err != nil {
		return "", false, memerr.Wrap(memerr.Internal, "decompress cache block", err)
	}
	return string(raw), true, nil
}

// Delete implements Store.delete: removes a block and reclaims its bytes.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(id)
}

// Has reports whether id is currently resident, without affecting its
// access stats.
func (c *Cache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blocks[id]
	return ok
}

// Contents returns a snapshot of every resident block's id and decompressed
// text. It does not count as an access. The search path does not call it:
// Engine.SearchMemory ranks only what the storage backends return.
func (c *Cache) Contents() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.blocks))
	for id, b := range c.blocks {
		if !b.isCompressed() {
			out[id] = string(b.raw)
			continue
		}
		if raw, err := inflate(b.compressed, b.uncompressedSize); err == nil {
			out[id] = string(raw)
		}
	}
	return out
}

// UsedBytes reports total resident bytes, for invariant checks and metrics.
func (c *Cache) UsedBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Len reports the number of resident blocks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// Capacity reports the cache's total byte budget, the per-block max size a
// single store_memory(tier=core) call is allowed (spec §4.2: "per-block max
// bytes (equal to budget)").
func (c *Cache) Capacity() int {
	return c.cfg.MaxTotalBytes
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(compressed []byte, hint int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	buf := bytes.NewBuffer(make([]byte, 0, hint))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
