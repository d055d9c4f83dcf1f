// Package cache stores fully computed search results so that pagination over
// an expensive federated search does not re-query providers.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Entry is one cached pipeline result: the full shaped record sequence plus
// the metadata describing how it was produced. Pages are sliced out of
// Records on demand.
type Entry struct {
	Records  []domain.Record
	Metadata domain.SearchMetadata

	// ComputedAt is when the pipeline run finished.
	ComputedAt time.Time
}

// Config holds the cache settings.
type Config struct {
	// Capacity is the maximum number of cached searches before LRU
	// eviction.
	Capacity int

	// TTL is how long an entry stays valid.
	TTL time.Duration
}

// DefaultConfig returns the cache settings used when a field is zero.
func DefaultConfig() Config {
	return Config{
		Capacity: 256,
		TTL:      15 * time.Minute,
	}
}

// ResultCache is a TTL + LRU cache keyed by the cache-equivalent query hash.
// Concurrent writes to the same key are safe: content is deterministic for a
// given upstream window, so last-writer-wins is acceptable.
type ResultCache struct {
	lru    *expirable.LRU[string, Entry]
	logger zerolog.Logger
}

// New creates a ResultCache. Zero config fields fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *ResultCache {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &ResultCache{
		lru:    expirable.NewLRU[string, Entry](cfg.Capacity, nil, cfg.TTL),
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Get returns the entry for a cache key if present and unexpired.
func (c *ResultCache) Get(key string) (Entry, bool) {
	return c.lru.Get(key)
}

// Put stores an entry under the cache key.
func (c *ResultCache) Put(key string, entry Entry) {
	c.lru.Add(key, entry)
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Slice returns the records for one page out of a cached entry. Pages are
// 1-based; a page beyond the end of the sequence is empty, not an error.
func Slice(entry Entry, page, pageSize int) []domain.Record {
	if page < 1 || pageSize < 1 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(entry.Records) {
		return nil
	}
	end := min(start+pageSize, len(entry.Records))
	return entry.Records[start:end]
}
