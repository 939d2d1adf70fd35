// Package cache implements the dual-horizon cache (C6): a fresh window
// in which entries are served as up-to-date, and a longer stale window
// in which entries are still served but flagged as degraded. Storage is
// backed by hashicorp/golang-lru's simplelru, read exclusively through
// Peek so recency is driven by insertion order alone — eviction always
// removes the entry with the smallest created_at, matching the
// oldest-first contract, regardless of how callers read the cache.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/weatherstack/gateway/internal/clock"
)

// Key normalizes a raw city query into the cache's opaque key space:
// lowercase, trimmed, prefixed. Equal under case and surrounding
// whitespace.
func Key(rawCity string) string {
	return "weather:" + strings.ToLower(strings.TrimSpace(rawCity))
}

// Metadata describes where a cache response came from and how old it
// is, attached to every hit returned by GetAny.
type Metadata struct {
	Cached     bool
	Stale      bool
	AgeSeconds float64
	Source     string // "cache" | "cache_fallback" | "none"
}

type entry struct {
	payload   []byte
	createdAt time.Time
}

// Cache is the process-scoped key->entry store. All methods are safe
// for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	store       *lru.LRU[string, entry]
	ttl         time.Duration
	staleMaxAge time.Duration
	clk         clock.Clock
}

// New constructs a Cache with the given fresh TTL, stale-tolerable max
// age, maximum entry count, and clock.
func New(ttl, staleMaxAge time.Duration, maxEntries int, clk clock.Clock) *Cache {
	store, err := lru.NewLRU[string, entry](maxEntries, nil)
	if err != nil {
		// maxEntries <= 0 is a construction-time programming error.
		panic("cache: " + err.Error())
	}
	return &Cache{store: store, ttl: ttl, staleMaxAge: staleMaxAge, clk: clk}
}

// GetFresh returns the entry for key iff its age is within the fresh
// TTL. It returns (nil, false) on a miss or a stale/expired entry.
func (c *Cache) GetFresh(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.store.Peek(key)
	if !ok {
		return nil, false
	}
	age := c.clk.Now().Sub(e.createdAt)
	if age > c.staleMaxAge {
		return nil, false // expired; invisible to every accessor
	}
	if age > c.ttl {
		return nil, false // stale; not fresh
	}
	return e.payload, true
}

// GetAny returns the entry for key iff its age is within the stale
// window, along with metadata describing its freshness. It returns
// (nil, Metadata{Source:"none"}, false) on a miss or an expired entry.
func (c *Cache) GetAny(key string) ([]byte, Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.store.Peek(key)
	if !ok {
		return nil, Metadata{Source: "none"}, false
	}
	age := c.clk.Now().Sub(e.createdAt)
	if age > c.staleMaxAge {
		return nil, Metadata{Source: "none"}, false
	}

	stale := age > c.ttl
	source := "cache"
	if stale {
		source = "cache_fallback"
	}
	return e.payload, Metadata{
		Cached:     true,
		Stale:      stale,
		AgeSeconds: age.Seconds(),
		Source:     source,
	}, true
}

// Put stamps payload with the current time and stores it under key,
// replacing any prior entry. If the cache is at capacity, the entry
// with the smallest created_at is evicted first (simplelru's
// least-recently-added entry, since reads go through Peek and never
// promote recency).
func (c *Cache) Put(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Add(key, entry{payload: payload, createdAt: c.clk.Now()})
}

// Size returns the current number of stored entries, including any past
// their stale max age that capacity eviction has not yet removed.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}
