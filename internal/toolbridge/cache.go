package toolbridge

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// At capacity, this many already-expired entries are swept before falling
// back to evicting the oldest insertion.
const expiredSweepLimit = 10

type cacheEntry struct {
	value      json.RawMessage
	expiresAt  time.Time
	insertedAt time.Time
	tool       string
}

// Stats is a point-in-time view of cache effectiveness
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a TTL cache with insertion-order eviction, keyed by tool call
// identity. It also tracks which keys belong to which tool so a mutating call
// can invalidate every cached read of a related tool.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]cacheEntry
	byTool   map[string]map[string]struct{}
	hits     uint64
	misses   uint64
}

// NewCache creates a cache bounded to capacity entries
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]cacheEntry),
		byTool:   make(map[string]map[string]struct{}),
	}
}

// CacheKey derives the identity of a tool call: MD5 over the tool name and
// the canonical JSON of its arguments. encoding/json writes map keys sorted,
// which is exactly the canonicalisation needed.
func CacheKey(tool string, args map[string]interface{}) (string, error) {
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("canonicalise args for %s: %w", tool, err)
	}
	sum := md5.Sum([]byte(tool + ":" + string(canonical)))
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the cached value for key if present and unexpired
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		if ok {
			c.removeLocked(key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value under key for ttl, evicting if at capacity
func (c *Cache) Set(key, tool string, value json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}

	now := time.Now()
	c.entries[key] = cacheEntry{
		value:      value,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
		tool:       tool,
	}
	keys, ok := c.byTool[tool]
	if !ok {
		keys = make(map[string]struct{})
		c.byTool[tool] = keys
	}
	keys[key] = struct{}{}
}

// InvalidateTool drops every cached entry belonging to tool
func (c *Cache) InvalidateTool(tool string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.byTool[tool]
	n := len(keys)
	for key := range keys {
		delete(c.entries, key)
	}
	delete(c.byTool, tool)
	return n
}

// evictLocked frees room: sweep a few expired entries first, then fall back
// to the oldest insertion. Caller holds the lock.
func (c *Cache) evictLocked() {
	now := time.Now()
	swept := 0
	for key, e := range c.entries {
		if swept >= expiredSweepLimit {
			break
		}
		if now.After(e.expiresAt) {
			c.removeLocked(key)
			swept++
		}
	}
	if len(c.entries) < c.capacity {
		return
	}

	var oldestKey string
	var oldestAt time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.insertedAt
		}
	}
	if oldestKey != "" {
		c.removeLocked(oldestKey)
	}
}

// removeLocked deletes an entry and its tool index; caller holds the lock
func (c *Cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		if keys, ok := c.byTool[e.tool]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTool, e.tool)
			}
		}
	}
}

// Stats returns hit/miss counters and the current size
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
