package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// cacheEntry is one cached search response with TTL
type cacheEntry struct {
	response  *Response
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired() bool {
	return time.Since(e.createdAt) > e.ttl
}

// resultCache is an LRU cache with TTL for search responses. Any index
// write clears it, so entries can never outlive the data they were
// computed from by more than the TTL.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // LRU order, most recent at end
	maxSize    int
	defaultTTL time.Duration
}

// newResultCache creates a result cache with the given capacity and TTL
func newResultCache(maxSize int, defaultTTL time.Duration) *resultCache {
	return &resultCache{
		entries:    make(map[string]*cacheEntry),
		order:      make([]string, 0),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// get retrieves a cached response
func (c *resultCache) get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if entry.expired() {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return entry.response, true
}

// put stores a response in the cache
func (c *resultCache) put(key string, response *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{
		response:  response,
		createdAt: time.Now(),
		ttl:       c.defaultTTL,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// clear removes all entries
func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

// size returns the current number of entries
func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToEnd marks key as most recently used
func (c *resultCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *resultCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// evictLRU removes the least recently used entry
func (c *resultCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	lruKey := c.order[0]
	delete(c.entries, lruKey)
	c.order = c.order[1:]
}

// cacheKey creates a deterministic key from the full search request
func cacheKey(req Request) string {
	keyData := struct {
		Request  Request `json:"request"`
		Unscoped bool    `json:"unscoped"`
	}{
		Request:  req,
		Unscoped: req.Unscoped,
	}

	data, _ := json.Marshal(keyData)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
