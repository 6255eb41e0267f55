// ABOUTME: In-memory cache of scan results keyed by content hash.
// ABOUTME: TTL-based expiration keeps repeat scans of identical bytes cheap.

package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

type entry struct {
	result    *types.ScanResult
	expiresAt time.Time
}

// ResultCache memoizes scan results by content hash. A hit is only valid for
// the catalog version it was produced under; callers invalidate on catalog
// change by calling Clear.
type ResultCache struct {
	mu     sync.RWMutex
	cache  map[string]*entry
	ttl    time.Duration
	logger *logrus.Logger
}

func NewResultCache(ttl time.Duration, logger *logrus.Logger) *ResultCache {
	c := &ResultCache{
		cache:  make(map[string]*entry),
		ttl:    ttl,
		logger: logger,
	}
	go c.startCleanup()
	return c
}

// Get returns the cached result for a content hash, or nil.
func (c *ResultCache) Get(contentHash string) *types.ScanResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.cache[contentHash]
	if !ok {
		return nil
	}
	if time.Now().After(e.expiresAt) {
		// Cleanup deletes expired entries; avoid a write lock here.
		return nil
	}

	c.logger.WithField("content_hash", contentHash).Debug("Result cache hit")
	return e.result
}

func (c *ResultCache) Set(contentHash string, result *types.ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[contentHash] = &entry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Clear drops every cached result. Called when the catalog version changes,
// since old results no longer reflect the active rule set.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*entry)
	c.logger.Debug("Result cache cleared")
}

func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *ResultCache) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *ResultCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for hash, e := range c.cache {
		if now.After(e.expiresAt) {
			delete(c.cache, hash)
			expired++
		}
	}
	if expired > 0 {
		c.logger.WithField("expired_count", expired).Debug("Cleaned up expired scan results")
	}
}
