package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/finlex/docindexer/pkg/core"
)

const (
	cacheMaxEntries = 100
	cacheEvictBatch = 10
)

// contentCache memoises completed ingestions by (tenant, content hash) so a
// re-submitted identical document completes without reprocessing. Entries
// expire after the TTL; when the cache is full the oldest batch is evicted.
type contentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]core.CacheEntry
}

func newContentCache(ttl time.Duration) *contentCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &contentCache{
		ttl:     ttl,
		entries: make(map[string]core.CacheEntry),
	}
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cacheKey(tenant, hash string) string {
	return tenant + ":" + hash
}

func (c *contentCache) get(tenant, hash string) (core.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(tenant, hash)
	entry, ok := c.entries[key]
	if !ok {
		return core.CacheEntry{}, false
	}
	if time.Since(entry.CachedAt) > c.ttl {
		delete(c.entries, key)
		return core.CacheEntry{}, false
	}
	return entry, true
}

func (c *contentCache) put(tenant, hash string, entry core.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= cacheMaxEntries {
		c.evictOldest(cacheEvictBatch)
	}
	c.entries[cacheKey(tenant, hash)] = entry
}

// evictOldest removes n entries ordered by cached_at. Caller holds the lock.
func (c *contentCache) evictOldest(n int) {
	type aged struct {
		key      string
		cachedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key, entry.CachedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].cachedAt.Before(all[j].cachedAt) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// deleteByDocument removes every entry whose cached ingestion produced
// documentID and returns how many were dropped.
func (c *contentCache) deleteByDocument(documentID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, entry := range c.entries {
		if entry.DocumentID == documentID {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *contentCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
