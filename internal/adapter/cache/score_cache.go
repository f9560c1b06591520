package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"ctxasm/internal/domain"
	"ctxasm/internal/port"
)

// ScoreCache remembers relevance verdicts keyed by query and content, so the
// same file is not re-scored within a session. Least recently used entries
// are evicted first; entries older than the TTL are ignored.
type ScoreCache struct {
	mu      sync.RWMutex
	entries map[uint64]*cacheEntry
	order   []uint64
	maxSize int
	ttl     time.Duration
	gen     uint64
	now     func() time.Time
}

type cacheEntry struct {
	relevance domain.Relevance
	timestamp time.Time
	gen       uint64
}

func NewScoreCache(maxSize int, ttl time.Duration) *ScoreCache {
	if maxSize <= 0 {
		maxSize = 512
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ScoreCache{
		entries: make(map[uint64]*cacheEntry),
		order:   make([]uint64, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query, content string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(query)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(content)
	return d.Sum64()
}

func (c *ScoreCache) Get(query, content string) (domain.Relevance, bool) {
	key := cacheKey(query, content)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return domain.Relevance{}, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl || entry.gen != c.gen {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return domain.Relevance{}, false
	}

	c.moveToEnd(key)
	return entry.relevance, true
}

func (c *ScoreCache) Put(query, content string, rel domain.Relevance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, content)
	entry := &cacheEntry{relevance: rel, timestamp: c.now(), gen: c.gen}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Invalidate drops every entry.
func (c *ScoreCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]*cacheEntry)
	c.order = c.order[:0]
	c.gen++
}

func (c *ScoreCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ScoreCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *ScoreCache) moveToEnd(key uint64) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *ScoreCache) removeFromOrder(key uint64) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedScorer wraps a RelevanceScorer with a ScoreCache. Failures are not cached.
type CachedScorer struct {
	scorer port.RelevanceScorer
	cache  *ScoreCache
}

func NewCachedScorer(scorer port.RelevanceScorer, cache *ScoreCache) *CachedScorer {
	return &CachedScorer{
		scorer: scorer,
		cache:  cache,
	}
}

func (s *CachedScorer) Score(ctx context.Context, query, content string) (domain.Relevance, error) {
	if rel, hit := s.cache.Get(query, content); hit {
		return rel, nil
	}

	rel, err := s.scorer.Score(ctx, query, content)
	if err != nil {
		return domain.Relevance{}, err
	}

	s.cache.Put(query, content, rel)
	return rel, nil
}
