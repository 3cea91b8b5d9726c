package router

import "sync"

// DefaultPatternCacheSize is the default maximum number of compiled
// patterns kept by a PatternCache.
const DefaultPatternCacheSize = 1000

type patternCacheEntry struct {
	pattern     *Pattern
	accessOrder int64
}

// PatternCache is a bounded LRU cache of compiled path patterns.
type PatternCache struct {
	mu            sync.Mutex
	entries       map[string]*patternCacheEntry
	maxSize       int
	accessCounter int64
	metrics       *routerMetrics
}

// NewPatternCache creates a cache holding at most maxSize patterns.
// A non-positive size selects DefaultPatternCacheSize.
func NewPatternCache(maxSize int) *PatternCache {
	if maxSize <= 0 {
		maxSize = DefaultPatternCacheSize
	}
	return &PatternCache{
		entries: make(map[string]*patternCacheEntry),
		maxSize: maxSize,
		metrics: getRouterMetrics(),
	}
}

// Get returns the compiled form of pattern, parsing it on a miss.
func (c *PatternCache) Get(pattern string) (*Pattern, error) {
	c.mu.Lock()
	if entry, ok := c.entries[pattern]; ok {
		c.accessCounter++
		entry.accessOrder = c.accessCounter
		c.mu.Unlock()

		c.metrics.cacheHits.Inc()
		return entry.pattern, nil
	}
	c.mu.Unlock()

	c.metrics.cacheMisses.Inc()

	compiled, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have added it while parsing.
	if existing, ok := c.entries[pattern]; ok {
		c.accessCounter++
		existing.accessOrder = c.accessCounter
		return existing.pattern, nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
		c.metrics.cacheEvictions.Inc()
	}

	c.accessCounter++
	c.entries[pattern] = &patternCacheEntry{
		pattern:     compiled,
		accessOrder: c.accessCounter,
	}
	c.metrics.cacheSize.Set(float64(len(c.entries)))

	return compiled, nil
}

// Len returns the number of cached patterns.
func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLRU removes the least recently used entry. Must be called with
// c.mu held.
func (c *PatternCache) evictLRU() {
	var lruKey string
	var lruOrder int64 = -1

	for key, entry := range c.entries {
		if lruOrder == -1 || entry.accessOrder < lruOrder {
			lruOrder = entry.accessOrder
			lruKey = key
		}
	}

	if lruOrder != -1 {
		delete(c.entries, lruKey)
	}
}
