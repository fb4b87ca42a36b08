package weather

import (
	"sync"
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
)

// cacheKey identifies one fetched range for one location.
type cacheKey struct {
	location string
	kind     FetchKind
	from     string
	to       string
}

func (k cacheKey) String() string {
	return k.location + "|" + string(k.kind) + "|" + k.from + "|" + k.to
}

func newCacheKey(loc Location, kind FetchKind, from, to time.Time) cacheKey {
	k := cacheKey{location: loc.Key(), kind: kind}
	if !from.IsZero() {
		k.from = common.DateString(from)
	}
	if !to.IsZero() {
		k.to = common.DateString(to)
	}
	return k
}

type cacheEntry struct {
	samples   []TemperatureSample
	expiresAt time.Time
}

// SampleCache is a TTL cache of fetched sample sets keyed by
// (coordinates, kind, date range).
type SampleCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewSampleCache creates an empty cache.
func NewSampleCache() *SampleCache {
	return &SampleCache{
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached samples for key if present and not expired.
func (c *SampleCache) Get(key cacheKey) ([]TemperatureSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.samples, true
}

// Put stores samples under key for ttl. A ttl <= 0 skips caching.
func (c *SampleCache) Put(key cacheKey, samples []TemperatureSample, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{samples: samples, expiresAt: c.now().Add(ttl)}
}

// Purge drops expired entries and returns how many were removed.
func (c *SampleCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included.
func (c *SampleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
