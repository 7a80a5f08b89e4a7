package geocode

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	result  *Result
	expires time.Time
}

// Cached memoizes another Geocoder in memory, including misses, for ttl.
// Errors are not cached. Concurrent misses on the same text share one
// upstream call.
type Cached struct {
	next  Geocoder
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCached wraps next with an in-memory cache.
func NewCached(next Geocoder, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Geocode implements Geocoder.
func (c *Cached) Geocode(ctx context.Context, text string) (*Result, error) {
	key := normalize(text)
	if key == "" {
		return nil, nil
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		zap.L().Debug("geocode cache hit", zap.String("key", key), zap.Bool("matched", e.result != nil))
		return e.result, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		res, err := c.next.Geocode(ctx, text)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{result: res, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("geocode shared in-flight lookup", zap.String("key", key))
	}
	res, _ := v.(*Result)
	return res, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
