// Package memory is an in-process DateCache, used when Redis is disabled
// and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/calendar"
)

type MemoryDateCache struct {
	mu        sync.RWMutex
	dates     calendar.Set
	populated bool
}

func NewMemoryDateCache() *MemoryDateCache {
	return &MemoryDateCache{dates: make(calendar.Set)}
}

// GetAll returns a copy of the cached days. Returns (empty, false) when cold.
func (c *MemoryDateCache) GetAll(_ context.Context) (calendar.Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.populated {
		return calendar.Set{}, false
	}
	out := make(calendar.Set, len(c.dates))
	for d := range c.dates {
		out[d] = struct{}{}
	}
	return out, true
}

func (c *MemoryDateCache) Add(_ context.Context, dates []time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.populated {
		return
	}
	for _, d := range dates {
		c.dates.Add(d)
	}
}

func (c *MemoryDateCache) Remove(_ context.Context, dates []time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range dates {
		delete(c.dates, calendar.Normalize(d))
	}
}

func (c *MemoryDateCache) Replace(ctx context.Context, newDates, oldDates []time.Time) {
	c.Remove(ctx, oldDates)
	c.Add(ctx, newDates)
}

func (c *MemoryDateCache) Fill(_ context.Context, dates []time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range dates {
		c.dates.Add(d)
	}
	c.populated = true
}

// Clear empties the cache. Idempotent.
func (c *MemoryDateCache) Clear(_ context.Context) {
	c.mu.Lock()
	c.dates = make(calendar.Set)
	c.populated = false
	c.mu.Unlock()
}

func (c *MemoryDateCache) Ping(_ context.Context) error {
	return nil
}

// Ensure MemoryDateCache implements DateCache
var _ cache.DateCache = (*MemoryDateCache)(nil)
