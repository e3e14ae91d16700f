// Package cache provides the process-local detail cache.
package cache

import (
	"sync"
	"time"

	"github.com/newsclip/newscrawler/internal/news"
)

// Clock is the minimal time source the cache needs.
type Clock interface {
	Now() time.Time
}

type entry struct {
	detail    news.Detail
	expiresAt time.Time
}

// TTL caches extracted details keyed by article URL for a bounded lifetime.
// Safe under concurrent detail workers. A miss always falls back to a real
// fetch; nothing here affects correctness.
type TTL struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[string]entry
}

// NewTTL builds a cache with the given entry lifetime.
func NewTTL(ttl time.Duration, clock Clock) *TTL {
	return &TTL{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns a fresh cached detail. Expired entries are evicted on access.
func (c *TTL) Get(url string) (news.Detail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return news.Detail{}, false
	}
	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, url)
		return news.Detail{}, false
	}
	return e.detail, true
}

// Put stores a detail under url until the TTL elapses.
func (c *TTL) Put(url string, detail news.Detail) {
	if url == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = entry{detail: detail, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Len reports the number of entries, expired ones included.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
