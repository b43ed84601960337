// Package resolvecache bounds and ages the monitor's DNS lookup results.
package resolvecache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached resolution.
type Entry struct {
	Site       string
	Addrs      []string
	ResolvedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Cache is a bounded TTL-aware cache of DNS answers keyed by site. The
// underlying LRU is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, Entry]
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Set stores or refreshes the entry under its site key.
func (c *Cache) Set(e Entry) {
	c.entries.Add(e.Site, e)
}

// Get returns the live entry for site. Expired entries are evicted on
// access and reported as a miss.
func (c *Cache) Get(site string, now time.Time) (Entry, bool) {
	e, ok := c.entries.Get(site)
	if !ok {
		return Entry{}, false
	}
	if e.Expired(now) {
		c.entries.Remove(site)
		return Entry{}, false
	}
	return e, true
}

// Len counts cached entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	return c.entries.Len()
}
