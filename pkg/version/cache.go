package version

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultCacheSize bounds the number of memoized parse results.
const DefaultCacheSize = 8192

type cacheKey struct {
	spec bool
	text string
}

type cacheEntry struct {
	v    Version
	spec Specifier
	err  error
}

// Cache memoizes version and specifier parsing. It is safe for concurrent
// use. A nil *Cache parses without memoizing.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	hits  int
	calls int
}

// NewCache returns a Cache holding at most size entries. A size of zero
// or less selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{lru: lru.New(size)}
}

// Parse is the memoized form of the package-level Parse.
func (c *Cache) Parse(s string) (Version, error) {
	if c == nil {
		return Parse(s)
	}
	e := c.load(cacheKey{text: s}, func() cacheEntry {
		v, err := Parse(s)
		return cacheEntry{v: v, err: err}
	})
	return e.v, e.err
}

// ParseSpecifier is the memoized form of the package-level ParseSpecifier.
func (c *Cache) ParseSpecifier(s string) (Specifier, error) {
	if c == nil {
		return ParseSpecifier(s)
	}
	e := c.load(cacheKey{spec: true, text: s}, func() cacheEntry {
		spec, err := ParseSpecifier(s)
		return cacheEntry{spec: spec, err: err}
	})
	return e.spec, e.err
}

// Stats returns the number of lookups and how many were served from memory.
func (c *Cache) Stats() (calls, hits int) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.hits
}

func (c *Cache) load(key cacheKey, parse func() cacheEntry) cacheEntry {
	c.mu.Lock()
	c.calls++
	if v, ok := c.lru.Get(key); ok {
		c.hits++
		c.mu.Unlock()
		return v.(cacheEntry)
	}
	c.mu.Unlock()

	e := parse()

	c.mu.Lock()
	c.lru.Add(key, e)
	c.mu.Unlock()
	return e
}
