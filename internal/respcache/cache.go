// Package respcache provides the bounded LRU cache that fronts the
// query engine for HTTP responses.
package respcache

import (
	"strconv"
	"strings"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"
)

// DefaultCapacity is the bound used by the serving process.
const DefaultCapacity = 10_000

// Cache is a bounded response cache. Get promotes the entry; Set evicts
// the least recently used entry when over capacity. Entries have no TTL;
// the cache lives and dies with the process, and the writer never
// consults it.
type Cache struct {
	cache otter.Cache[string, any]
}

// New creates a Cache bounded to capacity entries.
func New(capacity int) *Cache {
	cache, err := otter.MustBuilder[string, any](capacity).
		Cost(func(_ string, _ any) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("respcache: failed to create cache: " + err.Error())
	}
	return &Cache{cache: cache}
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Set stores a value under key.
func (c *Cache) Set(key string, value any) {
	c.cache.Set(key, value)
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	return c.cache.Size()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Close releases resources held by the underlying cache.
func (c *Cache) Close() {
	c.cache.Close()
}

// Key builds a fixed-width cache key from an endpoint name and its
// parameters. Parameters are joined with an unprintable separator before
// hashing so adjacent fields cannot collide.
func Key(endpoint string, parts ...string) string {
	var b strings.Builder
	b.WriteString(endpoint)
	for _, p := range parts {
		b.WriteByte(0x1f)
		b.WriteString(p)
	}
	sum := xxh3.HashString128(b.String())
	return endpoint + ":" + strconv.FormatUint(sum.Hi, 16) + strconv.FormatUint(sum.Lo, 16)
}
