package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the in-process cache when no size is given.
const DefaultMemoryEntries = 4096

// MapCache keeps the most recently used tile bodies in memory. Entries past
// the capacity are evicted least recently used first.
type MapCache struct {
	m *lru.Cache[TileCacheKey, TileCacheValue]
}

func NewMapCache(entries int) *MapCache {
	if entries < 1 {
		entries = DefaultMemoryEntries
	}
	// lru.New fails only for a non-positive size.
	m, _ := lru.New[TileCacheKey, TileCacheValue](entries)
	return &MapCache{m: m}
}

var _ TileCache = (*MapCache)(nil)

func (c *MapCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	v, exists := c.m.Get(k)
	return v, exists, nil
}

func (c *MapCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	c.m.Add(k, v)
	return nil
}

func (c *MapCache) Len() int {
	return c.m.Len()
}
