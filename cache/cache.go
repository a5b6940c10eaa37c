// Package cache provides the bounded in-memory caches layered in front of the
// Store's hot-record reads (SPEC_FULL.md §4.1) and the Submission Router's
// per-network endpoint clients (§4.6). Adapted from klaytn's
// common/cache.go lruCache wrapper, simplified to plain string keys since
// neither use case needs common.cache's shard-routing CacheKey interface.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded, string-keyed cache of arbitrary values.
type Cache interface {
	Add(key string, value interface{}) (evicted bool)
	Get(key string) (value interface{}, ok bool)
	Remove(key string)
	Purge()
	Len() int
}

type lruCache struct {
	lru *lru.Cache
}

// New returns an LRU-evicted cache holding at most size entries. A
// non-positive size disables caching by always reporting misses.
func New(size int) Cache {
	if size <= 0 {
		return &noopCache{}
	}
	l, err := lru.New(size)
	if err != nil {
		// lru.New only errors on size <= 0, already guarded above.
		panic(err)
	}
	return &lruCache{lru: l}
}

func (c *lruCache) Add(key string, value interface{}) bool { return c.lru.Add(key, value) }
func (c *lruCache) Get(key string) (interface{}, bool)     { return c.lru.Get(key) }
func (c *lruCache) Remove(key string)                      { c.lru.Remove(key) }
func (c *lruCache) Purge()                                 { c.lru.Purge() }
func (c *lruCache) Len() int                                { return c.lru.Len() }

type noopCache struct{}

func (*noopCache) Add(string, interface{}) bool      { return false }
func (*noopCache) Get(string) (interface{}, bool)    { return nil, false }
func (*noopCache) Remove(string)                     {}
func (*noopCache) Purge()                            {}
func (*noopCache) Len() int                          { return 0 }
