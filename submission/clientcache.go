package submission

import (
	"net/http"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/cache"
)

// ClientCache reuses a cached endpoint client keyed by network (§4.6),
// grounded in the same hashicorp/golang-lru wrapper as the Store's
// hot-record cache (storage/cached_store.go / klaytn's common/cache.go).
type ClientCache struct {
	cache   cache.Cache
	timeout time.Duration
}

// NewClientCache returns a ClientCache holding at most size per-network
// *http.Client instances.
func NewClientCache(size int, timeout time.Duration) *ClientCache {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ClientCache{cache: cache.New(size), timeout: timeout}
}

// Get returns the cached client for key, creating and caching one the way
// callback.New does — a shared, tuned client rather than
// http.DefaultClient — on first use.
func (c *ClientCache) Get(key string) *http.Client {
	if v, ok := c.cache.Get(key); ok {
		return v.(*http.Client)
	}
	client := &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 32,
		},
	}
	c.cache.Add(key, client)
	return client
}
