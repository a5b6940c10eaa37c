package storage

import "github.com/blocktimefinancial/refractor-sub001/cache"

// cachedStore decorates a Store with a hashicorp/golang-lru hot-record
// cache in front of FindTransaction, invalidated on every successful write —
// grounded in klaytn's common/cache.go lruCache wrapper (SPEC_FULL.md
// §4.1 expansion).
type cachedStore struct {
	Store
	hot cache.Cache
}

// WithCache wraps store with a hot-record cache of the given size. A
// non-positive size yields a no-op cache (every call passes through).
func WithCache(store Store, size int) Store {
	return &cachedStore{Store: store, hot: cache.New(size)}
}

func (c *cachedStore) FindTransaction(hash string) (*TransactionRecord, error) {
	if v, ok := c.hot.Get(hash); ok {
		return v.(*TransactionRecord).Clone(), nil
	}
	rec, err := c.Store.FindTransaction(hash)
	if err != nil {
		return nil, err
	}
	c.hot.Add(hash, rec.Clone())
	return rec, nil
}

func (c *cachedStore) SaveTransaction(record *TransactionRecord) error {
	err := c.Store.SaveTransaction(record)
	if err == nil {
		c.hot.Remove(record.Hash)
	}
	return err
}

func (c *cachedStore) UpdateTransaction(hash string, patch Patch, expectedStatus Status) (bool, error) {
	ok, err := c.Store.UpdateTransaction(hash, patch, expectedStatus)
	if err == nil && ok {
		c.hot.Remove(hash)
	}
	return ok, err
}

func (c *cachedStore) CleanupExpiredTransactions(now int64) (int, error) {
	n, err := c.Store.CleanupExpiredTransactions(now)
	if err == nil && n > 0 {
		c.hot.Purge()
	}
	return n, err
}

func (c *cachedStore) UpdateTxStatus(hash string, newStatus, expectedStatus Status, txErr error) (bool, error) {
	ok, err := c.Store.UpdateTxStatus(hash, newStatus, expectedStatus, txErr)
	if err == nil && ok {
		c.hot.Remove(hash)
	}
	return ok, err
}
