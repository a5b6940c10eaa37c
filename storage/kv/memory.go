package kv

import "sync"

// memoryDB is a mutex-guarded map Database, grounded in klaytn's
// NewMemoryDBManager: used by the Memory StoreType and by package tests.
type memoryDB struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemoryDB returns an empty in-memory Database.
func NewMemoryDB() Database {
	return &memoryDB{m: make(map[string][]byte)}
}

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.m[string(key)] = cp
	return nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.m[string(key)]
	return ok, nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, string(key))
	return nil
}

func (m *memoryDB) Iterate(fn func(key, value []byte) bool) error {
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.m))
	for k, v := range m.m {
		snapshot[k] = v
	}
	m.mu.RUnlock()
	for k, v := range snapshot {
		if !fn([]byte(k), v) {
			break
		}
	}
	return nil
}

func (m *memoryDB) Close() error { return nil }

type memoryBatch struct {
	db   *memoryDB
	puts map[string][]byte
	size int
}

func (m *memoryDB) NewBatch() Batch {
	return &memoryBatch{db: m, puts: make(map[string][]byte)}
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	b.puts[string(key)] = value
	return nil
}

func (b *memoryBatch) Write() error {
	for k, v := range b.puts {
		if err := b.db.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Reset() {
	b.puts = make(map[string][]byte)
	b.size = 0
}
