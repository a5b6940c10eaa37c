package storage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

var logger = log.NewModuleLogger("storage")

// kvStore implements Store over a kv.Database, used for both the Badger and
// Memory StoreTypes. Per-record CAS is enforced with an in-process mutex
// keyed by hash: kv.Database has no native row-level lock, so klaytn's
// single-writer DBManager assumption (one process owns the data directory)
// is mirrored here rather than re-implemented with optimistic retries.
type kvStore struct {
	db kv.Database

	mu     sync.Mutex // guards casLocks
	casLocks map[string]*sync.Mutex
}

// NewKVStore wraps a kv.Database as a Store.
func NewKVStore(db kv.Database) Store {
	return &kvStore{db: db, casLocks: make(map[string]*sync.Mutex)}
}

func (s *kvStore) lockFor(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.casLocks[hash]
	if !ok {
		l = &sync.Mutex{}
		s.casLocks[hash] = l
	}
	return l
}

func (s *kvStore) FindTransaction(hash string) (*TransactionRecord, error) {
	raw, err := s.db.Get([]byte(hash))
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "reading transaction record")
	}
	var rec TransactionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "decoding transaction record")
	}
	return &rec, nil
}

func (s *kvStore) SaveTransaction(record *TransactionRecord) error {
	lock := s.lockFor(record.Hash)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.FindTransaction(record.Hash)
	if err != nil && errs.KindOf(err) != errs.KindNotFound {
		return err
	}
	merged := record.Clone()
	if existing != nil {
		merged.CreatedAt = existing.CreatedAt
		merged.Signatures = mergeSignatures(existing.Signatures, record.Signatures)
		if merged.Status == "" {
			merged.Status = existing.Status
		}
		logger.Debug("merged transaction deposit", "hash", record.Hash, "signatures", len(merged.Signatures))
	}
	return s.put(merged)
}

func mergeSignatures(existing, incoming []Signature) []Signature {
	merged := make([]Signature, len(existing))
	copy(merged, existing)
	seen := make(map[string]bool, len(existing))
	for _, sig := range existing {
		seen[sig.Key] = true
	}
	for _, sig := range incoming {
		if !seen[sig.Key] {
			merged = append(merged, sig)
			seen[sig.Key] = true
		}
	}
	return merged
}

func (s *kvStore) put(record *TransactionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errs.Wrap(errs.KindFatal, err, "encoding transaction record")
	}
	if err := s.db.Put([]byte(record.Hash), raw); err != nil {
		return errs.Wrap(errs.KindTransientNetwork, err, "writing transaction record")
	}
	return nil
}

func (s *kvStore) UpdateTransaction(hash string, patch Patch, expectedStatus Status) (bool, error) {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.FindTransaction(hash)
	if err != nil {
		return false, err
	}
	if rec.Status != expectedStatus {
		return false, nil
	}
	if patch.Signatures != nil {
		rec.Signatures = mergeSignatures(rec.Signatures, patch.Signatures)
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Submitted != nil {
		rec.Submitted = *patch.Submitted
	}
	if patch.Result != nil {
		rec.Result = patch.Result
	}
	if patch.LastError != nil {
		rec.LastError = *patch.LastError
	}
	if patch.CallbackURL != nil {
		rec.CallbackURL = *patch.CallbackURL
	}
	rec.UpdatedAt = nowFn()
	if err := s.put(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (s *kvStore) UpdateTxStatus(hash string, newStatus, expectedStatus Status, txErr error) (bool, error) {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.FindTransaction(hash)
	if err != nil {
		return false, err
	}
	if rec.Status != expectedStatus {
		return false, nil
	}
	rec.Status = newStatus
	if txErr != nil {
		rec.LastError = txErr.Error()
		rec.RetryCount++
	}
	rec.UpdatedAt = nowFn()
	if err := s.put(rec); err != nil {
		return false, err
	}
	return true, nil
}

type kvCursor struct {
	records []*TransactionRecord
	idx     int
}

func (c *kvCursor) Next() bool {
	if c.idx >= len(c.records) {
		return false
	}
	c.idx++
	return true
}

func (c *kvCursor) Record() *TransactionRecord { return c.records[c.idx-1] }
func (c *kvCursor) Err() error                 { return nil }
func (c *kvCursor) Close() error                { return nil }

// ListTransactions takes a snapshot via kv.Database.Iterate — acceptable per
// §4.1: "may miss records inserted after scan start".
func (s *kvStore) ListTransactions(filter Filter) (Cursor, error) {
	var matched []*TransactionRecord
	err := s.db.Iterate(func(_, value []byte) bool {
		var rec TransactionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return true
		}
		if matchesFilter(&rec, filter) {
			matched = append(matched, &rec)
		}
		return true
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "listing transactions")
	}
	return &kvCursor{records: matched}, nil
}

func matchesFilter(rec *TransactionRecord, filter Filter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.Blockchain != "" && rec.Blockchain != filter.Blockchain {
		return false
	}
	if filter.MinTimeLTE != nil && rec.MinTime > *filter.MinTimeLTE {
		return false
	}
	return true
}

func (s *kvStore) CleanupExpiredTransactions(now int64) (int, error) {
	var toDelete [][]byte
	err := s.db.Iterate(func(key, value []byte) bool {
		var rec TransactionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return true
		}
		terminal := rec.Status == StatusProcessed || rec.Status == StatusFailed
		if terminal && rec.MaxTime > 0 && rec.MaxTime < now {
			dup := make([]byte, len(key))
			copy(dup, key)
			toDelete = append(toDelete, dup)
		}
		return true
	})
	if err != nil {
		return 0, errs.Wrap(errs.KindTransientNetwork, err, "scanning expired transactions")
	}
	for _, key := range toDelete {
		if err := s.db.Delete(key); err != nil {
			return 0, errs.Wrap(errs.KindTransientNetwork, err, "deleting expired transaction")
		}
	}
	return len(toDelete), nil
}

func (s *kvStore) GetTransactionStats(filter Filter) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int64)}
	err := s.db.Iterate(func(_, value []byte) bool {
		var rec TransactionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return true
		}
		if filter.Blockchain != "" && rec.Blockchain != filter.Blockchain {
			return true
		}
		stats.ByStatus[rec.Status]++
		stats.Total++
		return true
	})
	if err != nil {
		return Stats{}, errs.Wrap(errs.KindTransientNetwork, err, "computing transaction stats")
	}
	return stats, nil
}

func (s *kvStore) CheckHealth() Health {
	start := time.Now()
	_, err := s.db.Has([]byte("__health__"))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Health{Connected: false, Error: err.Error()}
	}
	return Health{Connected: true, LatencyMs: latency}
}

func (s *kvStore) Close() error { return s.db.Close() }
