package kv

import (
	"os"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/blocktimefinancial/refractor-sub001/log"
)

const gcThreshold = int64(1 << 30) // 1GB
const sizeGCTickerPeriod = 1 * time.Minute

var logger = log.NewModuleLogger("storage.kv")

// badgerDB is a Database backed by dgraph-io/badger, adapted from klaytn's
// storage/database.badgerDB: same directory-open/value-log-GC lifecycle,
// generalized from the blockchain-specific DBManager down to plain
// Get/Put/Has/Delete.
type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	closeCh  chan struct{}
}

// NewBadgerDB opens (creating if necessary) a Badger database rooted at dir.
func NewBadgerDB(dir string) (Database, error) {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, errors.Errorf("storage dir %q is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating storage dir %q", dir)
		}
	} else {
		return nil, errors.Wrapf(err, "checking storage dir %q", dir)
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger db at %q", dir)
	}

	bg := &badgerDB{
		fn:       dir,
		db:       db,
		gcTicker: time.NewTicker(sizeGCTickerPeriod),
		closeCh:  make(chan struct{}),
	}
	go bg.runValueLogGC()
	return bg, nil
}

func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.gcTicker.C:
			_, curSize := bg.db.Size()
			if curSize-lastSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				logger.Warn("value log gc failed", "dir", bg.fn, "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		case <-bg.closeCh:
			return
		}
	}
}

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Iterate(fn func(key, value []byte) bool) error {
	return bg.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), val) {
				return nil
			}
		}
		return nil
	})
}

func (bg *badgerDB) Close() error {
	close(bg.closeCh)
	bg.gcTicker.Stop()
	return bg.db.Close()
}

type badgerBatch struct {
	db   *badger.DB
	txn  *badger.Txn
	size int
}

func (bg *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: bg.db, txn: bg.db.NewTransaction(true)}
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.txn.Set(key, value)
}

func (b *badgerBatch) Write() error {
	return b.txn.Commit(nil)
}

func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Reset() {
	b.txn.Discard()
	b.txn = b.db.NewTransaction(true)
	b.size = 0
}
