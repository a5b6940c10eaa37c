package storage

import (
	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

// StoreType selects the Store backend, mirroring klaytn's
// storage/database.DBManager DBType switch (SPEC_FULL.md §4.1 expansion).
type StoreType string

const (
	StoreTypeSQL    StoreType = "sql"
	StoreTypeBadger StoreType = "badger"
	StoreTypeMemory StoreType = "memory"
)

// Config selects and parameterizes a Store backend.
type Config struct {
	Type StoreType

	// SQL
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	// Badger
	DataDir string

	// shared
	CacheSize int
}

// New constructs a Store per cfg, wrapping it in the hot-record cache
// decorator when CacheSize > 0.
func New(cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case StoreTypeSQL:
		store, err = NewSQLStore(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	case StoreTypeBadger:
		var db kv.Database
		db, err = kv.NewBadgerDB(cfg.DataDir)
		if err == nil {
			store = NewKVStore(db)
		}
	case StoreTypeMemory:
		store = NewKVStore(kv.NewMemoryDB())
	default:
		return nil, errs.New(errs.KindValidation, "unknown store type: "+string(cfg.Type))
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		store = WithCache(store, cfg.CacheSize)
	}
	return store, nil
}
