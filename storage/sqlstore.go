package storage

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/blocktimefinancial/refractor-sub001/errs"
)

// txRow is the gorm-mapped relational representation of a TransactionRecord,
// grounded in klaytn's gorm-backed storage shape: JSON columns for the
// variable-width signatures/result fields, a base64 text column for the
// opaque payload, and plain scalar columns for everything CAS compares on.
type txRow struct {
	Hash        string `gorm:"primary_key;size:80"`
	Blockchain  string `gorm:"size:64;index"`
	NetworkName string `gorm:"size:64"`
	Payload     string `gorm:"type:text"`
	Encoding    string `gorm:"size:32"`
	Signatures  string `gorm:"type:text"`
	Status      string `gorm:"size:16;index"`
	Submit      bool
	CallbackURL string `gorm:"size:2048"`
	MinTime     int64  `gorm:"index"`
	MaxTime     int64
	Submitted   int64
	RetryCount  int
	LastError   string `gorm:"type:text"`
	CreatedAt   int64
	UpdatedAt   int64
	Result      string `gorm:"type:text"`
}

func (txRow) TableName() string { return "transaction_records" }

func (r *txRow) toRecord() (*TransactionRecord, error) {
	rec := &TransactionRecord{
		Hash:        r.Hash,
		Blockchain:  r.Blockchain,
		NetworkName: r.NetworkName,
		Encoding:    r.Encoding,
		Status:      Status(r.Status),
		Submit:      r.Submit,
		CallbackURL: r.CallbackURL,
		MinTime:     r.MinTime,
		MaxTime:     r.MaxTime,
		Submitted:   r.Submitted,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Payload != "" {
		raw, err := base64.StdEncoding.DecodeString(r.Payload)
		if err != nil {
			return nil, err
		}
		rec.Payload = raw
	}
	if r.Signatures != "" {
		if err := json.Unmarshal([]byte(r.Signatures), &rec.Signatures); err != nil {
			return nil, err
		}
	}
	if r.Result != "" {
		if err := json.Unmarshal([]byte(r.Result), &rec.Result); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func fromRecord(rec *TransactionRecord) (*txRow, error) {
	sigJSON, err := json.Marshal(rec.Signatures)
	if err != nil {
		return nil, err
	}
	var resultJSON []byte
	if rec.Result != nil {
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return nil, err
		}
	}
	return &txRow{
		Hash:        rec.Hash,
		Blockchain:  rec.Blockchain,
		NetworkName: rec.NetworkName,
		Payload:     base64.StdEncoding.EncodeToString(rec.Payload),
		Encoding:    rec.Encoding,
		Signatures:  string(sigJSON),
		Status:      string(rec.Status),
		Submit:      rec.Submit,
		CallbackURL: rec.CallbackURL,
		MinTime:     rec.MinTime,
		MaxTime:     rec.MaxTime,
		Submitted:   rec.Submitted,
		RetryCount:  rec.RetryCount,
		LastError:   rec.LastError,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Result:      string(resultJSON),
	}, nil
}

// sqlStore implements Store over jinzhu/gorm with the mysql dialect
// (go-sql-driver/mysql), matching the teacher's own dependency pair.
type sqlStore struct {
	db *gorm.DB
}

// NewSQLStore opens (and auto-migrates) a MySQL-backed Store from a gorm DSN.
func NewSQLStore(dsn string, maxOpenConns, maxIdleConns int) (Store, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "opening sql store")
	}
	db.DB().SetMaxOpenConns(maxOpenConns)
	db.DB().SetMaxIdleConns(maxIdleConns)
	db.DB().SetConnMaxLifetime(time.Hour)
	if err := db.AutoMigrate(&txRow{}).Error; err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "migrating sql store schema")
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) FindTransaction(hash string) (*TransactionRecord, error) {
	var row txRow
	err := s.db.Where("hash = ?", hash).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "reading transaction record")
	}
	return row.toRecord()
}

func (s *sqlStore) SaveTransaction(record *TransactionRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing txRow
		err := tx.Where("hash = ?", record.Hash).First(&existing).Error
		merged := record.Clone()
		switch err {
		case nil:
			existingRec, convErr := existing.toRecord()
			if convErr != nil {
				return convErr
			}
			merged.CreatedAt = existingRec.CreatedAt
			merged.Signatures = mergeSignatures(existingRec.Signatures, record.Signatures)
			if merged.Status == "" {
				merged.Status = existingRec.Status
			}
		case gorm.ErrRecordNotFound:
			// insert path, merged already holds the new record as-is.
		default:
			return errs.Wrap(errs.KindTransientNetwork, err, "reading transaction record")
		}
		row, convErr := fromRecord(merged)
		if convErr != nil {
			return errs.Wrap(errs.KindFatal, convErr, "encoding transaction record")
		}
		return tx.Save(row).Error
	})
}

func (s *sqlStore) UpdateTransaction(hash string, patch Patch, expectedStatus Status) (bool, error) {
	var ok bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row txRow
		err := tx.Where("hash = ?", hash).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if Status(row.Status) != expectedStatus {
			return nil
		}
		rec, convErr := row.toRecord()
		if convErr != nil {
			return convErr
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
		newRow, convErr := fromRecord(rec)
		if convErr != nil {
			return convErr
		}
		if err := tx.Save(newRow).Error; err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, errs.Wrap(errs.KindTransientNetwork, err, "updating transaction record")
	}
	return ok, nil
}

func (s *sqlStore) UpdateTxStatus(hash string, newStatus, expectedStatus Status, txErr error) (bool, error) {
	var ok bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row txRow
		err := tx.Where("hash = ?", hash).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if Status(row.Status) != expectedStatus {
			return nil
		}
		updates := map[string]interface{}{
			"status":     string(newStatus),
			"updated_at": nowFn(),
		}
		if txErr != nil {
			updates["last_error"] = txErr.Error()
			updates["retry_count"] = row.RetryCount + 1
		}
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, errs.Wrap(errs.KindTransientNetwork, err, "updating transaction status")
	}
	return ok, nil
}

type sqlCursor struct {
	rows *sql.Rows
	db   *gorm.DB
	cur  *TransactionRecord
	err  error
}

func (c *sqlCursor) Next() bool {
	if !c.rows.Next() {
		return false
	}
	var row txRow
	if err := c.db.ScanRows(c.rows, &row); err != nil {
		c.err = err
		return false
	}
	rec, err := row.toRecord()
	if err != nil {
		c.err = err
		return false
	}
	c.cur = rec
	return true
}

func (c *sqlCursor) Record() *TransactionRecord { return c.cur }
func (c *sqlCursor) Err() error                  { return c.err }
func (c *sqlCursor) Close() error                { return c.rows.Close() }

// ListTransactions streams results via gorm's *sql.Rows, never loading the
// full result set into memory, per §4.1's guarantee.
func (s *sqlStore) ListTransactions(filter Filter) (Cursor, error) {
	q := s.db.Model(&txRow{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Blockchain != "" {
		q = q.Where("blockchain = ?", filter.Blockchain)
	}
	if filter.MinTimeLTE != nil {
		q = q.Where("min_time <= ?", *filter.MinTimeLTE)
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "listing transactions")
	}
	return &sqlCursor{rows: rows, db: s.db}, nil
}

func (s *sqlStore) CleanupExpiredTransactions(now int64) (int, error) {
	res := s.db.Where("status IN (?) AND max_time > 0 AND max_time < ?",
		[]string{string(StatusProcessed), string(StatusFailed)}, now).Delete(&txRow{})
	if res.Error != nil {
		return 0, errs.Wrap(errs.KindTransientNetwork, res.Error, "cleaning up expired transactions")
	}
	return int(res.RowsAffected), nil
}

func (s *sqlStore) GetTransactionStats(filter Filter) (Stats, error) {
	type row struct {
		Status string
		Count  int64
	}
	q := s.db.Model(&txRow{}).Select("status, count(*) as count").Group("status")
	if filter.Blockchain != "" {
		q = q.Where("blockchain = ?", filter.Blockchain)
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return Stats{}, errs.Wrap(errs.KindTransientNetwork, err, "computing transaction stats")
	}
	stats := Stats{ByStatus: make(map[Status]int64)}
	for _, r := range rows {
		stats.ByStatus[Status(r.Status)] = r.Count
		stats.Total += r.Count
	}
	return stats, nil
}

func (s *sqlStore) CheckHealth() Health {
	start := time.Now()
	err := s.db.DB().Ping()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Health{Connected: false, Error: err.Error()}
	}
	return Health{Connected: true, LatencyMs: latency}
}

func (s *sqlStore) Close() error { return s.db.Close() }
