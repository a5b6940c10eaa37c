package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return NewKVStore(kv.NewMemoryDB())
}

func TestKVStoreSaveAndFind(t *testing.T) {
	s := newTestStore(t)
	rec := &TransactionRecord{Hash: "h1", Status: StatusPending, Blockchain: "stellar", MinTime: 10}
	require.NoError(t, s.SaveTransaction(rec))

	got, err := s.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "stellar", got.Blockchain)
}

func TestKVStoreFindMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindTransaction("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStoreSignaturesAccrueAcrossSaves(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTransaction(&TransactionRecord{
		Hash: "h1", Status: StatusPending,
		Signatures: []Signature{{Key: "k1", Signature: "s1"}},
	}))
	require.NoError(t, s.SaveTransaction(&TransactionRecord{
		Hash: "h1",
		Signatures: []Signature{{Key: "k2", Signature: "s2"}},
	}))

	got, err := s.FindTransaction("h1")
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 2)
}

func TestKVStoreUpdateTxStatusCAS(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h1", Status: StatusReady}))

	ok, err := s.UpdateTxStatus("h1", StatusProcessing, StatusReady, nil)
	require.NoError(t, err)
	assert.True(t, ok, "CAS should succeed against the expected status")

	// second CAS against the now-stale expected status must no-op.
	ok, err = s.UpdateTxStatus("h1", StatusProcessing, StatusReady, nil)
	require.NoError(t, err)
	assert.False(t, ok, "CAS should fail once status has moved on")
}

func TestKVStoreListTransactionsFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h1", Status: StatusReady}))
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h2", Status: StatusPending}))

	cur, err := s.ListTransactions(Filter{Status: StatusReady})
	require.NoError(t, err)
	defer cur.Close()

	var hashes []string
	for cur.Next() {
		hashes = append(hashes, cur.Record().Hash)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []string{"h1"}, hashes)
}

func TestKVStoreCleanupExpiredTransactions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h1", Status: StatusProcessed, MaxTime: 100}))
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h2", Status: StatusReady, MaxTime: 100}))

	n, err := s.CleanupExpiredTransactions(200)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the terminal, expired record is purged")

	_, err = s.FindTransaction("h1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindTransaction("h2")
	assert.NoError(t, err)
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	s := WithCache(newTestStore(t), 16)
	require.NoError(t, s.SaveTransaction(&TransactionRecord{Hash: "h1", Status: StatusReady}))

	first, err := s.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, first.Status)

	ok, err := s.UpdateTxStatus("h1", StatusProcessing, StatusReady, nil)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := s.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, second.Status, "cache must be invalidated by the CAS update")
}
