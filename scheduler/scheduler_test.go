package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

func TestRecoverFromCrashResetsProcessingToReady(t *testing.T) {
	store := storage.NewKVStore(kv.NewMemoryDB())
	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{Hash: "h1", Status: storage.StatusProcessing}))
	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{Hash: "h2", Status: storage.StatusReady}))

	s := New(Config{}, store, queue.New(queue.Config{MetricsInterval: time.Hour}), nil)
	require.NoError(t, s.RecoverFromCrash())

	rec, err := store.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReady, rec.Status)
}

func TestTickDispatchesReadyRecordsUpToCeiling(t *testing.T) {
	store := storage.NewKVStore(kv.NewMemoryDB())
	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{Hash: h, Status: storage.StatusReady}))
	}
	fq := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer fq.Kill()

	var mu sync.Mutex
	var dispatched []string
	s := New(Config{TargetQueueSize: 2, TickerTimeout: time.Hour}, store, fq, func(rec *storage.TransactionRecord) *queue.Future {
		mu.Lock()
		dispatched = append(dispatched, rec.Hash)
		mu.Unlock()
		return fq.Push(rec.Hash, func(ctx context.Context) (interface{}, error) { return nil, nil })
	})
	s.tick()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, dispatched)
}
