package finalizer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

type fakeCallback struct{ calls int32 }

func (f *fakeCallback) Dispatch(ctx context.Context, rec *Rehydrated) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

type fakeFailingCallback struct {
	calls int32
	err   error
}

func (f *fakeFailingCallback) Dispatch(ctx context.Context, rec *Rehydrated) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

type fakeRouter struct{ calls int32 }

func (f *fakeRouter) Submit(ctx context.Context, rec *Rehydrated) (storage.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return storage.Result{"hash": "0xabc"}, nil
}

func newTestWorker(cb CallbackDispatcher, router SubmissionRouter) (*Worker, storage.Store, *queue.Queue) {
	return newTestWorkerWithRetry(cb, router, 1, time.Millisecond)
}

func newTestWorkerWithRetry(cb CallbackDispatcher, router SubmissionRouter, retryAttempts int, retryDelay time.Duration) (*Worker, storage.Store, *queue.Queue) {
	store := storage.NewKVStore(kv.NewMemoryDB())
	fq := queue.New(queue.Config{MetricsInterval: time.Hour, RetryAttempts: 1})
	return New(store, fq, cb, router, retryAttempts, retryDelay), store, fq
}

func TestProcessTxHappyPathCallbackOnly(t *testing.T) {
	cb := &fakeCallback{}
	w, store, fq := newTestWorker(cb, nil)
	defer fq.Kill()

	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{
		Hash: "h1", Status: storage.StatusReady, CallbackURL: "http://cb/",
	}))
	_, err := w.Enqueue(&storage.TransactionRecord{Hash: "h1"}).Wait(context.Background())
	require.NoError(t, err)

	rec, err := store.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProcessed, rec.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&cb.calls))
}

func TestProcessTxExpiredNeverProcesses(t *testing.T) {
	w, store, fq := newTestWorker(&fakeCallback{}, nil)
	defer fq.Kill()

	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{
		Hash: "h1", Status: storage.StatusReady, MaxTime: time.Now().Unix() - 10,
	}))
	_, err := w.Enqueue(&storage.TransactionRecord{Hash: "h1"}).Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindExpired))

	rec, err := store.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "expired")
}

func TestProcessTxSubmitRecordsResult(t *testing.T) {
	router := &fakeRouter{}
	w, store, fq := newTestWorker(nil, router)
	defer fq.Kill()

	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{
		Hash: "h1", Status: storage.StatusReady, Submit: true,
	}))
	_, err := w.Enqueue(&storage.TransactionRecord{Hash: "h1"}).Wait(context.Background())
	require.NoError(t, err)

	rec, err := store.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProcessed, rec.Status)
	assert.NotZero(t, rec.Submitted)
	assert.Equal(t, "0xabc", rec.Result["hash"])
}

// TestProcessTxRetriableFailureExhaustsAndCountsAsFailed locks in the fix for
// the false-success race: a retriable effector failure must be retried by
// processTx itself (never by the Finalizer Queue re-running the task after a
// terminal commit), and once attempts are exhausted it must surface as a
// real failure, not a success.
func TestProcessTxRetriableFailureExhaustsAndCountsAsFailed(t *testing.T) {
	callErr := errs.New(errs.KindTransientNetwork, "upstream 503")
	cb := &fakeFailingCallback{err: callErr}
	w, store, fq := newTestWorkerWithRetry(cb, nil, 2, time.Millisecond)
	defer fq.Kill()

	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{
		Hash: "h1", Status: storage.StatusReady, CallbackURL: "http://cb/",
	}))
	_, err := w.Enqueue(&storage.TransactionRecord{Hash: "h1"}).Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransientNetwork))

	assert.EqualValues(t, 2, atomic.LoadInt32(&cb.calls), "both internal attempts should have run")

	rec, err := store.FindTransaction("h1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "upstream 503")

	snap := fq.Snapshot()
	assert.EqualValues(t, 1, snap.Failed, "terminal failure must count as Failed")
	assert.EqualValues(t, 0, snap.Processed, "must not be double-counted as a success")
}

func TestProcessTxStaleDispatchNoops(t *testing.T) {
	w, store, fq := newTestWorker(&fakeCallback{}, nil)
	defer fq.Kill()

	require.NoError(t, store.SaveTransaction(&storage.TransactionRecord{Hash: "h1", Status: storage.StatusProcessed}))
	_, err := w.Enqueue(&storage.TransactionRecord{Hash: "h1"}).Wait(context.Background())
	require.NoError(t, err)
}
