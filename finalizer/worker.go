// Package finalizer implements the Finalizer Worker of SPEC_FULL.md §4.4:
// the per-task state machine ready → processing → processed|failed, driving
// the Callback Dispatcher and/or Submission Router.
package finalizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

var logger = log.NewModuleLogger("finalizer")

// CallbackDispatcher fires the user-supplied HTTP callback (§4.5).
type CallbackDispatcher interface {
	Dispatch(ctx context.Context, rec *Rehydrated) error
}

// SubmissionRouter submits the rehydrated transaction to its target network
// (§4.6), returning the chain-specific result on success.
type SubmissionRouter interface {
	Submit(ctx context.Context, rec *Rehydrated) (storage.Result, error)
}

// Worker drives the §4.4 state machine for each record the Scheduler feeds
// it. It owns no Queue itself: Enqueue submits the processing task onto the
// Finalizer Queue handed to New.
//
// Effector retries (callback/submission) are the Worker's own responsibility,
// not the Finalizer Queue's: processTx retries a failing effector internally,
// before any terminal CAS commit, so the Finalizer Queue only ever sees a
// processTx task run once (its own Config.RetryAttempts is fixed at 1 — see
// app.New). Letting the Queue re-run the whole task after a terminal commit
// would hit processTx's stale-dispatch guard on the retry and report a
// terminally-failed record as a success.
type Worker struct {
	store         storage.Store
	fq            *queue.Queue
	callback      CallbackDispatcher
	router        SubmissionRouter
	rehydrate     *rehydrationCache
	now           func() int64
	retryAttempts int
	retryDelay    time.Duration
}

// New constructs a Worker. callback and/or router may be nil if a record
// never sets callbackUrl / submit — but a nil value used at dispatch time is
// a configuration error surfaced as a fatal error. retryAttempts is the
// number of effector invocation attempts before a record is committed
// failed (retryAttempts <= 0 defaults to 1, i.e. no retry); retryDelay is the
// base backoff between attempts, mirroring queue.Config's retry knobs.
func New(store storage.Store, fq *queue.Queue, callback CallbackDispatcher, router SubmissionRouter, retryAttempts int, retryDelay time.Duration) *Worker {
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Worker{
		store:         store,
		fq:            fq,
		callback:      callback,
		router:        router,
		rehydrate:     newRehydrationCache(),
		now:           func() int64 { return time.Now().Unix() },
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// Enqueue pushes rec's processTx task onto the Finalizer Queue; it is the
// Dispatch func the Scheduler calls on every ready record it drains.
func (w *Worker) Enqueue(rec *storage.TransactionRecord) *queue.Future {
	return w.fq.Push(rec.Hash, func(ctx context.Context) (interface{}, error) {
		return nil, w.processTx(ctx, rec.Hash)
	})
}

// processTx implements the §4.4 per-task processing contract.
func (w *Worker) processTx(ctx context.Context, hash string) error {
	rec, err := w.store.FindTransaction(hash)
	if err != nil {
		return err
	}
	if rec.Status != storage.StatusReady {
		return nil // stale dispatch: step 1.
	}

	ok, err := w.store.UpdateTxStatus(hash, storage.StatusProcessing, storage.StatusReady, nil)
	if err != nil {
		return err
	}
	if !ok {
		return nil // another worker won the CAS: step 2.
	}

	if rec.MaxTime > 0 && rec.MaxTime < w.now() {
		failErr := errs.New(errs.KindExpired, "expired")
		w.commitFailure(hash, failErr)
		return failErr
	}

	rehydrated := w.rehydrate.get(rec)

	var result storage.Result
	var effectorErr error
retryLoop:
	for attempt := 1; ; attempt++ {
		result, effectorErr = w.invokeEffectors(ctx, rec, rehydrated)
		if effectorErr == nil || !errs.Retriable(effectorErr) || attempt >= w.retryAttempts {
			break
		}
		logger.Warn("retrying effector invocation", "hash", hash, "attempt", attempt, "err", effectorErr)
		timer := time.NewTimer(w.nextRetryDelay(attempt, effectorErr))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			break retryLoop
		}
	}

	if effectorErr != nil {
		w.commitFailure(hash, effectorErr)
		return effectorErr
	}

	patch := storage.Patch{Status: statusPtr(storage.StatusProcessed)}
	if rec.Submit {
		now := w.now()
		patch.Submitted = &now
		patch.Result = result
	}
	committed, err := w.store.UpdateTransaction(hash, patch, storage.StatusProcessing)
	if err != nil {
		return err
	}
	if !committed {
		return errs.New(errs.KindStateConflict, "terminal commit CAS failed")
	}
	return nil
}

// invokeEffectors runs the callback dispatch followed by the submission, in
// that order, stopping at the first failure — a single attempt, with no
// retry of its own. processTx wraps this in the retry loop.
func (w *Worker) invokeEffectors(ctx context.Context, rec *storage.TransactionRecord, rehydrated *Rehydrated) (storage.Result, error) {
	if rec.CallbackURL != "" {
		if w.callback == nil {
			return storage.Result{}, errs.New(errs.KindFatal, "no callback dispatcher configured")
		}
		if err := w.callback.Dispatch(ctx, rehydrated); err != nil {
			return storage.Result{}, err
		}
	}
	if rec.Submit {
		if w.router == nil {
			return storage.Result{}, errs.New(errs.KindFatal, "no submission router configured")
		}
		return w.router.Submit(ctx, rehydrated)
	}
	return storage.Result{}, nil
}

// nextRetryDelay mirrors queue.Queue.retryDelay's backoff+jitter formula,
// honoring a rate-limited error's Retry-After hint when present.
func (w *Worker) nextRetryDelay(attempt int, err error) time.Duration {
	if errs.Is(err, errs.KindRateLimited) {
		if ra, ok := errs.RetryAfter(err); ok && ra > 0 {
			return ra
		}
	}
	backoff := w.retryDelay * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return backoff + jitter
}

// commitFailure records the terminal failure best-effort: it never lets the
// CAS outcome suppress the original effector error from reaching the
// Queue's retry/fail accounting, per §4.4 step 6.
func (w *Worker) commitFailure(hash string, cause error) {
	_, err := w.store.UpdateTxStatus(hash, storage.StatusFailed, storage.StatusProcessing, cause)
	if err != nil {
		logger.Error("best-effort failure commit errored", "hash", hash, "err", err)
	}
}

func statusPtr(s storage.Status) *storage.Status { return &s }
