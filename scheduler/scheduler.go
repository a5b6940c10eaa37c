// Package scheduler implements the periodic poller of SPEC_FULL.md §4.3: it
// drains "ready" records from the Store into the Finalizer Queue without
// exceeding a soft target size, and performs startup crash recovery.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

var logger = log.NewModuleLogger("scheduler")

// Config is the Scheduler's half of the §6 configuration table.
type Config struct {
	TargetQueueSize int
	TickerTimeout   time.Duration
}

// Dispatch pushes a record onto the Finalizer Queue; it is the sole seam
// between the Scheduler and the Worker, so tests can inject a fake.
type Dispatch func(rec *storage.TransactionRecord) *queue.Future

// Scheduler is the §4.3 poll loop.
type Scheduler struct {
	cfg      Config
	store    storage.Store
	fq       *queue.Queue
	dispatch Dispatch

	mu       sync.Mutex
	timer    *time.Timer
	shutdown int32
	done     chan struct{}
}

// New constructs a Scheduler. dispatch is normally (*finalizer.Worker).Enqueue.
func New(cfg Config, store storage.Store, fq *queue.Queue, dispatch Dispatch) *Scheduler {
	if cfg.TickerTimeout <= 0 {
		cfg.TickerTimeout = 5 * time.Second
	}
	if cfg.TargetQueueSize <= 0 {
		cfg.TargetQueueSize = 100
	}
	return &Scheduler{cfg: cfg, store: store, fq: fq, dispatch: dispatch, done: make(chan struct{})}
}

// RecoverFromCrash resets every processing-status record to ready, per
// §4.3's crash-recovery rule. Must run once at process start before Start.
func (s *Scheduler) RecoverFromCrash() error {
	cur, err := s.store.ListTransactions(storage.Filter{Status: storage.StatusProcessing})
	if err != nil {
		return err
	}
	defer cur.Close()

	var recovered int
	for cur.Next() {
		rec := cur.Record()
		ok, err := s.store.UpdateTxStatus(rec.Hash, storage.StatusReady, storage.StatusProcessing, nil)
		if err != nil {
			logger.Error("crash recovery CAS failed", "hash", rec.Hash, "err", err)
			continue
		}
		if ok {
			recovered++
		}
	}
	if recovered > 0 {
		logger.Warn("recovered in-flight records after crash", "count", recovered)
	}
	return cur.Err()
}

// Start runs the tick loop until Stop is called.
func (s *Scheduler) Start() {
	s.scheduleTick(0)
}

// Stop flags shutdown; the current tick in progress finishes, no more are
// scheduled.
func (s *Scheduler) Stop() {
	atomic.StoreInt32(&s.shutdown, 1)
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	close(s.done)
}

// TriggerImmediateCheck cancels the pending tick and schedules one promptly,
// provided shutdown is not in progress and the queue has headroom.
func (s *Scheduler) TriggerImmediateCheck() {
	if atomic.LoadInt32(&s.shutdown) == 1 {
		return
	}
	if s.fq.Length() >= s.cfg.TargetQueueSize {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	go s.tick()
}

func (s *Scheduler) scheduleTick(after time.Duration) {
	if atomic.LoadInt32(&s.shutdown) == 1 {
		return
	}
	s.mu.Lock()
	s.timer = time.AfterFunc(after, s.tick)
	s.mu.Unlock()
}

func (s *Scheduler) tick() {
	if atomic.LoadInt32(&s.shutdown) == 1 {
		return
	}
	now := time.Now().Unix()
	hitCeiling := false

	cur, err := s.store.ListTransactions(storage.Filter{Status: storage.StatusReady, MinTimeLTE: &now})
	if err != nil {
		logger.Error("scheduler tick: listing ready transactions failed", "err", err)
		s.scheduleTick(s.cfg.TickerTimeout)
		return
	}
	func() {
		defer cur.Close()
		for cur.Next() {
			if atomic.LoadInt32(&s.shutdown) == 1 {
				return
			}
			s.dispatch(cur.Record())
			if s.fq.Length() >= s.cfg.TargetQueueSize {
				hitCeiling = true
				return
			}
		}
	}()
	if err := cur.Err(); err != nil {
		logger.Error("scheduler tick: cursor error", "err", err)
	}

	if hitCeiling {
		s.scheduleTick(500 * time.Millisecond)
	} else {
		s.scheduleTick(s.cfg.TickerTimeout)
	}
}

// WaitShutdown blocks until Stop has been called, or ctx is done — used by
// the application root's hard-shutdown timer.
func (s *Scheduler) WaitShutdown(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
