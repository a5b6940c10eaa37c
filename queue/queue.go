// Package queue implements the Adaptive Queue of SPEC_FULL.md §4.2: bounded
// concurrency, per-task retry with exponential backoff + jitter, rolling
// metrics, and a concurrency autoscaler driven by those metrics.
package queue

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/log"
)

var logger = log.NewModuleLogger("queue")

// Task is a unit of work the Queue dispatches with bounded concurrency.
// Re-architected from a callback-style worker into a plain task function
// returning a result, per SPEC_FULL.md §9 ("no wrapper needed").
type Task func(ctx context.Context) (interface{}, error)

// Config is the enumerated §4.2 configuration table.
type Config struct {
	Name                string
	Concurrency         int
	MinConcurrency      int
	MaxConcurrency      int
	AdaptiveConcurrency bool
	RetryAttempts       int
	RetryDelay          time.Duration
	MetricsInterval     time.Duration
}

func (c *Config) setDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = 1
	}
	if c.MaxConcurrency < c.MinConcurrency {
		c.MaxConcurrency = c.MinConcurrency
	}
	if c.Concurrency < c.MinConcurrency {
		c.Concurrency = c.MinConcurrency
	}
	if c.Concurrency > c.MaxConcurrency {
		c.Concurrency = c.MaxConcurrency
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 30 * time.Second
	}
}

// Future resolves with a task's effector result, or the final retained error
// after exhausting retries.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Wait blocks until the task settles, or ctx is done.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(result interface{}, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

type job struct {
	id      string
	task    Task
	attempt int
	future  *Future
}

// Queue is the Adaptive Queue of §4.2. One instance is owned by the
// Finalizer; a second, independently-tuned instance is owned by the
// Submission Router (§4.6).
type Queue struct {
	cfg Config

	mu          sync.Mutex
	cond        *sync.Cond
	pending     *list.List // of *job
	running     int
	concurrency int
	paused      bool
	killed      bool

	metrics *queueMetrics
	bus     *eventBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Queue and starts its dispatcher and (if enabled)
// autoscaler goroutines.
func New(cfg Config) *Queue {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:         cfg,
		pending:     list.New(),
		concurrency: cfg.Concurrency,
		metrics:     newQueueMetrics(),
		bus:         newEventBus(),
		ctx:         ctx,
		cancel:      cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.dispatchLoop()
	q.wg.Add(1)
	go q.metricsLoop()
	return q
}

// Subscribe returns a channel of Queue events and an unsubscribe func.
func (q *Queue) Subscribe() (<-chan Event, func()) { return q.bus.Subscribe() }

// Push enqueues a task at the tail; it resolves with the effector result or
// the final retained error after exhausting retries.
func (q *Queue) Push(id string, task Task) *Future {
	return q.enqueue(id, task, false)
}

// Unshift enqueues a task at the head (priority).
func (q *Queue) Unshift(id string, task Task) *Future {
	return q.enqueue(id, task, true)
}

func (q *Queue) enqueue(id string, task Task, front bool) *Future {
	f := &Future{done: make(chan struct{})}
	j := &job{id: id, task: task, future: f}

	q.mu.Lock()
	if q.killed {
		q.mu.Unlock()
		f.settle(nil, errs.New(errs.KindFatal, "queue killed"))
		return f
	}
	if front {
		q.pending.PushFront(j)
	} else {
		q.pending.PushBack(j)
	}
	q.cond.Signal()
	q.mu.Unlock()
	return f
}

// Pause stops new dispatches; in-flight tasks continue.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.bus.Post(Event{Type: EventPaused})
}

// Resume re-enables dispatch.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.cond.Broadcast()
	q.bus.Post(Event{Type: EventResumed})
}

// Status reports whether the queue is currently paused.
func (q *Queue) Status() (paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Length returns the number of tasks waiting to be dispatched.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Running returns the number of tasks currently in flight.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Idle reports whether the queue has no pending or in-flight work.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len() == 0 && q.running == 0
}

// Concurrency returns the current dispatch concurrency ceiling.
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.concurrency
}

// SetConcurrency overrides the concurrency ceiling, clamped to
// [MinConcurrency, MaxConcurrency]. Per SPEC_FULL.md §9's resolved Open
// Question, increases take effect on next dispatch; decreases never cancel
// in-flight tasks.
func (q *Queue) SetConcurrency(n int) {
	if n < q.cfg.MinConcurrency {
		n = q.cfg.MinConcurrency
	}
	if n > q.cfg.MaxConcurrency {
		n = q.cfg.MaxConcurrency
	}
	q.mu.Lock()
	old := q.concurrency
	q.concurrency = n
	q.mu.Unlock()
	if old != n {
		q.cond.Broadcast()
		q.bus.Post(Event{Type: EventConcurrencyChanged, Data: map[string]int{"old": old, "new": n}})
	}
}

// Drain blocks until the queue becomes idle or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if q.Idle() {
			return nil
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Kill prevents new dispatches and stops timers; in-flight tasks are allowed
// to finish.
func (q *Queue) Kill() {
	q.mu.Lock()
	q.killed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.cancel()
	q.bus.Post(Event{Type: EventKilled})
	q.bus.Close()
}

func (q *Queue) dispatchLoop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for !q.killed && (q.paused || q.pending.Len() == 0 || q.running >= q.concurrency) {
			q.cond.Wait()
			if q.killed {
				break
			}
		}
		if q.killed {
			q.mu.Unlock()
			return
		}
		el := q.pending.Front()
		q.pending.Remove(el)
		j := el.Value.(*job)
		q.running++
		q.mu.Unlock()

		q.wg.Add(1)
		go q.runJob(j)
	}
}

func (q *Queue) runJob(j *job) {
	defer q.wg.Done()
	j.attempt++

	q.bus.Post(Event{Type: EventTaskStart, TaskID: j.id, Attempt: j.attempt})
	start := time.Now()
	result, err := j.task(context.Background())
	elapsed := time.Since(start)

	q.mu.Lock()
	q.running--
	q.mu.Unlock()
	q.cond.Signal()

	if err == nil {
		q.metrics.recordSuccess(elapsed)
		q.bus.Post(Event{Type: EventTaskComplete, TaskID: j.id, Attempt: j.attempt})
		j.future.settle(result, nil)
		return
	}

	q.bus.Post(Event{Type: EventTaskError, TaskID: j.id, Err: err, Attempt: j.attempt})

	if errs.Retriable(err) && j.attempt < q.cfg.RetryAttempts {
		q.metrics.recordRetry()
		delay := q.retryDelay(j.attempt, err)
		q.bus.Post(Event{Type: EventTaskRetry, TaskID: j.id, Err: err, Attempt: j.attempt, Delay: delay.Milliseconds()})
		q.wg.Add(1)
		time.AfterFunc(delay, func() {
			defer q.wg.Done()
			q.mu.Lock()
			if q.killed {
				q.mu.Unlock()
				j.future.settle(nil, err)
				return
			}
			q.pending.PushFront(j)
			q.cond.Signal()
			q.mu.Unlock()
		})
		return
	}

	q.metrics.recordFailure()
	q.bus.Post(Event{Type: EventTaskFailed, TaskID: j.id, Err: err, Attempt: j.attempt})
	j.future.settle(nil, err)
}

// retryDelay computes retryDelay·2^(attempt−1) + rand([0,1000))ms, honoring
// a rate-limited error's Retry-After hint when present (SPEC_FULL.md §9
// Open Question resolution: honor Retry-After when present).
func (q *Queue) retryDelay(attempt int, err error) time.Duration {
	if errs.Is(err, errs.KindRateLimited) {
		if ra, ok := errs.RetryAfter(err); ok && ra > 0 {
			return ra
		}
	}
	backoff := q.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return backoff + jitter
}

func (q *Queue) metricsLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := q.metrics.snapshot(q.Length(), q.Running(), q.Concurrency())
			q.bus.Post(Event{Type: EventMetrics, Data: snap})
			if q.cfg.AdaptiveConcurrency {
				q.autoscale(snap)
			}
		case <-q.ctx.Done():
			return
		}
	}
}

// autoscale applies the §4.2 thresholds.
func (q *Queue) autoscale(s Snapshot) {
	c := s.Concurrency
	var newC int
	var reason string
	switch {
	case s.QueueLength > 2*c && s.SuccessRate > 0.95 && s.AvgProcessingTime < 5*time.Second:
		newC = c + 1
		reason = "backlog building with healthy success rate"
	case s.AvgProcessingTime > 10*time.Second || s.SuccessRate < 0.90:
		newC = c - 1
		reason = "latency or success rate degraded"
	case s.QueueLength == 0 && s.Running < c/2:
		newC = c - 1
		reason = "idle capacity"
	default:
		return
	}
	if newC == c {
		return
	}
	q.SetConcurrency(newC)
	q.bus.Post(Event{Type: EventConcurrencyAdjusted, Data: map[string]interface{}{"old": c, "new": newC, "reason": reason}})
}

// Snapshot returns the current rolling metrics view.
func (q *Queue) Snapshot() Snapshot {
	return q.metrics.snapshot(q.Length(), q.Running(), q.Concurrency())
}
