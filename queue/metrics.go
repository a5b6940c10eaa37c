package queue

import (
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
)

// queueMetrics wraps a private rcrowley/go-metrics registry — not
// metrics.DefaultRegistry — so two independently-tuned Queue instances
// (Finalizer, Submission) never collide on metric names, grounded in
// klaytn's per-component metric registration (work/worker.go's
// timeLimitReachedCounter, storage/database/leveldb_database.go's
// compaction meters).
type queueMetrics struct {
	registry metrics.Registry

	processed metrics.Counter
	failed    metrics.Counter
	retries   metrics.Counter
	procTime  metrics.Timer

	startedAt time.Time

	// peakLoad is read and CAS-updated from both the background
	// metricsLoop goroutine and any concurrent Snapshot() caller (e.g. the
	// HTTP metrics handler), so it cannot be a plain int (§5: Queue-owned
	// in-memory metrics state must stay internally consistent under
	// concurrent access).
	peakLoad int64
}

func newQueueMetrics() *queueMetrics {
	r := metrics.NewRegistry()
	return &queueMetrics{
		registry:  r,
		processed: metrics.NewRegisteredCounter("processed", r),
		failed:    metrics.NewRegisteredCounter("failed", r),
		retries:   metrics.NewRegisteredCounter("retries", r),
		procTime:  metrics.NewRegisteredTimer("processingTime", r),
		startedAt: time.Now(),
	}
}

func (m *queueMetrics) recordSuccess(d time.Duration) {
	m.processed.Inc(1)
	m.procTime.Update(d)
}

func (m *queueMetrics) recordFailure() { m.failed.Inc(1) }
func (m *queueMetrics) recordRetry()   { m.retries.Inc(1) }

// Snapshot is the point-in-time rolling-metrics view of §4.2.
type Snapshot struct {
	Processed         int64
	Failed            int64
	Retries           int64
	QueueLength       int
	Running           int
	Concurrency       int
	AvgProcessingTime time.Duration
	Throughput        float64
	SuccessRate       float64
	Utilization       float64
	PeakLoad          int
}

// snapshot computes the derived §4.2 rolling metrics. avgProcessingTime uses
// go-metrics' Timer rolling mean, which keeps an exponentially-decaying
// sample internally — a documented substitution for the "rolling over last
// 100 completions" spec language (DESIGN.md Open Question resolution).
func (m *queueMetrics) snapshot(queueLength, running, concurrency int) Snapshot {
	processed := m.processed.Count()
	failed := m.failed.Count()
	total := processed + failed

	var successRate float64 = 1
	if total > 0 {
		successRate = float64(processed) / float64(total)
	}
	runtimeSeconds := time.Since(m.startedAt).Seconds()
	var throughput float64
	if runtimeSeconds > 0 {
		throughput = float64(processed) / runtimeSeconds
	}
	var utilization float64
	if concurrency > 0 {
		utilization = float64(running) / float64(concurrency)
	}
	for {
		cur := atomic.LoadInt64(&m.peakLoad)
		if int64(running) <= cur {
			break
		}
		if atomic.CompareAndSwapInt64(&m.peakLoad, cur, int64(running)) {
			break
		}
	}
	return Snapshot{
		Processed:         processed,
		Failed:            failed,
		Retries:           m.retries.Count(),
		QueueLength:       queueLength,
		Running:           running,
		Concurrency:       concurrency,
		AvgProcessingTime: time.Duration(m.procTime.Mean()),
		Throughput:        throughput,
		SuccessRate:       successRate,
		Utilization:       utilization,
		PeakLoad:          int(atomic.LoadInt64(&m.peakLoad)),
	}
}
