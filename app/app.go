// Package app is the dependency-injected application root of SPEC_FULL.md
// §9's "Global state" design note: explicit handles owned here, constructed
// in order (Store → Queues → Scheduler → HTTP server) and torn down in
// reverse, rather than the teacher's process-wide singletons.
package app

import (
	"context"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/callback"
	"github.com/blocktimefinancial/refractor-sub001/config"
	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/events"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/httpapi"
	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/scheduler"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/submission"
	"github.com/blocktimefinancial/refractor-sub001/submission/evmrpc"
	"github.com/blocktimefinancial/refractor-sub001/submission/stellar"
)

var logger = log.NewModuleLogger("app")

// App owns every long-lived handle of a running instance.
type App struct {
	cfg            config.Config
	store          storage.Store
	finalizerQueue *queue.Queue
	submissionQ    *queue.Queue
	worker         *finalizer.Worker
	scheduler      *scheduler.Scheduler
	server         *httpapi.Server
	relay          *events.Relay
}

// New wires every component in the order §9 requires: Store → Queues →
// Scheduler → HTTP server. Nothing is started yet.
func New(cfg config.Config, adminAuth httpapi.AdminAuth) (*App, error) {
	cfg = cfg.Sanitize()

	store, err := storage.New(storageConfig(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "constructing store")
	}

	finalizerQueue := queue.New(queue.Config{
		Name:                "finalizer",
		Concurrency:         cfg.ParallelTasks,
		MinConcurrency:      cfg.MinParallelTasks,
		MaxConcurrency:      cfg.MaxParallelTasks,
		AdaptiveConcurrency: cfg.AdaptiveConcurrency,
		// Effector retries are the Finalizer Worker's own responsibility
		// (see finalizer.New below): the Queue must never re-run a
		// processTx task after it has already committed a terminal
		// status, so this queue gets exactly one attempt per task.
		RetryAttempts:   1,
		RetryDelay:      cfg.RetryDelay,
		MetricsInterval: cfg.MetricsInterval,
	})

	submissionQ := queue.New(queue.Config{
		Name:                "submission",
		Concurrency:         cfg.SubmissionConcurrency,
		MinConcurrency:      cfg.SubmissionConcurrency,
		MaxConcurrency:      cfg.MaxSubmissionConcurrency,
		AdaptiveConcurrency: cfg.AdaptiveConcurrency,
		RetryAttempts:       cfg.SubmissionRetryAttempts,
		RetryDelay:          cfg.SubmissionRetryDelay,
		MetricsInterval:     cfg.MetricsInterval,
	})

	clientCache := submission.NewClientCache(128, 15*time.Second)
	router := submission.New(submissionQ, classifyChain, map[submission.ChainKind]submission.Effector{
		submission.ChainReference:  stellar.New(clientCache.Get),
		submission.ChainGenericRPC: evmrpc.New(clientCache.Get),
	}, networksFor(cfg))

	dispatcher := callback.New(10*time.Second, 64)
	worker := finalizer.New(store, finalizerQueue, dispatcher, router, cfg.RetryAttempts, cfg.RetryDelay)

	sched := scheduler.New(scheduler.Config{
		TargetQueueSize: cfg.TargetQueueSize,
		TickerTimeout:   cfg.TickerTimeout,
	}, store, finalizerQueue, worker.Enqueue)

	var relay *events.Relay
	if cfg.EventsEnabled {
		pub, err := events.NewKafkaPublisher(&events.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			RequiredAcks: events.GetDefaultKafkaConfig().RequiredAcks,
			Timeout:      events.GetDefaultKafkaConfig().Timeout,
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindFatal, err, "constructing kafka publisher")
		}
		relay = events.NewRelay(finalizerQueue, pub, cfg.KafkaTopicPrefix)
	}

	server := httpapi.New(httpapi.Options{
		Store:          store,
		FinalizerQueue: finalizerQueue,
		SubmissionQ:    submissionQ,
		Worker:         worker,
		Scheduler:      sched,
		AdminAuth:      adminAuth,
		CORSOrigins:    cfg.CORSOrigins,
		ListenAddr:     cfg.HTTPListenAddr,
	})

	return &App{
		cfg:            cfg,
		store:          store,
		finalizerQueue: finalizerQueue,
		submissionQ:    submissionQ,
		worker:         worker,
		scheduler:      sched,
		server:         server,
		relay:          relay,
	}, nil
}

// Run performs crash recovery, starts the scheduler, and blocks serving
// HTTP until the server is shut down.
func (a *App) Run() error {
	if err := a.scheduler.RecoverFromCrash(); err != nil {
		return errs.Wrap(errs.KindFatal, err, "crash recovery failed")
	}
	a.scheduler.Start()
	return a.server.ListenAndServe()
}

// Shutdown tears every component down in reverse construction order: HTTP
// server → Scheduler → Queues → Store. Bounded by ctx per §5's hard
// shutdown timeout.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	a.scheduler.Stop()
	if err := a.scheduler.WaitShutdown(ctx); err != nil {
		logger.Error("scheduler did not stop within deadline", "err", err)
	}
	if a.relay != nil {
		a.relay.Stop()
	}
	a.submissionQ.Kill()
	a.finalizerQueue.Kill()
	if err := a.store.Close(); err != nil {
		logger.Error("store close error", "err", err)
		return err
	}
	return nil
}

func storageConfig(cfg config.Config) storage.Config {
	sc := storage.Config{DataDir: cfg.BadgerDir, DSN: cfg.SQLDSN, CacheSize: 4096}
	switch cfg.StoreBackend {
	case config.BackendSQL:
		sc.Type = storage.StoreTypeSQL
	case config.BackendBadger:
		sc.Type = storage.StoreTypeBadger
	default:
		sc.Type = storage.StoreTypeMemory
	}
	return sc
}

func networksFor(cfg config.Config) map[string]submission.NetworkConfig {
	out := make(map[string]submission.NetworkConfig, len(cfg.Networks))
	for name, nc := range cfg.Networks {
		out[name] = submission.NetworkConfig{Endpoint: nc.Endpoint, Passphrase: nc.Passphrase}
	}
	return out
}

// classifyChain maps a record's blockchain tag to a submission.ChainKind.
// "stellar" is the reference chain (§4.6); anything ending in "-evm" is
// treated as a generic JSON-RPC chain; everything else is unknown until a
// future effector is added.
func classifyChain(blockchain string) submission.ChainKind {
	switch {
	case blockchain == "stellar":
		return submission.ChainReference
	case len(blockchain) > 4 && blockchain[len(blockchain)-4:] == "-evm":
		return submission.ChainGenericRPC
	default:
		return submission.ChainUnknown
	}
}
