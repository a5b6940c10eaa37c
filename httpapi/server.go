// Package httpapi implements the HTTP API surface of SPEC_FULL.md §6:
// julienschmidt/httprouter for routing wrapped by rs/cors, grounded in the
// same two dependencies klaytn's go.mod carries for its own RPC transport.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/scheduler"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

var logger = log.NewModuleLogger("httpapi")

// AdminAuth gates the three admin routes (pause|resume, concurrency,
// cleanup/expired). Defaults to allow-all; the policy itself is an external
// collaborator's concern per spec.md §1, but the mount point is always
// wired (§6 expansion).
type AdminAuth func(r *http.Request) bool

func allowAll(*http.Request) bool { return true }

// Server wires the §6 HTTP API surface over a Store, the Finalizer Queue,
// and the Scheduler that POST /tx nudges; it also holds the Submission Queue
// and the Worker, which no handler uses.
type Server struct {
	store          storage.Store
	finalizerQueue *queue.Queue
	submissionQ    *queue.Queue
	worker         *finalizer.Worker
	scheduler      *scheduler.Scheduler
	adminAuth      AdminAuth
	now            func() int64

	httpServer *http.Server
}

// Options configures a Server.
type Options struct {
	Store          storage.Store
	FinalizerQueue *queue.Queue
	SubmissionQ    *queue.Queue
	Worker         *finalizer.Worker
	Scheduler      *scheduler.Scheduler
	AdminAuth      AdminAuth
	CORSOrigins    []string
	ListenAddr     string
}

// New builds a Server and its underlying *http.Server, not yet listening.
func New(opts Options) *Server {
	auth := opts.AdminAuth
	if auth == nil {
		auth = allowAll
	}
	s := &Server{
		store:          opts.Store,
		finalizerQueue: opts.FinalizerQueue,
		submissionQ:    opts.SubmissionQ,
		worker:         opts.Worker,
		scheduler:      opts.Scheduler,
		adminAuth:      auth,
		now:            func() int64 { return time.Now().Unix() },
	}

	router := httprouter.New()
	router.GET("/tx/:hash", s.handleGetTx)
	router.POST("/tx", s.handlePostTx)
	router.GET("/monitoring/metrics", s.handleMetrics)
	router.GET("/monitoring/health", s.handleHealth)
	router.POST("/monitoring/queue/pause", s.adminGate(s.handleQueuePause))
	router.POST("/monitoring/queue/resume", s.adminGate(s.handleQueueResume))
	router.POST("/monitoring/queue/concurrency", s.adminGate(s.handleQueueConcurrency))
	router.POST("/monitoring/cleanup/expired", s.adminGate(s.handleCleanupExpired))

	corsOrigins := opts.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	addr := opts.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// Handler returns the fully wired http.Handler (router + CORS), useful for
// tests that want to drive requests without binding a real listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	logger.Info("http api listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops accepting new connections, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) adminGate(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.adminAuth(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r, ps)
	}
}
