package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encoding response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg, "status": status})
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errs.HTTPStatus(err), err.Error())
}

// handleGetTx serves GET /tx/{hash}.
func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hash := ps.ByName("hash")
	rec, err := s.store.FindTransaction(hash)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// handlePostTx serves POST /tx: accept a record in canonical or legacy
// form, upsert it, and trigger an immediate scheduler check so a
// submit-now-eligible record doesn't wait a full tick (§6).
func (s *Server) handlePostTx(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req postTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	hash := r.URL.Query().Get("hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "hash is required")
		return
	}

	now := s.now()
	rec, err := req.normalize(hash, now)
	if err != nil {
		writeErr(w, err)
		return
	}

	existing, err := s.store.FindTransaction(hash)
	switch {
	case err == nil:
		existing.Signatures = mergeSignatures(existing.Signatures, rec.Signatures)
		existing.Submit = existing.Submit || rec.Submit
		if rec.CallbackURL != "" {
			existing.CallbackURL = rec.CallbackURL
		}
		existing.UpdatedAt = now
		if err := s.store.SaveTransaction(existing); err != nil {
			writeErr(w, err)
			return
		}
		rec = existing
	case errs.Is(err, errs.KindNotFound):
		if err := s.store.SaveTransaction(rec); err != nil {
			writeErr(w, err)
			return
		}
	default:
		writeErr(w, err)
		return
	}

	if rec.Status == storage.StatusReady && s.scheduler != nil {
		s.scheduler.TriggerImmediateCheck()
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func mergeSignatures(existing, incoming []storage.Signature) []storage.Signature {
	seen := make(map[string]bool, len(existing))
	out := make([]storage.Signature, len(existing))
	copy(out, existing)
	for _, s := range out {
		seen[s.Key] = true
	}
	for _, s := range incoming {
		if !seen[s.Key] {
			out = append(out, s)
			seen[s.Key] = true
		}
	}
	return out
}

// handleMetrics serves GET /monitoring/metrics[?blockchain=...].
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter := storage.Filter{Blockchain: r.URL.Query().Get("blockchain")}
	stats, err := s.store.GetTransactionStats(filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	snap := s.finalizerQueue.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"finalizer": map[string]interface{}{
			"metrics": snap,
			"status":  queueStatus(s.finalizerQueue),
		},
		"database":  stats,
		"timestamp": s.now(),
	})
}

type queueStatusView struct {
	Paused      bool `json:"paused"`
	Concurrency int  `json:"concurrency"`
	Length      int  `json:"length"`
	Running     int  `json:"running"`
}

func queueStatus(q interface {
	Status() bool
	Concurrency() int
	Length() int
	Running() int
}) queueStatusView {
	return queueStatusView{
		Paused:      q.Status(),
		Concurrency: q.Concurrency(),
		Length:      q.Length(),
		Running:     q.Running(),
	}
}

// handleHealth serves GET /monitoring/health: 200 iff the Finalizer Queue
// is unpaused with positive concurrency and the Store reports connected;
// 503 otherwise (§6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	health := s.store.CheckHealth()
	paused := s.finalizerQueue.Status()
	concurrency := s.finalizerQueue.Concurrency()

	healthy := !paused && concurrency > 0 && health.Connected
	status := http.StatusOK
	label := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   label,
		"queue":    queueStatus(s.finalizerQueue),
		"database": health,
	})
}

type concurrencyRequest struct {
	Concurrency int `json:"concurrency"`
}

// handleQueuePause serves POST /monitoring/queue/pause (admin).
func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.finalizerQueue.Pause()
	writeJSON(w, http.StatusOK, queueStatus(s.finalizerQueue))
}

// handleQueueResume serves POST /monitoring/queue/resume (admin).
func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.finalizerQueue.Resume()
	writeJSON(w, http.StatusOK, queueStatus(s.finalizerQueue))
}

// handleQueueConcurrency serves POST /monitoring/queue/concurrency
// {concurrency∈[1,100]} (admin).
func (s *Server) handleQueueConcurrency(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req concurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Concurrency < 1 || req.Concurrency > 100 {
		writeError(w, http.StatusBadRequest, "concurrency must be in [1,100]")
		return
	}
	s.finalizerQueue.SetConcurrency(req.Concurrency)
	writeJSON(w, http.StatusOK, queueStatus(s.finalizerQueue))
}

// handleCleanupExpired serves POST /monitoring/cleanup/expired (admin).
func (s *Server) handleCleanupExpired(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cleaned, err := s.store.CleanupExpiredTransactions(s.now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleanedTransactions": cleaned})
}
