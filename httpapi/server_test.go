package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/storage/kv"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	store := storage.NewKVStore(kv.NewMemoryDB())
	fq := queue.New(queue.Config{MetricsInterval: time.Hour})
	t.Cleanup(fq.Kill)
	s := New(Options{Store: store, FinalizerQueue: fq})
	return s, s.httpServer.Handler
}

func TestPostThenGetTxRoundTrips(t *testing.T) {
	_, handler := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"blockchain":  "stellar",
		"networkName": "public",
		"payload":     "aGVsbG8=",
	})
	req := httptest.NewRequest(http.MethodPost, "/tx?hash=h1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/tx/h1", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var got txResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &got))
	assert.Equal(t, "stellar", got.Blockchain)
	assert.Equal(t, "ready", got.Status)
}

func TestGetTxUnknownHashReturns404(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tx/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostTxLegacyShapeNormalizes(t *testing.T) {
	_, handler := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{
		"network": "public",
		"xdr":     "aGVsbG8=",
	})
	req := httptest.NewRequest(http.MethodPost, "/tx?hash=h2", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got txResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "stellar", got.Blockchain)
	assert.Equal(t, "public", got.NetworkName)
}

func TestHealthUnhealthyWhenPaused(t *testing.T) {
	s, handler := newTestServer(t)
	s.finalizerQueue.Pause()

	req := httptest.NewRequest(http.MethodGet, "/monitoring/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminRouteRejectedWithoutAuth(t *testing.T) {
	store := storage.NewKVStore(kv.NewMemoryDB())
	fq := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer fq.Kill()
	s := New(Options{
		Store:          store,
		FinalizerQueue: fq,
		AdminAuth:      func(*http.Request) bool { return false },
	})

	req := httptest.NewRequest(http.MethodPost, "/monitoring/queue/pause", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueueConcurrencyRejectsOutOfRange(t *testing.T) {
	_, handler := newTestServer(t)
	body, _ := json.Marshal(map[string]int{"concurrency": 500})
	req := httptest.NewRequest(http.MethodPost, "/monitoring/queue/concurrency", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
