package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MetricsInterval = time.Hour
	cfg.TickerTimeout = 50 * time.Millisecond
	cfg.HTTPListenAddr = ":0"
	return cfg
}

func TestNewWiresEveryComponent(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.store)
	require.NotNil(t, a.finalizerQueue)
	require.NotNil(t, a.submissionQ)
	require.NotNil(t, a.worker)
	require.NotNil(t, a.scheduler)
	require.NotNil(t, a.server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.scheduler.RecoverFromCrash())
	a.scheduler.Start()
	require.NoError(t, a.Shutdown(ctx))
}

func TestClassifyChain(t *testing.T) {
	assert.Equal(t, 1, int(classifyChain("stellar")))
	assert.NotEqual(t, int(classifyChain("stellar")), int(classifyChain("unknown-chain")))
}

func TestAppServesHTTPAfterWiring(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Shutdown(ctx)
	}()

	req := httptest.NewRequest(http.MethodGet, "/monitoring/health", nil)
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
