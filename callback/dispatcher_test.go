package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
)

func TestDispatchSuccess(t *testing.T) {
	var gotBody bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = r.ContentLength > 0
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(time.Second, 8)
	err := d.Dispatch(context.Background(), &finalizer.Rehydrated{Hash: "h1", CallbackURL: srv.URL})
	assert.NoError(t, err)
	assert.True(t, gotBody)
}

func TestDispatch4xxIsValidationNotRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := New(time.Second, 8)
	err := d.Dispatch(context.Background(), &finalizer.Rehydrated{Hash: "h1", CallbackURL: srv.URL})
	assert.Error(t, err)
	assert.False(t, errs.Retriable(err))
}

func TestDispatch5xxIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(time.Second, 8)
	err := d.Dispatch(context.Background(), &finalizer.Rehydrated{Hash: "h1", CallbackURL: srv.URL})
	assert.Error(t, err)
	assert.True(t, errs.Retriable(err))
}
