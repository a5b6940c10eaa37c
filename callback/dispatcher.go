// Package callback implements the Callback Dispatcher of SPEC_FULL.md §4.5:
// an HTTP POST of the rehydrated record to a user-supplied URL.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/log"
)

var logger = log.NewModuleLogger("callback")

// Dispatcher implements finalizer.CallbackDispatcher.
type Dispatcher struct {
	client *http.Client
}

// New builds a Dispatcher with a shared, tuned *http.Client — never
// http.DefaultClient for an outbound call with an SLA, the convention every
// HTTP-touching piece of the pack follows (SPEC_FULL.md §4.5 expansion).
func New(timeout time.Duration, maxIdlePerHost int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 64
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: maxIdlePerHost,
			},
		},
	}
}

// Dispatch fires processCallback(record): an HTTP POST of the rehydrated
// record JSON to record.CallbackURL. Non-2xx status, transport errors and
// timeouts all propagate with the classifier-relevant kind set so the Queue
// retries 5xx/network and 429 (rate limited) and never retries any other
// 4xx (§4.5).
func (d *Dispatcher) Dispatch(ctx context.Context, rec *finalizer.Rehydrated) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.KindFatal, err, "encoding callback body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "building callback request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Warn("callback request failed", "hash", rec.Hash, "url", rec.CallbackURL, "err", err)
		return errs.Wrap(errs.KindTransientNetwork, err, "callback request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.NewRateLimited("callback rate limited", retryAfterHeader(resp))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.New(errs.KindValidation, httpStatusMsg(resp.StatusCode))
	default:
		return errs.New(errs.KindTransientNetwork, httpStatusMsg(resp.StatusCode))
	}
}

func httpStatusMsg(code int) string {
	return "callback endpoint responded " + http.StatusText(code)
}

func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 0
}
