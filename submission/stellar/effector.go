// Package stellar implements the reference-chain effector of
// SPEC_FULL.md §4.6: a Horizon-shaped REST submission endpoint rather than a
// vendored Stellar SDK, since no Stellar client library appears anywhere in
// the example pack (wiring one would fabricate a dependency).
package stellar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/submission"
)

// ClientFor returns the *http.Client to use for a submission; normally
// (*submission.ClientCache).Get.
type ClientFor func(key string) *http.Client

// Effector implements submission.Effector against a Horizon-compatible
// POST {endpoint}/transactions submission endpoint.
type Effector struct {
	clientFor ClientFor
}

// New builds a stellar Effector. clientFor supplies the shared, cached
// per-network *http.Client (§4.6 "reuse a cached endpoint client keyed by
// network").
func New(clientFor ClientFor) *Effector {
	return &Effector{clientFor: clientFor}
}

// horizonProblem is the documented Horizon problem-detail error body.
type horizonProblem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes struct {
			TransactionCode string   `json:"transaction"`
			OperationCodes  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}

type horizonSuccess struct {
	Hash        string `json:"hash"`
	Ledger      int64  `json:"ledger"`
	EnvelopeXdr string `json:"envelope_xdr"`
	ResultXdr   string `json:"result_xdr"`
}

// Submit POSTs the base64 transaction envelope to {endpoint}/transactions.
// On failure it reads the Horizon-style problem-detail body: a 429 becomes a
// rate-limited error carrying the Retry-After hint, other 4xx a validation
// error, anything else a transient-network error, so the Queue's classifier
// can distinguish 429 from 400-class failures. The error message holds the
// problem's detail and, for 4xx, its operation result codes; the problem's
// status, title and transaction result code are not kept on the error.
func (e *Effector) Submit(ctx context.Context, rec *finalizer.Rehydrated, net submission.NetworkConfig) (storage.Result, error) {
	form := url.Values{"tx": {base64.StdEncoding.EncodeToString(rec.Payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(net.Endpoint, "/")+"/transactions",
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "building submission request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := e.clientFor(rec.Blockchain + ":" + rec.NetworkName)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "submission request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ok horizonSuccess
		if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
			return nil, errs.Wrap(errs.KindFatal, err, "decoding submission response")
		}
		return storage.Result{"hash": ok.Hash, "ledger": ok.Ledger}, nil
	}

	var problem horizonProblem
	_ = json.NewDecoder(resp.Body).Decode(&problem)
	detail := problem.Detail
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.NewRateLimited(detail, retryAfter(resp))
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, errs.New(errs.KindValidation, detail+" ("+strings.Join(problem.Extras.ResultCodes.OperationCodes, ",")+")")
	}
	return nil, errs.New(errs.KindTransientNetwork, detail)
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
