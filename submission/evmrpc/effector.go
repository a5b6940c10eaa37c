// Package evmrpc implements the generic RPC chain family effector of
// SPEC_FULL.md §4.6: a JSON-RPC 2.0 eth_sendRawTransaction POST. Built on
// net/http + encoding/json — no ecosystem JSON-RPC client in the example
// pack covers a one-shot unary call more simply than the standard library
// (DESIGN.md stdlib justification).
package evmrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/storage"
	"github.com/blocktimefinancial/refractor-sub001/submission"
)

// ClientFor returns the *http.Client to use for a submission.
type ClientFor func(key string) *http.Client

// Effector implements submission.Effector against an EVM-compatible
// JSON-RPC endpoint.
type Effector struct {
	clientFor ClientFor
}

// New builds an evmrpc Effector.
func New(clientFor ClientFor) *Effector {
	return &Effector{clientFor: clientFor}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Submit POSTs a 0x-prefixed payload as eth_sendRawTransaction. On an
// RPC-level error field the call fails with a validation error carrying the
// RPC code/message; on success it returns {hash, submittedAt} (§4.6).
func (e *Effector) Submit(ctx context.Context, rec *finalizer.Rehydrated, net submission.NetworkConfig) (storage.Result, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_sendRawTransaction",
		Params:  []interface{}{"0x" + trimHexPrefix(string(rec.Payload))},
		ID:      1,
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "encoding rpc request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, net.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "building rpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.clientFor(rec.Blockchain + ":" + rec.NetworkName)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "rpc request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.NewRateLimited("rpc endpoint rate limited", 0)
	}
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.KindTransientNetwork, "rpc endpoint responded "+http.StatusText(resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "decoding rpc response")
	}
	if rpcResp.Error != nil {
		return nil, errs.New(errs.KindValidation, "rpc error "+strconv.Itoa(rpcResp.Error.Code)+": "+rpcResp.Error.Message)
	}
	return storage.Result{"hash": rpcResp.Result, "submittedAt": nowFn()}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
