package httpapi

import (
	"encoding/base64"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

// postTxRequest accepts both the legacy {network, xdr, ...} shape and the
// canonical {blockchain, networkName, payload, encoding, ...} shape (§6
// expansion); whichever set of fields is populated wins, canonical taking
// precedence when both are present.
type postTxRequest struct {
	// Canonical shape.
	Blockchain  string `json:"blockchain"`
	NetworkName string `json:"networkName"`
	Payload     string `json:"payload"`
	Encoding    string `json:"encoding"`

	// Legacy shape.
	Network string `json:"network"`
	Xdr     string `json:"xdr"`

	Signatures  []signatureDTO `json:"signatures"`
	Submit      bool           `json:"submit"`
	CallbackURL string         `json:"callbackUrl"`
	MinTime     int64          `json:"minTime"`
	MaxTime     int64          `json:"maxTime"`
}

type signatureDTO struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

// normalize maps a postTxRequest onto a storage.TransactionRecord, folding
// the legacy {network, xdr} fields into the canonical {blockchain,
// networkName, payload, encoding} ones when the canonical fields are absent
// (§6 expansion: "legacy form must be... internally normalized to
// canonical").
func (req postTxRequest) normalize(hash string, now int64) (*storage.TransactionRecord, error) {
	blockchain := req.Blockchain
	networkName := req.NetworkName
	payload := req.Payload
	encoding := req.Encoding

	if blockchain == "" && req.Network != "" {
		blockchain = "stellar"
		networkName = req.Network
	}
	if payload == "" && req.Xdr != "" {
		payload = req.Xdr
		if encoding == "" {
			encoding = "base64"
		}
	}
	if encoding == "" {
		encoding = "base64"
	}

	if blockchain == "" {
		return nil, errs.New(errs.KindValidation, "blockchain (or legacy network) is required")
	}
	if payload == "" {
		return nil, errs.New(errs.KindValidation, "payload (or legacy xdr) is required")
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "payload is not valid base64")
	}

	sigs := make([]storage.Signature, 0, len(req.Signatures))
	for _, s := range req.Signatures {
		sigs = append(sigs, storage.Signature{Key: s.Key, Signature: s.Signature})
	}

	minTime := req.MinTime
	status := storage.StatusReady
	if minTime > now {
		status = storage.StatusPending
	}

	return &storage.TransactionRecord{
		Hash:        hash,
		Blockchain:  blockchain,
		NetworkName: networkName,
		Payload:     decoded,
		Encoding:    encoding,
		Signatures:  sigs,
		Status:      status,
		Submit:      req.Submit,
		CallbackURL: req.CallbackURL,
		MinTime:     minTime,
		MaxTime:     req.MaxTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// txResponse is the rehydrated-record JSON shape every /tx endpoint returns.
type txResponse struct {
	Hash        string                 `json:"hash"`
	Blockchain  string                 `json:"blockchain"`
	NetworkName string                 `json:"networkName"`
	Payload     string                 `json:"payload"`
	Encoding    string                 `json:"encoding"`
	Signatures  []signatureDTO         `json:"signatures"`
	Status      string                 `json:"status"`
	Submit      bool                   `json:"submit"`
	CallbackURL string                 `json:"callbackUrl,omitempty"`
	MinTime     int64                  `json:"minTime"`
	MaxTime     int64                  `json:"maxTime,omitempty"`
	Submitted   int64                  `json:"submitted,omitempty"`
	RetryCount  int                    `json:"retryCount"`
	LastError   string                 `json:"lastError,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
}

func toResponse(rec *storage.TransactionRecord) txResponse {
	sigs := make([]signatureDTO, 0, len(rec.Signatures))
	for _, s := range rec.Signatures {
		sigs = append(sigs, signatureDTO{Key: s.Key, Signature: s.Signature})
	}
	return txResponse{
		Hash:        rec.Hash,
		Blockchain:  rec.Blockchain,
		NetworkName: rec.NetworkName,
		Payload:     base64.StdEncoding.EncodeToString(rec.Payload),
		Encoding:    rec.Encoding,
		Signatures:  sigs,
		Status:      string(rec.Status),
		Submit:      rec.Submit,
		CallbackURL: rec.CallbackURL,
		MinTime:     rec.MinTime,
		MaxTime:     rec.MaxTime,
		Submitted:   rec.Submitted,
		RetryCount:  rec.RetryCount,
		LastError:   rec.LastError,
		Result:      rec.Result,
	}
}
