// Package submission implements the Submission Router of SPEC_FULL.md §4.6:
// per-chain effector dispatch, wrapped in its own Adaptive Queue instance so
// network-side rate limits never collapse Finalizer Queue concurrency.
package submission

import (
	"context"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

var logger = log.NewModuleLogger("submission")

// Effector submits a rehydrated record to a specific network and returns the
// chain-specific result on success.
type Effector interface {
	Submit(ctx context.Context, rec *finalizer.Rehydrated, net NetworkConfig) (storage.Result, error)
}

// NetworkConfig is the per-network effector parameterization of §6's
// configuration table (networks[name].endpoint / .passphrase).
type NetworkConfig struct {
	Endpoint   string
	Passphrase string
}

// ChainKind classifies a blockchain tag for dispatch.
type ChainKind int

const (
	ChainUnknown ChainKind = iota
	ChainReference
	ChainGenericRPC
	ChainRecognizedUnsupported
)

// Router dispatches on record.Blockchain per §4.6 and implements
// finalizer.SubmissionRouter.
type Router struct {
	q         *queue.Queue
	classify  func(blockchain string) ChainKind
	effectors map[ChainKind]Effector
	networks  map[string]NetworkConfig // keyed by blockchain+":"+networkName
}

// New constructs a Router with its own dedicated Adaptive Queue. classify
// maps a record's Blockchain tag to a ChainKind; effectors supplies the
// per-kind Effector implementation.
func New(q *queue.Queue, classify func(string) ChainKind, effectors map[ChainKind]Effector, networks map[string]NetworkConfig) *Router {
	return &Router{q: q, classify: classify, effectors: effectors, networks: networks}
}

// Submit implements finalizer.SubmissionRouter. It enqueues the actual
// effector call onto the Submission Queue so the Queue's own retry/backoff
// and concurrency autoscaling governs network-submission traffic
// independently from callback traffic.
func (r *Router) Submit(ctx context.Context, rec *finalizer.Rehydrated) (storage.Result, error) {
	future := r.q.Push(rec.Hash, func(ctx context.Context) (interface{}, error) {
		return r.dispatch(ctx, rec)
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(storage.Result), nil
}

func (r *Router) dispatch(ctx context.Context, rec *finalizer.Rehydrated) (storage.Result, error) {
	kind := r.classify(rec.Blockchain)
	switch kind {
	case ChainRecognizedUnsupported:
		return nil, errs.New(errs.KindUnsupported, "blockchain recognized but not implemented: "+rec.Blockchain)
	case ChainUnknown:
		return nil, errs.New(errs.KindUnsupported, "unsupported blockchain: "+rec.Blockchain)
	}

	effector, ok := r.effectors[kind]
	if !ok {
		return nil, errs.New(errs.KindUnsupported, "not implemented for blockchain: "+rec.Blockchain)
	}
	net, ok := r.networks[rec.Blockchain+":"+rec.NetworkName]
	if !ok {
		return nil, errs.New(errs.KindValidation, "unconfigured network: "+rec.Blockchain+"/"+rec.NetworkName)
	}
	result, err := effector.Submit(ctx, rec, net)
	if err != nil {
		logger.Warn("submission effector failed", "hash", rec.Hash, "blockchain", rec.Blockchain, "network", rec.NetworkName, "err", err)
	}
	return result, err
}
