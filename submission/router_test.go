package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/errs"
	"github.com/blocktimefinancial/refractor-sub001/finalizer"
	"github.com/blocktimefinancial/refractor-sub001/queue"
	"github.com/blocktimefinancial/refractor-sub001/storage"
)

type fakeEffector struct{ result storage.Result }

func (f *fakeEffector) Submit(ctx context.Context, rec *finalizer.Rehydrated, net NetworkConfig) (storage.Result, error) {
	return f.result, nil
}

func classify(blockchain string) ChainKind {
	switch blockchain {
	case "stellar":
		return ChainReference
	case "evm":
		return ChainGenericRPC
	case "legacy-chain":
		return ChainRecognizedUnsupported
	default:
		return ChainUnknown
	}
}

func TestRouterUnknownBlockchainFailsNonRetriable(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()
	r := New(q, classify, nil, nil)

	_, err := r.Submit(context.Background(), &finalizer.Rehydrated{Hash: "h1", Blockchain: "nonsense"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnsupported))
	assert.False(t, errs.Retriable(err))
}

func TestRouterRecognizedUnsupportedFails(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()
	r := New(q, classify, nil, nil)

	_, err := r.Submit(context.Background(), &finalizer.Rehydrated{Hash: "h1", Blockchain: "legacy-chain"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnsupported))
}

func TestRouterDispatchesToConfiguredEffector(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()
	effector := &fakeEffector{result: storage.Result{"hash": "0xabc"}}
	r := New(q, classify, map[ChainKind]Effector{ChainReference: effector},
		map[string]NetworkConfig{"stellar:public": {Endpoint: "http://horizon/"}})

	result, err := r.Submit(context.Background(), &finalizer.Rehydrated{Hash: "h1", Blockchain: "stellar", NetworkName: "public"})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", result["hash"])
}

func TestRouterUnconfiguredNetworkFailsValidation(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()
	r := New(q, classify, map[ChainKind]Effector{ChainReference: &fakeEffector{}}, nil)

	_, err := r.Submit(context.Background(), &finalizer.Rehydrated{Hash: "h1", Blockchain: "stellar", NetworkName: "public"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}
