package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/queue"
)

type recordingPublisher struct {
	mu    sync.Mutex
	topic []string
}

func (r *recordingPublisher) Publish(topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = append(r.topic, topic)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topic)
}

func TestNopPublisherDiscardsEverything(t *testing.T) {
	var p NopPublisher
	require.NoError(t, p.Publish("anything", []byte("x")))
	require.NoError(t, p.Close())
}

func TestRelayForwardsQueueEvents(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()

	rec := &recordingPublisher{}
	relay := NewRelay(q, rec, "refractor")
	defer relay.Stop()

	q.Push("t1", func(ctx context.Context) (interface{}, error) { return "ok", nil })

	assert.Eventually(t, func() bool { return rec.count() > 0 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.topic[0], "refractor-")
}

func TestRelayPayloadIsValidJSON(t *testing.T) {
	q := queue.New(queue.Config{MetricsInterval: time.Hour})
	defer q.Kill()

	ch := make(chan []byte, 8)
	pub := publishFunc(func(topic string, payload []byte) error {
		ch <- payload
		return nil
	})
	relay := NewRelay(q, pub, "refractor")
	defer relay.Stop()

	q.Push("t1", func(ctx context.Context) (interface{}, error) { return "ok", nil })

	select {
	case payload := <-ch:
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &ev))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

type publishFunc func(topic string, payload []byte) error

func (f publishFunc) Publish(topic string, payload []byte) error { return f(topic, payload) }
func (f publishFunc) Close() error                               { return nil }
