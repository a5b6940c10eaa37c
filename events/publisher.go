// Package events implements the outbound event publisher of
// SPEC_FULL.md §2 item 12: a best-effort, non-blocking relay of a Queue's
// event-surface events (§4.2) to an external sink. Off by default (NopPublisher);
// enabling it never blocks task dispatch.
package events

import (
	"encoding/json"

	"github.com/blocktimefinancial/refractor-sub001/log"
	"github.com/blocktimefinancial/refractor-sub001/queue"
)

var logger = log.NewModuleLogger("events")

// Publisher relays a single topic/payload pair to an external sink.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// NopPublisher discards everything; the default when no sink is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, []byte) error { return nil }
func (NopPublisher) Close() error                  { return nil }

// Relay subscribes to a Queue's event bus and forwards every event to
// Publisher under topicPrefix+"-"+event.Type, in its own goroutine so a slow
// or unavailable sink never blocks the Queue's dispatch loop — the
// publisher is a downstream observer, not a durable log.
type Relay struct {
	pub         Publisher
	topicPrefix string
	unsubscribe func()
	done        chan struct{}
}

// NewRelay starts relaying q's events to pub under topicPrefix.
func NewRelay(q *queue.Queue, pub Publisher, topicPrefix string) *Relay {
	ch, unsubscribe := q.Subscribe()
	r := &Relay{pub: pub, topicPrefix: topicPrefix, unsubscribe: unsubscribe, done: make(chan struct{})}
	go r.loop(ch)
	return r
}

func (r *Relay) loop(ch <-chan queue.Event) {
	defer close(r.done)
	for ev := range ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Warn("dropping event: encode failed", "type", ev.Type, "err", err)
			continue
		}
		if err := r.pub.Publish(r.topicPrefix+"-"+string(ev.Type), payload); err != nil {
			logger.Warn("publish failed, event dropped", "type", ev.Type, "err", err)
		}
	}
}

// Stop unsubscribes from the Queue and waits for the relay goroutine to
// drain.
func (r *Relay) Stop() {
	r.unsubscribe()
	<-r.done
}
