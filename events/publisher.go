// Package events fans processed-content events out to the configured
// channels: a cross-process pub/sub topic and in-process subscriber
// channels. Delivery is best-effort; the content record stays the source
// of truth and channel failures never roll it back.
package events

import (
	"context"
	"encoding/json"
	log "log/slog"
	"sync"

	"github.com/modpipe/modpipe"
)

// DefaultTopic is the pub/sub topic processed events broadcast on.
const DefaultTopic = "content:processed"

// Publisher delivers the same event payload to every configured channel.
type Publisher struct {
	pubsub modpipe.PubSub
	topic  string

	mu   sync.Mutex
	subs map[int]chan modpipe.ProcessedEvent
	next int
}

// NewPublisher returns a Publisher broadcasting on the given topic.
// An empty topic selects DefaultTopic; a nil pubsub disables the
// cross-process channel.
func NewPublisher(ps modpipe.PubSub, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		pubsub: ps,
		topic:  topic,
		subs:   make(map[int]chan modpipe.ProcessedEvent),
	}
}

// Subscribe registers an in-process subscriber and returns its channel plus
// an unsubscribe function. A subscriber that falls behind its buffer has
// events dropped (with a log line) rather than stalling the pipeline.
func (p *Publisher) Subscribe(buffer int) (<-chan modpipe.ProcessedEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan modpipe.ProcessedEvent, buffer)

	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = ch
	p.mu.Unlock()

	unsubscribe := func() {
		p.mu.Lock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
		p.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers the event to the pub/sub topic and every in-process
// subscriber. Failures are logged and swallowed; the caller has already
// committed the content record.
func (p *Publisher) Publish(ctx context.Context, ev modpipe.ProcessedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error("marshaling processed event", "content_id", ev.ContentID, "error", err)
		return
	}

	if p.pubsub != nil {
		if err := p.pubsub.Publish(ctx, p.topic, payload); err != nil {
			log.Warn("publishing processed event", "topic", p.topic, "content_id", ev.ContentID, "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			log.Warn("dropping event for slow subscriber", "subscriber", id, "content_id", ev.ContentID)
		}
	}
}
