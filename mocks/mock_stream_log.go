// Package mocks provides in-memory implementations of every collaborator
// contract for tests: no Redis or Cassandra required.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modpipe/modpipe"
)

// MockStreamLog is an in-memory durable log with consumer-group delivery
// and explicit acknowledgment. Entries read but never acked can be pushed
// back for redelivery with RedeliverPending, simulating a consumer crash.
type MockStreamLog struct {
	mu      sync.Mutex
	seq     int
	entries map[string][]modpipe.StreamMessage
	// cursor tracks the next undelivered entry offset per topic/group.
	cursor map[string]int
	// pending holds delivered-but-unacked entry ids per topic/group.
	pending map[string]map[string]modpipe.StreamMessage
}

// NewStreamLog returns a new in-memory stream log.
func NewStreamLog() *MockStreamLog {
	return &MockStreamLog{
		entries: make(map[string][]modpipe.StreamMessage),
		cursor:  make(map[string]int),
		pending: make(map[string]map[string]modpipe.StreamMessage),
	}
}

var _ modpipe.StreamLog = (*MockStreamLog)(nil)

func groupKey(topic, group string) string {
	return topic + "/" + group
}

func (m *MockStreamLog) Append(ctx context.Context, topic string, values map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%d-0", m.seq)
	m.entries[topic] = append(m.entries[topic], modpipe.StreamMessage{ID: id, Values: values})
	return id, nil
}

func (m *MockStreamLog) CreateGroup(ctx context.Context, topic string, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gk := groupKey(topic, group)
	if _, ok := m.pending[gk]; !ok {
		m.pending[gk] = make(map[string]modpipe.StreamMessage)
	}
	return nil
}

// ReadGroup returns up to count undelivered entries immediately; the block
// timeout is not simulated. An exhausted log yields an empty batch.
func (m *MockStreamLog) ReadGroup(ctx context.Context, topic string, group string, consumer string, count int64, block time.Duration) ([]modpipe.StreamMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gk := groupKey(topic, group)
	if _, ok := m.pending[gk]; !ok {
		m.pending[gk] = make(map[string]modpipe.StreamMessage)
	}

	var batch []modpipe.StreamMessage
	for m.cursor[gk] < len(m.entries[topic]) && int64(len(batch)) < count {
		msg := m.entries[topic][m.cursor[gk]]
		m.cursor[gk]++
		m.pending[gk][msg.ID] = msg
		batch = append(batch, msg)
	}
	return batch, nil
}

func (m *MockStreamLog) Ack(ctx context.Context, topic string, group string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gk := groupKey(topic, group)
	for _, id := range ids {
		delete(m.pending[gk], id)
	}
	return nil
}

// PendingCount reports delivered-but-unacked entries for a topic/group.
func (m *MockStreamLog) PendingCount(topic, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[groupKey(topic, group)])
}

// UndeliveredCount reports appended entries the group has not read yet.
func (m *MockStreamLog) UndeliveredCount(topic, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[topic]) - m.cursor[groupKey(topic, group)]
}

// RedeliverPending re-queues every unacked entry of the group, as a crashed
// consumer's claim expiry would.
func (m *MockStreamLog) RedeliverPending(topic, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gk := groupKey(topic, group)
	if len(m.pending[gk]) == 0 {
		return
	}
	var requeued []modpipe.StreamMessage
	for _, msg := range m.entries[topic][:m.cursor[gk]] {
		if _, ok := m.pending[gk][msg.ID]; ok {
			requeued = append(requeued, msg)
		}
	}
	m.entries[topic] = append(m.entries[topic], requeued...)
	m.pending[gk] = make(map[string]modpipe.StreamMessage)
}
