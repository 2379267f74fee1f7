package mocks

import (
	"context"
	"sync"

	"github.com/modpipe/modpipe"
)

// MockPubSub records published payloads per topic. FailWith forces publish
// failures to verify events stay best-effort.
type MockPubSub struct {
	mu        sync.Mutex
	published map[string][][]byte

	FailWith error
}

// NewPubSub returns a new in-memory pub/sub recorder.
func NewPubSub() *MockPubSub {
	return &MockPubSub{
		published: make(map[string][][]byte),
	}
}

var _ modpipe.PubSub = (*MockPubSub)(nil)

func (m *MockPubSub) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.published[topic] = append(m.published[topic], append([]byte(nil), payload...))
	return nil
}

// Published returns the payloads recorded for a topic.
func (m *MockPubSub) Published(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published[topic]))
	copy(out, m.published[topic])
	return out
}
