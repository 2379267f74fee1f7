package mocks

import (
	"context"
	"sync"

	"github.com/modpipe/modpipe"
)

// MockMembership is an exact set per key: the stricter legal substitute for
// a probabilistic membership structure (no false positives either).
type MockMembership struct {
	mu   sync.Mutex
	sets map[string]map[string]bool

	// FailWith, when set, is returned by every call; used to verify the
	// duplicate signal never fails an item.
	FailWith error
}

// NewMembership returns a new exact in-memory membership structure.
func NewMembership() *MockMembership {
	return &MockMembership{
		sets: make(map[string]map[string]bool),
	}
}

var _ modpipe.Membership = (*MockMembership)(nil)

func (m *MockMembership) Add(ctx context.Context, key string, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.sets[key]; !ok {
		m.sets[key] = make(map[string]bool)
	}
	m.sets[key][item] = true
	return nil
}

func (m *MockMembership) Contains(ctx context.Context, key string, item string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return false, m.FailWith
	}
	return m.sets[key][item], nil
}

// MockCardinality counts distinct elements exactly.
type MockCardinality struct {
	mu   sync.Mutex
	sets map[string]map[string]bool
}

// NewCardinality returns a new exact in-memory cardinality counter.
func NewCardinality() *MockCardinality {
	return &MockCardinality{
		sets: make(map[string]map[string]bool),
	}
}

var _ modpipe.Cardinality = (*MockCardinality)(nil)

func (m *MockCardinality) Add(ctx context.Context, key string, elements ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[key]; !ok {
		m.sets[key] = make(map[string]bool)
	}
	for _, e := range elements {
		m.sets[key][e] = true
	}
	return nil
}

func (m *MockCardinality) ApproxCount(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[key])), nil
}
