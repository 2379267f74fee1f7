package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/modpipe/modpipe"
)

// MockDocumentStore keeps JSON-serialized documents in a map. FailPuts can
// be set to force transient write failures for error-path tests.
type MockDocumentStore struct {
	mu        sync.Mutex
	lookup    map[string][]byte
	processed map[string]bool

	// FailPuts makes the next N Put calls fail when positive.
	FailPuts int
}

// NewDocumentStore returns a new in-memory document store.
func NewDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		lookup:    make(map[string][]byte),
		processed: make(map[string]bool),
	}
}

var _ modpipe.DocumentStore = (*MockDocumentStore)(nil)

func (m *MockDocumentStore) Put(ctx context.Context, key string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts > 0 {
		m.FailPuts--
		return modpipe.Error{Code: modpipe.TransientIO, Err: context.DeadlineExceeded}
	}
	ba, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.lookup[key] = ba
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, key string, target any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ba, ok := m.lookup[key]
	if !ok {
		// Real client returns (false, nil) when key not found.
		return false, nil
	}
	return true, json.Unmarshal(ba, target)
}

func (m *MockDocumentStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[id] {
		return false, nil
	}
	m.processed[id] = true
	return true, nil
}
