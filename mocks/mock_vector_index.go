package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/modpipe/modpipe"
)

type vectorEntry struct {
	vector     []float32
	attributes map[string]string
}

// MockVectorIndex stores vectors in memory and answers KNN queries with an
// exact cosine-similarity scan. The index-side filter expression is not
// interpreted; tests exercise attribute filtering client-side.
type MockVectorIndex struct {
	mu      sync.Mutex
	created bool
	dim     int
	entries map[string]vectorEntry

	// FailUpserts makes the next N Upsert calls fail when positive.
	FailUpserts int
}

// NewVectorIndex returns a new in-memory vector index.
func NewVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		entries: make(map[string]vectorEntry),
	}
}

var _ modpipe.VectorIndex = (*MockVectorIndex)(nil)

func (m *MockVectorIndex) CreateIndex(ctx context.Context, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	m.dim = dimension
	return nil
}

func (m *MockVectorIndex) Upsert(ctx context.Context, id string, vector []float32, attributes map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpserts > 0 {
		m.FailUpserts--
		return modpipe.Error{Code: modpipe.TransientIO, Err: context.DeadlineExceeded}
	}
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = fmt.Sprintf("%v", v)
	}
	m.entries[id] = vectorEntry{
		vector:     append([]float32(nil), vector...),
		attributes: attrs,
	}
	return nil
}

func (m *MockVectorIndex) KNNQuery(ctx context.Context, vector []float32, k int, filter string) ([]modpipe.VectorDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]modpipe.VectorDocument, 0, len(m.entries))
	for id, e := range m.entries {
		docs = append(docs, modpipe.VectorDocument{
			ID:         id,
			Score:      cosine(vector, e.vector),
			Attributes: e.attributes,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// Len reports how many vectors are stored.
func (m *MockVectorIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
