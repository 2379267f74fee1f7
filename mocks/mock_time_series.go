package mocks

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/modpipe/modpipe"
)

// MockTimeSeries keeps metric points per series in memory and implements
// range queries with optional time-bucketed aggregation.
type MockTimeSeries struct {
	mu     sync.Mutex
	series map[string][]modpipe.MetricPoint
}

// NewTimeSeries returns a new in-memory time-series store.
func NewTimeSeries() *MockTimeSeries {
	return &MockTimeSeries{
		series: make(map[string][]modpipe.MetricPoint),
	}
}

var _ modpipe.TimeSeries = (*MockTimeSeries)(nil)

func (m *MockTimeSeries) CreateSeries(ctx context.Context, name string, retention time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.series[name]; !ok {
		m.series[name] = nil
	}
	return nil
}

func (m *MockTimeSeries) Add(ctx context.Context, name string, ts time.Time, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[name] = append(m.series[name], modpipe.MetricPoint{
		Timestamp: ts.UnixMilli(),
		Value:     value,
	})
	return nil
}

func (m *MockTimeSeries) Range(ctx context.Context, name string, from time.Time, to time.Time, agg modpipe.Aggregation, bucket time.Duration) ([]modpipe.MetricPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	window := make([]modpipe.MetricPoint, 0)
	for _, p := range m.series[name] {
		if p.Timestamp >= fromMs && p.Timestamp <= toMs {
			window = append(window, p)
		}
	}
	// Queries tolerate out-of-order arrival; results are ordered.
	sort.Slice(window, func(i, j int) bool { return window[i].Timestamp < window[j].Timestamp })

	if agg == modpipe.AggNone || len(window) == 0 {
		return window, nil
	}

	bucketMs := bucket.Milliseconds()
	if bucketMs <= 0 {
		bucketMs = time.Minute.Milliseconds()
	}

	out := make([]modpipe.MetricPoint, 0)
	var cur *modpipe.MetricPoint
	var count int64
	for _, p := range window {
		start := p.Timestamp - p.Timestamp%bucketMs
		if cur == nil || cur.Timestamp != start {
			if cur != nil {
				out = append(out, finishBucket(*cur, count, agg))
			}
			cur = &modpipe.MetricPoint{Timestamp: start, Value: p.Value}
			count = 1
			continue
		}
		count++
		switch agg {
		case modpipe.AggSum, modpipe.AggAvg:
			cur.Value += p.Value
		case modpipe.AggMin:
			cur.Value = math.Min(cur.Value, p.Value)
		case modpipe.AggMax:
			cur.Value = math.Max(cur.Value, p.Value)
		}
	}
	if cur != nil {
		out = append(out, finishBucket(*cur, count, agg))
	}
	return out, nil
}

func finishBucket(b modpipe.MetricPoint, count int64, agg modpipe.Aggregation) modpipe.MetricPoint {
	if agg == modpipe.AggAvg && count > 0 {
		b.Value /= float64(count)
	}
	return b
}
