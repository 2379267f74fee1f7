// Package metrics records per-message pipeline measurements into a
// time-series store and keeps in-process running statistics so stats reads
// never re-scan historical points.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/modpipe/modpipe"
)

// Series names written by the pipeline.
const (
	SeriesProcessed      = "metrics:processed"
	SeriesApproved       = "metrics:approved"
	SeriesFlagged        = "metrics:flagged"
	SeriesProcessingTime = "metrics:processing_time"
	SeriesConfidence     = "metrics:confidence"
)

// AuthorsKey is the cardinality structure key distinct submitters are
// counted under.
const AuthorsKey = "content:authors"

// RunningStat is the online (count, sum, mean) accumulator for one series.
type RunningStat struct {
	Count int64
	Sum   float64
	Avg   float64
}

// Snapshot is the derived stats view, computed from running counters and
// the cardinality estimator rather than from stored points.
type Snapshot struct {
	TotalProcessed      int64   `json:"total_processed"`
	TotalApproved       int64   `json:"total_approved"`
	TotalFlagged        int64   `json:"total_flagged"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	AvgConfidence       float64 `json:"avg_confidence"`
	UniqueAuthors       int64   `json:"unique_authors"`
}

// Aggregator fronts the time-series store for the pipeline's metric series
// and maintains the running stats. Record is safe for concurrent callers.
type Aggregator struct {
	ts   modpipe.TimeSeries
	card modpipe.Cardinality

	mu       sync.Mutex
	counters map[string]*RunningStat
}

// NewAggregator returns an Aggregator over the given stores. card may be
// nil when no cardinality backend is configured; Snapshot then reports
// zero unique authors.
func NewAggregator(ts modpipe.TimeSeries, card modpipe.Cardinality) *Aggregator {
	return &Aggregator{
		ts:       ts,
		card:     card,
		counters: make(map[string]*RunningStat),
	}
}

// Setup registers every pipeline series with the given retention. Creation
// is idempotent; failures are surfaced for the caller to log, the pipeline
// keeps running degraded without the series.
func (a *Aggregator) Setup(ctx context.Context, retention time.Duration) error {
	var lastErr error
	for _, name := range []string{
		SeriesProcessed, SeriesApproved, SeriesFlagged, SeriesProcessingTime, SeriesConfidence,
	} {
		if err := a.ts.CreateSeries(ctx, name, retention); err != nil {
			lastErr = modpipe.Error{Code: modpipe.FatalStartup, Err: err, UserData: name}
		}
	}
	return lastErr
}

// Record appends one point to the series and folds it into the running stat
// using the online mean update avg' = (avg*(n-1) + x) / n.
func (a *Aggregator) Record(ctx context.Context, series string, ts time.Time, value float64) error {
	a.mu.Lock()
	st, ok := a.counters[series]
	if !ok {
		st = &RunningStat{}
		a.counters[series] = st
	}
	st.Count++
	st.Sum += value
	st.Avg = (st.Avg*float64(st.Count-1) + value) / float64(st.Count)
	a.mu.Unlock()

	return a.ts.Add(ctx, series, ts, value)
}

// RecordAuthor feeds a submitter id into the distinct-author estimator.
// No-op when no cardinality backend is configured.
func (a *Aggregator) RecordAuthor(ctx context.Context, userID string) error {
	if a.card == nil || userID == "" {
		return nil
	}
	return a.card.Add(ctx, AuthorsKey, userID)
}

// Range returns the stored points of a series in [from, to], optionally
// reduced into fixed-width buckets. An empty window yields an empty slice.
func (a *Aggregator) Range(ctx context.Context, series string, from time.Time, to time.Time, agg modpipe.Aggregation, bucket time.Duration) ([]modpipe.MetricPoint, error) {
	return a.ts.Range(ctx, series, from, to, agg, bucket)
}

// Stats returns a copy of the running stat for one series.
func (a *Aggregator) Stats(series string) RunningStat {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.counters[series]; ok {
		return *st
	}
	return RunningStat{}
}

// Snapshot derives the aggregate stats view from the running counters and
// the cardinality estimator.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{
		TotalProcessed:      a.Stats(SeriesProcessed).Count,
		TotalApproved:       a.Stats(SeriesApproved).Count,
		TotalFlagged:        a.Stats(SeriesFlagged).Count,
		AvgProcessingTimeMs: a.Stats(SeriesProcessingTime).Avg,
		AvgConfidence:       a.Stats(SeriesConfidence).Avg,
	}
	if a.card == nil {
		return s, nil
	}
	n, err := a.card.ApproxCount(ctx, AuthorsKey)
	if err != nil {
		return s, err
	}
	s.UniqueAuthors = n
	return s, nil
}
