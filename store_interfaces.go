package modpipe

import (
	"context"
	"time"
)

// StreamMessage is one entry delivered from the durable log.
type StreamMessage struct {
	// ID is the log-assigned entry id, used for acknowledgment.
	ID string
	// Values holds the appended field/value pairs.
	Values map[string]any
}

// StreamLog is the durable ordered log the pipeline consumes submissions from.
// Group semantics deliver each entry to exactly one consumer of a group at a
// time; delivery is at-least-once, so processing must be repeatable.
type StreamLog interface {
	// Append adds an entry to the topic and returns its log id.
	Append(ctx context.Context, topic string, values map[string]any) (string, error)
	// CreateGroup registers a consumer group on the topic. Idempotent; an
	// already existing group is not an error.
	CreateGroup(ctx context.Context, topic string, group string) error
	// ReadGroup blocks up to block for at most count undelivered entries.
	// An empty batch (no error) means the wait timed out.
	ReadGroup(ctx context.Context, topic string, group string, consumer string, count int64, block time.Duration) ([]StreamMessage, error)
	// Ack marks entries as durably processed for the group. Until acked, a
	// crashed consumer's entries are eligible for redelivery.
	Ack(ctx context.Context, topic string, group string, ids ...string) error
}

// DocumentStore persists content items and the processed-id suppression keys.
type DocumentStore interface {
	// Put upserts a JSON-serializable document under key.
	Put(ctx context.Context, key string, doc any) error
	// Get fetches the document at key into target. Returns false when the
	// key does not exist, with a nil error.
	Get(ctx context.Context, key string, target any) (bool, error)
	// MarkProcessed records id in the short-lived processed-id set and
	// reports whether this call was the first to do so. Used to suppress
	// double metric increments on redelivery.
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// Aggregation is a reducer applied to time-bucketed metric ranges.
type Aggregation string

const (
	AggNone Aggregation = ""
	AggSum  Aggregation = "sum"
	AggAvg  Aggregation = "avg"
	AggMin  Aggregation = "min"
	AggMax  Aggregation = "max"
)

// TimeSeries stores append-only metric points, ordered per series.
type TimeSeries interface {
	// CreateSeries registers a series with a retention window. Idempotent;
	// an already existing series is not an error.
	CreateSeries(ctx context.Context, name string, retention time.Duration) error
	// Add appends one point to the series.
	Add(ctx context.Context, name string, ts time.Time, value float64) error
	// Range returns points in [from, to], oldest first. With agg set, points
	// are reduced into fixed-width buckets of the given duration. An empty
	// window yields an empty slice, never an error.
	Range(ctx context.Context, name string, from time.Time, to time.Time, agg Aggregation, bucket time.Duration) ([]MetricPoint, error)
}

// Membership is a set membership structure over content hashes. Contains
// must never report false negatives for an added item; false positives are
// acceptable under a probabilistic implementation.
type Membership interface {
	Add(ctx context.Context, key string, item string) error
	Contains(ctx context.Context, key string, item string) (bool, error)
}

// Cardinality approximates the count of distinct elements added under a key.
type Cardinality interface {
	Add(ctx context.Context, key string, elements ...string) error
	ApproxCount(ctx context.Context, key string) (int64, error)
}

// VectorDocument is one hit returned from a similarity query.
type VectorDocument struct {
	ID string
	// Score is the cosine similarity to the query vector, higher is closer.
	Score float64
	// Attributes is the stored metadata projection for the hit.
	Attributes map[string]string
}

// VectorIndex is the external similarity index the pipeline upserts
// embeddings into and queries nearest neighbors from.
type VectorIndex interface {
	// CreateIndex registers the index with the given vector dimension.
	// Idempotent; an already existing index is not an error.
	CreateIndex(ctx context.Context, dimension int) error
	// Upsert stores (or replaces) the vector and attributes for id.
	Upsert(ctx context.Context, id string, vector []float32, attributes map[string]any) error
	// KNNQuery returns up to k nearest neighbors ranked by cosine
	// similarity. filter, when non-empty, is an index-side attribute filter
	// expression applied before the nearest-neighbor ranking.
	KNNQuery(ctx context.Context, vector []float32, k int, filter string) ([]VectorDocument, error)
}

// PubSub is the cross-process broadcast channel for processed events.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
