// Package search shapes similarity queries against the external vector
// index: it computes query vectors, applies the similarity threshold on
// returned scores, and evaluates attribute filters, delegating storage and
// nearest-neighbor ranking to the index itself.
package search

import (
	"context"
	"strings"

	"github.com/modpipe/modpipe"
	"github.com/modpipe/modpipe/embedding"
)

// attributeTextLimit caps the text excerpt stored with a vector.
const attributeTextLimit = 500

// Result is one similarity hit at or above the configured threshold.
type Result struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Attributes map[string]string `json:"attributes"`
}

// Index wraps the raw vector index with the pipeline's query shaping.
type Index struct {
	index     modpipe.VectorIndex
	dimension int
	threshold float64
}

// NewIndex returns an Index with the given similarity threshold; query hits
// scoring below it are dropped client-side.
func NewIndex(vi modpipe.VectorIndex, dimension int, threshold float64) *Index {
	if dimension <= 0 {
		dimension = embedding.Dimension
	}
	return &Index{
		index:     vi,
		dimension: dimension,
		threshold: threshold,
	}
}

// Setup registers the index. Idempotent; a failure is a degraded-state
// signal, not a process abort.
func (x *Index) Setup(ctx context.Context) error {
	if err := x.index.CreateIndex(ctx, x.dimension); err != nil {
		return modpipe.Error{Code: modpipe.FatalStartup, Err: err}
	}
	return nil
}

// UpsertContent stores the item's embedding with its metadata projection,
// keyed by the content id. Upserts are idempotent: reprocessing a
// redelivered message rewrites the same vector and attributes.
func (x *Index) UpsertContent(ctx context.Context, item modpipe.ContentItem, vector []float32) error {
	text := []rune(item.Text)
	if len(text) > attributeTextLimit {
		text = text[:attributeTextLimit]
	}

	attrs := map[string]any{
		"text":      string(text),
		"status":    string(item.Status),
		"category":  item.Category,
		"timestamp": item.ProcessedAt.UnixMilli(),
	}
	if item.Analysis != nil {
		attrs["category"] = item.Analysis.Category
		attrs["sentiment"] = item.Analysis.Sentiment
		attrs["toxicity_score"] = item.Analysis.ToxicityScore
		attrs["confidence"] = item.Analysis.Confidence
	}
	return x.index.Upsert(ctx, item.ID, vector, attrs)
}

// TagFilter shapes an index-side tag match clause for a field, e.g.
// TagFilter("status", "approved", "flagged") -> `@status:{approved|flagged}`.
// An empty value list matches everything.
func TagFilter(field string, values ...string) string {
	if len(values) == 0 {
		return ""
	}
	return "@" + field + ":{" + strings.Join(values, "|") + "}"
}

// QueryOptions tunes a similarity query.
type QueryOptions struct {
	// K caps the number of neighbors requested from the index.
	K int
	// IndexFilter is an index-side filter expression (e.g. a tag match)
	// applied before nearest-neighbor ranking. Empty matches everything.
	IndexFilter string
	// AttributeFilter, when set, is evaluated client-side over each hit's
	// attributes after the threshold cut.
	AttributeFilter *Filter
}

// QuerySimilar embeds the query text, runs a kNN search, drops hits below
// the similarity threshold, and applies the optional attribute filter.
func (x *Index) QuerySimilar(ctx context.Context, text string, opts QueryOptions) ([]Result, error) {
	if opts.K <= 0 {
		opts.K = 10
	}
	vector := embedding.Embed(text)

	hits, err := x.index.KNNQuery(ctx, vector, opts.K, opts.IndexFilter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < x.threshold {
			continue
		}
		if opts.AttributeFilter != nil {
			ok, err := opts.AttributeFilter.Matches(hit.Attributes)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		results = append(results, Result{
			ID:         hit.ID,
			Score:      hit.Score,
			Attributes: hit.Attributes,
		})
	}
	return results, nil
}
