package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/modpipe/modpipe"
)

const (
	// IndexName is the FT index registered for content embeddings.
	IndexName = "content:index"
	// vectorKeyPrefix prefixes the hash keys the index is built over.
	vectorKeyPrefix = "vec:"
	// vectorField is the hash field holding the FLOAT32 embedding blob.
	vectorField = "embedding"
	// scoreAlias is the alias the KNN clause binds the vector distance to.
	scoreAlias = "vector_score"
)

type vectorIndex struct {
	conn *Connection
	name string
}

// NewVectorIndex returns the RediSearch-backed similarity index over the
// open connection.
func NewVectorIndex() modpipe.VectorIndex {
	return &vectorIndex{
		conn: connection,
		name: IndexName,
	}
}

func (v *vectorIndex) CreateIndex(ctx context.Context, dimension int) error {
	if v.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	err := v.conn.Client.FTCreate(ctx, v.name,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []any{vectorKeyPrefix},
		},
		&redis.FieldSchema{
			FieldName: vectorField,
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				HNSWOptions: &redis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            dimension,
					DistanceMetric: "COSINE",
				},
			},
		},
		&redis.FieldSchema{FieldName: "status", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "category", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "sentiment", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "toxicity_score", FieldType: redis.SearchFieldTypeNumeric},
		&redis.FieldSchema{FieldName: "confidence", FieldType: redis.SearchFieldTypeNumeric},
	).Err()
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (v *vectorIndex) Upsert(ctx context.Context, id string, vector []float32, attributes map[string]any) error {
	if v.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	fields := make(map[string]any, len(attributes)+1)
	for k, val := range attributes {
		fields[k] = val
	}
	fields[vectorField] = float32Bytes(vector)
	return v.conn.Client.HSet(ctx, vectorKeyPrefix+id, fields).Err()
}

func (v *vectorIndex) KNNQuery(ctx context.Context, vector []float32, k int, filter string) ([]modpipe.VectorDocument, error) {
	if v.conn == nil {
		return nil, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	base := filter
	if base == "" {
		base = "*"
	}
	query := fmt.Sprintf("(%s)=>[KNN %d @%s $vec AS %s]", base, k, vectorField, scoreAlias)

	res, err := v.conn.Client.FTSearchWithArgs(ctx, v.name, query, &redis.FTSearchOptions{
		Params:         map[string]any{"vec": float32Bytes(vector)},
		SortBy:         []redis.FTSearchSortBy{{FieldName: scoreAlias, Asc: true}},
		DialectVersion: 2,
		LimitOffset:    0,
		Limit:          k,
	}).Result()
	if err != nil {
		return nil, err
	}

	docs := make([]modpipe.VectorDocument, 0, len(res.Docs))
	for _, doc := range res.Docs {
		attrs := make(map[string]string, len(doc.Fields))
		var distance float64
		for field, value := range doc.Fields {
			if field == scoreAlias {
				distance, _ = strconv.ParseFloat(value, 64)
				continue
			}
			if field == vectorField {
				continue
			}
			attrs[field] = value
		}
		docs = append(docs, modpipe.VectorDocument{
			ID: strings.TrimPrefix(doc.ID, vectorKeyPrefix),
			// RediSearch returns cosine distance; similarity = 1 - distance.
			Score:      1 - distance,
			Attributes: attrs,
		})
	}
	return docs, nil
}

// float32Bytes renders the vector as the little-endian FLOAT32 blob the
// index expects.
func float32Bytes(vector []float32) []byte {
	ba := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(ba[i*4:], math.Float32bits(f))
	}
	return ba
}
