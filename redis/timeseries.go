package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modpipe/modpipe"
)

type timeSeries struct {
	conn *Connection
}

// NewTimeSeries returns the RedisTimeSeries-backed metric store over the
// open connection.
func NewTimeSeries() modpipe.TimeSeries {
	return &timeSeries{
		conn: connection,
	}
}

func (t *timeSeries) CreateSeries(ctx context.Context, name string, retention time.Duration) error {
	if t.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	err := t.conn.Client.TSCreateWithArgs(ctx, name, &redis.TSOptions{
		Retention: int(retention.Milliseconds()),
	}).Err()
	// TSDB reports "key already exists" for a series created earlier.
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (t *timeSeries) Add(ctx context.Context, name string, ts time.Time, value float64) error {
	if t.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return t.conn.Client.TSAdd(ctx, name, ts.UnixMilli(), value).Err()
}

func (t *timeSeries) Range(ctx context.Context, name string, from time.Time, to time.Time, agg modpipe.Aggregation, bucket time.Duration) ([]modpipe.MetricPoint, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}

	var points []redis.TSTimestampValue
	var err error
	if agg == modpipe.AggNone {
		points, err = t.conn.Client.TSRange(ctx, name, int(from.UnixMilli()), int(to.UnixMilli())).Result()
	} else {
		aggregator, aerr := toAggregator(agg)
		if aerr != nil {
			return nil, aerr
		}
		if bucket <= 0 {
			bucket = time.Minute
		}
		points, err = t.conn.Client.TSRangeWithArgs(ctx, name, int(from.UnixMilli()), int(to.UnixMilli()), &redis.TSRangeOptions{
			Aggregator:     aggregator,
			BucketDuration: int(bucket.Milliseconds()),
		}).Result()
	}
	if err != nil {
		// A series that was never created has no points; an empty window
		// is a result, not an error.
		if err == redis.Nil || strings.Contains(err.Error(), "does not exist") {
			return []modpipe.MetricPoint{}, nil
		}
		return nil, err
	}

	out := make([]modpipe.MetricPoint, 0, len(points))
	for _, p := range points {
		out = append(out, modpipe.MetricPoint{
			Timestamp: p.Timestamp,
			Value:     p.Value,
		})
	}
	return out, nil
}

func toAggregator(agg modpipe.Aggregation) (redis.Aggregator, error) {
	switch agg {
	case modpipe.AggSum:
		return redis.Sum, nil
	case modpipe.AggAvg:
		return redis.Avg, nil
	case modpipe.AggMin:
		return redis.Min, nil
	case modpipe.AggMax:
		return redis.Max, nil
	}
	return redis.Invalid, fmt.Errorf("unsupported aggregation: %q", agg)
}
