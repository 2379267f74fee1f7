package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modpipe/modpipe"
)

type streamLog struct {
	conn *Connection
}

// NewStreamLog returns the durable-log client over the open connection.
func NewStreamLog() modpipe.StreamLog {
	return &streamLog{
		conn: connection,
	}
}

func (s *streamLog) Append(ctx context.Context, topic string, values map[string]any) (string, error) {
	if s.conn == nil {
		return "", fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return s.conn.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: values,
	}).Result()
}

func (s *streamLog) CreateGroup(ctx context.Context, topic string, group string) error {
	if s.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	err := s.conn.Client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	// Group already registered by an earlier run or another instance.
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (s *streamLog) ReadGroup(ctx context.Context, topic string, group string, consumer string, count int64, block time.Duration) ([]modpipe.StreamMessage, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	streams, err := s.conn.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{topic, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	// Nil reply means the block timed out with nothing pending.
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var batch []modpipe.StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			values := make(map[string]any, len(msg.Values))
			for k, v := range msg.Values {
				values[k] = v
			}
			batch = append(batch, modpipe.StreamMessage{
				ID:     msg.ID,
				Values: values,
			})
		}
	}
	return batch, nil
}

func (s *streamLog) Ack(ctx context.Context, topic string, group string, ids ...string) error {
	if s.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return s.conn.Client.XAck(ctx, topic, group, ids...).Err()
}
