package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modpipe/modpipe"
)

type docStore struct {
	conn *Connection
}

// NewDocumentStore returns the content document store over the open connection.
func NewDocumentStore() modpipe.DocumentStore {
	return &docStore{
		conn: connection,
	}
}

// Put executes the redis Set command with a JSON-serialized document.
// No expiration: content records are append-only history.
func (d *docStore) Put(ctx context.Context, key string, doc any) error {
	if d.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	ba, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return d.conn.Client.Set(ctx, key, ba, 0).Err()
}

// Get executes the redis Get command and unmarshals into target.
func (d *docStore) Get(ctx context.Context, key string, target any) (bool, error) {
	if d.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	ba, err := d.conn.Client.Get(ctx, key).Bytes()
	if err == nil {
		err = json.Unmarshal(ba, target)
	}

	// Convert key not found into returning false and nil err.
	r := err == nil
	if err == redis.Nil {
		err = nil
	}
	return r, err
}

// MarkProcessed executes SetNX on the suppression key; only the first call
// within the TTL window wins.
func (d *docStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if d.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return d.conn.Client.SetNX(ctx, "processed:"+id, "1", ttl).Result()
}
