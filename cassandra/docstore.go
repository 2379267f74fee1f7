package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/modpipe/modpipe"
)

type docStore struct{}

// NewDocumentStore returns the Cassandra content archive. OpenConnection
// must have been called first.
func NewDocumentStore() modpipe.DocumentStore {
	return &docStore{}
}

func (d *docStore) Put(ctx context.Context, key string, doc any) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	ba, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.content_items (key, doc, updated_at) VALUES(?,?,?);", connection.Config.Keyspace)
	return connection.Session.Query(insertStatement, key, string(ba), time.Now().UTC()).WithContext(ctx).Exec()
}

func (d *docStore) Get(ctx context.Context, key string, target any) (bool, error) {
	if connection == nil {
		return false, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	selectStatement := fmt.Sprintf("SELECT doc FROM %s.content_items WHERE key = ?;", connection.Config.Keyspace)
	var doc string
	err := connection.Session.Query(selectStatement, key).WithContext(ctx).Scan(&doc)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(doc), target)
}

// MarkProcessed records id with a lightweight transaction so only the first
// writer within the TTL window observes applied=true.
func (d *docStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if connection == nil {
		return false, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.processed_ids (id) VALUES(?) IF NOT EXISTS USING TTL ?;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(insertStatement, id, int(ttl.Seconds())).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return false, err
	}
	return applied, nil
}
