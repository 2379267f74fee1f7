package redis

import (
	"context"
	"fmt"

	"github.com/modpipe/modpipe"
)

type membership struct {
	conn *Connection
}

// NewMembership returns the Bloom-filter membership structure over the open
// connection. BF.ADD auto-creates the filter with server defaults; an added
// item is always reported present, distinct items may rarely collide.
func NewMembership() modpipe.Membership {
	return &membership{
		conn: connection,
	}
}

func (m *membership) Add(ctx context.Context, key string, item string) error {
	if m.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return m.conn.Client.BFAdd(ctx, key, item).Err()
}

func (m *membership) Contains(ctx context.Context, key string, item string) (bool, error) {
	if m.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return m.conn.Client.BFExists(ctx, key, item).Result()
}

type cardinality struct {
	conn *Connection
}

// NewCardinality returns the HyperLogLog distinct-count estimator over the
// open connection.
func NewCardinality() modpipe.Cardinality {
	return &cardinality{
		conn: connection,
	}
}

func (c *cardinality) Add(ctx context.Context, key string, elements ...string) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	members := make([]any, len(elements))
	for i, e := range elements {
		members[i] = e
	}
	return c.conn.Client.PFAdd(ctx, key, members...).Err()
}

func (c *cardinality) ApproxCount(ctx context.Context, key string) (int64, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return c.conn.Client.PFCount(ctx, key).Result()
}
