package redis

import (
	"context"
	"fmt"

	"github.com/modpipe/modpipe"
)

type pubsub struct {
	conn *Connection
}

// NewPubSub returns the cross-process broadcast channel over the open
// connection.
func NewPubSub() modpipe.PubSub {
	return &pubsub{
		conn: connection,
	}
}

func (p *pubsub) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return p.conn.Client.Publish(ctx, topic, payload).Err()
}
