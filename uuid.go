package modpipe

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random content id. It retries on error with a 1ms
// backoff up to 10 times and panics only if all attempts fail (which should
// never happen under normal conditions).
func NewID() string {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return id.String()
		}
		// Sleep 1 millisecond then retry to generate new UUID.
		time.Sleep(1 * time.Millisecond)
	}
	// Panic if still can't generate UUID after 10 retries. Should never happen but in case.
	panic(err)
}
