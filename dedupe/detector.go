// Package dedupe flags previously seen content hashes. The signal is
// informational only: it rides on the processed event and never blocks or
// alters the moderation verdict.
package dedupe

import (
	"context"

	"github.com/modpipe/modpipe"
)

// DefaultKey is the membership structure key duplicate fingerprints live under.
const DefaultKey = "content:hashes"

// Detector answers "has this content hash been seen before" over a
// membership structure. With a probabilistic backing (e.g. a Bloom filter)
// false positives are possible; an added hash is always reported present.
type Detector struct {
	membership modpipe.Membership
	key        string
}

// NewDetector returns a Detector over the given membership structure.
// An empty key selects DefaultKey.
func NewDetector(m modpipe.Membership, key string) *Detector {
	if key == "" {
		key = DefaultKey
	}
	return &Detector{
		membership: m,
		key:        key,
	}
}

// Contains reports whether hash has been added before.
func (d *Detector) Contains(ctx context.Context, hash string) (bool, error) {
	return d.membership.Contains(ctx, d.key, hash)
}

// Add records hash as seen.
func (d *Detector) Add(ctx context.Context, hash string) error {
	return d.membership.Add(ctx, d.key, hash)
}

// CheckAndAdd reports whether hash was already present, then records it.
// The check-then-add order makes the first submission of a text report
// false and every later one true.
func (d *Detector) CheckAndAdd(ctx context.Context, hash string) (bool, error) {
	seen, err := d.Contains(ctx, hash)
	if err != nil {
		return false, err
	}
	if err := d.Add(ctx, hash); err != nil {
		return seen, err
	}
	return seen, nil
}
