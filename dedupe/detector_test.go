package dedupe

import (
	"context"
	"fmt"
	"testing"

	"github.com/modpipe/modpipe/mocks"
)

// Covers: no false negatives - every added hash is reported present.
func TestNoFalseNegatives(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(mocks.NewMembership(), "")

	hashes := make([]string, 50)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("%d", 1000000+i*7919)
		if err := d.Add(ctx, hashes[i]); err != nil {
			t.Fatal(err)
		}
	}
	for _, h := range hashes {
		seen, err := d.Contains(ctx, h)
		if err != nil {
			t.Fatal(err)
		}
		if !seen {
			t.Errorf("hash %s reported absent after add", h)
		}
	}
}

func TestCheckAndAddOrdering(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(mocks.NewMembership(), "test:hashes")

	seen, err := d.CheckAndAdd(ctx, "12345")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("first CheckAndAdd reported duplicate")
	}

	seen, err = d.CheckAndAdd(ctx, "12345")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("second CheckAndAdd did not report duplicate")
	}
}

func TestCheckAndAddPropagatesError(t *testing.T) {
	ctx := context.Background()
	m := mocks.NewMembership()
	m.FailWith = fmt.Errorf("backend down")
	d := NewDetector(m, "")

	if _, err := d.CheckAndAdd(ctx, "999"); err == nil {
		t.Error("expected error from failing membership backend")
	}
}
