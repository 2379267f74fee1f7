package modpipe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sethvargo/go-retry"
)

func TestShouldRetryClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"validation", Error{Code: Validation, Err: fmt.Errorf("bad input")}, false},
		{"analysis", Error{Code: Analysis, Err: fmt.Errorf("boom")}, false},
		{"transient", Error{Code: TransientIO, Err: fmt.Errorf("conn refused")}, true},
		{"plain", fmt.Errorf("socket closed"), true},
	}
	for _, tt := range tests {
		if got := ShouldRetry(tt.err); got != tt.want {
			t.Errorf("%s: ShouldRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return retry.RetryableError(Error{Code: TransientIO, Err: fmt.Errorf("flaky")})
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Retry returned %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryGivesUp(t *testing.T) {
	gaveUp := false
	err := Retry(context.Background(), func(ctx context.Context) error {
		return retry.RetryableError(Error{Code: TransientIO, Err: fmt.Errorf("always down")})
	}, func(ctx context.Context) { gaveUp = true })
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !gaveUp {
		t.Error("gave-up task not invoked")
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := Error{Code: Validation, Err: fmt.Errorf("bad")}
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	}, nil)
	var e Error
	if !errors.As(err, &e) || e.Code != Validation {
		t.Errorf("err = %v, want the permanent error back", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Error{Code: TransientIO, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestValidate(t *testing.T) {
	if err := (SubmissionInput{Text: "ok"}).Validate(); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}
	var e Error
	if err := (SubmissionInput{}).Validate(); !errors.As(err, &e) || e.Code != Validation {
		t.Errorf("empty text error = %v, want Validation", err)
	}
}
