package modpipe

import "fmt"

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// Validation marks a malformed submission, rejected before it enters
	// the pipeline. Not retried.
	Validation
	// TransientIO marks a temporarily unreachable collaborator (log, store,
	// index). Retried with bounded backoff.
	TransientIO
	// Analysis marks an unexpected failure while scoring; the item proceeds
	// to an error status with a low-confidence neutral analysis.
	Analysis
	// FatalStartup marks an index/series/group creation failure other than
	// "already exists"; the process continues in a degraded state.
	FatalStartup
)

// Pipeline custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}
