package bubblesync

import (
	"errors"
	"fmt"
)

// ErrClaimLost means another dispatcher instance claimed the entry between
// selection and the conditional update. Not a failure; the loser skips.
var ErrClaimLost = errors.New("claim lost to another dispatcher")

// Error classes recorded on failure records and dead-letter reasons.
const (
	ErrorClassRetryable = "retryable_remote"
	ErrorClassTerminal  = "terminal_remote"
	ErrorClassExhausted = "retries_exhausted"
)

// RemoteError is a failed legacy workflow invocation. Retryable covers
// timeouts, transport errors and 5xx responses; everything the legacy
// platform explicitly rejected (4xx) is terminal since replaying a request
// it called malformed cannot succeed.
type RemoteError struct {
	StatusCode int
	Retryable  bool
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("legacy workflow call failed: %v", e.Err)
	}
	return fmt.Sprintf("legacy workflow returned %d: %s", e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried. Unknown error types are
// treated as retryable: a transient bug in our own plumbing must not
// dead-letter an entry the legacy side never rejected.
func IsRetryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return true
}
