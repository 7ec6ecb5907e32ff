package mentor

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrRateLimited         = errors.New("mentor: session rate limited")
	ErrBudgetExceeded      = errors.New("mentor: budget cap exceeded")
	ErrModelThrottled      = errors.New("mentor: model throttled")
	ErrModelAuthFailed     = errors.New("mentor: model authentication failed")
	ErrModelInvalidRequest = errors.New("mentor: invalid model request")
	ErrModelQuotaExhausted = errors.New("mentor: model account quota exhausted")
	ErrModelUnavailable    = errors.New("mentor: model unavailable")
	ErrNotFound            = errors.New("mentor: not found")
	ErrInvalidRecall       = errors.New("mentor: invalid recall grade")
	ErrStateInvalid        = errors.New("mentor: review state invalid")
)

// AskError wraps a failed question with its session context.
type AskError struct {
	Err       error
	SessionID string
	Model     string
	Attempts  int
}

func (e *AskError) Error() string {
	return fmt.Sprintf("mentor: session=%s model=%s attempts=%d: %v",
		e.SessionID, e.Model, e.Attempts, e.Err)
}

func (e *AskError) Unwrap() error {
	return e.Err
}

// IsDenied returns true if the error is an admission denial rather than a fault.
// Denials are expected outcomes: the caller waits (rate) or stops (budget).
func IsDenied(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrBudgetExceeded)
}

// IsFatal returns true if the error should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrModelAuthFailed) ||
		errors.Is(err, ErrModelInvalidRequest) ||
		errors.Is(err, ErrModelQuotaExhausted)
}

// IsRetryable returns true if a fresh attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrModelThrottled) ||
		errors.Is(err, ErrModelUnavailable)
}
