package mentor_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lernio/mentor"
)

// Test 1: classification helpers partition the sentinels
func TestErrorClassification(t *testing.T) {
	assert.True(t, mentor.IsDenied(mentor.ErrRateLimited))
	assert.True(t, mentor.IsDenied(mentor.ErrBudgetExceeded))
	assert.False(t, mentor.IsDenied(mentor.ErrModelThrottled))
	assert.False(t, mentor.IsDenied(nil))

	assert.True(t, mentor.IsFatal(mentor.ErrModelAuthFailed))
	assert.True(t, mentor.IsFatal(mentor.ErrModelInvalidRequest))
	assert.True(t, mentor.IsFatal(mentor.ErrModelQuotaExhausted))
	assert.False(t, mentor.IsFatal(mentor.ErrModelThrottled))
	assert.False(t, mentor.IsFatal(mentor.ErrModelUnavailable))

	assert.True(t, mentor.IsRetryable(mentor.ErrModelThrottled))
	assert.True(t, mentor.IsRetryable(mentor.ErrModelUnavailable))
	assert.False(t, mentor.IsRetryable(mentor.ErrModelAuthFailed))
	assert.False(t, mentor.IsRetryable(nil))

	// Wrapping preserves classification.
	wrapped := fmt.Errorf("attempt 2: %w", mentor.ErrRateLimited)
	assert.True(t, mentor.IsDenied(wrapped))
}

// Test 2: AskError reports its context and unwraps to the cause
func TestAskError(t *testing.T) {
	err := &mentor.AskError{
		Err:       mentor.ErrModelUnavailable,
		SessionID: "alice",
		Model:     "gpt-4o-mini",
		Attempts:  2,
	}

	msg := err.Error()
	assert.Contains(t, msg, "session=alice")
	assert.Contains(t, msg, "model=gpt-4o-mini")
	assert.Contains(t, msg, "attempts=2")
	assert.Contains(t, msg, "model unavailable")

	assert.ErrorIs(t, err, mentor.ErrModelUnavailable)
	assert.True(t, mentor.IsRetryable(err))

	var askErr *mentor.AskError
	assert.True(t, errors.As(err, &askErr))
}
