package mentor

import (
	"fmt"
	"time"
)

// ReviewState is the scheduling state of a quiz item.
type ReviewState struct {
	Ease         float64   `json:"ease"`          // interval growth multiplier, >= the configured floor
	IntervalDays int       `json:"interval_days"` // current interval in whole days
	Repetitions  int       `json:"repetitions"`   // consecutive successful reviews
	Due          time.Time `json:"due"`           // next time the item should be presented
}

// Validate checks the state against its invariants. Stored state that fails
// validation is treated as corruption by callers, not as a crash.
func (s ReviewState) Validate() error {
	if s.Ease < minEase {
		return fmt.Errorf("%w: ease %.2f below minimum %.2f", ErrStateInvalid, s.Ease, minEase)
	}
	if s.IntervalDays < 0 {
		return fmt.Errorf("%w: negative interval %d", ErrStateInvalid, s.IntervalDays)
	}
	if s.Repetitions < 0 {
		return fmt.Errorf("%w: negative repetition count %d", ErrStateInvalid, s.Repetitions)
	}
	return nil
}

// QuizItem is a question/answer pair with its scheduling state. The prompt
// and answer payload are opaque to the scheduler.
type QuizItem struct {
	ID        string      `json:"id"`
	Topic     string      `json:"topic"`
	Prompt    string      `json:"prompt"`
	Answer    string      `json:"answer"`
	State     ReviewState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}
