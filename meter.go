package mentor

import "time"

// Meter observes engine events for monitoring/logging.
type Meter interface {
	// OnAdmit is called after every admission decision, granted or denied.
	OnAdmit(event AdmitEvent)

	// OnResult is called when the model returns a result.
	OnResult(event ResultEvent)

	// OnReview is called after a quiz review has been scheduled.
	OnReview(event ReviewEvent)
}

// AdmitEvent describes an admission decision.
type AdmitEvent struct {
	SessionID     string
	Granted       bool
	Reason        DenyReason
	EstimatedCost float64
	AttemptNum    int
}

// ResultEvent describes the outcome of a model call.
type ResultEvent struct {
	SessionID string
	Model     string
	Success   bool
	Duration  time.Duration
	Usage     Usage
	Cost      float64
	Error     error
}

// ReviewEvent describes a scheduled quiz review.
type ReviewEvent struct {
	SessionID    string
	ItemID       string
	Recall       Recall
	Repetitions  int
	IntervalDays int
	Due          time.Time
}
