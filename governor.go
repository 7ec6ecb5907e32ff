package mentor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DenyReason classifies why an admission was refused.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyRateLimited
	DenyBudget
)

// String returns the wire name of the reason.
func (r DenyReason) String() string {
	switch r {
	case DenyRateLimited:
		return "rate_limited"
	case DenyBudget:
		return "budget_exceeded"
	default:
		return "none"
	}
}

// Admission is the outcome of a governor check. A granted admission carries
// the budget ticket the caller must settle after the model call.
type Admission struct {
	Granted bool
	Ticket  Ticket
	Reason  DenyReason
}

// Governor gates inbound questions behind the per-session rate window and the
// shared budget ledger. Denials are ordinary values, not errors; an error
// from Admit means the ledger backend itself failed.
type Governor struct {
	rate   *RateWindow
	ledger Ledger
}

// NewGovernor composes a rate window and a ledger into one admission check.
func NewGovernor(rate *RateWindow, ledger Ledger) *Governor {
	return &Governor{rate: rate, ledger: ledger}
}

// Admit checks the session-local rate window first and only then reserves
// budget, so a rate-limited session never contends on the shared ledger.
func (g *Governor) Admit(ctx context.Context, sessionID string, estimated float64, now time.Time) (Admission, error) {
	if !g.rate.TryAdmit(sessionID, now) {
		return Admission{Reason: DenyRateLimited}, nil
	}

	ticket, err := g.ledger.Reserve(ctx, estimated, uuid.New().String())
	if err != nil {
		if errors.Is(err, ErrBudgetExceeded) {
			return Admission{Reason: DenyBudget}, nil
		}
		return Admission{}, fmt.Errorf("mentor: reserve budget: %w", err)
	}

	return Admission{Granted: true, Ticket: ticket}, nil
}
