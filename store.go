package mentor

import (
	"context"
	"time"
)

// Store is the durable record store for quiz items, session records, and
// budget snapshots. Lookups for missing records return ErrNotFound. A Store
// holds no business logic; serialization of concurrent updates to the same
// item is the engine's job.
type Store interface {
	// GetItem returns the quiz item with the given ID.
	GetItem(ctx context.Context, id string) (QuizItem, error)

	// PutItem creates or replaces a quiz item.
	PutItem(ctx context.Context, item QuizItem) error

	// DueBefore returns the IDs of items due at or before t, soonest first.
	DueBefore(ctx context.Context, t time.Time) ([]string, error)

	// GetSession returns the session record with the given ID.
	GetSession(ctx context.Context, id string) (SessionRecord, error)

	// PutSession creates or replaces a session record.
	PutSession(ctx context.Context, rec SessionRecord) error

	// Sessions returns up to limit session records, most recently active
	// first. A non-positive limit returns all.
	Sessions(ctx context.Context, limit int) ([]SessionRecord, error)

	// GetBudget returns the persisted budget snapshot.
	GetBudget(ctx context.Context) (BudgetRecord, error)

	// PutBudget replaces the persisted budget snapshot.
	PutBudget(ctx context.Context, rec BudgetRecord) error
}

// SessionRecord is the durable audit record of one session.
type SessionRecord struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Questions    int64     `json:"questions"`
	Spend        float64   `json:"spend"`
}

// BudgetRecord is the persisted snapshot of the budget ledger.
type BudgetRecord struct {
	Spent     float64   `json:"spent"`
	Cap       float64   `json:"cap"`
	UpdatedAt time.Time `json:"updated_at"`
}
