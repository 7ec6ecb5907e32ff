// Package postgres provides a PostgreSQL-backed Ledger for mentor.
//
// Budget state is stored in PostgreSQL tables with transactional
// Reserve/Settle. This makes it safe for multi-instance deployments and
// provides durability across restarts.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lernio/mentor"
)

// Ledger is a PostgreSQL-backed budget ledger.
type Ledger struct {
	pool        *pgxpool.Pool
	tablePrefix string
	limit       float64
}

var (
	_ mentor.Ledger            = (*Ledger)(nil)
	_ mentor.LedgerInitializer = (*Ledger)(nil)
)

// Option configures Ledger.
type Option func(*Ledger)

// WithTablePrefix sets the table name prefix (default "mentor_").
func WithTablePrefix(prefix string) Option {
	return func(l *Ledger) { l.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Ledger with the given spend cap.
// Call EnsureSchema before first use.
func New(pool *pgxpool.Pool, limit float64, opts ...Option) *Ledger {
	l := &Ledger{
		pool:        pool,
		tablePrefix: "mentor_",
		limit:       limit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) budgetTable() string      { return l.tablePrefix + "budget" }
func (l *Ledger) ticketsTable() string     { return l.tablePrefix + "tickets" }
func (l *Ledger) idempotencyTable() string { return l.tablePrefix + "idempotency" }

// EnsureSchema creates the required tables if they don't exist and seeds
// the budget row. An existing budget keeps its accumulated spend; only
// the cap is updated.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			cap DOUBLE PRECISION NOT NULL,
			spent DOUBLE PRECISION NOT NULL DEFAULT 0,
			reserved DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			amount DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, l.budgetTable(), l.ticketsTable(), l.idempotencyTable())
	if _, err := l.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("mentor/postgres: ensure schema: %w", err)
	}

	_, err := l.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, cap) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET cap = $1, updated_at = now()`, l.budgetTable()),
		l.limit,
	)
	if err != nil {
		return fmt.Errorf("mentor/postgres: seed budget: %w", err)
	}
	return nil
}

// Reserve attempts to reserve budget headroom for an estimated cost.
func (l *Ledger) Reserve(ctx context.Context, estimated float64, idempotencyKey string) (mentor.Ticket, error) {
	if estimated < 0 {
		return mentor.Ticket{}, fmt.Errorf("mentor/postgres: negative estimate %.4f", estimated)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return mentor.Ticket{}, fmt.Errorf("mentor/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Idempotency check.
	if idempotencyKey != "" {
		var inserted bool
		err = tx.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO %s (key) VALUES ($1) ON CONFLICT DO NOTHING RETURNING true`, l.idempotencyTable()),
			idempotencyKey,
		).Scan(&inserted)
		if err == pgx.ErrNoRows {
			return mentor.Ticket{}, fmt.Errorf("mentor: duplicate idempotency key %q", idempotencyKey)
		}
		if err != nil {
			return mentor.Ticket{}, fmt.Errorf("mentor/postgres: idem check: %w", err)
		}
	}

	// 2. Atomic reserve: update only if enough headroom.
	var reserved bool
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET reserved = reserved + $1, updated_at = now()
			WHERE id = 1 AND (cap - spent - reserved) >= $1
			RETURNING true`, l.budgetTable()),
		estimated,
	).Scan(&reserved)

	if err == pgx.ErrNoRows {
		// Distinguish a missing budget row from an exhausted one.
		var exists bool
		err = tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT true FROM %s WHERE id = 1`, l.budgetTable()),
		).Scan(&exists)

		if err == pgx.ErrNoRows {
			return mentor.Ticket{}, fmt.Errorf("mentor/postgres: budget not initialized")
		}
		if err != nil {
			return mentor.Ticket{}, fmt.Errorf("mentor/postgres: check budget: %w", err)
		}

		// Budget exists but the estimate does not fit. The deferred
		// rollback also releases the idempotency key.
		return mentor.Ticket{}, mentor.ErrBudgetExceeded
	}
	if err != nil {
		return mentor.Ticket{}, fmt.Errorf("mentor/postgres: reserve: %w", err)
	}

	// 3. Record the ticket.
	ticketID := uuid.New().String()
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, amount) VALUES ($1, $2)`, l.ticketsTable()),
		ticketID, estimated,
	)
	if err != nil {
		return mentor.Ticket{}, fmt.Errorf("mentor/postgres: record ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mentor.Ticket{}, fmt.Errorf("mentor/postgres: commit: %w", err)
	}

	return mentor.Ticket{ID: ticketID, Amount: estimated}, nil
}

// Settle finalizes a reservation with the actual cost. Negative actuals
// are clamped to zero.
func (l *Ledger) Settle(ctx context.Context, ticket mentor.Ticket, actual float64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("mentor/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var held float64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING amount`, l.ticketsTable()),
		ticket.ID,
	).Scan(&held)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("mentor: unknown or already settled ticket %q", ticket.ID)
	}
	if err != nil {
		return fmt.Errorf("mentor/postgres: release ticket: %w", err)
	}

	if actual < 0 {
		actual = 0
	}

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET reserved = reserved - $1, spent = spent + $2, updated_at = now()
			WHERE id = 1`, l.budgetTable()),
		held, actual,
	)
	if err != nil {
		return fmt.Errorf("mentor/postgres: settle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mentor/postgres: commit: %w", err)
	}
	return nil
}

// Spent returns the settled spend so far.
func (l *Ledger) Spent(ctx context.Context) (float64, error) {
	var spent float64
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT spent FROM %s WHERE id = 1`, l.budgetTable()),
	).Scan(&spent)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mentor/postgres: spent: %w", err)
	}
	return spent, nil
}

// Remaining returns the headroom left under the cap after settled spend
// and outstanding reservations.
func (l *Ledger) Remaining(ctx context.Context) (float64, error) {
	var available float64
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT cap - spent - reserved FROM %s WHERE id = 1`, l.budgetTable()),
	).Scan(&available)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mentor/postgres: remaining: %w", err)
	}
	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// Reset clears the settled spend. Outstanding reservations stay in place.
func (l *Ledger) Reset(ctx context.Context) error {
	_, err := l.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET spent = 0, updated_at = now() WHERE id = 1`, l.budgetTable()),
	)
	if err != nil {
		return fmt.Errorf("mentor/postgres: reset: %w", err)
	}
	return nil
}

// SetLimit updates the spend cap (upsert), preserving accumulated spend
// and reservations.
func (l *Ledger) SetLimit(limit float64) {
	l.limit = limit
	ctx := context.Background()
	_, _ = l.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, cap) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET cap = $1, updated_at = now()`, l.budgetTable()),
		limit,
	)
}

// RestoreSpent is a no-op: PostgreSQL already carries the durable spend.
func (l *Ledger) RestoreSpent(float64) {}

// CleanupIdempotency removes expired idempotency keys.
func (l *Ledger) CleanupIdempotency(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := l.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, l.idempotencyTable()),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("mentor/postgres: cleanup idempotency: %w", err)
	}
	return tag.RowsAffected(), nil
}
