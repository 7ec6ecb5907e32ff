package mentor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ledger tracks cumulative dollar spend against a fixed cap. Spend is debited
// in two steps: Reserve provisionally holds the estimated cost before the
// model call, Settle reconciles the hold with the actual cost afterwards.
// Settled spend only ever grows; the one way down is an administrative Reset.
type Ledger interface {
	// Reserve attempts to hold estimated dollars against the cap. Returns
	// ErrBudgetExceeded if settled plus reserved spend would pass the cap.
	Reserve(ctx context.Context, estimated float64, idempotencyKey string) (Ticket, error)

	// Settle releases a reservation and records the actual cost. Every
	// reservation must be settled exactly once, however the call went.
	Settle(ctx context.Context, ticket Ticket, actual float64) error

	// Spent returns the settled cumulative spend.
	Spent(ctx context.Context) (float64, error)

	// Remaining returns the budget still open to new reservations.
	Remaining(ctx context.Context) (float64, error)

	// Reset clears settled spend. Administrative use only.
	Reset(ctx context.Context) error
}

// Ticket is a provisional debit against the budget cap, held until settled.
type Ticket struct {
	ID     string
	Amount float64
}

// LedgerInitializer is implemented by ledgers whose cap and settled spend can
// be seeded at startup or reconfiguration. Durable ledgers that own their
// state do not implement it.
type LedgerInitializer interface {
	SetLimit(limit float64)
	RestoreSpent(spent float64)
}

// MemoryLedger is an in-process Ledger guarded by a single mutex.
type MemoryLedger struct {
	mu          sync.Mutex
	limit       float64
	spent       float64
	reserved    float64
	outstanding map[string]float64 // ticket ID → held amount
	seen        map[string]bool    // idempotency key dedup
}

var (
	_ Ledger            = (*MemoryLedger)(nil)
	_ LedgerInitializer = (*MemoryLedger)(nil)
)

// NewMemoryLedger creates a ledger with the given cap in dollars.
func NewMemoryLedger(limit float64) *MemoryLedger {
	return &MemoryLedger{
		limit:       limit,
		outstanding: make(map[string]float64),
		seen:        make(map[string]bool),
	}
}

// Reserve attempts to hold estimated dollars. Returns ErrBudgetExceeded if
// insufficient budget remains.
func (l *MemoryLedger) Reserve(_ context.Context, estimated float64, idempotencyKey string) (Ticket, error) {
	if estimated < 0 {
		return Ticket{}, fmt.Errorf("mentor: negative estimate %.6f", estimated)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Idempotency check.
	if idempotencyKey != "" && l.seen[idempotencyKey] {
		return Ticket{}, fmt.Errorf("mentor: duplicate idempotency key %q", idempotencyKey)
	}

	if l.spent+l.reserved+estimated > l.limit {
		return Ticket{}, ErrBudgetExceeded
	}

	t := Ticket{ID: uuid.New().String(), Amount: estimated}
	l.reserved += estimated
	l.outstanding[t.ID] = estimated

	if idempotencyKey != "" {
		l.seen[idempotencyKey] = true
	}

	return t, nil
}

// Settle releases the reservation and adds the actual cost to settled spend.
// Negative actual cost is recorded as zero, so settled spend never decreases.
// Settling an unknown or already-settled ticket is an error.
func (l *MemoryLedger) Settle(_ context.Context, ticket Ticket, actual float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.outstanding[ticket.ID]
	if !ok {
		return fmt.Errorf("mentor: unknown or already settled ticket %q", ticket.ID)
	}
	delete(l.outstanding, ticket.ID)
	l.reserved -= held

	if actual < 0 {
		actual = 0
	}
	l.spent += actual
	return nil
}

// Spent returns the settled cumulative spend.
func (l *MemoryLedger) Spent(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent, nil
}

// Remaining returns the budget open to new reservations.
func (l *MemoryLedger) Remaining(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.limit - l.spent - l.reserved
	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// Reset clears settled spend. Outstanding reservations stay held.
func (l *MemoryLedger) Reset(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent = 0
	return nil
}

// SetLimit replaces the cap. Existing spend and reservations are kept.
func (l *MemoryLedger) SetLimit(limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

// RestoreSpent seeds settled spend from a persisted snapshot.
func (l *MemoryLedger) RestoreSpent(spent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if spent < 0 {
		spent = 0
	}
	l.spent = spent
}
