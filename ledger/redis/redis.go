// Package redis provides a Redis-backed Ledger for mentor.
//
// Budget state is stored in Redis hashes with atomic Lua scripts for
// Reserve/Settle. This makes it safe for multi-instance deployments.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lernio/mentor"
)

// Ledger is a Redis-backed budget ledger.
type Ledger struct {
	client    goredis.Cmdable
	keyPrefix string
}

var (
	_ mentor.Ledger            = (*Ledger)(nil)
	_ mentor.LedgerInitializer = (*Ledger)(nil)
)

// Option configures Ledger.
type Option func(*Ledger)

// WithKeyPrefix sets the Redis key prefix (default "mentor:budget:").
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.keyPrefix = prefix }
}

// New creates a new Redis-backed Ledger with the given spend cap.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
// An existing budget keeps its accumulated spend; only the cap is updated.
func New(client goredis.Cmdable, limit float64, opts ...Option) *Ledger {
	l := &Ledger{
		client:    client,
		keyPrefix: "mentor:budget:",
	}
	for _, opt := range opts {
		opt(l)
	}
	l.SetLimit(limit)
	return l
}

func (l *Ledger) budgetKey() string  { return l.keyPrefix + "state" }
func (l *Ledger) ticketsKey() string { return l.keyPrefix + "tickets" }

func (l *Ledger) idemKey(key string) string {
	return l.keyPrefix + "idem:" + key
}

// reserveScript atomically reserves headroom for an estimated cost.
// KEYS[1] = budget hash key
// KEYS[2] = tickets hash key
// KEYS[3] = idempotency key
// ARGV[1] = amount
// ARGV[2] = ticket id
// ARGV[3] = has_idem ("1" or "0")
//
// Returns:
//
//	1  = reserved OK
//	0  = budget exceeded
//	-1 = duplicate idempotency key
//	-2 = budget not initialized
var reserveScript = goredis.NewScript(`
local budget_key = KEYS[1]
local tickets_key = KEYS[2]
local idem_key = KEYS[3]
local amount = tonumber(ARGV[1])
local ticket_id = ARGV[2]
local has_idem = ARGV[3]

-- Idempotency check
if has_idem == "1" then
    local set = redis.call("SET", idem_key, "1", "NX", "EX", 86400)
    if not set then
        return -1
    end
end

local cap = redis.call("HGET", budget_key, "cap")
if not cap then
    if has_idem == "1" then
        redis.call("DEL", idem_key)
    end
    return -2
end
cap = tonumber(cap)

local spent = tonumber(redis.call("HGET", budget_key, "spent") or "0")
local reserved = tonumber(redis.call("HGET", budget_key, "reserved") or "0")

if spent + reserved + amount > cap then
    -- Rollback idempotency key on failure
    if has_idem == "1" then
        redis.call("DEL", idem_key)
    end
    return 0
end

redis.call("HINCRBYFLOAT", budget_key, "reserved", amount)
redis.call("HSET", tickets_key, ticket_id, amount)
return 1
`)

// settleScript atomically releases a reservation and records the actual
// cost. Negative actuals are clamped to zero.
// KEYS[1] = budget hash key
// KEYS[2] = tickets hash key
// ARGV[1] = ticket id
// ARGV[2] = actual amount
//
// Returns 1 on success, -1 for an unknown or already settled ticket.
var settleScript = goredis.NewScript(`
local budget_key = KEYS[1]
local tickets_key = KEYS[2]
local ticket_id = ARGV[1]
local actual = tonumber(ARGV[2])

local held = redis.call("HGET", tickets_key, ticket_id)
if not held then
    return -1
end
redis.call("HDEL", tickets_key, ticket_id)
redis.call("HINCRBYFLOAT", budget_key, "reserved", -tonumber(held))

if actual < 0 then
    actual = 0
end
if actual > 0 then
    redis.call("HINCRBYFLOAT", budget_key, "spent", actual)
end
return 1
`)

// Reserve attempts to reserve budget headroom for an estimated cost.
func (l *Ledger) Reserve(ctx context.Context, estimated float64, idempotencyKey string) (mentor.Ticket, error) {
	if estimated < 0 {
		return mentor.Ticket{}, fmt.Errorf("mentor/redis: negative estimate %.4f", estimated)
	}

	hasIdem := "0"
	idemK := l.idemKey("_noop")
	if idempotencyKey != "" {
		hasIdem = "1"
		idemK = l.idemKey(idempotencyKey)
	}

	ticketID := uuid.New().String()

	result, err := reserveScript.Run(ctx, l.client,
		[]string{l.budgetKey(), l.ticketsKey(), idemK},
		estimated, ticketID, hasIdem,
	).Int64()
	if err != nil {
		return mentor.Ticket{}, fmt.Errorf("mentor/redis: reserve: %w", err)
	}

	switch result {
	case 1:
		return mentor.Ticket{ID: ticketID, Amount: estimated}, nil
	case 0:
		return mentor.Ticket{}, mentor.ErrBudgetExceeded
	case -1:
		return mentor.Ticket{}, fmt.Errorf("mentor: duplicate idempotency key %q", idempotencyKey)
	case -2:
		return mentor.Ticket{}, fmt.Errorf("mentor/redis: budget not initialized")
	default:
		return mentor.Ticket{}, fmt.Errorf("mentor/redis: unexpected reserve result: %d", result)
	}
}

// Settle finalizes a reservation with the actual cost.
func (l *Ledger) Settle(ctx context.Context, ticket mentor.Ticket, actual float64) error {
	result, err := settleScript.Run(ctx, l.client,
		[]string{l.budgetKey(), l.ticketsKey()},
		ticket.ID, actual,
	).Int64()
	if err != nil {
		return fmt.Errorf("mentor/redis: settle: %w", err)
	}
	if result == -1 {
		return fmt.Errorf("mentor: unknown or already settled ticket %q", ticket.ID)
	}
	return nil
}

// Spent returns the settled spend so far.
func (l *Ledger) Spent(ctx context.Context) (float64, error) {
	val, err := l.client.HGet(ctx, l.budgetKey(), "spent").Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mentor/redis: spent: %w", err)
	}
	spent, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("mentor/redis: parse spent: %w", err)
	}
	return spent, nil
}

// Remaining returns the headroom left under the cap after settled spend
// and outstanding reservations.
func (l *Ledger) Remaining(ctx context.Context) (float64, error) {
	vals, err := l.client.HMGet(ctx, l.budgetKey(), "cap", "spent", "reserved").Result()
	if err != nil {
		return 0, fmt.Errorf("mentor/redis: remaining: %w", err)
	}

	// Budget not initialized.
	if vals[0] == nil {
		return 0, nil
	}

	cap64, _ := strconv.ParseFloat(vals[0].(string), 64)
	var spent, reserved float64
	if vals[1] != nil {
		spent, _ = strconv.ParseFloat(vals[1].(string), 64)
	}
	if vals[2] != nil {
		reserved, _ = strconv.ParseFloat(vals[2].(string), 64)
	}

	available := cap64 - spent - reserved
	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// Reset clears the settled spend. Outstanding reservations stay in place.
func (l *Ledger) Reset(ctx context.Context) error {
	if err := l.client.HSet(ctx, l.budgetKey(), "spent", 0).Err(); err != nil {
		return fmt.Errorf("mentor/redis: reset: %w", err)
	}
	return nil
}

// SetLimit updates the spend cap, preserving accumulated spend and
// reservations.
func (l *Ledger) SetLimit(limit float64) {
	ctx := context.Background()
	key := l.budgetKey()

	exists, _ := l.client.Exists(ctx, key).Result()
	if exists == 0 {
		l.client.HSet(ctx, key, "cap", limit, "spent", 0, "reserved", 0)
		return
	}
	l.client.HSet(ctx, key, "cap", limit)
}

// RestoreSpent is a no-op: Redis already carries the durable spend.
func (l *Ledger) RestoreSpent(float64) {}
