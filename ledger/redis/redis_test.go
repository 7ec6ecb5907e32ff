//go:build integration

package redis_test

import (
	"context"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lernio/mentor"
	ledgerredis "github.com/lernio/mentor/ledger/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestLedger(t *testing.T, client *goredis.Client, limit float64) *ledgerredis.Ledger {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	l := ledgerredis.New(client, limit, ledgerredis.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return l
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReserveAndSettle(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, err := ledger.Reserve(ctx, 0.40, "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !almostEqual(ticket.Amount, 0.40) {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}

	if err := ledger.Settle(ctx, ticket, 0.30); err != nil {
		t.Fatalf("settle: %v", err)
	}

	spent, err := ledger.Spent(ctx)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if !almostEqual(spent, 0.30) {
		t.Fatalf("expected spent=0.30, got %v", spent)
	}

	remaining, err := ledger.Remaining(ctx)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if !almostEqual(remaining, 9.70) {
		t.Fatalf("expected remaining=9.70, got %v", remaining)
	}
}

func TestReserveExceeded(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, err := ledger.Reserve(ctx, 9.50, "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Settle(ctx, ticket, 9.50); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// 9.50 + 1.00 would push past the cap.
	if _, err := ledger.Reserve(ctx, 1.00, ""); err != mentor.ErrBudgetExceeded {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	// 9.50 + 0.40 = 9.90 still fits.
	if _, err := ledger.Reserve(ctx, 0.40, ""); err != nil {
		t.Fatalf("expected reserve within cap, got %v", err)
	}
}

func TestSettleZeroReleasesReservation(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, err := ledger.Reserve(ctx, 6, "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Settle(ctx, ticket, 0); err != nil {
		t.Fatalf("settle: %v", err)
	}

	remaining, err := ledger.Remaining(ctx)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if !almostEqual(remaining, 10) {
		t.Fatalf("expected remaining=10 after zero settle, got %v", remaining)
	}
}

func TestNegativeActualClamped(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, err := ledger.Reserve(ctx, 1, "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Settle(ctx, ticket, -5); err != nil {
		t.Fatalf("settle: %v", err)
	}

	spent, err := ledger.Spent(ctx)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if !almostEqual(spent, 0) {
		t.Fatalf("expected spent=0 after negative settle, got %v", spent)
	}
}

func TestIdempotencyDedup(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	if _, err := ledger.Reserve(ctx, 0.10, "key-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	if _, err := ledger.Reserve(ctx, 0.10, "key-1"); err == nil {
		t.Fatal("expected duplicate error, got nil")
	}
}

func TestUnknownTicket(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	err := ledger.Settle(ctx, mentor.Ticket{ID: "no-such-ticket", Amount: 1}, 1)
	if err == nil {
		t.Fatal("expected unknown ticket error, got nil")
	}

	// The unknown settle must not move the spend.
	spent, err := ledger.Spent(ctx)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if !almostEqual(spent, 0) {
		t.Fatalf("expected spent=0, got %v", spent)
	}
}

func TestDoubleSettle(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, err := ledger.Reserve(ctx, 1, "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Settle(ctx, ticket, 0.50); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if err := ledger.Settle(ctx, ticket, 0.50); err == nil {
		t.Fatal("expected error on second settle, got nil")
	}

	spent, _ := ledger.Spent(ctx)
	if !almostEqual(spent, 0.50) {
		t.Fatalf("expected spent=0.50, got %v", spent)
	}
}

func TestReset(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, _ := ledger.Reserve(ctx, 5, "")
	_ = ledger.Settle(ctx, ticket, 5)

	if err := ledger.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	spent, err := ledger.Spent(ctx)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if !almostEqual(spent, 0) {
		t.Fatalf("expected spent=0 after reset, got %v", spent)
	}
}

func TestSetLimitPreservesSpend(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	ticket, _ := ledger.Reserve(ctx, 4, "")
	_ = ledger.Settle(ctx, ticket, 4)

	ledger.SetLimit(20)

	spent, _ := ledger.Spent(ctx)
	if !almostEqual(spent, 4) {
		t.Fatalf("expected spent=4 after cap change, got %v", spent)
	}

	remaining, _ := ledger.Remaining(ctx)
	if !almostEqual(remaining, 16) {
		t.Fatalf("expected remaining=16, got %v", remaining)
	}
}

func TestConcurrentReservesNoOverAllocation(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(ctx, 1, "")
			if err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 10 {
		t.Fatalf("expected exactly 10 successful reserves, got %d", successCount.Load())
	}
}

func TestKeyPrefixIsolation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l1 := ledgerredis.New(client, 10, ledgerredis.WithKeyPrefix("test:iso1:"))
	l2 := ledgerredis.New(client, 20, ledgerredis.WithKeyPrefix("test:iso2:"))
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, "test:iso*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})

	r1, _ := l1.Remaining(ctx)
	r2, _ := l2.Remaining(ctx)

	if !almostEqual(r1, 10) {
		t.Fatalf("l1 expected 10, got %v", r1)
	}
	if !almostEqual(r2, 20) {
		t.Fatalf("l2 expected 20, got %v", r2)
	}
}
