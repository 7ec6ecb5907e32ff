package mentor_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernio/mentor"
)

// Test 1: the limit admits exactly limit requests inside one window
func TestRateWindow_LimitEnforced(t *testing.T) {
	w, err := mentor.NewRateWindow(3, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		assert.True(t, w.TryAdmit("alice", now.Add(time.Duration(i)*time.Second)), "request %d", i+1)
	}
	assert.False(t, w.TryAdmit("alice", now.Add(3*time.Second)))

	// The first admission expires 60s after it was counted.
	assert.True(t, w.TryAdmit("alice", now.Add(61*time.Second)))
}

// Test 2: denied requests do not consume window slots
func TestRateWindow_DenialNotCounted(t *testing.T) {
	w, err := mentor.NewRateWindow(2, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, w.TryAdmit("alice", now))
	assert.True(t, w.TryAdmit("alice", now.Add(time.Second)))

	// Hammering while at the limit must not extend the lockout.
	for i := 0; i < 10; i++ {
		assert.False(t, w.TryAdmit("alice", now.Add(time.Duration(2+i)*time.Second)))
	}

	// Both admissions have expired; if denials had counted, this would fail.
	assert.True(t, w.TryAdmit("alice", now.Add(62*time.Second)))
}

// Test 3: a clock rewind is clamped to the session's last observed time
func TestRateWindow_ClockRewind(t *testing.T) {
	w, err := mentor.NewRateWindow(1, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, w.TryAdmit("alice", now))

	// Ten minutes in the past must not clear the window.
	assert.False(t, w.TryAdmit("alice", now.Add(-10*time.Minute)))

	// Real time moving past the window admits again.
	assert.True(t, w.TryAdmit("alice", now.Add(61*time.Second)))
}

// Test 4: sessions are rate limited independently
func TestRateWindow_SessionsIndependent(t *testing.T) {
	w, err := mentor.NewRateWindow(1, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, w.TryAdmit("alice", now))
	assert.False(t, w.TryAdmit("alice", now.Add(time.Second)))

	// Alice being throttled says nothing about Bob.
	assert.True(t, w.TryAdmit("bob", now.Add(time.Second)))
	assert.Equal(t, 2, w.Sessions())
}

// Test 5: SetLimit applies to subsequent admissions and validates input
func TestRateWindow_SetLimit(t *testing.T) {
	w, err := mentor.NewRateWindow(1, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, w.TryAdmit("alice", now))
	assert.False(t, w.TryAdmit("alice", now.Add(time.Second)))

	require.NoError(t, w.SetLimit(3, time.Minute))
	assert.True(t, w.TryAdmit("alice", now.Add(2*time.Second)))
	assert.True(t, w.TryAdmit("alice", now.Add(3*time.Second)))
	assert.False(t, w.TryAdmit("alice", now.Add(4*time.Second)))

	assert.Error(t, w.SetLimit(0, time.Minute))
	assert.Error(t, w.SetLimit(3, 0))
}

// Test 6: idle sessions are evicted, active ones stay
func TestRateWindow_EvictIdle(t *testing.T) {
	w, err := mentor.NewRateWindow(5, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	w.TryAdmit("stale", now.Add(-2*time.Hour))
	w.TryAdmit("fresh", now)
	require.Equal(t, 2, w.Sessions())

	evicted := w.EvictIdle(now.Add(-time.Hour))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, w.Sessions())

	// An evicted session starts from a clean window.
	assert.True(t, w.TryAdmit("stale", now))
}

// Test 7: the session registry is bounded; the oldest entry is dropped
func TestRateWindow_LRUCap(t *testing.T) {
	w, err := mentor.NewRateWindow(1, time.Minute, 2)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, w.TryAdmit("s1", now))
	assert.True(t, w.TryAdmit("s2", now))
	assert.True(t, w.TryAdmit("s3", now)) // evicts s1
	assert.Equal(t, 2, w.Sessions())

	// s1 lost its history, so it admits again despite limit 1.
	assert.True(t, w.TryAdmit("s1", now.Add(time.Second)))
}

// Test 8: constructor validation
func TestRateWindow_InvalidConfig(t *testing.T) {
	_, err := mentor.NewRateWindow(0, time.Minute, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	_, err = mentor.NewRateWindow(5, 0, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duration")

	_, err = mentor.NewRateWindow(5, -time.Second, 0)
	assert.Error(t, err)
}

// Test 9: concurrent admissions for one session never exceed the limit
func TestRateWindow_ConcurrentAdmissions(t *testing.T) {
	w, err := mentor.NewRateWindow(10, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if w.TryAdmit("shared", now.Add(time.Duration(i)*time.Millisecond)) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
}

// Test 10: concurrent traffic across many sessions stays isolated
func TestRateWindow_ConcurrentSessions(t *testing.T) {
	w, err := mentor.NewRateWindow(5, time.Minute, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make([]int, 8)
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", s)
			for i := 0; i < 20; i++ {
				if w.TryAdmit(id, now.Add(time.Duration(i)*time.Millisecond)) {
					results[s]++
				}
			}
		}(s)
	}
	wg.Wait()

	for s, admitted := range results {
		assert.Equal(t, 5, admitted, "session %d", s)
	}
}
