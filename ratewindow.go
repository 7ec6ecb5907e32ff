package mentor

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMaxSessions bounds the tracked-session registry when no cap is given.
const defaultMaxSessions = 4096

// RateWindow enforces a per-session sliding-window request limit. Session
// state is created lazily on first admission, bounded by an LRU cap, and
// reclaimable through EvictIdle; discarding and re-creating a session's
// window is safe.
type RateWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	sessions *lru.Cache[string, *sessionWindow]
}

// sessionWindow tracks the recent request timestamps of one session.
// Its mutex serializes admissions for that session only.
type sessionWindow struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
}

// NewRateWindow creates a window admitting at most limit requests per window
// duration per session. At most maxSessions sessions are tracked; zero uses a
// default cap, and the least recently admitted session is dropped beyond it.
func NewRateWindow(limit int, window time.Duration, maxSessions int) (*RateWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("mentor: rate window: limit %d must be positive", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("mentor: rate window: duration %v must be positive", window)
	}
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}

	sessions, err := lru.New[string, *sessionWindow](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("mentor: rate window: %w", err)
	}

	return &RateWindow{
		limit:    limit,
		window:   window,
		sessions: sessions,
	}, nil
}

// TryAdmit reports whether the session may issue another request at now, and
// counts the request against the window if so. A denial does not count.
// Admissions for the same session are serialized; different sessions do not
// contend beyond the registry lookup.
func (w *RateWindow) TryAdmit(sessionID string, now time.Time) bool {
	w.mu.Lock()
	limit, window := w.limit, w.window
	sw, ok := w.sessions.Get(sessionID)
	if !ok {
		sw = &sessionWindow{}
		w.sessions.Add(sessionID, sw)
	}
	w.mu.Unlock()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	// A clock rewind must not resurrect expired entries: clamp to the last
	// time this session was seen.
	if now.Before(sw.lastSeen) {
		now = sw.lastSeen
	}
	sw.lastSeen = now

	// Prune timestamps outside the window.
	cutoff := now.Add(-window)
	valid := sw.stamps[:0]
	for _, t := range sw.stamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	sw.stamps = valid

	if len(sw.stamps) >= limit {
		return false
	}
	sw.stamps = append(sw.stamps, now)
	return true
}

// SetLimit replaces the limit and window duration. Existing session state is
// kept; the new values apply from the next admission check.
func (w *RateWindow) SetLimit(limit int, window time.Duration) error {
	if limit <= 0 {
		return fmt.Errorf("mentor: rate window: limit %d must be positive", limit)
	}
	if window <= 0 {
		return fmt.Errorf("mentor: rate window: duration %v must be positive", window)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.limit = limit
	w.window = window
	return nil
}

// EvictIdle drops state for sessions whose last request is before cutoff and
// returns how many were evicted.
func (w *RateWindow) EvictIdle(cutoff time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	evicted := 0
	for _, id := range w.sessions.Keys() {
		sw, ok := w.sessions.Peek(id)
		if !ok {
			continue
		}
		sw.mu.Lock()
		idle := sw.lastSeen.Before(cutoff)
		sw.mu.Unlock()
		if idle {
			w.sessions.Remove(id)
			evicted++
		}
	}
	return evicted
}

// Sessions returns the number of sessions currently tracked.
func (w *RateWindow) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions.Len()
}
