package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lernio/mentor"
)

// MemoryStore is an in-memory Store for tests and single-run tools.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]mentor.QuizItem
	sessions map[string]mentor.SessionRecord
	budget   *mentor.BudgetRecord
}

var _ mentor.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]mentor.QuizItem),
		sessions: make(map[string]mentor.SessionRecord),
	}
}

// GetItem returns the quiz item with the given ID.
func (s *MemoryStore) GetItem(_ context.Context, id string) (mentor.QuizItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return mentor.QuizItem{}, fmt.Errorf("quiz item %q: %w", id, mentor.ErrNotFound)
	}
	return item, nil
}

// PutItem creates or replaces a quiz item.
func (s *MemoryStore) PutItem(_ context.Context, item mentor.QuizItem) error {
	if item.ID == "" {
		return fmt.Errorf("mentor: quiz item id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// DueBefore returns the IDs of items due at or before t, soonest first.
func (s *MemoryStore) DueBefore(_ context.Context, t time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		id  string
		due time.Time
	}
	var dues []entry
	for id, item := range s.items {
		if !item.State.Due.After(t) {
			dues = append(dues, entry{id, item.State.Due})
		}
	}
	sort.Slice(dues, func(i, j int) bool {
		if dues[i].due.Equal(dues[j].due) {
			return dues[i].id < dues[j].id
		}
		return dues[i].due.Before(dues[j].due)
	})

	ids := make([]string, len(dues))
	for i, d := range dues {
		ids[i] = d.id
	}
	return ids, nil
}

// GetSession returns the session record with the given ID.
func (s *MemoryStore) GetSession(_ context.Context, id string) (mentor.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return mentor.SessionRecord{}, fmt.Errorf("session %q: %w", id, mentor.ErrNotFound)
	}
	return rec, nil
}

// PutSession creates or replaces a session record.
func (s *MemoryStore) PutSession(_ context.Context, rec mentor.SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("mentor: session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return nil
}

// Sessions returns up to limit session records, most recently active first.
func (s *MemoryStore) Sessions(_ context.Context, limit int) ([]mentor.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]mentor.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].LastActiveAt.Equal(recs[j].LastActiveAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].LastActiveAt.After(recs[j].LastActiveAt)
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// GetBudget returns the persisted budget snapshot.
func (s *MemoryStore) GetBudget(context.Context) (mentor.BudgetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.budget == nil {
		return mentor.BudgetRecord{}, fmt.Errorf("budget snapshot: %w", mentor.ErrNotFound)
	}
	return *s.budget, nil
}

// PutBudget replaces the persisted budget snapshot.
func (s *MemoryStore) PutBudget(_ context.Context, rec mentor.BudgetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = &rec
	return nil
}
