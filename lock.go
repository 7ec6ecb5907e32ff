package mentor

import "sync"

// itemLocks hands out one mutex per quiz item so concurrent reviews of the
// same item are serialized. Entries are reference counted and removed when
// the last holder releases, so the table does not grow with the item count.
type itemLocks struct {
	mu    sync.Mutex
	locks map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[string]*itemLock)}
}

// acquire blocks until the lock for id is held and returns the release func.
func (il *itemLocks) acquire(id string) func() {
	il.mu.Lock()
	l, ok := il.locks[id]
	if !ok {
		l = &itemLock{}
		il.locks[id] = l
	}
	l.refs++
	il.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		il.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(il.locks, id)
		}
		il.mu.Unlock()
	}
}
