// Package sessionlock serializes chat turns within one session.
// Clean Architecture: Adapters implementing ports.SessionLocker.
package sessionlock

import (
	"context"
	"sync"
)

// Local is an in-process keyed lock. Entries are dropped when the last
// holder or waiter leaves, so idle sessions cost nothing.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // holds one token while the session is free
	refs int
}

// NewLocal creates an in-process session locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock blocks until sessionID is free or ctx is done.
func (l *Local) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{}
		l.locks[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case <-e.ch:
	case <-ctx.Done():
		l.unref(sessionID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.ch <- struct{}{}
			l.unref(sessionID, e)
		})
	}, nil
}

func (l *Local) unref(sessionID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// Len returns the number of sessions currently held or waited on.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
