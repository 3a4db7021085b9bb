package store

import (
	"context"
	"sync"
)

// lockTable hands out one exclusive lock per key. A lock is a
// one-slot channel: sending acquires it, receiving releases it. Waiters
// give up when their context is done.
type lockTable[K comparable] struct {
	mu    sync.Mutex
	slots map[K]chan struct{}
}

func newLockTable[K comparable]() *lockTable[K] {
	return &lockTable[K]{slots: make(map[K]chan struct{})}
}

func (l *lockTable[K]) slot(id K) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

func (l *lockTable[K]) acquire(ctx context.Context, id K) error {
	select {
	case l.slot(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lockTable[K]) release(id K) {
	select {
	case <-l.slot(id):
	default:
	}
}
