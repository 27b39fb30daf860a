package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker(cfg Config) *LocalLocker {
	cfg = cfg.withDefaults()
	return &LocalLocker{
		locks: make(map[string]*localLock),
		wait:  cfg.Wait,
	}
}

// Acquire blocks until key is free, ctx is done or the wait budget runs out.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ll, ok := l.locks[key]
	if !ok {
		ll = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = ll
	}
	ll.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ll.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, ll)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key, ll)
		return nil, fmt.Errorf("%s: %w", key, ErrNotAcquired)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ll.ch
			l.unref(key, ll)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, ll *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of keys with holders or waiters.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var _ Locker = (*LocalLocker)(nil)
