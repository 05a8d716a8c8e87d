package testutils

import (
	"context"
	"sync"
)

// MutexLocker is an in-process out.Locker.
type MutexLocker struct {
	mu       sync.Mutex
	Acquired int
}

func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	locked := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
		l.Acquired++
		return l.mu.Unlock, nil
	case <-ctx.Done():
		go func() {
			<-locked
			l.mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}
