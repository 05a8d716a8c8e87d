// Package lock provides the cross-process lock taken by build and
// reconcile passes.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

const retryDelay = 100 * time.Millisecond

// FileLock implements out.Locker with an advisory lock on a file. The
// in-process mutex keeps goroutines sharing one FileLock from racing on
// the same descriptor.
type FileLock struct {
	path string
	mu   sync.Mutex
}

var _ out.Locker = (*FileLock)(nil)

// NewFileLock creates a lock on path. The parent directory is created on
// first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		go func() {
			<-acquired
			l.mu.Unlock()
		}()
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteLockTimeout, ctx.Err())
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.mu.Unlock()
		return nil, &domain.IOError{Op: "mkdir", Path: filepath.Dir(l.path), Err: err}
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil || !ok {
		l.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteLockTimeout, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			l.mu.Unlock()
		})
	}, nil
}
