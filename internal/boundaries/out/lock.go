package out

import "context"

// Locker serializes controller passes, across processes when backed by a file.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done. The returned
	// func releases it.
	Lock(ctx context.Context) (func(), error)
}
