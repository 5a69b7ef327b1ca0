// Package lock provides advisory locks keyed by content hash. Locks only
// narrow the window in which two instances compute the same analysis;
// uniqueness is still enforced by the analysis index.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired reports that the lock stayed held by someone else for the
// whole wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Release gives the lock back. It is safe to call more than once.
type Release func()

// Locker acquires advisory locks.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Nop grants every lock immediately.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (Release, error) {
	return func() {}, nil
}

var _ Locker = Nop{}
