// Package session describes the per-request scope handed to cart and checkout operations.
package session

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("session: lock not acquired")

// Session is the explicit request scope. Privileged marks an operator allowed to run admin operations.
type Session struct {
	ID         string
	UserID     string
	Privileged bool
}

// Store is an opaque key-value scope per session. Callers namespace their own keys.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
