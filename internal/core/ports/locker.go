package ports

import (
	"context"
	"errors"
)

// ErrLocked is returned by SessionLocker.TryLock when the key is held.
var ErrLocked = errors.New("lock is held")

// SessionLocker grants exclusive ownership of a key without waiting.
type SessionLocker interface {
	// TryLock acquires key or fails with ErrLocked. The returned function
	// releases the lock and is safe to call once.
	TryLock(ctx context.Context, key string) (func(), error)
}
