package ports

import "context"

// Locker provides cross-instance mutual exclusion for scheduled jobs.
// TryLock returns ok=false without error when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}
