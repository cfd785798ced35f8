package application

import "context"

// Locker serializes warm-up runs per instance across nodes. The Valkey
// client implements it; NoopLocker serves single-node setups and tests.
type Locker interface {
	AcquireLock(ctx context.Context, key string) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// NoopLocker grants every lock immediately.
type NoopLocker struct{}

func (NoopLocker) AcquireLock(ctx context.Context, key string) (string, error) { return "", nil }
func (NoopLocker) ReleaseLock(ctx context.Context, key, token string) error    { return nil }
