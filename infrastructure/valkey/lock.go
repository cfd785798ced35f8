package valkey

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

const (
	lockSuffix     = ":lock"
	lockTTL        = 5 * time.Second       // Maximum time a lock can live (prevents deadlocks)
	lockWaitTime   = 50 * time.Millisecond // Time between lock acquisition attempts
	maxLockRetries = 10                    // Maximum attempts to acquire a lock
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// retry budget.
var ErrLockTimeout = errors.New("lock acquisition timed out after max retries")

// Lua script for atomic lock release (only delete if token matches)
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// AcquireLock takes a distributed lock on the given key. It returns a token
// that must be passed to ReleaseLock; the token guarantees we only ever
// delete our own lock, never one re-acquired by another worker after expiry.
func (c *Client) AcquireLock(ctx context.Context, key string) (string, error) {
	lockKey := c.Key(key) + lockSuffix
	token := uuid.New().String()

	for i := 0; i < maxLockRetries; i++ {
		cmd := c.inner.B().Set().
			Key(lockKey).
			Value(token).
			Nx().
			Ex(lockTTL).
			Build()

		err := c.inner.Do(ctx, cmd).Error()
		if err == nil {
			return token, nil
		}

		if !valkeylib.IsValkeyNil(err) {
			// Real error (connection, etc), log but continue retrying
			logrus.Debugf("[VALKEY] Lock attempt %d failed for %s: %v", i+1, key, err)
		}

		// Wait with random jitter to avoid thundering herd
		sleepDuration := lockWaitTime + time.Duration(rand.Intn(20))*time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleepDuration):
			continue
		}
	}

	return "", ErrLockTimeout
}

// ReleaseLock releases the distributed lock ONLY if the token matches.
// Uses a Lua script for atomicity.
func (c *Client) ReleaseLock(ctx context.Context, key string, token string) error {
	lockKey := c.Key(key) + lockSuffix

	cmd := c.inner.B().Eval().
		Script(releaseLockScript).
		Numkeys(1).
		Key(lockKey).
		Arg(token).
		Build()

	return c.inner.Do(ctx, cmd).Error()
}
