package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a best-effort mutex on top of redis SET NX, used to keep
// background scans from overlapping. It is not a fencing lock.
type Lock struct {
	client *redis.Client
}

// NewLock constructs a Lock.
func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// Acquire takes the named lock for ttl. Returns false when another
// holder owns it.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the named lock.
func (l *Lock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}

// ScanLockKey builds redis keys for background scan critical sections.
func ScanLockKey(task string) string {
	return fmt.Sprintf("inventory:scan:%s:lock", task)
}
