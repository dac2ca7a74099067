package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireRelease(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewLock(client)
	ctx := context.Background()
	key := ScanLockKey("discrepancy")

	ok, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, lock.Release(ctx, key))

	ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewLock(client)
	ctx := context.Background()
	key := ScanLockKey("discrepancy")

	ok, err := lock.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	ok, err = lock.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockNilClient(t *testing.T) {
	var lock *Lock
	ok, err := lock.Acquire(context.Background(), "any", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(context.Background(), "any"))
}
