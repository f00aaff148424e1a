package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockAndUnlock(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	locker := NewLocker(client, "transfer:lock:key-1", "holder-a")
	require.NoError(t, locker.Lock(ctx, time.Minute))

	// a second holder cannot take the same key
	other := NewLocker(client, "transfer:lock:key-1", "holder-b")
	assert.Error(t, other.Lock(ctx, time.Minute))

	require.NoError(t, locker.Unlock(ctx))
	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestUnlockByNonHolder(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	holder := NewLocker(client, "transfer:lock:key-2", "holder-a")
	require.NoError(t, holder.Lock(ctx, time.Minute))

	impostor := NewLocker(client, "transfer:lock:key-2", "holder-b")
	assert.Error(t, impostor.Unlock(ctx))

	// the real holder can still unlock
	assert.NoError(t, holder.Unlock(ctx))
}

func TestWaitLock(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	first := NewLocker(client, "transfer:lock:key-3", "holder-a")
	require.NoError(t, first.Lock(ctx, time.Minute))

	second := NewLocker(client, "transfer:lock:key-3", "holder-b")
	err := second.WaitLock(ctx, time.Minute, 200*time.Millisecond)
	assert.Error(t, err)

	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.WaitLock(ctx, time.Minute, time.Second))
}

func TestExtendLock(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	locker := NewLocker(client, "transfer:lock:key-4", "holder-a")
	require.NoError(t, locker.Lock(ctx, time.Minute))
	assert.NoError(t, locker.ExtendLock(ctx, 2*time.Minute))

	impostor := NewLocker(client, "transfer:lock:key-4", "holder-b")
	assert.Error(t, impostor.ExtendLock(ctx, time.Minute))
}
