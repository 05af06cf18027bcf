package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/logger"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, time.Minute, time.Hour, logger.Nop()), mr
}

func TestLockCheckout(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	locked, err := r.LockCheckout(ctx, "reg-1", "user-a")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = r.LockCheckout(ctx, "reg-1", "user-b")
	require.NoError(t, err)
	assert.False(t, locked, "lock is held by user-a")

	available, err := r.CheckCheckoutAvailability(ctx, "reg-1")
	require.NoError(t, err)
	assert.False(t, available)

	// a non-owner cannot release it
	require.NoError(t, r.UnlockCheckout(ctx, "reg-1", "user-b"))
	available, _ = r.CheckCheckoutAvailability(ctx, "reg-1")
	assert.False(t, available)

	require.NoError(t, r.UnlockCheckout(ctx, "reg-1", "user-a"))
	available, err = r.CheckCheckoutAvailability(ctx, "reg-1")
	require.NoError(t, err)
	assert.True(t, available)

	// unlocking an absent key is a no-op
	assert.NoError(t, r.UnlockCheckout(ctx, "reg-1", "user-a"))
}

func TestLockCheckoutExpires(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	locked, err := r.LockCheckout(ctx, "reg-1", "user-a")
	require.NoError(t, err)
	require.True(t, locked)

	mr.FastForward(2 * time.Minute)

	locked, err = r.LockCheckout(ctx, "reg-1", "user-b")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockCheckout_RaceConditionPrevention(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	const numGoroutines = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successCount int
	)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := r.LockCheckout(ctx, "reg-race", fmt.Sprintf("owner-%d", n))
			if err == nil && ok {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successCount, "exactly one caller should hold the lock")
}

func TestMarkEventProcessed(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	first, err := r.MarkEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := r.MarkEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, r.ForgetEvent(ctx, "evt_1"))
	retried, err := r.MarkEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, retried)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("stripe_event:evt_1"))
}
