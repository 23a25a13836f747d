package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campus-auth/internal/client"
	"campus-auth/internal/util"
)

func newTestLimiter(t *testing.T, cfg OTPLimiterConfig) (*OTPLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := &client.RedisClient{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = rc.Client.Close() })

	return NewOTPLimiter(rc, cfg, zap.NewNop()), mr
}

func TestAllowSendBudget(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, OTPLimiterConfig{MaxSends: 3, SendWindow: time.Hour})

	for i := 0; i < 3; i++ {
		ok, err := limiter.AllowSend(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be within budget", i+1)
	}

	ok, err := limiter.AllowSend(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok, "fourth send exceeds the budget")

	// a different account has its own budget
	ok, err = limiter.AllowSend(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowSendWindowExpires(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, OTPLimiterConfig{MaxSends: 1, SendWindow: time.Hour})

	ok, err := limiter.AllowSend(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.AllowSend(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Hour + time.Second)

	ok, err = limiter.AllowSend(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok, "budget resets once the window rolls over")
}

func TestAttemptLockoutAndRelease(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, OTPLimiterConfig{
		MaxAttempts:   3,
		AttemptWindow: 15 * time.Minute,
		LockDuration:  15 * time.Minute,
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.RecordFailedAttempt(ctx, "a@x.com"))
		ok, err := limiter.AllowAttempt(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, ok, "below the threshold attempts stay allowed")
	}

	// third failure trips the lock
	require.NoError(t, limiter.RecordFailedAttempt(ctx, "a@x.com"))
	ok, err := limiter.AllowAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	// other accounts are unaffected
	ok, err = limiter.AllowAttempt(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(15*time.Minute + time.Second)
	ok, err = limiter.AllowAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok, "lock expires on its own")
}

func TestClearAttemptsRemovesLock(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, OTPLimiterConfig{
		MaxAttempts:   1,
		AttemptWindow: 15 * time.Minute,
		LockDuration:  15 * time.Minute,
	})

	require.NoError(t, limiter.RecordFailedAttempt(ctx, "a@x.com"))
	ok, err := limiter.AllowAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.ClearAttempts(ctx, "a@x.com"))
	ok, err = limiter.AllowAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeysCarryEmailHashOnly(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, OTPLimiterConfig{})

	_, err := limiter.AllowSend(ctx, "a@x.com")
	require.NoError(t, err)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "a@x.com", "raw addresses must never appear in key names")
	}
	assert.True(t, mr.Exists(sendCountPrefix+util.HashEmail("a@x.com")))
}
