package rate

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginThrottleBlocksAfterBudget(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckLogin(ctx, "alice", ""))
		require.NoError(t, l.IncrementLogin(ctx, "alice", ""))
	}
	require.ErrorIs(t, l.CheckLogin(ctx, "alice", ""), ErrRateLimited)
	require.NoError(t, l.CheckLogin(ctx, "bob", ""))

	n, err := l.Attempts(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestLoginThrottleWindowExpires(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.IncrementLogin(ctx, "alice", ""))
	require.ErrorIs(t, l.CheckLogin(ctx, "alice", ""), ErrRateLimited)

	mr.FastForward(61 * time.Second)
	require.NoError(t, l.CheckLogin(ctx, "alice", ""))
}

func TestResetLoginClearsUserCounterOnly(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	require.NoError(t, l.IncrementLogin(ctx, "alice", "10.0.0.1"))
	require.NoError(t, l.ResetLogin(ctx, "alice"))
	require.False(t, mr.Exists("loginfail:alice"))
	require.True(t, mr.Exists("loginfail-ip:10.0.0.1"))
	require.ErrorIs(t, l.CheckLogin(ctx, "carol", "10.0.0.1"), ErrRateLimited)
}

func TestLimiterOutageIsUnavailable(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	mr.Close()
	require.ErrorIs(t, l.CheckLogin(context.Background(), "alice", ""), store.ErrUnavailable)
}
