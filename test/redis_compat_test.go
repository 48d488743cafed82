//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/store"
)

var testPolicy = tokenauth.ClientPolicy{
	AccessExpire:         time.Minute,
	RefreshExpire:        time.Hour,
	ConcurrentLoginCount: 2,
}

// TestEngineLifecycle_AllBackends walks login, authenticate, eviction and
// logout through every backend.
func TestEngineLifecycle_AllBackends(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			engine := newEngine(t, b.store(t), testPolicy)
			ctx := context.Background()

			first := login(t, engine, "alice")
			second := login(t, engine, "alice")
			third := login(t, engine, "alice")

			if _, err := engine.AuthenticateToken(ctx, first.AccessToken); !errors.Is(err, tokenauth.ErrUnauthenticated) {
				t.Fatalf("evicted token: expected ErrUnauthenticated, got %v", err)
			}
			for _, s := range []*tokenauth.Session{second, third} {
				p, err := engine.AuthenticateToken(ctx, s.AccessToken)
				if err != nil {
					t.Fatalf("authenticate: %v", err)
				}
				if p.Username != "alice" || !p.HasRole("user") {
					t.Fatalf("unexpected principal %+v", p)
				}
			}

			active, err := engine.ActiveSessions(ctx, "alice")
			if err != nil || len(active) != 2 {
				t.Fatalf("active sessions = %v err=%v", active, err)
			}

			if err := engine.Revoke(ctx, second.AccessToken); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if _, err := engine.AuthenticateToken(ctx, second.AccessToken); !errors.Is(err, tokenauth.ErrUnauthenticated) {
				t.Fatalf("revoked token: expected ErrUnauthenticated, got %v", err)
			}
			if err := engine.RevokeAll(ctx, "alice"); err != nil {
				t.Fatalf("revoke all: %v", err)
			}
			if _, err := engine.AuthenticateToken(ctx, third.AccessToken); !errors.Is(err, tokenauth.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated after RevokeAll, got %v", err)
			}
		})
	}
}

// TestEngineConcurrentLogin_CapHolds logs in concurrently as one user and
// checks the capped list never exceeds the policy.
func TestEngineConcurrentLogin_CapHolds(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			s := b.store(t)
			engine := newEngine(t, s, testPolicy)

			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = engine.Login(context.Background(), tokenauth.LoginRequest{
						LoginType:   "password",
						Credentials: tokenauth.Credentials{"username": "bob", "password": "secret"},
					})
				}()
			}
			wg.Wait()

			members, err := s.Members(context.Background(), store.TokenListKey("bob"))
			if err != nil {
				t.Fatalf("members: %v", err)
			}
			if len(members) > testPolicy.ConcurrentLoginCount {
				t.Fatalf("token list holds %d entries, cap is %d", len(members), testPolicy.ConcurrentLoginCount)
			}

			live := 0
			for _, token := range members {
				if _, err := engine.AuthenticateToken(context.Background(), token); err == nil {
					live++
				}
			}
			if live != len(members) {
				t.Fatalf("%d of %d listed tokens authenticate", live, len(members))
			}
		})
	}
}

// TestRedisOutage_FailsClosed stops answering mid-test and expects
// ErrStoreUnavailable instead of a stale success.
func TestRedisOutage_FailsClosed(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, store.NewRedis(rdb, uniquePrefix()), testPolicy)
			s := login(t, engine, "carol")

			// Closing the client makes every later call fail.
			_ = rdb.Close()

			_, err := engine.AuthenticateToken(context.Background(), s.AccessToken)
			if !errors.Is(err, tokenauth.ErrStoreUnavailable) {
				t.Fatalf("expected ErrStoreUnavailable, got %v", err)
			}
			if _, err := engine.Health(context.Background()); !errors.Is(err, tokenauth.ErrStoreUnavailable) {
				t.Fatalf("health: expected ErrStoreUnavailable, got %v", err)
			}
		})
	}
}
