//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	// Sentinel mode: when REDIS_SENTINEL_ADDRS and REDIS_SENTINEL_MASTER are set.
	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis sentinel: %v", err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// uniquePrefix keeps runs against a shared real Redis (cluster mode is
// never flushed) from seeing each other's keys.
func uniquePrefix() string {
	return "it:" + uuid.NewString()[:8] + ":"
}

type backendCase struct {
	name  string
	store func(t *testing.T) store.Store
}

// backends pairs the in-process store with every available Redis mode so
// a scenario can assert both behave the same.
func backends(t *testing.T) []backendCase {
	t.Helper()
	out := []backendCase{{
		name: "local",
		store: func(t *testing.T) store.Store {
			return store.NewLocal(1024, 0)
		},
	}}
	for _, mode := range redisModes(t) {
		out = append(out, backendCase{
			name: "redis/" + mode.name,
			store: func(t *testing.T) store.Store {
				rdb, cleanup := mode.setup(t)
				t.Cleanup(cleanup)
				return store.NewRedis(rdb, uniquePrefix())
			},
		})
	}
	return out
}

func newEngine(t *testing.T, s store.Store, policy tokenauth.ClientPolicy) *tokenauth.Engine {
	t.Helper()
	cfg := tokenauth.DefaultConfig()
	cfg.DefaultPolicy = policy
	cfg.Authorization.Roles = []string{"user"}
	cfg.Metrics.Enabled = true

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithStore(s).
		WithGrantStrategy("password", tokenauth.GrantStrategyFunc(func(_ context.Context, creds tokenauth.Credentials) (*tokenauth.Principal, error) {
			if creds["password"] != "secret" {
				return nil, tokenauth.ErrInvalidCredentials
			}
			return &tokenauth.Principal{UserID: "u-" + creds["username"], Username: creds["username"], Roles: []string{"user"}}, nil
		})).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func login(t *testing.T, engine *tokenauth.Engine, username string) *tokenauth.Session {
	t.Helper()
	s, err := engine.Login(context.Background(), tokenauth.LoginRequest{
		LoginType:   "password",
		Credentials: tokenauth.Credentials{"username": username, "password": "secret"},
	})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return s
}
