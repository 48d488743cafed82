package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed, one session each")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate + login)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:", "session key prefix")
		maxSessions = flag.Int("cap", 2, "concurrent sessions per user")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *maxSessions <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and cap must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := tokenauth.DefaultConfig()
	cfg.Store.Backend = tokenauth.BackendRedis
	cfg.Store.KeyPrefix = *prefix
	cfg.Store.OperationTimeout = 2 * time.Second
	cfg.DefaultPolicy.ConcurrentLoginCount = *maxSessions
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithGrantStrategy("loadtest", tokenauth.GrantStrategyFunc(func(_ context.Context, creds tokenauth.Credentials) (*tokenauth.Principal, error) {
			return &tokenauth.Principal{UserID: creds["user_id"], Username: creds["username"], Roles: []string{"user"}}, nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	names := make([]string, *users)
	tokens := make([]atomic.Value, *users)
	fmt.Printf("seeding %d sessions...\n", *users)
	startSeed := time.Now()
	for i := range names {
		names[i] = fmt.Sprintf("user-%d", i)
		s, err := engine.IssueSession(ctx, tokenauth.Principal{
			UserID:   uuid.NewString(),
			Username: names[i],
			Roles:    []string{"user"},
		}, cfg.DefaultPolicy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i].Store(s.AccessToken)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats, err := runPhase(ctx, *ops, *concurrency, func(ctx context.Context, r *rand.Rand) error {
		idx := r.Intn(len(tokens))
		_, err := engine.AuthenticateToken(ctx, tokens[idx].Load().(string))
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "authenticate phase aborted: %v\n", err)
		os.Exit(1)
	}

	loginStats, err := runPhase(ctx, *ops, *concurrency, func(ctx context.Context, r *rand.Rand) error {
		idx := r.Intn(len(names))
		s, err := engine.Login(ctx, tokenauth.LoginRequest{
			LoginType: "loadtest",
			Credentials: tokenauth.Credentials{
				"user_id":  uuid.NewString(),
				"username": names[idx],
			},
		})
		if err != nil {
			return err
		}
		tokens[idx].Store(s.AccessToken)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "login phase aborted: %v\n", err)
		os.Exit(1)
	}

	snapshot := engine.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("login", loginStats)
	fmt.Printf("sessions evicted=%d authenticate failures=%d unavailable=%d\n",
		snapshot.Counters[tokenauth.MetricSessionEvicted],
		snapshot.Counters[tokenauth.MetricAuthenticateFailure],
		snapshot.Counters[tokenauth.MetricAuthenticateUnavailable],
	)
}

// runPhase drives op from concurrency workers until ops calls have been
// made. Operation errors are counted, not fatal; only a cancelled context
// aborts the phase.
func runPhase(ctx context.Context, ops, concurrency int, op func(context.Context, *rand.Rand) error) (phaseStats, error) {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		seed := time.Now().UnixNano() + int64(w)*7919
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return nil
				}
				t0 := time.Now()
				err := op(gctx, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures), nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
