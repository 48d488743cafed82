package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/store"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned once the failed-login budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

// Config holds failed-login throttle tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	KeyPrefix             string
}

// Limiter counts failed logins per username and, optionally, per client IP
// in fixed windows stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) userKey(username string) string {
	return l.config.KeyPrefix + "loginfail:" + username
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.KeyPrefix + "loginfail-ip:" + ip
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}

// CheckLogin returns ErrRateLimited when the username (or IP) already used
// its budget in the current window. Outages surface as store.ErrUnavailable.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	if err := l.checkCounter(ctx, l.userKey(username)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, l.ipKey(ip))
	}
	return nil
}

// IncrementLogin records a failed attempt.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.userKey(username))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.ipKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin clears the username counter after a successful login. The IP
// counter is left alone so one good account cannot launder a sprayed IP.
func (l *Limiter) ResetLogin(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, l.userKey(username)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Attempts returns the current failed-attempt counter for username.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable(err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return unavailable(err)
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.LoginCooldownDuration).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return count, nil
}
