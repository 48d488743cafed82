package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Extend never resurrects: PTTL is -2 for a missing key and -1 for a key
// without expiry, both leave the key untouched.
const extendScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
redis.call("PEXPIRE", KEYS[1], ttl + tonumber(ARGV[1]))
return 1
`

var extendLua = redis.NewScript(extendScript)

const pushCappedScript = `
local cap = tonumber(ARGV[2])
local evicted = {}
if cap > 0 then
  while redis.call("LLEN", KEYS[1]) >= cap do
    local head = redis.call("LPOP", KEYS[1])
    if not head then
      break
    end
    evicted[#evicted + 1] = head
  end
end
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return evicted
`

var pushCappedLua = redis.NewScript(pushCappedScript)

// ARGV[1] is the TTL; members follow oldest first and are pushed from the
// newest so the oldest ends up at the head.
const restoreScript = `
for i = #ARGV, 2, -1 do
  redis.call("LPUSH", KEYS[1], ARGV[i])
end
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 1
`

var restoreLua = redis.NewScript(restoreScript)

// Redis is the shared [Store] backend.
//
//	Performance: every method is a single round trip.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a [Redis] store. prefix is prepended to every key and may
// be empty; it lets several deployments share one Redis database.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Put stores value with a PX expiry.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable(err)
	}
	return data, true, nil
}

// GetWithTTL runs GET and PTTL inside one MULTI/EXEC so both observe the
// same key state.
func (r *Redis) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	k := r.key(key)

	var getCmd *redis.StringCmd
	var ttlCmd *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, k)
		ttlCmd = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, unavailable(err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, unavailable(err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return nil, 0, false, unavailable(err)
	}
	remaining, found := normalizePTTL(ttl)
	if !found {
		return nil, 0, false, nil
	}
	return data, remaining, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *Redis) TTLRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, false, unavailable(err)
	}
	remaining, found := normalizePTTL(ttl)
	return remaining, found, nil
}

// normalizePTTL maps the raw PTTL reply. go-redis returns -2 and -1 unscaled.
func normalizePTTL(ttl time.Duration) (time.Duration, bool) {
	switch ttl {
	case -2:
		return 0, false
	case -1:
		return -1, true
	default:
		return ttl, true
	}
}

// Extend prolongs the remaining TTL by added, computed server-side as
// PTTL + added.
func (r *Redis) Extend(ctx context.Context, key string, added time.Duration) (bool, error) {
	if added <= 0 {
		return false, nil
	}
	res, err := extendLua.Run(ctx, r.client, []string{r.key(key)}, added.Milliseconds()).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

func (r *Redis) PushCapped(ctx context.Context, key, member string, capacity int, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	evicted, err := pushCappedLua.Run(ctx, r.client, []string{r.key(key)}, member, capacity, ttl.Milliseconds()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return evicted, nil
}

func (r *Redis) Restore(ctx context.Context, key string, members []string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, ttl.Milliseconds())
	for _, m := range members {
		args = append(args, m)
	}
	if err := restoreLua.Run(ctx, r.client, []string{r.key(key)}, args...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	n, err := r.client.LRem(ctx, r.key(key), 0, member).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *Redis) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return members, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
