package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	value    []byte
	members  []string
	deadline time.Time
}

// Local is the process-local [Store] backend.
//
// Reads use Peek so recency only moves on writes: once maxEntries is reached
// the least-recently-written key is dropped. No entry outlives maxAge from
// its last write, whatever TTL was requested.
type Local struct {
	mu     sync.Mutex
	cache  *expirable.LRU[string, localEntry]
	maxAge time.Duration
	now    func() time.Time
}

// LocalOption configures a [Local] store.
type LocalOption func(*Local)

// WithClock replaces the clock used for per-entry deadlines.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLocal creates a bounded local store.
func NewLocal(maxEntries int, maxAge time.Duration, opts ...LocalOption) *Local {
	l := &Local{
		cache:  expirable.NewLRU[string, localEntry](maxEntries, nil, maxAge),
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) deadline(now time.Time, ttl time.Duration) time.Time {
	if l.maxAge > 0 && ttl > l.maxAge {
		ttl = l.maxAge
	}
	return now.Add(ttl)
}

// lookup must be called with l.mu held.
func (l *Local) lookup(key string, now time.Time) (localEntry, bool) {
	e, ok := l.cache.Peek(key)
	if !ok {
		return localEntry{}, false
	}
	if !now.Before(e.deadline) {
		l.cache.Remove(key)
		return localEntry{}, false
	}
	return e, true
}

func (l *Local) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Add(key, localEntry{value: stored, deadline: l.deadline(l.now(), ttl)})
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, _, found, err := l.GetWithTTL(ctx, key)
	return value, found, err
}

func (l *Local) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, unavailable(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.lookup(key, now)
	if !ok {
		return nil, 0, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, e.deadline.Sub(now), true, nil
}

func (l *Local) Delete(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.lookup(key, l.now()); !ok {
		return 0, nil
	}
	l.cache.Remove(key)
	return 1, nil
}

func (l *Local) TTLRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, unavailable(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.lookup(key, now)
	if !ok {
		return 0, false, nil
	}
	return e.deadline.Sub(now), true, nil
}

// Extend moves the entry deadline forward by added, bounded by maxAge from
// now. The entry is re-written, so it also counts as recently written.
func (l *Local) Extend(ctx context.Context, key string, added time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	if added <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.lookup(key, now)
	if !ok {
		return false, nil
	}
	next := e.deadline.Add(added)
	if limit := now.Add(l.maxAge); l.maxAge > 0 && next.After(limit) {
		next = limit
	}
	e.deadline = next
	l.cache.Add(key, e)
	return true, nil
}

func (l *Local) PushCapped(ctx context.Context, key, member string, capacity int, ttl time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, _ := l.lookup(key, now)

	members := make([]string, len(e.members), len(e.members)+1)
	copy(members, e.members)

	var evicted []string
	if capacity > 0 {
		for len(members) >= capacity {
			evicted = append(evicted, members[0])
			members = members[1:]
		}
	}
	members = append(members, member)

	l.cache.Add(key, localEntry{members: members, deadline: l.deadline(now, ttl)})
	return evicted, nil
}

func (l *Local) Restore(ctx context.Context, key string, members []string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if len(members) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, _ := l.lookup(key, now)

	restored := make([]string, 0, len(members)+len(e.members))
	restored = append(restored, members...)
	restored = append(restored, e.members...)
	l.cache.Add(key, localEntry{members: restored, deadline: l.deadline(now, ttl)})
	return nil
}

func (l *Local) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.lookup(key, l.now())
	if !ok {
		return 0, nil
	}

	kept := make([]string, 0, len(e.members))
	var removed int64
	for _, m := range e.members {
		if m == member {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		l.cache.Remove(key)
		return removed, nil
	}
	e.members = kept
	l.cache.Add(key, e)
	return removed, nil
}

func (l *Local) Members(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.lookup(key, l.now())
	if !ok {
		return nil, nil
	}
	out := make([]string, len(e.members))
	copy(out, e.members)
	return out, nil
}

// Ping always succeeds unless ctx is done.
func (l *Local) Ping(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	return 0, nil
}

// Len reports the number of live entries, including expired ones not yet
// collected.
func (l *Local) Len() int {
	return l.cache.Len()
}
