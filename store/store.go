package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks an infrastructure failure of the backing cache.
// It is never returned for a key that simply does not exist.
var ErrUnavailable = errors.New("session store unavailable")

// ErrInvalidTTL is returned when a write is attempted without a positive TTL.
var ErrInvalidTTL = errors.New("session store: ttl must be positive")

// Store is the key/value and key/list contract shared by every backend.
//
// Absence is reported through the found result, never as an error. Every
// method honors ctx cancellation and reports a cancelled or timed-out call
// as ErrUnavailable.
type Store interface {
	// Put upserts value under key with the given TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// GetWithTTL reads value and remaining TTL in a single round trip.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	// Delete removes key and returns the number of keys removed (0 or 1).
	Delete(ctx context.Context, key string) (int64, error)
	// TTLRemaining reports the remaining TTL of key. A key without expiry
	// reports a negative duration.
	TTLRemaining(ctx context.Context, key string) (time.Duration, bool, error)
	// Extend adds added to the current remaining TTL of key. It reports false
	// and leaves the store untouched when key is absent or already expired.
	Extend(ctx context.Context, key string, added time.Duration) (bool, error)

	// PushCapped atomically appends member to the list at key, first evicting
	// from the head while the list holds capacity or more members. The list
	// TTL is reset to ttl. capacity <= 0 disables eviction.
	PushCapped(ctx context.Context, key, member string, capacity int, ttl time.Duration) ([]string, error)
	// Restore puts members back at the head of the list at key, keeping
	// their order, so they are the next to be evicted. The list TTL is reset
	// to ttl.
	Restore(ctx context.Context, key string, members []string, ttl time.Duration) error
	// RemoveMember removes every occurrence of member from the list at key.
	RemoveMember(ctx context.Context, key, member string) (int64, error)
	// Members returns the list at key, oldest first.
	Members(ctx context.Context, key string) ([]string, error)

	// Ping checks backend availability.
	Ping(ctx context.Context) (time.Duration, error)
}

var (
	_ Store = (*Local)(nil)
	_ Store = (*Redis)(nil)
)
