// Package cache defines the unified cache abstraction backed by Redis.
package cache

import (
	"context"
	"time"
)

// Cache defines the operations the judge needs from the cache layer.
type Cache interface {
	BasicOps
	LockOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for a key; returns "" when the key is absent
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with the given TTL (0 means no expiration)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist (atomic operation)
	// Returns true if the value was set
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del removes the given keys
	Del(ctx context.Context, keys ...string) error

	// Exists returns the number of existing keys among the given ones
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire resets the TTL of a key
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// LockOps defines distributed lock operations.
// Locks are token-scoped: only the holder of the token that acquired a
// lock can release or extend it.
type LockOps interface {
	// TryLock attempts to acquire a distributed lock with an owner token.
	// Returns true if the lock was acquired, false otherwise.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Unlock releases a distributed lock if it is still held by token
	Unlock(ctx context.Context, key, token string) error

	// ExtendLock extends the TTL of a lock still held by token
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) error
}
